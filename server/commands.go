package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"llm-arena/server/catalog"
	"llm-arena/server/store"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "arena",
		Short:         "LLM battle arena: pairwise votes ranked on global and personal ELO leaderboards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), seedCmd())
	return root
}

// bootstrap loads config, configures logging and opens the database.
func bootstrap(ctx context.Context) (Config, *store.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return Config{}, nil, err
	}
	if err := setupLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return Config{}, nil, err
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, db, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, db, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			return serve(ctx, cfg, db)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			_, db, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.Migrate(ctx, db); err != nil {
				return err
			}
			log.Info("migrated")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert the model catalog as global leaderboard rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			cfg, db, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			if reset {
				if err := db.ResetLeaderboards(ctx); err != nil {
					return err
				}
				log.Warn("leaderboards reset: battles and personal records deleted")
			}
			return seed(ctx, cfg, db)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "zero global ratings and delete battles and personal records first")
	return cmd
}

func seed(ctx context.Context, cfg Config, db *store.DB) error {
	cat, err := catalog.Load(cfg.ModelsFile)
	if err != nil {
		return err
	}
	n, err := db.SeedModels(ctx, cat.All())
	if err != nil {
		return errors.Wrap(err, "seed models")
	}
	log.WithFields(log.Fields{"catalog": cat.Len(), "changed": n}).Info("models seeded")
	return nil
}
