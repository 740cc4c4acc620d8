package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"llm-arena/server/api"
	"llm-arena/server/battle"
	"llm-arena/server/catalog"
	"llm-arena/server/llm"
	"llm-arena/server/rating"
	"llm-arena/server/session"
	"llm-arena/server/store"
	"llm-arena/server/vote"
)

const sessionPruneEvery = time.Hour

func serve(ctx context.Context, cfg Config, db *store.DB) error {
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("migrated")
	}
	if err := db.Ping(ctx); err != nil {
		return errors.Wrap(err, "database unreachable")
	}

	cat, err := catalog.Load(cfg.ModelsFile)
	if err != nil {
		return err
	}
	if cfg.AutoSeed {
		if err := seed(ctx, cfg, db); err != nil {
			return err
		}
	}
	if !llm.PreferOpenRouter() {
		log.Info("no OpenRouter configuration found; vendor/model slugs still route to OpenRouter")
	}

	sessions := session.NewManager(db, cfg.SessionTTL, cfg.CookieSecure)
	srv := api.NewServer(
		db,
		db,
		vote.NewProcessor(vote.Postgres(db), rating.Elo{K: cfg.EloK}),
		battle.NewService(db, llm.NewClient(cfg.BattleTimeout), cat, cfg.BattleRatePerMin),
		sessions,
		cat,
		api.Config{
			LinkSecret:     cfg.LinkSecret,
			RequestTimeout: cfg.RequestTimeout,
			BattleTimeout:  cfg.BattleTimeout,
		},
	)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.BattleTimeout + 10*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("listening on http://localhost:%s (Ctrl+C to stop)", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		log.Info("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		pruneSessions(gctx, db)
		return nil
	})
	return g.Wait()
}

func pruneSessions(ctx context.Context, db *store.DB) {
	t := time.NewTicker(sessionPruneEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := db.DeleteExpiredSessions(ctx)
			if err != nil {
				log.WithError(err).Warn("session prune failed")
				continue
			}
			if n > 0 {
				log.WithField("sessions", n).Debug("pruned expired sessions")
			}
		}
	}
}
