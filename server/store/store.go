package store

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"llm-arena/server/models"
)

//go:embed schema.sql
var schema embed.FS

// Postgres error codes the store reacts to.
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

type DB struct{ *pgxpool.Pool }

func Open(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open pool")
	}
	return &DB{p}, nil
}

func (db *DB) Close()                         { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return classify(db.Pool.Ping(ctx)) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return errors.Wrap(err, "apply schema")
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is the write surface available inside WithTx.
type Tx struct{ tx pgx.Tx }

// WithTx runs fn in one read-committed transaction. Any error from fn rolls
// the whole transaction back.
func (db *DB) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx) // safe if already committed

	if err := fn(&Tx{tx: tx}); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

func pgErrCode(err error) string {
	var e *pgconn.PgError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// classify marks failures a client may resubmit as models.ErrTransient.
func classify(err error) error {
	if err == nil || errors.Is(err, models.ErrTransient) {
		return err
	}
	switch pgErrCode(err) {
	case CodeSerializationFailure, CodeDeadlockDetected:
		return errors.Wrapf(models.ErrTransient, "%v", err)
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return errors.Wrapf(models.ErrTransient, "%v", err)
	}
	return err
}
