package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ideahub/backend/internal/metrics"
	"github.com/ideahub/backend/internal/models"
)

// Beginner abstracts transaction creation so the in-memory store and tests
// can stand in for a *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxFunc is the body of a transaction. Returning an error rolls it back.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// TxOptions controls the isolation level and retry budget of WithTx.
type TxOptions struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	Timeout      time.Duration
}

// Transactor runs TxFuncs atomically with a hard timeout, retrying a bounded
// number of times on transient write conflicts.
type Transactor struct {
	db      Beginner
	opts    TxOptions
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTransactor returns a Transactor that begins transactions on db.
func NewTransactor(db Beginner, opts TxOptions, m *metrics.Metrics, logger *slog.Logger) *Transactor {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transactor{db: db, opts: opts, metrics: m, logger: logger}
}

// WithTx runs fn inside a transaction and commits it. Serialization failures
// and deadlocks are retried; every other error is returned as is.
func (t *Transactor) WithTx(ctx context.Context, op string, fn TxFunc) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = t.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) || attempt >= t.opts.MaxAttempts {
			break
		}
		t.metrics.TxRetry(op)
		t.logger.Warn("retrying transaction", "op", op, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			t.metrics.TxFinished(op, "canceled")
			return ctx.Err()
		case <-time.After(t.opts.RetryBackoff * time.Duration(attempt)):
		}
	}
	if err != nil {
		t.metrics.TxFinished(op, models.ErrorKind(err))
		return err
	}
	t.metrics.TxFinished(op, "ok")
	return nil
}

func (t *Transactor) runOnce(ctx context.Context, fn TxFunc) error {
	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback must still reach the server after the deadline fires.
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is a transient conflict Postgres expects
// the client to retry.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
