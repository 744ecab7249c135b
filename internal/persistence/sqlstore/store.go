package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/event-booking/internal/persistence"
)

// RetryConfig configures retry behaviour for transactions that lose a race
// against concurrent writers.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns a retry configuration with sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    5,
		InitialDelay:  20 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
}

// Store implements persistence.Store over a sqlx pool.
type Store struct {
	repos
	db    *sqlx.DB
	retry RetryConfig
}

var _ persistence.Store = (*Store)(nil)

// New wraps db. The schema must already be migrated.
func New(db *sqlx.DB, dialect Dialect, retry RetryConfig) *Store {
	if retry.BackoffFactor < 1 {
		retry.BackoffFactor = 1
	}
	return &Store{repos: repos{ext: db, dialect: dialect}, db: db, retry: retry}
}

// DB returns the underlying pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping tests the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// WithinTx executes fn within a database transaction using the dialect's
// transaction options. Transactions rejected because of concurrent writers
// are retried with exponential backoff; if they keep failing the error wraps
// persistence.ErrConflictingWrite.
func (s *Store) WithinTx(ctx context.Context, fn persistence.TxFunc) error {
	delay := s.retry.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * s.retry.BackoffFactor)
			if delay > s.retry.MaxDelay {
				delay = s.retry.MaxDelay
			}
		}

		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !s.dialect.retryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: gave up after %d retries: %v", persistence.ErrConflictingWrite, s.retry.MaxRetries, lastErr)
}

func (s *Store) runTx(ctx context.Context, fn persistence.TxFunc) (err error) {
	tx, err := s.db.BeginTxx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", s.dialect.mapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, repos{ext: tx, dialect: s.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", s.dialect.mapError(err))
	}
	return nil
}
