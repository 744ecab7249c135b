// Package postgres opens the PostgreSQL backend of the event store.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/example/event-booking/internal/persistence"
	"github.com/example/event-booking/internal/persistence/migration"
	"github.com/example/event-booking/internal/persistence/sqlstore"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DriverName is the database/sql driver registered by lib/pq.
const DriverName = "postgres"

// SQLSTATE codes handled by the store.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Dialect describes PostgreSQL to the shared SQL store. Transactions run at
// SERIALIZABLE so conflict detection and the insert that follows behave as if
// executed alone; the exclusion constraint from migration 004 backs this up.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:      DriverName,
		TxOptions: &sql.TxOptions{Isolation: sql.LevelSerializable},
		MapError:  MapError,
		Retryable: isRetryable,
	}
}

// Open connects, migrates and returns the store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sqlstore.Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: DSN is required")
	}

	db, err := sqlx.Open(DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}

	manager := migration.NewManager(migration.NewScanner(migrationFiles, "migrations"), migration.NewExecutor(db), logger)
	if err := manager.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return sqlstore.New(db, Dialect(), sqlstore.DefaultRetryConfig()), nil
}

// MapError maps PostgreSQL errors to persistence layer errors.
func MapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", persistence.ErrDuplicate, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %w", persistence.ErrNotFound, err)
	case codeExclusionViolation:
		return fmt.Errorf("%w: %w", persistence.ErrOverlap, err)
	default:
		return err
	}
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}
