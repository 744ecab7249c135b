// Package sqlite opens the embedded SQLite backend of the event store.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/example/event-booking/internal/persistence"
	"github.com/example/event-booking/internal/persistence/migration"
	"github.com/example/event-booking/internal/persistence/sqlstore"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Config holds SQLite-specific database configuration
type Config struct {
	// DSN is the database file path or a file: URI.
	DSN string
	// BusyTimeout sets how long to wait for database locks
	BusyTimeout time.Duration
	// JournalMode sets the SQLite journal mode (WAL, DELETE, ...)
	JournalMode string
	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF)
	Synchronous string
	// MaxOpenConns sets the maximum number of open connections
	MaxOpenConns int
	// ConnMaxLifetime sets the maximum lifetime of connections
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns settings suited to a single node deployment.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:          dsn,
		BusyTimeout:  5 * time.Second,
		JournalMode:  "WAL",
		Synchronous:  "NORMAL",
		MaxOpenConns: 4,
	}
}

// Dialect describes SQLite to the shared SQL store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:      DriverName,
		TimeValue: sqlstore.TextTime,
		MapError:  MapError,
		Retryable: isRetryable,
	}
}

// Open connects to the database described by cfg, applies pending migrations
// and returns the store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sqlstore.Store, error) {
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}
	if err := ensureDirectory(cfg.DSN); err != nil {
		return nil, err
	}

	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	manager := migration.NewManager(migration.NewScanner(migrationFiles, "migrations"), migration.NewExecutor(db), logger)
	if err := manager.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return sqlstore.New(db, Dialect(), sqlstore.DefaultRetryConfig()), nil
}

// BuildDSN renders cfg as a modernc.org/sqlite DSN. Pragmas are passed as
// connection parameters so every pooled connection gets them, and write
// transactions begin IMMEDIATE so concurrent bookings serialise on the
// database write lock.
func BuildDSN(cfg Config) (string, error) {
	raw := strings.TrimSpace(cfg.DSN)
	if raw == "" {
		return "", fmt.Errorf("sqlite: DSN is required")
	}
	if !strings.HasPrefix(raw, "file:") {
		raw = "file:" + raw
	}

	path, rawQuery, _ := strings.Cut(raw, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("sqlite: invalid DSN parameters: %w", err)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	params.Add("_pragma", "foreign_keys(1)")
	if cfg.JournalMode != "" {
		params.Add("_pragma", fmt.Sprintf("journal_mode(%s)", cfg.JournalMode))
	}
	if cfg.Synchronous != "" {
		params.Add("_pragma", fmt.Sprintf("synchronous(%s)", cfg.Synchronous))
	}
	params.Set("_txlock", "immediate")

	return path + "?" + params.Encode(), nil
}

func ensureDirectory(dsn string) error {
	path := strings.TrimPrefix(strings.TrimSpace(dsn), "file:")
	path, _, _ = strings.Cut(path, "?")
	if path == "" || strings.Contains(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}

// MapError maps SQLite errors to persistence layer errors
func MapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case sqlstore.ContainsAny(msg, "UNIQUE constraint failed", "PRIMARY KEY constraint failed"):
		return fmt.Errorf("%w: %w", persistence.ErrDuplicate, err)
	case sqlstore.ContainsAny(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %w", persistence.ErrNotFound, err)
	default:
		return err
	}
}

func isRetryable(err error) bool {
	return sqlstore.ContainsAny(err.Error(), "database is locked", "SQLITE_BUSY", "database table is locked")
}
