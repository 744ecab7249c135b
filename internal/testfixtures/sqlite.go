package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/event-booking/internal/persistence"
	"github.com/example/event-booking/internal/persistence/sqlite"
	"github.com/example/event-booking/internal/persistence/sqlstore"
)

// NewSQLiteStore opens a migrated store on a temporary database file. The
// store is closed when the test finishes.
func NewSQLiteStore(tb testing.TB) *sqlstore.Store {
	tb.Helper()
	return NewSQLiteStoreAt(tb, filepath.Join(tb.TempDir(), "scheduler.db"))
}

// NewSQLiteStoreAt opens a migrated store on the database file at path.
func NewSQLiteStoreAt(tb testing.TB, path string) *sqlstore.Store {
	tb.Helper()

	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedRecipients inserts recipients directly into the store.
func SeedRecipients(tb testing.TB, store persistence.Store, recipients ...RecipientFixture) {
	tb.Helper()
	for _, r := range recipients {
		if err := store.CreateRecipient(context.Background(), r.Persistence()); err != nil {
			tb.Fatalf("failed to seed recipient %s: %v", r.Email, err)
		}
	}
}

// SeedEvents inserts events directly into the store, bypassing conflict checks.
func SeedEvents(tb testing.TB, store persistence.Store, events ...EventFixture) {
	tb.Helper()
	for _, e := range events {
		if err := store.CreateEvent(context.Background(), e.Persistence()); err != nil {
			tb.Fatalf("failed to seed event %s: %v", e.ID, err)
		}
	}
}
