package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestScannerScanMigrations(t *testing.T) {
	t.Parallel()

	t.Run("orders by numeric version and reads descriptions", func(t *testing.T) {
		t.Parallel()
		files := fstest.MapFS{
			"migrations/010_add_index.sql":     {Data: []byte("CREATE INDEX idx ON t (a);")},
			"migrations/002_second.sql":        {Data: []byte("-- Description: adds the second table\nCREATE TABLE b (id TEXT);")},
			"migrations/001_create_things.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
			"migrations/README.md":             {Data: []byte("ignored")},
		}

		got, err := NewScanner(files, "migrations").ScanMigrations()
		if err != nil {
			t.Fatalf("ScanMigrations returned error: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 migrations, got %d", len(got))
		}
		if got[0].Version != "001" || got[1].Version != "002" || got[2].Version != "010" {
			t.Fatalf("unexpected order: %s %s %s", got[0].Version, got[1].Version, got[2].Version)
		}
		if got[0].Description != "create things" {
			t.Fatalf("expected filename description, got %q", got[0].Description)
		}
		if got[1].Description != "adds the second table" {
			t.Fatalf("expected content description, got %q", got[1].Description)
		}
		if got[0].Checksum == "" {
			t.Fatalf("expected checksum to be computed")
		}
	})

	t.Run("rejects malformed names", func(t *testing.T) {
		t.Parallel()
		files := fstest.MapFS{"migrations/initial.sql": {Data: []byte("CREATE TABLE a (id TEXT);")}}
		_, err := NewScanner(files, "migrations").ScanMigrations()
		if !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
		}
	})

	t.Run("rejects duplicate versions", func(t *testing.T) {
		t.Parallel()
		files := fstest.MapFS{
			"migrations/001_a.sql":  {Data: []byte("CREATE TABLE a (id TEXT);")},
			"migrations/0001_b.sql": {Data: []byte("CREATE TABLE b (id TEXT);")},
		}
		_, err := NewScanner(files, "migrations").ScanMigrations()
		if !errors.Is(err, ErrDuplicateVersion) {
			t.Fatalf("expected ErrDuplicateVersion, got %v", err)
		}
	})

	t.Run("rejects comment-only files", func(t *testing.T) {
		t.Parallel()
		files := fstest.MapFS{"migrations/001_empty.sql": {Data: []byte("-- nothing here\n")}}
		_, err := NewScanner(files, "migrations").ScanMigrations()
		if !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
		}
	})
}

func TestParseSQL(t *testing.T) {
	t.Parallel()

	statements := parseSQL(`
-- leading comment
CREATE TABLE a (id TEXT);

-- another
CREATE INDEX idx_a ON a (id);
`)
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(statements), statements)
	}
	if statements[1] != "CREATE INDEX idx_a ON a (id)" {
		t.Fatalf("unexpected statement %q", statements[1])
	}
}
