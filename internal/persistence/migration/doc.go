// Package migration applies versioned SQL migrations to a database.
//
// Migration files are read from an fs.FS (usually an embed.FS owned by the
// dialect package) and must be named {version}_{description}.sql, for example
// "001_create_events.sql". Applied versions are tracked in a schema_migrations
// table so each migration runs once, inside its own transaction.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(files, "migrations"), migration.NewExecutor(db), logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
