// Package database provides SQLite connectivity for the AC bridge.
//
// This package manages:
//   - Opening the database with busy timeout, foreign keys and optional WAL
//   - Versioned schema migrations recorded in schema_migrations
//   - A transaction helper used by the state store
//
// The pool holds a single connection, matching SQLite's single-writer model.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations directory and are
// embedded into the binary. Each has an .up.sql and, where reversible,
// a .down.sql.
package database
