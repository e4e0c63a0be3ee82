// Package database owns the SQLite connection used by academia-core.
//
// It opens the database file with WAL mode and foreign keys enabled, applies
// the embedded schema migrations and exposes helpers for classifying
// constraint errors raised by the driver.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations package and are named
// YYYYMMDD_HHMMSS_description.up.sql with a matching .down.sql.
package database
