// Package database provides the SQLite store behind the dispatch audit log.
//
// It opens the database file with WAL mode and a busy timeout, limits the
// pool to a single connection (SQLite has one writer), and applies
// versioned SQL migrations from an fs.FS, normally the embedded
// migrations package.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
