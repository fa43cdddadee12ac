// Package database opens and migrates the service's SQLite store, which
// holds configured media servers and discovery flows.
//
// The connection runs in WAL mode with a single writer, matching SQLite's
// concurrency model. Schema changes ship as embedded, versioned migration
// pairs (.up.sql / .down.sql) applied by Migrate at startup; migrations are
// additive, so new columns need defaults and existing columns are never
// dropped or renamed.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil { ... }
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil { ... }
package database
