// Versioned schema migrations. New columns are appended to pendingMigrations
// and applied through PRAGMA table_info checks, so an old database upgrades
// in place the first time a newer binary opens it.
package store

import (
	"database/sql"
	"fmt"

	"yukemuri/internal/logging"
)

// Migration adds one column to an existing table.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists schema deltas since the first public release.
var pendingMigrations = []Migration{
	// Mood tracking came after the first release; old visits read as 0 (= unrecorded).
	{"visits", "mood_before", "INTEGER NOT NULL DEFAULT 0"},
	{"visits", "mood_after", "INTEGER NOT NULL DEFAULT 0"},
	// Water chemistry columns for onsens imported from the paper notebook.
	{"onsens", "ph", "REAL"},
	{"onsens", "source_temp_c", "REAL"},
	// Robust covariance choice was not persisted in early analysis runs.
	{"analysis_runs", "robust", "TEXT NOT NULL DEFAULT 'none'"},
}

// RunMigrations applies pending column migrations for existing databases.
func RunMigrations(db *sql.DB) error {
	log := logging.L(logging.SubStore)

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			// The column may exist under a different definition; not fatal.
			log.Warnf("migration %s.%s failed: %v", m.Table, m.Column, err)
			continue
		}
		applied++
	}
	if applied > 0 {
		log.Debugf("schema migrations applied: %d", applied)
	}
	return nil
}

// tableExists checks sqlite_master for the table.
func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
	).Scan(&name)
	return err == nil
}

// columnExists checks if a column exists using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
