// Package store implements the SQLite persistence layer for yukemuri.
// One database file holds the whole tracker: onsens, visits, the challenge
// ruleset with its weekly revisions, and the persisted analysis artifacts
// (runs, ranked model results, insights).
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"yukemuri/internal/logging"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// timeLayout is the canonical timestamp encoding inside the database.
const timeLayout = time.RFC3339

// Store wraps the SQLite database.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex // guards multi-statement operations
	path string
}

// Open initializes the SQLite database at the given path, creating the
// schema when needed and applying pending column migrations.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.SubStore, "Open")
	defer timer.Stop()

	log := logging.L(logging.SubStore)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		// NORMAL is safe with WAL and much faster than FULL.
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debugf("pragma failed: %s: %v", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Debugf("store ready at %s", path)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for packages that extend the store (server API).
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS onsens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		region TEXT NOT NULL DEFAULT '',
		town TEXT NOT NULL DEFAULT '',
		latitude REAL,
		longitude REAL,
		spring_type TEXT NOT NULL DEFAULT '',
		source_temp_c REAL,
		ph REAL,
		entry_fee TEXT NOT NULL DEFAULT '0',
		has_rotenburo INTEGER NOT NULL DEFAULT 0,
		has_sauna INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_onsens_region ON onsens(region);

	CREATE TABLE IF NOT EXISTS visits (
		id TEXT PRIMARY KEY,
		onsen_id INTEGER NOT NULL REFERENCES onsens(id) ON DELETE CASCADE,
		visited_at TEXT NOT NULL,
		duration_min INTEGER NOT NULL DEFAULT 0,
		bath_temp_c REAL,
		crowd_level INTEGER NOT NULL DEFAULT 0,
		weather TEXT NOT NULL DEFAULT '',
		companions INTEGER NOT NULL DEFAULT 0,
		travel_min INTEGER NOT NULL DEFAULT 0,
		cost TEXT NOT NULL DEFAULT '0',
		rating REAL NOT NULL DEFAULT 0,
		mood_before INTEGER NOT NULL DEFAULT 0,
		mood_after INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_visits_onsen ON visits(onsen_id);
	CREATE INDEX IF NOT EXISTS idx_visits_time ON visits(visited_at);

	CREATE TABLE IF NOT EXISTS rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_rev INTEGER NOT NULL DEFAULT 0,
		retired_rev INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS revisions (
		version INTEGER PRIMARY KEY,
		iso_year INTEGER NOT NULL,
		iso_week INTEGER NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('draft','accepted')),
		rationale TEXT NOT NULL DEFAULT '',
		document TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		accepted_at TEXT,
		UNIQUE(iso_year, iso_week)
	);

	CREATE TABLE IF NOT EXISTS revision_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL REFERENCES revisions(version) ON DELETE CASCADE,
		op TEXT NOT NULL CHECK(op IN ('add','amend','retire')),
		rule_code TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		old_body TEXT NOT NULL DEFAULT '',
		new_body TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		dependent TEXT NOT NULL,
		criterion TEXT NOT NULL,
		robust TEXT NOT NULL DEFAULT 'none',
		spec_count INTEGER NOT NULL DEFAULT 0,
		fit_count INTEGER NOT NULL DEFAULT 0,
		skip_count INTEGER NOT NULL DEFAULT 0,
		best_spec TEXT NOT NULL DEFAULT '',
		row_count INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS model_results (
		run_id TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
		spec_id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		formula TEXT NOT NULL,
		nobs INTEGER NOT NULL,
		nvars INTEGER NOT NULL,
		r2 REAL NOT NULL,
		adj_r2 REAL NOT NULL,
		aic REAL NOT NULL,
		bic REAL NOT NULL,
		score REAL NOT NULL,
		coefficients TEXT NOT NULL,
		diagnostics TEXT NOT NULL,
		PRIMARY KEY (run_id, spec_id)
	);
	CREATE INDEX IF NOT EXISTS idx_model_results_rank ON model_results(run_id, rank);

	CREATE TABLE IF NOT EXISTS insights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
		category TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		detail TEXT NOT NULL,
		support REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Stats returns a table-name to row-count map for the status command.
func (s *Store) Stats() (map[string]int, error) {
	tables := []string{
		"onsens", "visits", "rules", "revisions", "revision_changes",
		"analysis_runs", "model_results", "insights",
	}
	stats := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		stats[table] = n
	}
	return stats, nil
}

// Vacuum reclaims free pages in the database file.
func (s *Store) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}

// Backup copies the database file to dst. The pool holds a single
// connection, so no writer can interleave with the checkpoint-and-copy.
func (s *Store) Backup(dst string) error {
	if s.path == ":memory:" {
		return fmt.Errorf("cannot back up an in-memory database")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Flush the WAL into the main file so the copy is complete.
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logging.L(logging.SubStore).Debugf("wal checkpoint failed: %v", err)
	}

	in, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open database for backup: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}
	return out.Sync()
}

// fmtTime encodes a timestamp for storage. All times are stored in UTC.
func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// parseTime decodes a stored timestamp; zero time on empty.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
