// Package db owns the SQLite store that holds runs, stage artifacts, and
// review state. The audit chain lives in its own append-only file, not
// here; this database is working storage, not evidence.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with regdelta-specific schema management.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// Path returns the filesystem location backing the store.
func (d *DB) Path() string {
	return d.path
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    scenario TEXT NOT NULL,
    baseline_path TEXT NOT NULL DEFAULT '',
    new_path TEXT NOT NULL,
    state TEXT NOT NULL CHECK(state IN ('ingest','diff','extract','map','plan','done','failed')),
    started_at DATETIME NOT NULL DEFAULT (datetime('now')),
    finished_at DATETIME,
    failure TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario);

CREATE TABLE IF NOT EXISTS artifacts (
    run_id TEXT NOT NULL REFERENCES runs(id),
    stage TEXT NOT NULL,
    input_digest TEXT NOT NULL,
    output_digest TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (run_id, stage)
);

CREATE TABLE IF NOT EXISTS obligations (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    document_id TEXT NOT NULL,
    section_label TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    severity TEXT NOT NULL CHECK(severity IN ('high','medium','low')),
    modal_phrase TEXT NOT NULL,
    deadline TEXT NOT NULL DEFAULT '',
    excerpt TEXT NOT NULL DEFAULT '',
    citations TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_obligations_run ON obligations(run_id);

CREATE TABLE IF NOT EXISTS mappings (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    obligation_id TEXT NOT NULL REFERENCES obligations(id),
    control_id TEXT NOT NULL,
    control_title TEXT NOT NULL DEFAULT '',
    cosine_score REAL NOT NULL,
    fuzzy_score REAL NOT NULL,
    blended_score REAL NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('accepted','review','rejected')),
    auto_status TEXT NOT NULL CHECK(auto_status IN ('accepted','review','rejected')),
    reviewer TEXT,
    comment TEXT,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_mappings_run ON mappings(run_id);
CREATE INDEX IF NOT EXISTS idx_mappings_obligation ON mappings(obligation_id);
CREATE INDEX IF NOT EXISTS idx_mappings_status ON mappings(status);

CREATE TABLE IF NOT EXISTS overrides (
    id TEXT PRIMARY KEY,
    mapping_id TEXT NOT NULL UNIQUE REFERENCES mappings(id),
    previous_status TEXT NOT NULL,
    new_status TEXT NOT NULL CHECK(new_status IN ('accepted','review','rejected')),
    reviewer TEXT NOT NULL,
    comment TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`
