package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "run history",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    status TEXT NOT NULL CHECK(status IN ('ok', 'partial', 'failed')),
    dry_run INTEGER DEFAULT 0,
    error TEXT
);

CREATE TABLE IF NOT EXISTS run_tables (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    table_name TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('ok', 'failed')),
    row_count INTEGER DEFAULT 0,
    column_count INTEGER DEFAULT 0,
    path TEXT,
    error TEXT,
    duration_ms INTEGER DEFAULT 0,
    PRIMARY KEY (run_id, table_name)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_tables_name ON run_tables(table_name);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "error kind and last data date per table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
ALTER TABLE run_tables ADD COLUMN error_kind TEXT;
ALTER TABLE run_tables ADD COLUMN last_date TEXT;
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
