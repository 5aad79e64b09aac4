package database

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// historyTables must exist in every database at the latest schema version.
var historyTables = []string{"runs", "run_tables"}

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate brings the run history schema (the runs table and its per-table
// outcomes in run_tables) up to the latest version, one transaction per
// step. PRAGMA user_version records the last applied step. A file stamped
// with a newer version, or one that claims a version but lacks the history
// tables, is refused rather than written to.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	latest := latestVersion()
	if current > latest {
		return fmt.Errorf("run history schema version %d is newer than this binary (%d)", current, latest)
	}

	for _, m := range migrations[current:] {
		zap.S().Infof("run history: applying migration %d (%s)", m.Version, m.Description)
		if err := applyMigration(conn, m); err != nil {
			return err
		}
	}
	if current < latest {
		zap.S().Debugf("run history schema now at version %d", latest)
	}
	return checkHistoryTables(conn)
}

func applyMigration(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}

	// modernc sqlite only honours user_version outside a transaction
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}

func checkHistoryTables(conn *sql.DB) error {
	for _, name := range historyTables {
		var n int
		err := conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
		if err != nil {
			return fmt.Errorf("checking table %s: %w", name, err)
		}
		if n == 0 {
			return fmt.Errorf("run history table %s is missing", name)
		}
	}
	return nil
}
