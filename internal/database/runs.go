package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s.String)
	return t
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertRun stores a run and its per-table outcomes in one transaction.
func (db *DB) InsertRun(run *Run) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, started_at, finished_at, status, dry_run, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Status, run.DryRun, nullable(run.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO run_tables
		(run_id, table_name, status, row_count, column_count, path, error, error_kind, last_date, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range run.Tables {
		if _, err := stmt.Exec(
			run.ID, t.Table, t.Status, t.Rows, t.Columns,
			nullable(t.Path), nullable(t.Error), nullable(t.ErrorKind), nullable(t.LastDate),
			t.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("inserting table %s of run %s: %w", t.Table, run.ID, err)
		}
	}

	return tx.Commit()
}

const runColumns = "id, started_at, finished_at, status, dry_run, error"

func scanRun(sc interface{ Scan(...any) error }) (*Run, error) {
	var (
		r                 Run
		started, finished sql.NullString
		runErr            sql.NullString
	)
	if err := sc.Scan(&r.ID, &started, &finished, &r.Status, &r.DryRun, &runErr); err != nil {
		return nil, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	r.Error = runErr.String
	return &r, nil
}

// GetRun returns a run with its tables, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	r, err := scanRun(db.conn.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if r.Tables, err = db.getRunTables(id); err != nil {
		return nil, err
	}
	return r, nil
}

// GetLastRun returns the most recent run with its tables, or nil.
func (db *DB) GetLastRun() (*Run, error) {
	var id string
	err := db.conn.QueryRow("SELECT id FROM runs ORDER BY started_at DESC LIMIT 1").Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return db.GetRun(id)
}

// GetRecentRuns returns up to limit runs, newest first, without tables.
func (db *DB) GetRecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (db *DB) getRunTables(runID string) ([]RunTable, error) {
	rows, err := db.conn.Query(
		`SELECT t.run_id, t.table_name, t.status, t.row_count, t.column_count,
		t.path, t.error, t.error_kind, t.last_date, t.duration_ms, r.finished_at
		FROM run_tables t JOIN runs r ON r.id = t.run_id
		WHERE t.run_id = ? ORDER BY t.table_name`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []RunTable
	for rows.Next() {
		t, err := scanRunTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, rows.Err()
}

func scanRunTable(sc interface{ Scan(...any) error }) (*RunTable, error) {
	var (
		t                             RunTable
		path, errText, kind, lastDate sql.NullString
		finished                      sql.NullString
		ms                            int64
	)
	if err := sc.Scan(&t.RunID, &t.Table, &t.Status, &t.Rows, &t.Columns,
		&path, &errText, &kind, &lastDate, &ms, &finished); err != nil {
		return nil, err
	}
	t.Path = path.String
	t.Error = errText.String
	t.ErrorKind = kind.String
	t.LastDate = lastDate.String
	t.Duration = time.Duration(ms) * time.Millisecond
	t.WrittenAt = parseTime(finished)
	return &t, nil
}

// GetLastSuccess returns the latest successful non-dry-run write of a table,
// or nil if it was never written.
func (db *DB) GetLastSuccess(table string) (*RunTable, error) {
	row := db.conn.QueryRow(
		`SELECT t.run_id, t.table_name, t.status, t.row_count, t.column_count,
		t.path, t.error, t.error_kind, t.last_date, t.duration_ms, r.finished_at
		FROM run_tables t JOIN runs r ON r.id = t.run_id
		WHERE t.table_name = ? AND t.status = 'ok' AND r.dry_run = 0
		ORDER BY r.started_at DESC LIMIT 1`, table,
	)
	t, err := scanRunTable(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// PruneRuns deletes all but the newest keep runs and returns how many were
// removed.
func (db *DB) PruneRuns(keep int) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM runs ORDER BY started_at DESC LIMIT -1 OFFSET ?`
	if _, err := tx.Exec("DELETE FROM run_tables WHERE run_id IN ("+stale+")", keep); err != nil {
		return 0, err
	}
	result, err := tx.Exec("DELETE FROM runs WHERE id IN ("+stale+")", keep)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// GetStats returns aggregate run statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM runs", &s.Runs},
		{"SELECT COUNT(*) FROM runs WHERE status = 'failed'", &s.FailedRuns},
		{"SELECT COUNT(*) FROM runs WHERE status = 'partial'", &s.PartialRuns},
		{"SELECT COUNT(*) FROM run_tables t JOIN runs r ON r.id = t.run_id WHERE t.status = 'ok' AND r.dry_run = 0", &s.TablesWritten},
		{"SELECT COUNT(*) FROM run_tables WHERE status = 'failed'", &s.TableFailures},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
