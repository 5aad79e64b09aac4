package database

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var base = time.Date(2021, 1, 2, 6, 0, 0, 0, time.UTC)

func sampleRun(id string, started time.Time, dry bool) *Run {
	return &Run{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Status:     StatusPartial,
		DryRun:     dry,
		Error:      "destrib: source unavailable",
		Tables: []RunTable{
			{Table: "data", Status: StatusOK, Rows: 2, Columns: 5, Path: "data/data.csv", LastDate: "2021-01-02", Duration: 1500 * time.Millisecond},
			{Table: "destrib", Status: StatusFailed, Error: "HTTP 404", ErrorKind: "source unavailable"},
		},
	}
}

func TestInsertAndGetRun(t *testing.T) {
	db := openTestDB(t)
	if err := db.InsertRun(sampleRun("run-1", base, false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	run, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run == nil {
		t.Fatal("expected run, got nil")
	}
	if !run.StartedAt.Equal(base) {
		t.Errorf("expected started %v, got %v", base, run.StartedAt)
	}
	if run.Status != StatusPartial {
		t.Errorf("expected status partial, got %q", run.Status)
	}
	if len(run.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(run.Tables))
	}

	data := run.Tables[0]
	if data.Table != "data" || data.Rows != 2 || data.Columns != 5 {
		t.Errorf("unexpected data row: %+v", data)
	}
	if data.Duration != 1500*time.Millisecond {
		t.Errorf("expected 1.5s duration, got %v", data.Duration)
	}
	if data.LastDate != "2021-01-02" {
		t.Errorf("expected last date 2021-01-02, got %q", data.LastDate)
	}
	if run.Tables[1].ErrorKind != "source unavailable" {
		t.Errorf("expected error kind, got %q", run.Tables[1].ErrorKind)
	}
}

func TestGetRunMissing(t *testing.T) {
	db := openTestDB(t)
	run, err := db.GetRun("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run != nil {
		t.Error("expected nil for unknown run")
	}
}

func TestInsertDuplicateRun(t *testing.T) {
	db := openTestDB(t)
	if err := db.InsertRun(sampleRun("dup", base, false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.InsertRun(sampleRun("dup", base, false)); err == nil {
		t.Error("expected error for duplicate run id")
	}
}

func TestGetLastRun(t *testing.T) {
	db := openTestDB(t)

	last, err := db.GetLastRun()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last != nil {
		t.Error("expected nil with no runs")
	}

	db.InsertRun(sampleRun("old", base, false))
	db.InsertRun(sampleRun("new", base.Add(24*time.Hour), false))

	last, err = db.GetLastRun()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last.ID != "new" {
		t.Errorf("expected 'new', got %q", last.ID)
	}
	if len(last.Tables) != 2 {
		t.Errorf("expected tables to be loaded, got %d", len(last.Tables))
	}
}

func TestGetRecentRuns(t *testing.T) {
	db := openTestDB(t)
	for i, id := range []string{"a", "b", "c"} {
		db.InsertRun(sampleRun(id, base.Add(time.Duration(i)*time.Hour), false))
	}

	runs, err := db.GetRecentRuns(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("expected newest first, got %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestGetLastSuccessSkipsDryRuns(t *testing.T) {
	db := openTestDB(t)
	db.InsertRun(sampleRun("real", base, false))
	db.InsertRun(sampleRun("dry", base.Add(time.Hour), true))

	got, err := db.GetLastSuccess("data")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.RunID != "real" {
		t.Fatalf("expected last success from 'real', got %+v", got)
	}
	if !got.WrittenAt.Equal(base.Add(3 * time.Second)) {
		t.Errorf("expected written at run finish, got %v", got.WrittenAt)
	}

	none, err := db.GetLastSuccess("destrib")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if none != nil {
		t.Error("expected nil for a table that never succeeded")
	}
}

func TestPruneRuns(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 5; i++ {
		db.InsertRun(sampleRun(string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour), false))
	}

	removed, err := db.PruneRuns(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}

	runs, _ := db.GetRecentRuns(10)
	if len(runs) != 2 {
		t.Errorf("expected 2 runs left, got %d", len(runs))
	}
	if run, _ := db.GetRun("a"); run != nil {
		t.Error("expected oldest run to be gone")
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Runs != 0 {
		t.Errorf("expected 0 runs, got %d", stats.Runs)
	}

	db.InsertRun(sampleRun("r1", base, false))
	db.InsertRun(sampleRun("r2", base.Add(time.Hour), true))

	stats, _ = db.GetStats()
	if stats.Runs != 2 {
		t.Errorf("expected 2 runs, got %d", stats.Runs)
	}
	if stats.PartialRuns != 2 {
		t.Errorf("expected 2 partial runs, got %d", stats.PartialRuns)
	}
	if stats.TablesWritten != 1 {
		t.Errorf("expected 1 table written (dry runs excluded), got %d", stats.TablesWritten)
	}
	if stats.TableFailures != 2 {
		t.Errorf("expected 2 table failures, got %d", stats.TableFailures)
	}
}
