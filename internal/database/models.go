package database

import "time"

// Run statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Run is one pipeline execution.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	DryRun     bool
	Error      string
	Tables     []RunTable
}

// RunTable is the outcome for one table within a run.
type RunTable struct {
	RunID     string
	Table     string
	Status    string // "ok" or "failed"
	Rows      int
	Columns   int
	Path      string
	Error     string
	ErrorKind string
	LastDate  string
	Duration  time.Duration
	WrittenAt time.Time
}

// Stats contains aggregate run statistics.
type Stats struct {
	Runs          int
	FailedRuns    int
	PartialRuns   int
	TablesWritten int
	TableFailures int
}
