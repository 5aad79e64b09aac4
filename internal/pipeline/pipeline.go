// Package pipeline turns raw sheets into the cleaned, metric-augmented
// tables the dashboard reads.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/covidboard/internal/config"
	"github.com/TobiSchelling/covidboard/internal/database"
	"github.com/TobiSchelling/covidboard/internal/dataset"
)

// TableResult holds the outcome for a single table.
type TableResult struct {
	Name     string
	Rows     int
	Columns  int
	Path     string
	LastDate string
	Schema   string
	Duration time.Duration
	Err      error
}

// Summary is a one-line description for the CLI.
func (t TableResult) Summary() string {
	if t.Err != nil {
		return t.Err.Error()
	}
	if t.Path == "" {
		return fmt.Sprintf("[dry-run] %d rows, %d columns (%s)", t.Rows, t.Columns, t.Schema)
	}
	return fmt.Sprintf("%d rows, %d columns -> %s", t.Rows, t.Columns, t.Path)
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Tables     []TableResult
	Workbook   string
	// WorkbookErr is set when the xlsx export failed; the CSV sinks are
	// unaffected.
	WorkbookErr error
}

// Err joins every table failure of the run.
func (r *Result) Err() error {
	var errs []error
	for _, t := range r.Tables {
		if t.Err != nil {
			errs = append(errs, t.Err)
		}
	}
	if r.WorkbookErr != nil {
		errs = append(errs, r.WorkbookErr)
	}
	return errors.Join(errs...)
}

// Status is "ok" when every table succeeded, "failed" when none did and
// "partial" otherwise.
func (r *Result) Status() string {
	failed := 0
	for _, t := range r.Tables {
		if t.Err != nil {
			failed++
		}
	}
	switch {
	case failed == 0 && r.WorkbookErr == nil:
		return database.StatusOK
	case failed == len(r.Tables):
		return database.StatusFailed
	}
	return database.StatusPartial
}

// Pipeline runs every configured table through Process and writes the sinks.
type Pipeline struct {
	cfg     *config.Config
	db      *database.DB
	loader  Loader
	metrics *Metrics
	now     func() time.Time
}

// New creates a new pipeline. db and metrics may be nil.
func New(cfg *config.Config, db *database.DB, loader Loader, metrics *Metrics) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		db:      db,
		loader:  loader,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run processes the named tables, or all of them when none are named, and
// replaces their sinks. A failing table never stops the others.
func (p *Pipeline) Run(ctx context.Context, only ...string) *Result {
	return p.run(ctx, false, only)
}

// DryRun fetches and processes like Run but writes nothing.
func (p *Pipeline) DryRun(ctx context.Context, only ...string) *Result {
	return p.run(ctx, true, only)
}

func (p *Pipeline) selectTables(only []string) ([]config.Table, []TableResult) {
	if len(only) == 0 {
		return p.cfg.Tables, nil
	}
	var (
		specs   []config.Table
		unknown []TableResult
	)
	for _, name := range only {
		spec, ok := p.cfg.Table(name)
		if !ok {
			unknown = append(unknown, TableResult{Name: name, Err: fmt.Errorf("unknown table %q", name)})
			continue
		}
		specs = append(specs, spec)
	}
	return specs, unknown
}

func (p *Pipeline) run(ctx context.Context, dry bool, only []string) *Result {
	r := &Result{RunID: uuid.NewString(), StartedAt: p.now(), DryRun: dry}
	specs, unknown := p.selectTables(only)

	zap.S().Infof("run %s: %d tables (dry-run=%v)", r.RunID, len(specs), dry)

	// tables loaded during this run, by name
	var (
		mu    sync.Mutex
		arena = make(map[string]*dataset.Table, len(specs))
	)
	results := make([]TableResult, len(specs))

	var g errgroup.Group
	g.SetLimit(max(1, p.cfg.Run.Concurrency))
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			out, res := p.runTable(ctx, spec, dry)
			results[i] = res
			if out != nil {
				mu.Lock()
				arena[spec.Name] = out
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	r.Tables = append(results, unknown...)

	if !dry && p.cfg.Output.XLSX != "" {
		var book []*dataset.Table
		for _, spec := range specs {
			if t, ok := arena[spec.Name]; ok {
				book = append(book, t)
			}
		}
		if len(book) > 0 {
			r.Workbook = filepath.Join(p.cfg.GetDataDir(), p.cfg.Output.XLSX)
			if err := dataset.WriteWorkbook(r.Workbook, book); err != nil {
				r.WorkbookErr = &TableError{Table: "workbook", Kind: ErrSinkWrite, Err: err}
				zap.S().Warnf("workbook export failed: %v", err)
			}
		}
	}

	r.FinishedAt = p.now()
	p.metrics.observe(r)
	p.record(r)
	return r
}

func (p *Pipeline) runTable(ctx context.Context, spec config.Table, dry bool) (out *dataset.Table, res TableResult) {
	start := time.Now()
	res.Name = spec.Name
	defer func() {
		if v := recover(); v != nil {
			out = nil
			res.Err = fmt.Errorf("%s: internal error: %v", spec.Name, v)
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			zap.S().Errorf("table %s failed: %v", spec.Name, res.Err)
		} else {
			zap.S().Infof("table %s: %s", spec.Name, res.Summary())
		}
	}()

	zap.S().Debugf("loading %s (source %s)", spec.Name, spec.Source)
	raw, err := p.loader.Load(ctx, spec)
	if err != nil {
		res.Err = loadError(spec.Name, err)
		return nil, res
	}

	out, err = Process(spec, raw)
	if err != nil {
		res.Err = err
		return nil, res
	}
	res.Rows = out.Rows()
	res.Columns = len(out.Columns())
	res.Schema = out.Schema()
	res.LastDate = lastDate(out, spec.DateColumn)

	if dry {
		return out, res
	}
	path, err := dataset.WriteFile(p.cfg.GetDataDir(), out)
	if err != nil {
		res.Err = &TableError{Table: spec.Name, Kind: ErrSinkWrite, Err: err}
		return nil, res
	}
	res.Path = path
	return out, res
}

func (p *Pipeline) record(r *Result) {
	if p.db == nil {
		return
	}
	run := &database.Run{
		ID:         r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Status:     r.Status(),
		DryRun:     r.DryRun,
	}
	if err := r.Err(); err != nil {
		run.Error = err.Error()
	}
	for _, t := range r.Tables {
		rt := database.RunTable{
			Table:    t.Name,
			Status:   database.StatusOK,
			Rows:     t.Rows,
			Columns:  t.Columns,
			Path:     t.Path,
			LastDate: t.LastDate,
			Duration: t.Duration,
		}
		if t.Err != nil {
			rt.Status = database.StatusFailed
			rt.Error = t.Err.Error()
			if k := Kind(t.Err); k != nil {
				rt.ErrorKind = k.Error()
			}
		}
		run.Tables = append(run.Tables, rt)
	}
	if err := p.db.InsertRun(run); err != nil {
		zap.S().Warnf("recording run %s: %v", r.RunID, err)
	}
}
