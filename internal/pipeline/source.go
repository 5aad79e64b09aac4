package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/TobiSchelling/covidboard/internal/config"
	"github.com/TobiSchelling/covidboard/internal/dataset"
	"github.com/TobiSchelling/covidboard/internal/fetch"
	"github.com/TobiSchelling/covidboard/internal/scrape"
)

// Loader produces the raw table for a spec.
type Loader interface {
	Load(ctx context.Context, spec config.Table) (*dataset.Table, error)
}

// Sources loads sheets through the fetcher and clinic pages from disk or
// over HTTP.
type Sources struct {
	Fetcher *fetch.Fetcher
}

func (s *Sources) Load(ctx context.Context, spec config.Table) (*dataset.Table, error) {
	if spec.Source != "html" {
		return s.Fetcher.FetchTable(ctx, spec.Name, spec.SpreadsheetID, spec.Sheet)
	}
	if !strings.HasPrefix(spec.Path, "http://") && !strings.HasPrefix(spec.Path, "https://") {
		return scrape.Load(ctx, spec.Name, spec.Path)
	}
	body, err := s.Fetcher.Get(ctx, spec.Path)
	if err != nil {
		return nil, err
	}
	days, err := scrape.ParseInvitro(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return scrape.Table(spec.Name, days)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, spec config.Table) (*dataset.Table, error)

func (f LoaderFunc) Load(ctx context.Context, spec config.Table) (*dataset.Table, error) {
	return f(ctx, spec)
}

// loadError classifies a loader failure. Only transport and file access
// errors count as an unavailable source; a payload that arrived but cannot be
// read is a value or schema problem.
func loadError(table string, err error) error {
	kind := ErrMalformedValue
	switch {
	case errors.Is(err, fetch.ErrUnavailable),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		kind = ErrSourceUnavailable
	case errors.Is(err, dataset.ErrEmpty), errors.Is(err, scrape.ErrNoDays):
		kind = ErrSchemaMismatch
	}
	return &TableError{Table: table, Kind: kind, Err: err}
}
