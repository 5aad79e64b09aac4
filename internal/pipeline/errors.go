package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every table failure wraps exactly one of these.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrMalformedValue    = errors.New("malformed value")
	ErrOverflow          = errors.New("overflow")
	ErrSinkWrite         = errors.New("sink write failure")
	ErrSchemaMismatch    = errors.New("schema mismatch")
)

var kinds = []error{ErrSourceUnavailable, ErrMalformedValue, ErrOverflow, ErrSinkWrite, ErrSchemaMismatch}

// Kind returns the error kind err wraps, or nil.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindLabel is Kind as a metric label ("source_unavailable"), "ok" for nil
// and "other" for unclassified errors.
func KindLabel(err error) string {
	if err == nil {
		return "ok"
	}
	k := Kind(err)
	if k == nil {
		return "other"
	}
	return strings.ReplaceAll(k.Error(), " ", "_")
}

// TableError is a failure that concerns a whole table.
type TableError struct {
	Table  string
	Column string
	Kind   error
	Err    error
}

func (e *TableError) Error() string {
	var b strings.Builder
	b.WriteString(e.Table)
	if e.Column != "" {
		fmt.Fprintf(&b, ".%s", e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TableError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ValueError points at a single cell. Row is one-based and excludes the
// header.
type ValueError struct {
	Table  string
	Column string
	Row    int
	Value  string
	Kind   error
	Err    error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s.%s row %d: %s: %q: %v", e.Table, e.Column, e.Row, e.Kind, e.Value, e.Err)
}

func (e *ValueError) Unwrap() []error { return []error{e.Kind, e.Err} }

func schemaMismatch(table, column string) error {
	return &TableError{Table: table, Column: column, Kind: ErrSchemaMismatch, Err: errors.New("column not found")}
}
