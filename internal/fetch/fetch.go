// Package fetch downloads published spreadsheet sheets as CSV.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/covidboard/internal/cache"
	"github.com/TobiSchelling/covidboard/internal/dataset"
)

// ErrUnavailable is returned when a sheet cannot be downloaded or the server
// answers with anything but 200.
var ErrUnavailable = errors.New("source unavailable")

const maxBody = 32 << 20

// Options configures a Fetcher.
type Options struct {
	// URLTemplate contains {id} and {sheet} placeholders.
	URLTemplate   string
	SpreadsheetID string
	Timeout       time.Duration
	CacheTTL      time.Duration
	CacheEntries  int
	RatePerSecond float64
	Encoding      string
	Client        *http.Client
}

// Fetcher retrieves sheets over HTTP. Responses are cached by URL for
// CacheTTL and requests are spaced by a shared rate limiter.
type Fetcher struct {
	opts    Options
	client  *http.Client
	cache   *cache.TTL[string, []byte]
	limiter *rate.Limiter
	decoder encoding.Encoding
}

// New creates a Fetcher.
func New(opts Options) (*Fetcher, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	dec, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &Fetcher{
		opts:    opts,
		client:  client,
		cache:   cache.New[string, []byte](opts.CacheTTL, opts.CacheEntries),
		limiter: rate.NewLimiter(limit, 1),
		decoder: dec,
	}, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251, nil
	case "koi8-r":
		return charmap.KOI8R, nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", name)
}

// URL expands the template for a sheet. An empty id uses the default
// spreadsheet.
func (f *Fetcher) URL(spreadsheetID, sheet string) string {
	if spreadsheetID == "" {
		spreadsheetID = f.opts.SpreadsheetID
	}
	return strings.NewReplacer(
		"{id}", url.PathEscape(spreadsheetID),
		"{sheet}", url.QueryEscape(sheet),
	).Replace(f.opts.URLTemplate)
}

// FetchTable downloads a sheet and loads it as a raw text table.
func (f *Fetcher) FetchTable(ctx context.Context, name, spreadsheetID, sheet string) (*dataset.Table, error) {
	body, err := f.Get(ctx, f.URL(spreadsheetID, sheet))
	if err != nil {
		return nil, err
	}
	return dataset.ReadCSV(name, bytes.NewReader(body))
}

// Get returns the body of rawURL, decoded to UTF-8.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if body, ok := f.cache.Get(rawURL); ok {
		zap.S().Debugf("cache hit: %s", rawURL)
		return body, nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "covidboard/1.0 (+dashboard refresh)")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrUnavailable, rawURL, err)
	}
	if f.decoder != nil {
		if body, err = f.decoder.NewDecoder().Bytes(body); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", rawURL, err)
		}
	}
	zap.S().Debugf("fetched %s (%d bytes) in %s", rawURL, len(body), time.Since(start).Round(time.Millisecond))

	f.cache.Set(rawURL, body)
	return body, nil
}

// Invalidate drops every cached response.
func (f *Fetcher) Invalidate() { f.cache.Purge() }

// StatusError is a non-200 answer.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Is(target error) bool { return target == ErrUnavailable }
