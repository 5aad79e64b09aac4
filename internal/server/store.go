package server

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/TobiSchelling/covidboard/internal/cache"
	"github.com/TobiSchelling/covidboard/internal/dataset"
)

// Store serves sink tables from the data directory. Loaded tables are cached
// for a TTL and dropped as soon as their file changes.
type Store struct {
	dir   string
	cache *cache.TTL[string, *dataset.Table]
}

// NewStore creates a store over dir.
func NewStore(dir string, ttl time.Duration) *Store {
	return &Store{dir: dir, cache: cache.New[string, *dataset.Table](ttl, 0)}
}

// Table returns the named sink table.
func (s *Store) Table(name string) (*dataset.Table, error) {
	if t, ok := s.cache.Get(name); ok {
		return t, nil
	}
	t, err := dataset.Load(dataset.Path(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("loading table %s: %w", name, err)
	}
	s.cache.Set(name, t)
	return t, nil
}

// Invalidate drops one table from the cache.
func (s *Store) Invalidate(name string) { s.cache.Delete(name) }

// Watch invalidates cached tables whenever a sink in the data directory is
// created, replaced or removed. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watching %s: %w", s.dir, err)
	}
	zap.S().Debugf("watching %s for sink changes", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			// temp files of an atomic replace start with a dot
			if strings.HasPrefix(name, ".") || filepath.Ext(name) != ".csv" {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				table := strings.TrimSuffix(name, ".csv")
				s.Invalidate(table)
				zap.S().Debugf("sink %s changed, cache dropped", table)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			zap.S().Warnf("watcher: %v", err)
		}
	}
}
