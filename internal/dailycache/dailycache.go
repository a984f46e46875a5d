// Package dailycache implements the per-namespace, date-keyed JSON cache
// shared by every source adapter: a cache entry is valid only on the
// business date it was written for, and a failed refresh falls back to
// whatever stale entry is on disk rather than propagating the error.
package dailycache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// FetchFunc produces a fresh payload for the cache. Returning an error (or
// ok=false) is treated as "no fresh data available" by Get, never as a
// fatal condition.
type FetchFunc[T any] func() (payload T, ok bool, err error)

// entry is the on-disk envelope: {"date", "data", "fetched_at"}.
type entry[T any] struct {
	Date      string `json:"date"`
	Data      T      `json:"data"`
	FetchedAt int64  `json:"fetched_at"`
}

// DateProvider returns the business date used as the cache key, formatted
// YYYY-MM-DD. Callers typically supply clock.Clock.BusinessToday formatted
// this way.
type DateProvider func() string

// Cache is a generic namespace-scoped daily cache.
type Cache[T any] struct {
	namespace string
	dir       string
	today     DateProvider
	log       zerolog.Logger
}

// New constructs a Cache for namespace, persisting under dir/<namespace>.json.
func New[T any](namespace, dir string, today DateProvider, log zerolog.Logger) *Cache[T] {
	return &Cache[T]{
		namespace: namespace,
		dir:       dir,
		today:     today,
		log:       log.With().Str("cache_namespace", namespace).Logger(),
	}
}

func (c *Cache[T]) path() string {
	return filepath.Join(c.dir, c.namespace+".json")
}

// Get implements the five-step algorithm: return a valid cached value
// unless forceRefresh; else fetch fresh and save it; else fall back to
// whatever is on disk regardless of its date; else report no data.
func (c *Cache[T]) Get(forceRefresh bool, fetch FetchFunc[T]) (T, bool) {
	var zero T

	if !forceRefresh {
		if val, ok := c.load(); ok {
			return val, true
		}
	}

	fresh, ok, err := fetch()
	if err != nil || !ok {
		if err != nil {
			c.log.Warn().Err(err).Msg("fetch_fresh failed, falling back to stale cache")
		}
		if val, ok := c.loadAnyAge(); ok {
			c.log.Warn().Msg("serving stale cache entry")
			return val, true
		}
		return zero, false
	}

	if err := c.save(fresh); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist cache entry")
		return fresh, true
	}
	// Serve the persisted value so every same-day call sees the same
	// JSON-decoded payload, not the fetcher's in-memory shape.
	if val, ok := c.load(); ok {
		return val, true
	}
	return fresh, true
}

// load returns the cached value only if it is valid for today.
func (c *Cache[T]) load() (T, bool) {
	var zero T
	e, ok := c.readEntry()
	if !ok {
		return zero, false
	}
	if e.Date != c.today() {
		return zero, false
	}
	return e.Data, true
}

// loadAnyAge returns whatever is on disk regardless of its recorded date.
func (c *Cache[T]) loadAnyAge() (T, bool) {
	var zero T
	e, ok := c.readEntry()
	if !ok {
		return zero, false
	}
	return e.Data, true
}

func (c *Cache[T]) readEntry() (entry[T], bool) {
	var e entry[T]
	raw, err := os.ReadFile(c.path())
	if err != nil {
		return e, false
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		return e, false
	}
	if e.Date == "" {
		return e, false
	}
	return e, true
}

func (c *Cache[T]) save(data T) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("dailycache: mkdir: %w", err)
	}

	e := entry[T]{Date: c.today(), Data: data, FetchedAt: time.Now().UnixMilli()}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("dailycache: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, c.namespace+".*.tmp")
	if err != nil {
		return fmt.Errorf("dailycache: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("dailycache: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("dailycache: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path()); err != nil {
		return fmt.Errorf("dailycache: rename: %w", err)
	}
	return nil
}
