// Package sources implements the per-upstream source adapters: news,
// fun-content, KFC/Crazy-Thursday, stock-index, and the holiday
// year-fetcher. Each adapter classifies every transport failure as a nil
// result rather than an escalated error, so the fan-out fetcher is never
// blocked by one dead upstream.
package sources

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/moyuren/calendarsvc/internal/dailycache"
)

// Adapter is the common interface every source adapter implements. A
// failed fetch returns (nil, err); callers MUST treat a non-nil err as
// "no fresh data available", never as fatal.
type Adapter interface {
	Name() string
	FetchFresh(ctx context.Context) (any, error)
}

// Registry is a closed, named collection of adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a Registry from the given adapters, keyed by Name().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter registered under name, if any.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// All returns every registered adapter.
func (r *Registry) All() map[string]Adapter {
	return r.adapters
}

// CachedAdapter wraps an Adapter with a per-namespace daily cache keyed by
// the wrapped adapter's own Name(). A successful fetch is
// persisted and served to every other call within the same business day;
// a failed fetch falls back to whatever is on disk regardless of age.
type CachedAdapter struct {
	inner Adapter
	cache *dailycache.Cache[any]
}

// NewCachedAdapter wraps inner with a daily cache rooted at dir, using
// today as the cache's date provider.
func NewCachedAdapter(inner Adapter, dir string, today dailycache.DateProvider, log zerolog.Logger) *CachedAdapter {
	return &CachedAdapter{inner: inner, cache: dailycache.New[any](inner.Name(), dir, today, log)}
}

func (c *CachedAdapter) Name() string { return c.inner.Name() }

// FetchFresh implements the daily-cache get-or-refresh algorithm: a valid
// same-day cache entry short-circuits the inner adapter entirely.
func (c *CachedAdapter) FetchFresh(ctx context.Context) (any, error) {
	payload, ok := c.cache.Get(false, func() (any, bool, error) {
		v, err := c.inner.FetchFresh(ctx)
		if err != nil {
			return nil, false, err
		}
		if v == nil {
			return nil, false, nil
		}
		return v, true, nil
	})
	if !ok {
		return nil, nil
	}
	return payload, nil
}
