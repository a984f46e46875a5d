// Package fanout concurrently invokes every registered source adapter and
// collects their results without letting one adapter's failure take down
// the others.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/moyuren/calendarsvc/internal/sources"
)

// Result is the per-source outcome of one fan-out round. Err is nil on
// success; Payload carries whatever the adapter returned, including a
// source-appropriate zero value when the adapter itself reported "no data"
// (e.g. nil for fun_content, nil for KFC on non-Thursdays).
type Result struct {
	Source   string
	Payload  any
	Err      error
	Duration time.Duration
}

// Fetcher runs every adapter in a registry concurrently on each Fetch call.
type Fetcher struct {
	registry *sources.Registry
	log      zerolog.Logger
}

// New constructs a Fetcher over registry.
func New(registry *sources.Registry, log zerolog.Logger) *Fetcher {
	return &Fetcher{registry: registry, log: log}
}

// Fetch launches FetchFresh on every adapter in the registry concurrently
// and waits for all of them to finish. ctx is passed to every adapter;
// Fetch itself returns only once each adapter has returned. It
// deliberately uses a plain WaitGroup rather than golang.org/x/sync/errgroup:
// errgroup's Group.Wait returns (and, with WithContext, cancels sibling
// goroutines) on the first error, which would abort adapters that are
// otherwise fine — exactly the fault isolation this fetcher must not give
// up. One slow or failing adapter never prevents the others from
// completing and populating the result map.
func (f *Fetcher) Fetch(ctx context.Context) map[string]Result {
	adapters := f.registry.All()
	results := make(map[string]Result, len(adapters))

	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(adapters))

	for name, adapter := range adapters {
		go func(name string, adapter sources.Adapter) {
			defer wg.Done()
			start := time.Now()
			payload, err := adapter.FetchFresh(ctx)
			elapsed := time.Since(start)

			if err != nil {
				f.log.Warn().Err(err).Str("source", name).Dur("elapsed", elapsed).Msg("source fetch failed, using fallback")
			}

			mu.Lock()
			results[name] = Result{Source: name, Payload: payload, Err: err, Duration: elapsed}
			mu.Unlock()
		}(name, adapter)
	}

	wg.Wait()
	return results
}

// Payload returns the payload for name, or fallback if the source is
// missing from results or failed. Callers use this to apply the
// per-source empty defaults named in the fetch contract (empty map for
// news, empty slice for holidays, and so on) without repeating the
// nil-check at every call site.
func Payload(results map[string]Result, name string, fallback any) any {
	r, ok := results[name]
	if !ok || r.Err != nil || r.Payload == nil {
		return fallback
	}
	return r.Payload
}
