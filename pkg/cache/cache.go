// Package cache provides the operation-scoped package resolution cache.
//
// One Cache is bound to a single logical operation (typically one bulk SBOM
// ingest). The first lookup for a reference performs the resolve round trip;
// every later lookup for an equal reference returns the memoized outcome —
// success or failure — without touching the store again. Concurrent lookups
// for the same reference coalesce into one in-flight resolution; lookups for
// distinct references proceed independently.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/exploopio/vulngraph/pkg/metrics"
)

// ResolveFunc performs the actual resolve-or-create round trip for one key.
type ResolveFunc[V any] func(ctx context.Context, key string) (V, error)

type outcome[V any] struct {
	value V
	err   error
}

// Cache memoizes resolution outcomes per reference for the lifetime of one
// operation. Safe for concurrent use.
type Cache[V any] struct {
	resolve ResolveFunc[V]
	group   singleflight.Group
	metrics metrics.Collector

	mu      sync.RWMutex
	results map[string]outcome[V]

	hits atomic.Int64
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithMetrics sets the metrics collector.
func WithMetrics[V any](collector metrics.Collector) Option[V] {
	return func(c *Cache[V]) {
		c.metrics = collector
	}
}

// New creates a resolution cache around the given resolve function.
// capacity is a sizing hint for the expected number of distinct references.
func New[V any](capacity int, resolve ResolveFunc[V], opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		resolve: resolve,
		metrics: &metrics.NopCollector{},
		results: make(map[string]outcome[V], capacity),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the memoized outcome for key, resolving it at most once
// per cache lifetime. Failures are memoized the same as successes so a
// reference that cannot resolve is not retried within the operation.
func (c *Cache[V]) Lookup(ctx context.Context, key string) (V, error) {
	c.mu.RLock()
	cached, ok := c.results[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		c.metrics.CounterInc(metrics.CacheLookupsTotal.Name, "result", "hit")
		return cached.value, cached.err
	}

	v, _, shared := c.group.Do(key, func() (interface{}, error) {
		// A racing caller may have stored the outcome between the read
		// above and entering the flight group.
		c.mu.RLock()
		cached, ok := c.results[key]
		c.mu.RUnlock()
		if !ok {
			value, err := c.resolve(ctx, key)
			cached = outcome[V]{value: value, err: err}
			c.mu.Lock()
			c.results[key] = cached
			c.mu.Unlock()
		}
		return cached, nil
	})

	result := v.(outcome[V])
	if shared {
		c.hits.Add(1)
		c.metrics.CounterInc(metrics.CacheLookupsTotal.Name, "result", "hit")
	} else {
		c.metrics.CounterInc(metrics.CacheLookupsTotal.Name, "result", "miss")
	}
	return result.value, result.err
}

// Hits returns the number of lookups served without a resolve round trip.
func (c *Cache[V]) Hits() int64 {
	return c.hits.Load()
}

// Len returns the number of distinct references resolved so far.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}
