// Package cache provides an explicit, injected, size- and TTL-bounded
// memoization cache. Components that need cross-call memoization (the
// tenant-plan lookup in the API-key verifier) receive one of these rather
// than reaching for ambient global state.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vberkoz/kvgate/pkg/observability"
)

// Cache is a bounded LRU with per-cache TTL. Entries are evicted when the
// size cap is reached or the TTL elapses, whichever comes first.
type Cache[V any] struct {
	name    string
	lru     *lru.LRU[string, V]
	metrics *observability.Metrics
}

// New creates a cache holding at most maxEntries values for at most ttl.
// metrics may be nil.
func New[V any](name string, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *Cache[V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache[V]{
		name:    name,
		lru:     lru.NewLRU[string, V](maxEntries, nil, ttl),
		metrics: metrics,
	}
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	value, ok := c.lru.Get(key)
	if c.metrics != nil {
		if ok {
			c.metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
		} else {
			c.metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		}
	}
	return value, ok
}

// Set stores a value under key.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Invalidate removes a key.
func (c *Cache[V]) Invalidate(key string) {
	c.lru.Remove(key)
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
