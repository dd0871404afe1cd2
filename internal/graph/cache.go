package graph

import (
	"strings"
	"sync"
	"time"
)

const (
	// cachePruneThreshold is the entry count past which Set sweeps old
	// entries.
	cachePruneThreshold = 500
	// cacheMaxAge is the sweep horizon; entries older than this go first.
	cacheMaxAge = 10 * time.Minute
)

// CacheKey joins an ordered tuple of strings deterministically.
func CacheKey(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

type cacheEntry struct {
	data     any
	storedAt time.Time
}

// Cache is a TTL read cache with an explicit stale-read path for
// rate-limited fallback responses. Process-local; a multi-instance
// deployment would need a shared store, which is out of scope.
type Cache struct {
	mu      sync.Mutex
	nowFn   func() time.Time
	entries map[string]cacheEntry
}

func NewCache() *Cache {
	return &Cache{
		nowFn:   time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// WithNow overrides the clock. Tests only.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	if now != nil {
		c.nowFn = now
	}
	return c
}

// Get returns the cached value if it is younger than ttl, evicting it
// otherwise.
func (c *Cache) Get(key string, ttl time.Duration) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.nowFn().Sub(entry.storedAt) > ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.data, true
}

// GetStale returns the cached value regardless of age. Used to serve
// degraded reads while an account cools down.
func (c *Cache) GetStale(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.data, true
}

// Set stores a value, sweeping entries older than cacheMaxAge once the
// store exceeds cachePruneThreshold.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFn()
	if len(c.entries) >= cachePruneThreshold {
		for k, e := range c.entries {
			if now.Sub(e.storedAt) > cacheMaxAge {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = cacheEntry{data: value, storedAt: now}
}

// Invalidate drops every key with the given prefix. Mutations call this so
// subsequent reads observe their writes.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
