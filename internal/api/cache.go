package api

import (
	"sync"
	"time"
)

// queryCache holds read results keyed by request, each for a fixed TTL.
// A zero TTL disables caching. Expired entries are dropped on read.
//
// Entries belong to the identity scope returns when they were stored. When
// scope starts returning something else, every entry is dropped.
type queryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	scope   func() string
	owner   string
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

func newQueryCache(ttl time.Duration, now func() time.Time, scope func() string) *queryCache {
	if now == nil {
		now = time.Now
	}
	if scope == nil {
		scope = func() string { return "" }
	}
	return &queryCache{ttl: ttl, now: now, scope: scope, entries: make(map[string]cacheEntry)}
}

func (c *queryCache) get(key string) (any, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkOwnerLocked()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *queryCache) set(key string, value any) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkOwnerLocked()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// checkOwnerLocked drops every entry if the identity changed since the
// last access. Callers hold c.mu.
func (c *queryCache) checkOwnerLocked() {
	if owner := c.scope(); owner != c.owner {
		clear(c.entries)
		c.owner = owner
	}
}

// purge drops every entry. Called after any mutation.
func (c *queryCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *queryCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
