package query

import (
	"sync"
	"time"
)

// DefaultCacheTTL bounds how stale a cached read may be.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	payload   Result
	createdAt time.Time
}

// ttlCache is a coarse read cache keyed by query shape. Writes through
// the service clear it wholesale: cached reads may be derived from the
// mutated dataset through joins the cache cannot see.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ttlCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *ttlCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if c.now().Sub(e.createdAt) >= c.ttl {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.payload, true
}

func (c *ttlCache) set(key string, payload Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{payload: payload, createdAt: c.now()}
}

// invalidate drops the named keys, or everything when called with none.
func (c *ttlCache) invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(keys) == 0 {
		c.entries = make(map[string]cacheEntry)
		return
	}
	for _, k := range keys {
		delete(c.entries, k)
	}
}

func (c *ttlCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
