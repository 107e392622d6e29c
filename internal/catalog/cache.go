package catalog

import (
	"sync"
	"time"
)

const defaultCacheEntries = 1024

// responseCache holds upstream responses keyed by request shape. A zero ttl
// disables storage entirely.
type responseCache struct {
	mu         sync.RWMutex
	items      map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	value   any
	expires time.Time
}

func newResponseCache(ttl time.Duration, now func() time.Time) *responseCache {
	return &responseCache{
		items:      make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: defaultCacheEntries,
		now:        now,
	}
}

func (c *responseCache) get(key string) (any, bool) {
	now := c.now()
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !now.Before(entry.expires) {
		return nil, false
	}
	return entry.value, true
}

func (c *responseCache) set(key string, value any) {
	if c.ttl <= 0 {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.items[key] = cacheEntry{value: value, expires: now.Add(c.ttl)}
}

// evictLocked drops expired entries, or the entry closest to expiry when
// nothing has expired yet.
func (c *responseCache) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range c.items {
		if !now.Before(e.expires) {
			delete(c.items, k)
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	if len(c.items) >= c.maxEntries && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

func (c *responseCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
