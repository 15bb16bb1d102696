package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is a small in-memory TTL cache. Expired entries are dropped lazily
// on read.
type Cache struct {
	mu    sync.RWMutex
	items map[string]entry
}

// New creates a new cache
func New() *Cache {
	return &Cache{items: map[string]entry{}}
}

// Set stores a value under key for the given TTL
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Get retrieves a value if present and not expired
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, exists := c.items[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.Delete(key)
		return nil, false
	}
	return e.value, true
}

// Delete removes a key
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear removes all entries
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = map[string]entry{}
}

// PurgeExpired removes every expired entry and reports how many were
// dropped. Lazy expiry on Get covers hot keys; this covers keys that are
// never read again.
func (c *Cache) PurgeExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	purged := 0
	for key, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, key)
			purged++
		}
	}
	return purged
}
