package series

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache keeps fetched upstream series for a bounded time. One Cache is created
// at process start and shared by reference; entries expire after the TTL.
type Cache struct {
	lru *expirable.LRU[string, []float64]
	ttl time.Duration
}

// NewCache returns a cache holding at most size entries for ttl each.
// A non-positive ttl disables expiry.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 64
	}
	return &Cache{lru: expirable.NewLRU[string, []float64](size, nil, ttl), ttl: ttl}
}

// Get returns a copy of the cached values for key.
func (c *Cache) Get(key string) ([]float64, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	cp := make([]float64, len(v))
	copy(cp, v)
	return cp, true
}

// Add stores a copy of values under key.
func (c *Cache) Add(key string, values []float64) {
	if c == nil {
		return
	}
	cp := make([]float64, len(values))
	copy(cp, values)
	c.lru.Add(key, cp)
}

// Invalidate drops a single key.
func (c *Cache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.lru.Remove(key)
}

// Purge drops every entry. Called on shutdown.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
