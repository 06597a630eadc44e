package cache

import (
	"math"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps labels in process memory with per-entry expiry and an
// optional entry limit
type MemoryCache struct {
	cache      *gocache.Cache
	maxEntries int
	mu         sync.Mutex // serializes eviction
}

// MemoryOption configures a MemoryCache
type MemoryOption func(*MemoryCache)

// WithMaxEntries bounds the number of entries; zero means unbounded
func WithMaxEntries(n int) MemoryOption {
	return func(c *MemoryCache) {
		c.maxEntries = n
	}
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration, opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{cache: gocache.New(defaultTTL, cleanupInterval)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached bytes for key
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	if val, found := c.cache.Get(key); found {
		return val.([]byte), true
	}
	return nil, false
}

// Set stores a value; a zero ttl uses the cache default.
// When the cache is full the entry closest to expiry is evicted first.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	if c.maxEntries <= 0 {
		c.cache.Set(key, value, ttl)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.cache.Get(key); !exists && c.cache.ItemCount() >= c.maxEntries {
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxEntries {
			c.evictOldest()
		}
	}
	c.cache.Set(key, value, ttl)
	return nil
}

func (c *MemoryCache) evictOldest() {
	victim := ""
	soonest := int64(math.MaxInt64)
	for key, item := range c.cache.Items() {
		expires := item.Expiration
		if expires == 0 {
			expires = math.MaxInt64
		}
		if victim == "" || expires < soonest {
			victim, soonest = key, expires
		}
	}
	if victim != "" {
		c.cache.Delete(victim)
	}
}

// Delete removes a key
func (c *MemoryCache) Delete(key string) error {
	c.cache.Delete(key)
	return nil
}

// Clear drops every entry
func (c *MemoryCache) Clear() error {
	c.cache.Flush()
	return nil
}

// Len returns the number of cached items, including expired ones not yet evicted
func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}
