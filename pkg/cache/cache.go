package cache

import (
	"sync"
	"time"
)

// Options configures a Cache.
type Options struct {
	// TTL is the default lifetime of an entry. Zero means entries never expire.
	TTL time.Duration
	// CleanupInterval is how often expired entries are purged. Zero disables
	// the janitor; expired entries are still hidden from Get.
	CleanupInterval time.Duration
	// MaxItems bounds the cache. Zero means unbounded.
	MaxItems int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
	storedAt  time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a thread-safe in-memory TTL cache. When full, the entry stored
// longest ago is evicted.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
	opts  Options
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// New creates a cache and starts its janitor if a cleanup interval is set.
func New[V any](opts Options) *Cache[V] {
	c := &Cache[V]{
		items: make(map[string]entry[V]),
		opts:  opts,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if opts.CleanupInterval > 0 {
		go c.janitor()
	}
	return c
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.opts.TTL)
}

// SetWithTTL stores value under key for ttl.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	now := c.now()
	e := entry[V]{value: value, storedAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.opts.MaxItems > 0 && len(c.items) >= c.opts.MaxItems {
		c.evictOldest()
	}
	c.items[key] = e
}

// Get returns the live value under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || e.expired(c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Count returns the number of stored entries, including expired ones not
// yet purged.
func (c *Cache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache[V]) janitor() {
	ticker := time.NewTicker(c.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[V]) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
		}
	}
}

// evictOldest must be called with the write lock held.
func (c *Cache[V]) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.items {
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey = k
			oldest = e.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
