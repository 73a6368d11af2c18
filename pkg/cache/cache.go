// Package cache provides a small in-memory TTL cache with LRU eviction.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Cache defines a keyed cache of values.
type Cache[V any] interface {
	// Get retrieves a value; ok is false on miss or expiry.
	Get(ctx context.Context, key string) (V, bool)
	// Put stores a value.
	Put(ctx context.Context, key string, value V)
	// Delete removes a value.
	Delete(ctx context.Context, key string)
	// Clear removes all entries.
	Clear(ctx context.Context)
	// Len returns the number of live entries.
	Len() int
	// Stats returns a snapshot of cache statistics.
	Stats() Stats
}

// entry is a single cache entry with metadata
type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// MemoryCache implements Cache with a bounded LRU list and per-entry TTL.
type MemoryCache[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	cfg     Config
	stats   *StatsCollector
	now     func() time.Time
}

// NewMemoryCache creates a cache from cfg. A nil cfg selects DefaultConfig.
func NewMemoryCache[V any](cfg *Config) *MemoryCache[V] {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MemoryCache[V]{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		cfg:     *cfg,
		stats:   NewStatsCollector(),
		now:     time.Now,
	}
}

// Get retrieves a value from the cache.
func (c *MemoryCache[V]) Get(ctx context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.record(c.stats.RecordMiss)
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.cfg.TTL > 0 && !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		c.record(c.stats.RecordMiss)
		return zero, false
	}
	c.lru.MoveToFront(el)
	c.record(c.stats.RecordHit)
	return e.value, true
}

// Put stores a value, evicting the least recently used entry when full.
func (c *MemoryCache[V]) Put(ctx context.Context, key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.cfg.TTL)
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.expiresAt = expiresAt
		c.lru.MoveToFront(el)
		return
	}

	for c.cfg.MaxEntries > 0 && c.lru.Len() >= c.cfg.MaxEntries {
		c.removeElement(c.lru.Back())
		c.record(c.stats.RecordEviction)
	}

	c.entries[key] = c.lru.PushFront(&entry[V]{key: key, value: value, expiresAt: expiresAt})
	c.stats.UpdateSize(int64(c.lru.Len()))
}

// Delete removes a value from the cache.
func (c *MemoryCache[V]) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
}

// Clear removes all entries from the cache.
func (c *MemoryCache[V]) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.stats.UpdateSize(0)
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *MemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns the current cache statistics.
func (c *MemoryCache[V]) Stats() Stats {
	return c.stats.GetStats()
}

func (c *MemoryCache[V]) removeElement(el *list.Element) {
	e := c.lru.Remove(el).(*entry[V])
	delete(c.entries, e.key)
	c.stats.UpdateSize(int64(c.lru.Len()))
}

func (c *MemoryCache[V]) record(fn func()) {
	if c.cfg.EnableStats {
		fn()
	}
}
