// SPDX-License-Identifier: MIT

// Package cache provides a size-bounded in-memory cache with TTL expiration
// and LRU eviction. Every operation is instrumented under the cache's name.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/decipherd/decipherd/internal/log"
	"github.com/decipherd/decipherd/internal/metrics"
)

// Stats holds a point-in-time snapshot of cache performance counters.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	HitRate float64 `json:"hit_rate"`
	Ops     int64   `json:"ops"`
}

// Config describes one cache tier.
type Config struct {
	Name    string
	MaxSize int
	TTL     time.Duration
	// Sweep is the interval for the background expiry sweep. Zero disables
	// the janitor; expired entries are then only dropped lazily on Get.
	Sweep time.Duration
}

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// Cache is a thread-safe TTL+LRU cache for values of type V.
type Cache[V any] struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	hits   int64
	misses int64
	ops    int64

	janitorStop chan struct{}
	janitorDone chan struct{}
	closeOnce   sync.Once
}

// New constructs a cache and starts its sweep janitor when configured.
func New[V any](cfg Config) *Cache[V] {
	c := &Cache[V]{
		cfg:     cfg,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
	if cfg.Sweep > 0 {
		c.janitorStop = make(chan struct{})
		c.janitorDone = make(chan struct{})
		go c.janitor()
	}
	return c
}

// Name returns the cache identity used in metrics labels.
func (c *Cache[V]) Name() string { return c.cfg.Name }

// Get returns the value for key. Expired entries are removed and count as a
// miss. A hit refreshes the entry's LRU position.
func (c *Cache[V]) Get(key string) (V, bool) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops++

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		c.observe("get", "miss", start)
		metrics.IncCacheMiss(c.cfg.Name)
		return zero, false
	}

	e := el.Value.(*entry[V])
	if c.expired(e) {
		c.removeLocked(el, "expired")
		c.misses++
		c.observe("get", "miss", start)
		metrics.IncCacheMiss(c.cfg.Name)
		return zero, false
	}

	c.order.MoveToFront(el)
	c.hits++
	c.observe("get", "hit", start)
	metrics.IncCacheHit(c.cfg.Name)
	return e.value, true
}

// Put inserts or refreshes an entry and its insert time. On capacity
// overflow the least-recently-used entry is evicted.
func (c *Cache[V]) Put(key string, value V) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops++

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.insertedAt = time.Now()
		c.order.MoveToFront(el)
		c.observe("put", "refresh", start)
		return
	}

	for c.cfg.MaxSize > 0 && len(c.entries) >= c.cfg.MaxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest, "lru")
	}

	el := c.order.PushFront(&entry[V]{key: key, value: value, insertedAt: time.Now()})
	c.entries[key] = el
	metrics.SetCacheSize(c.cfg.Name, len(c.entries))
	c.observe("put", "insert", start)
}

// Delete removes an entry, reporting whether it existed.
func (c *Cache[V]) Delete(key string) bool {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops++

	el, ok := c.entries[key]
	if !ok {
		c.observe("delete", "miss", start)
		return false
	}
	c.removeLocked(el, "deleted")
	c.observe("delete", "ok", start)
	return true
}

// Has reports whether a live entry exists for key without touching LRU order.
func (c *Cache[V]) Has(key string) bool {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops++

	el, ok := c.entries[key]
	if !ok || c.expired(el.Value.(*entry[V])) {
		c.observe("has", "miss", start)
		return false
	}
	c.observe("has", "hit", start)
	return true
}

// Touch refreshes the LRU position of a live entry without reading it.
func (c *Cache[V]) Touch(key string) bool {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops++

	el, ok := c.entries[key]
	if !ok || c.expired(el.Value.(*entry[V])) {
		c.observe("touch", "miss", start)
		return false
	}
	c.order.MoveToFront(el)
	c.observe("touch", "ok", start)
	return true
}

// Clear removes all entries and returns the number removed.
func (c *Cache[V]) Clear() int {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops++

	n := len(c.entries)
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	metrics.SetCacheSize(c.cfg.Name, 0)
	c.observe("clear", "ok", start)
	return n
}

// Len returns the current number of entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    len(c.entries),
		MaxSize: c.cfg.MaxSize,
		Ops:     c.ops,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Close stops the janitor goroutine. The cache remains usable.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() {
		if c.janitorStop != nil {
			close(c.janitorStop)
			<-c.janitorDone
		}
	})
}

// deleteExpired removes all expired entries and returns the count removed.
func (c *Cache[V]) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*entry[V])) {
			c.removeLocked(el, "expired")
			count++
		}
		el = prev
	}
	return count
}

func (c *Cache[V]) janitor() {
	defer close(c.janitorDone)
	ticker := time.NewTicker(c.cfg.Sweep)
	defer ticker.Stop()

	logger := log.WithComponent("cache")
	for {
		select {
		case <-c.janitorStop:
			return
		case <-ticker.C:
			if n := c.deleteExpired(); n > 0 {
				logger.Debug().
					Str("event", "cache.sweep").
					Str("cache", c.cfg.Name).
					Int("evicted", n).
					Msg("expired entries removed")
			}
		}
	}
}

func (c *Cache[V]) expired(e *entry[V]) bool {
	return c.cfg.TTL > 0 && time.Since(e.insertedAt) > c.cfg.TTL
}

// removeLocked drops el from the map and order list. Caller holds c.mu.
func (c *Cache[V]) removeLocked(el *list.Element, reason string) {
	e := el.Value.(*entry[V])
	delete(c.entries, e.key)
	c.order.Remove(el)
	if reason == "lru" || reason == "expired" {
		metrics.IncCacheEviction(c.cfg.Name, reason)
	}
	metrics.SetCacheSize(c.cfg.Name, len(c.entries))
}

func (c *Cache[V]) observe(op, outcome string, start time.Time) {
	metrics.ObserveCacheOp(c.cfg.Name, op, outcome, time.Since(start))
}
