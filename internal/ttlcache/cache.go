// ABOUTME: Thread-safe TTL cache with a bounded size for memoized lookups.
// ABOUTME: Used for authorization decisions and negative agent-card results.

package ttlcache

import (
	"container/list"
	"sync"
	"time"
)

// entry stores a cached value with its insertion time and list element.
type entry[V any] struct {
	value   V
	stored  time.Time
	element *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited cache. Entries expire after
// the configured TTL and the oldest entry is evicted when the cache is full.
// Eviction under memory pressure is safe for all users of this cache: a miss
// just re-runs the lookup. Uses a doubly-linked list to maintain insertion
// order for O(1) eviction.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	order   *list.List // keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size. A background
// goroutine periodically removes expired entries.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	c := &Cache[V]{
		entries: make(map[string]*entry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the cached value for key and whether it is present and fresh.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Since(e.stored) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value for key, evicting the oldest entry if at capacity.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if e, exists := c.entries[key]; exists {
		e.value = value
		e.stored = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &entry[V]{value: value, stored: now, element: elem}
}

// Delete removes key from the cache if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.order.Remove(e.element)
	delete(c.entries, key)
}

// Len returns the number of entries currently held, including expired ones
// that have not yet been cleaned up.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache[V]) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.Sub(e.stored) >= c.ttl {
			c.order.Remove(e.element)
			delete(c.entries, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
