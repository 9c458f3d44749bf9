package resolvers

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry holds a cached value with expiration and LRU tracking.
type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
	elem      *list.Element
}

// TTLCache is a thread-safe, TTL-aware LRU cache.
//
// Entries expire at their own TTL, capped at maxTTL. When the cache
// reaches maxEntries the least recently used entry is evicted; recency is
// updated on both reads and writes so hot questions stay resident.
// Expired entries are dropped lazily on lookup and count as misses.
type TTLCache[K comparable, V any] struct {
	mu sync.Mutex

	defaultTTL time.Duration // TTL used when the caller supplies none
	maxTTL     time.Duration // Cap on per-entry TTLs
	maxEntries int

	lru  *list.List // front = oldest, back = newest
	data map[K]*cacheEntry[V]

	hits   uint64
	misses uint64
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// NewTTLCache creates a cache bounded to maxEntries.
func NewTTLCache[K comparable, V any](maxEntries int) *TTLCache[K, V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &TTLCache[K, V]{
		defaultTTL: 60 * time.Second,
		maxTTL:     24 * time.Hour,
		maxEntries: maxEntries,
		lru:        list.New(),
		data:       map[K]*cacheEntry[V]{},
	}
}

// Get retrieves a live value. Expired entries are removed on the spot.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if now.After(e.expiresAt) {
		c.removeLocked(key, e)
		c.misses++
		return zero, false
	}
	c.lru.MoveToBack(e.elem)
	c.hits++
	return e.value, true
}

// SetWithTTL stores a value for ttl, clamped to the cache's maxTTL.
// A non-positive ttl falls back to the default.
func (c *TTLCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	expiresAt := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.data[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.lru.MoveToBack(e.elem)
		return
	}

	for len(c.data) >= c.maxEntries {
		oldest := c.lru.Front()
		if oldest == nil {
			break
		}
		k := oldest.Value.(K)
		c.removeLocked(k, c.data[k])
	}

	e := &cacheEntry[V]{value: value, expiresAt: expiresAt}
	e.elem = c.lru.PushBack(key)
	c.data[key] = e
}

// Stats returns hit/miss counters and the current entry count.
func (c *TTLCache[K, V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.data)}
}

// Purge drops every entry, keeping the counters.
func (c *TTLCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Init()
	c.data = map[K]*cacheEntry[V]{}
}

func (c *TTLCache[K, V]) removeLocked(key K, e *cacheEntry[V]) {
	if e == nil {
		return
	}
	c.lru.Remove(e.elem)
	delete(c.data, key)
}
