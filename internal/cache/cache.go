// Package cache provides the bounded TTL+LRU store for raw provider documents.
//
// Expiry is lazy: an expired entry is discovered and removed on the next Get
// that touches it. Until then it still occupies a capacity slot, silently
// reducing effective capacity. That is an accepted limitation of skipping a
// background sweep, not a bug.
package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of cache configuration and occupancy.
// Entries counts only unexpired entries.
type Stats struct {
	MaxSize    int `json:"max_size"`
	TTLSeconds int `json:"ttl_seconds"`
	Entries    int `json:"entries"`
}

// entry is a cached raw document with its original insertion time.
// TTL is measured from InsertedAt; a recency bump on Get does not refresh it.
type entry struct {
	key        string
	value      []byte
	insertedAt time.Time
}

// TTLRU is a concurrency-safe, size-bounded key/value store with per-entry
// TTL and least-recently-used eviction. All operations take the single
// mutex; none holds it across anything slower than a map/list update.
type TTLRU struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List // front = most recently used

	now func() time.Time // overridable in tests
}

// New creates a TTLRU holding at most maxSize entries, each live for ttl
// after insertion.
func New(maxSize int, ttl time.Duration) (*TTLRU, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("cache: max size %d, must be >= 1", maxSize)
	}
	if ttl <= 0 {
		return nil, errors.New("cache: ttl must be positive")
	}
	return &TTLRU{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}, nil
}

// Get returns the value stored under key, if present and unexpired.
// A hit moves the entry to the most-recent position without refreshing its
// insertion time. An expired entry is removed as a side effect, freeing its
// slot immediately.
func (c *TTLRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.removeLocked(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value under key as the most recent entry with a fresh insertion
// time. Overwriting an existing key never triggers eviction; inserting a new
// key at capacity evicts the least recently used entry first.
func (c *TTLRU) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.insertedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	if len(c.items) >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}
	c.items[key] = c.order.PushFront(&entry{
		key:        key,
		value:      value,
		insertedAt: c.now(),
	})
}

// Clear atomically removes all entries.
func (c *TTLRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Stats returns a consistent snapshot of the cache. Unlike Get it is a pure
// read: expired entries are counted out but left in place.
func (c *TTLRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	live := 0
	for el := c.order.Front(); el != nil; el = el.Next() {
		if now.Sub(el.Value.(*entry).insertedAt) <= c.ttl {
			live++
		}
	}
	return Stats{
		MaxSize:    c.maxSize,
		TTLSeconds: int(c.ttl / time.Second),
		Entries:    live,
	}
}

// removeLocked unlinks el from both structures. Caller holds c.mu.
func (c *TTLRU) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
