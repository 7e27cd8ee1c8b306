package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
	seq      uint64
}

// Cache is a TTL-bounded key-value store with a hard size cap.
type Cache[V any] struct {
	mutex   sync.Mutex
	entries map[string]entry[V]
	ttl     time.Duration
	maxSize int
	seq     uint64
	now     func() time.Time
}

func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	return NewWithClock[V](ttl, maxSize, time.Now)
}

func NewWithClock[V any](ttl time.Duration, maxSize int, now func() time.Time) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
	}
}

// Get returns the cached value for key. Entries past their TTL read as
// absent and are deleted on the spot.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var zero V

	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return zero, false
	}

	return e.value, true
}

// Set stores value under key. When the store is full, the entry with the
// smallest storedAt is evicted first, expired or not; ties fall to the
// earlier insertion.
func (c *Cache[V]) Set(key string, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.seq++
	c.entries[key] = entry[V]{
		value:    value,
		storedAt: c.now(),
		seq:      c.seq,
	}
}

// StoredAt returns when key was last set, for callers that report the
// first-seen time of a suppressed duplicate.
func (c *Cache[V]) StoredAt(key string) (time.Time, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		return time.Time{}, false
	}

	return e.storedAt, true
}

func (c *Cache[V]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, key)
}

func (c *Cache[V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// PurgeExpired removes every entry past its TTL and returns how many were
// dropped. Used by periodic sweeps; reads already drop stale entries
// lazily.
func (c *Cache[V]) PurgeExpired() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	purged := 0
	for key, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, key)
			purged++
		}
	}

	return purged
}

func (c *Cache[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    entry[V]
		found     bool
	)

	for key, e := range c.entries {
		if !found || e.storedAt.Before(oldest.storedAt) ||
			(e.storedAt.Equal(oldest.storedAt) && e.seq < oldest.seq) {
			oldestKey = key
			oldest = e
			found = true
		}
	}

	if found {
		delete(c.entries, oldestKey)
	}
}
