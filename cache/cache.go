// Package cache implements the fingerprint-keyed response cache: TTL and
// capacity-bounded LRU eviction on read/insert, backed by a single-flight
// registry so concurrent identical requests share one producer call.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fingerprint is the cache key: a canonical hash over resolved model,
// normalized messages, tools, and the stream flag. See Fingerprint().
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	const hex = "0123456789abcdef"
	buf := make([]byte, 64)
	for i, b := range f {
		buf[i*2] = hex[b>>4]
		buf[i*2+1] = hex[b&0xf]
	}
	return string(buf)
}

type entry struct {
	key      Fingerprint
	value    []byte
	expireAt time.Time
	elem     *list.Element
}

// Stats reports cumulative cache activity, exposed at GET /stats.
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Producer computes the response to cache on a miss. Its error is never
// cached: the next get_or_compute for the same fingerprint retries it.
type Producer func(ctx context.Context) ([]byte, error)

// Cache is a fingerprint -> response cache with TTL expiry, an LRU
// eviction policy bounded at maxEntries, and single-flight producer dedup.
type Cache struct {
	mu         sync.Mutex
	entries    map[Fingerprint]*entry
	order      *list.List // front = most recently used
	maxEntries int
	ttl        time.Duration
	group      singleflight.Group

	hits      int64
	misses    int64
	evictions int64
}

// New creates a Cache. maxEntries <= 0 means unbounded.
func New(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		entries:    make(map[Fingerprint]*entry),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// GetOrCompute returns the cached response for key if a live entry exists.
// Otherwise it runs producer, ensuring concurrent callers for the same key
// observe exactly one producer invocation (via singleflight.Group.Do): the
// cache's own read-through sits in front of the group so a hit never
// touches it. A producer error is propagated to every waiter and never
// cached.
func (c *Cache) GetOrCompute(ctx context.Context, key Fingerprint, producer Producer) ([]byte, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		// Re-check: another goroutine may have populated the entry between
		// our miss above and acquiring the single-flight slot.
		if v, ok := c.get(key); ok {
			return v, nil
		}
		out, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		c.insert(key, out)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) get(key Fingerprint) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if !e.expireAt.After(time.Now()) {
		c.removeLocked(e)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(e.elem)
	c.hits++
	return e.value, true
}

func (c *Cache) insert(key Fingerprint, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.removeLocked(existing)
	}

	e := &entry{key: key, value: value, expireAt: time.Now().Add(c.ttl)}
	e.elem = c.order.PushFront(key)
	c.entries[key] = e

	if c.maxEntries > 0 {
		for len(c.entries) > c.maxEntries {
			oldest := c.order.Back()
			if oldest == nil {
				break
			}
			c.removeLocked(c.entries[oldest.Value.(Fingerprint)])
			c.evictions++
		}
	}
}

// removeLocked removes e from both the map and the LRU list. Caller must
// hold c.mu.
func (c *Cache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}

// Invalidate removes any cached entry for key. A no-op if none exists.
func (c *Cache) Invalidate(key Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// Sweep drops all expired entries. Intended to be called periodically so
// TTL expiry doesn't rely solely on the next read.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*entry
	for _, e := range c.entries {
		if !e.expireAt.After(now) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		c.removeLocked(e)
	}
	return len(expired)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
