// Package cache is the in-memory TTL store behind catalog feed rows,
// rendered storefront pages, preview sessions and API rate limits.
package cache

import (
	"sync"
	"time"
)

// Cache is the subset used by cached catalog feeds.
type Cache[V any] interface {
	// Get returns the value, whether it was found and whether it is past its
	// stale time but still usable.
	Get(key string) (V, bool, bool)
	Set(key string, value V, ttl time.Duration)
	SetWithStale(key string, value V, staleAfter, expireAfter time.Duration)
	Invalidate(key string)
	InvalidateAll()
}

// Options tunes a MemoryCache.
type Options struct {
	// MaxEntries bounds the cache. At capacity, adding a key drops the
	// least recently used entry. Zero means unbounded.
	MaxEntries int

	// Sweep is how often expired entries are purged (default: 1 minute).
	Sweep time.Duration

	// OnEvict is told about capacity evictions, not expiry. It runs with
	// the cache locked and must not call back into it.
	OnEvict func(key string)
}

type item[V any] struct {
	value   V
	staleAt time.Time
	expires time.Time
	used    time.Time
}

// MemoryCache is a TTL map with stale-while-revalidate support and an
// optional size bound.
type MemoryCache[V any] struct {
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	items map[string]*item[V]

	stop     chan struct{}
	stopOnce sync.Once
}

var _ Cache[[]byte] = (*MemoryCache[[]byte])(nil)

// New creates a cache and starts its sweep loop. Call Stop when done.
func New[V any](opts Options) *MemoryCache[V] {
	if opts.Sweep <= 0 {
		opts.Sweep = time.Minute
	}
	c := &MemoryCache[V]{
		opts:  opts,
		now:   time.Now,
		items: make(map[string]*item[V]),
		stop:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// NewMemoryCache creates an unbounded cache with the default sweep period.
func NewMemoryCache[V any]() *MemoryCache[V] {
	return New[V](Options{})
}

func (c *MemoryCache[V]) Get(key string) (V, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	it, ok := c.items[key]
	if !ok {
		return zero, false, false
	}
	now := c.now()
	if !now.Before(it.expires) {
		delete(c.items, key)
		return zero, false, false
	}
	it.used = now
	return it.value, true, !now.Before(it.staleAt)
}

func (c *MemoryCache[V]) Set(key string, value V, ttl time.Duration) {
	c.SetWithStale(key, value, ttl, ttl)
}

func (c *MemoryCache[V]) SetWithStale(key string, value V, staleAfter, expireAfter time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, staleAfter, expireAfter, c.now())
}

// Touch returns the value under key, creating it with create when missing
// or expired, and extends its life to ttl from now. Entries read through
// Touch therefore expire ttl after their last use.
func (c *MemoryCache[V]) Touch(key string, ttl time.Duration, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	it, ok := c.items[key]
	if !ok || !now.Before(it.expires) {
		delete(c.items, key)
		return c.put(key, create(), ttl, ttl, now).value
	}
	it.expires = now.Add(ttl)
	it.staleAt = it.expires
	it.used = now
	return it.value
}

func (c *MemoryCache[V]) put(key string, value V, staleAfter, expireAfter time.Duration, now time.Time) *item[V] {
	if _, exists := c.items[key]; !exists && c.opts.MaxEntries > 0 && len(c.items) >= c.opts.MaxEntries {
		c.evictOldest()
	}
	it := &item[V]{value: value, staleAt: now.Add(staleAfter), expires: now.Add(expireAfter), used: now}
	c.items[key] = it
	return it
}

// evictOldest drops the least recently used entry. Linear, but only runs
// when the cache is full.
func (c *MemoryCache[V]) evictOldest() {
	var (
		oldest string
		at     time.Time
		found  bool
	)
	for k, it := range c.items {
		if !found || it.used.Before(at) {
			oldest, at, found = k, it.used, true
		}
	}
	if !found {
		return
	}
	delete(c.items, oldest)
	if c.opts.OnEvict != nil {
		c.opts.OnEvict(oldest)
	}
}

func (c *MemoryCache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *MemoryCache[V]) InvalidateAll() {
	c.mu.Lock()
	c.items = make(map[string]*item[V])
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included until swept.
func (c *MemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryCache[V]) sweepLoop() {
	ticker := time.NewTicker(c.opts.Sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.purge()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache[V]) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, it := range c.items {
		if !now.Before(it.expires) {
			delete(c.items, k)
		}
	}
}

// Stop ends the sweep loop. Safe to call more than once.
func (c *MemoryCache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
