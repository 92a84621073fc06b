// Package cache provides a small in-process cache with sliding TTL
// expiry. Entries are evicted by a background sweep and double-checked on
// access, so a stale entry is never returned even between sweeps.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	deadline time.Time
}

// Cache maps int64 ids to values of type V. Reading an entry through Get
// or GetOrLoad refreshes its deadline.
type Cache[V any] struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
	items map[int64]entry[V]
	stop  chan struct{}
	once  sync.Once
}

// New builds a cache whose entries expire ttl after their last touch and
// starts a sweep loop with the given purge interval. purge <= 0 disables
// the background sweep; expiry on access still applies.
func New[V any](ttl, purge time.Duration) *Cache[V] {
	c := &Cache[V]{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[int64]entry[V]),
		stop:  make(chan struct{}),
	}
	if purge > 0 {
		go c.sweepLoop(purge)
	}
	return c
}

func (c *Cache[V]) sweepLoop(purge time.Duration) {
	ticker := time.NewTicker(purge)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[V]) sweep() {
	now := c.now()
	c.mu.Lock()
	for id, e := range c.items {
		if now.After(e.deadline) {
			delete(c.items, id)
		}
	}
	c.mu.Unlock()
}

// Get returns the cached value and refreshes its deadline.
func (c *Cache[V]) Get(id int64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[id]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(e.deadline) {
		delete(c.items, id)
		var zero V
		return zero, false
	}
	e.deadline = c.now().Add(c.ttl)
	c.items[id] = e
	return e.value, true
}

// Set stores a value under id with a fresh deadline.
func (c *Cache[V]) Set(id int64, value V) {
	c.mu.Lock()
	c.items[id] = entry[V]{value: value, deadline: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Notify refreshes the deadline of an entry if it is still cached.
func (c *Cache[V]) Notify(id int64) {
	c.mu.Lock()
	if e, ok := c.items[id]; ok {
		e.deadline = c.now().Add(c.ttl)
		c.items[id] = e
	}
	c.mu.Unlock()
}

// Delete evicts an entry.
func (c *Cache[V]) Delete(id int64) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

// Len reports the number of live entries, expired ones included until the
// next sweep.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// GetOrLoad returns the cached value for id, calling load on a miss and
// caching its result. Concurrent misses for the same id may both load; the
// later Set wins, which is acceptable for read-through caching of
// canonical rows.
func (c *Cache[V]) GetOrLoad(ctx context.Context, id int64, load func(context.Context, int64) (V, error)) (V, error) {
	if v, ok := c.Get(id); ok {
		return v, nil
	}
	v, err := load(ctx, id)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(id, v)
	return v, nil
}

// Close stops the background sweep.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// SetNowFunc overrides the clock, for tests.
func (c *Cache[V]) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
