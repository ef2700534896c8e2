package store

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// scanCache is a time-bounded cache of expensive scan results with
// in-flight request coalescing: concurrent callers asking for the
// same uncached key share one underlying scan instead of each
// walking the filesystem. The clock is injected so tests can
// assert TTL expiry deterministically.
type scanCache[V any] struct {
	mu      sync.Mutex
	entries map[string]cacheEntry[V]
	group   singleflight.Group
	now     func() time.Time
}

type cacheEntry[V any] struct {
	value   V
	expires time.Time // zero = no expiry
}

func newScanCache[V any]() *scanCache[V] {
	return &scanCache[V]{
		entries: make(map[string]cacheEntry[V]),
		now:     time.Now,
	}
}

// getOrScan returns the cached value for key, or runs scan exactly
// once (shared among concurrent callers via singleflight, which
// drops the in-flight marker when the call returns, so a failed
// scan never blocks retries) and caches the result for ttl.
// ttl <= 0 caches until explicitly invalidated.
func (c *scanCache[V]) getOrScan(
	key string, ttl time.Duration, scan func() (V, error),
) (V, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A coalesced caller may arrive after the first one
		// populated the cache.
		if v, ok := c.get(key); ok {
			return v, nil
		}
		value, err := scan()
		if err != nil {
			return nil, err
		}
		c.set(key, value, ttl)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *scanCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *scanCache[V]) set(key string, value V, ttl time.Duration) {
	e := cacheEntry[V]{value: value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *scanCache[V]) invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *scanCache[V]) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[V])
	c.mu.Unlock()
}
