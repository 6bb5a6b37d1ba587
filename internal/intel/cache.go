package intel

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ttlCache is a capacity-bounded cache whose entries expire after a fixed
// TTL. The clock is injected so tests can simulate time passage without
// real delays.
type ttlCache[V any] struct {
	mu    sync.Mutex
	inner *lru.Cache[string, ttlEntry[V]]
	ttl   time.Duration
	now   func() time.Time
}

type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

func newTTLCache[V any](capacity int, ttl time.Duration, now func() time.Time) *ttlCache[V] {
	inner, _ := lru.New[string, ttlEntry[V]](capacity)
	return &ttlCache[V]{inner: inner, ttl: ttl, now: now}
}

// get returns the cached value if present and not expired. Expired entries
// are evicted on access.
func (c *ttlCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inner.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.inner.Remove(key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[V]) set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, ttlEntry[V]{value: value, storedAt: c.now()})
}

func (c *ttlCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
