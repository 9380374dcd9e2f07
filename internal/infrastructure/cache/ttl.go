package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// NormalizeKey lowercases text and collapses whitespace. It is idempotent.
func NormalizeKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

type ttlEntry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// TTLCache is a process-local cache bounded by age and size. Expiry is
// checked lazily on read; once capacity is exceeded the oldest inserted entry
// is evicted. Keys are normalized with NormalizeKey. A capacity of zero
// stores nothing.
type TTLCache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	entries  map[string]*list.Element
	order    *list.List
}

// NewTTLCache builds a cache. now may be nil to use the wall clock; ttl <= 0
// disables expiry.
func NewTTLCache[V any](ttl time.Duration, capacity int, now func() time.Time) *TTLCache[V] {
	if now == nil {
		now = time.Now
	}
	if capacity < 0 {
		capacity = 0
	}
	return &TTLCache[V]{
		ttl:      ttl,
		capacity: capacity,
		now:      now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	key = NormalizeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	entry := el.Value.(*ttlEntry[V])
	if c.ttl > 0 && c.now().Sub(entry.storedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key. Re-setting a key refreshes its age and moves it
// to the newest position.
func (c *TTLCache[V]) Set(key string, value V) {
	if c.capacity == 0 {
		return
	}
	key = NormalizeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*ttlEntry[V])
		entry.value = value
		entry.storedAt = c.now()
		c.order.MoveToBack(el)
		return
	}

	c.entries[key] = c.order.PushBack(&ttlEntry[V]{key: key, value: value, storedAt: c.now()})
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*ttlEntry[V]).key)
	}
}

func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
