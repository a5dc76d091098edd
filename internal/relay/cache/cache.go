package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Entry holds a cached value with its expiry metadata.
type Entry struct {
	Value    any
	StoredAt time.Time
	TTL      time.Duration
}

// valid reports whether the entry is still fresh at the given instant.
func (e Entry) valid(now time.Time) bool {
	return now.Before(e.StoredAt.Add(e.TTL))
}

// Cache is a TTL-bounded in-memory response cache.
type Cache struct {
	defaultTTL time.Duration

	mu      sync.RWMutex
	entries map[string]Entry

	janitorStop chan struct{}
	janitorOnce sync.Once
}

// New creates a cache with the given default TTL for entries stored
// without an explicit one.
func New(defaultTTL time.Duration) *Cache {
	return &Cache{
		defaultTTL:  defaultTTL,
		entries:     make(map[string]Entry),
		janitorStop: make(chan struct{}),
	}
}

// Key builds a request identity from method, endpoint, and params.
// Params are canonicalized (sorted keys) so logically equal requests
// share an entry regardless of map iteration order.
func Key(method, endpoint string, params map[string]any) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(strings.TrimRight(endpoint, "/"))

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('?')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			if raw, err := sonic.MarshalString(params[k]); err == nil {
				b.WriteString(raw)
			}
		}
	}

	return b.String()
}

// Get returns the cached value for key, or false on miss or expiry.
func (c *Cache) Get(key string) (any, bool) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if !entry.valid(now) {
		// Lazy eviction: expired entries are absent.
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && !cur.valid(now) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.Value, true
}

// Set stores value under key, overwriting any existing entry.
// A non-positive ttl falls back to the cache default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	c.entries[key] = Entry{
		Value:    value,
		StoredAt: time.Now(),
		TTL:      ttl,
	}
	c.mu.Unlock()
}

// Clear empties the entire cache unconditionally.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including not-yet-swept
// expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartJanitor launches a background sweep of expired entries at the given
// interval. Correctness does not depend on it; it only bounds memory.
func (c *Cache) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.janitorStop:
				return
			}
		}
	}()
}

// Close stops the janitor, if running.
func (c *Cache) Close() {
	c.janitorOnce.Do(func() { close(c.janitorStop) })
}

func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	for k, e := range c.entries {
		if !e.valid(now) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}
