// Package cache holds normalized results in memory for a fixed time-to-live.
package cache

import (
	"encoding/base64"
	"sort"
	"strings"
	"sync"
	"time"

	"igdownloader/pkg/models"
)

// KeyPrefix is prepended to every derived cache key
const KeyPrefix = "instagram_"

// DefaultSoftLimit is the entry count above which Put sweeps expired entries
const DefaultSoftLimit = 100

// Key derives a stable cache key from a canonical URL.
// The URL is case-folded and anything after '?' is dropped, then base64 encoded.
func Key(canonicalURL string) string {
	base, _, _ := strings.Cut(canonicalURL, "?")
	return KeyPrefix + base64.StdEncoding.EncodeToString([]byte(strings.ToLower(base)))
}

// Entry is a stored value with its insertion time and lifetime
type Entry[T any] struct {
	Data     T
	StoredAt time.Time
	TTL      time.Duration
}

func (e Entry[T]) expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// Cache is a mutex-guarded map with lazy expiry and a soft size ceiling
type Cache[T any] struct {
	mu        sync.Mutex
	entries   map[string]Entry[T]
	softLimit int
	now       func() time.Time
}

// New creates a cache that sweeps expired entries once it holds more than softLimit items
func New[T any](softLimit int) *Cache[T] {
	if softLimit <= 0 {
		softLimit = DefaultSoftLimit
	}
	return &Cache[T]{
		entries:   make(map[string]Entry[T]),
		softLimit: softLimit,
		now:       time.Now,
	}
}

// WithClock replaces time.Now, mainly for tests
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Get returns the value for key. An expired entry is evicted and reported as absent.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if entry.expired(c.now()) {
		delete(c.entries, key)
		return zero, false
	}
	return entry.Data, true
}

// Put stores value under key, replacing any previous entry
func (c *Cache[T]) Put(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = Entry[T]{Data: value, StoredAt: now, TTL: ttl}

	if len(c.entries) > c.softLimit {
		c.sweepLocked(now)
	}
}

// Sweep removes every expired entry and returns how many were dropped
func (c *Cache[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

func (c *Cache[T]) sweepLocked(now time.Time) int {
	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats reports the entry count and the sorted keys
func (c *Cache[T]) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return models.CacheStats{Size: len(keys), Keys: keys}
}

// Clear drops every entry
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry[T])
}
