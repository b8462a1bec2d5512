package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a fixed-capacity cache that evicts the least-recently-used entry
// when an insert would exceed capacity. Get and Set both refresh recency.
// Safe for concurrent use.
type LRU[K comparable, V any] struct {
	inner *lru.Cache[K, V]
}

// NewLRU creates a cache holding at most capacity entries. Capacity must be
// positive.
func NewLRU[K comparable, V any](capacity int) (*LRU[K, V], error) {
	inner, err := lru.New[K, V](capacity)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{inner: inner}, nil
}

// Get retrieves a value and refreshes its recency.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	return c.inner.Get(key)
}

// Set stores a value, refreshing recency if the key is already present.
// Returns true if an entry was evicted to make room.
func (c *LRU[K, V]) Set(key K, value V) bool {
	return c.inner.Add(key, value)
}

// Contains reports whether the key is present without refreshing recency.
func (c *LRU[K, V]) Contains(key K) bool {
	return c.inner.Contains(key)
}

// Remove deletes an entry if present.
func (c *LRU[K, V]) Remove(key K) {
	c.inner.Remove(key)
}

// Len returns the current number of cached entries.
func (c *LRU[K, V]) Len() int {
	return c.inner.Len()
}

// Purge removes all entries.
func (c *LRU[K, V]) Purge() {
	c.inner.Purge()
}
