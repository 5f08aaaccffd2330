package ooi

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of vectors CachedStore keeps.
const DefaultCacheSize = 10000

// CachedStore keeps recently found vectors in memory. Misses and errors
// are not cached, so ids added to the store later become visible.
type CachedStore struct {
	inner Store
	cache *lru.Cache[string, []float32]
}

// NewCachedStore wraps inner with an LRU of size entries.
func NewCachedStore(inner Store, size int) *CachedStore {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedStore{inner: inner, cache: cache}
}

// Vector implements Store.
func (c *CachedStore) Vector(ctx context.Context, id string) ([]float32, bool, error) {
	if v, ok := c.cache.Get(id); ok {
		return append([]float32(nil), v...), true, nil
	}
	v, ok, err := c.inner.Vector(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	c.cache.Add(id, append([]float32(nil), v...))
	return v, true, nil
}

// Len returns the number of cached vectors.
func (c *CachedStore) Len() int {
	return c.cache.Len()
}
