package embedder

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache provides in-memory LRU caching of vectors keyed by model and content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new vector cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of a cached vector so callers cannot mutate the entry
func (c *Cache) Get(key string) ([]float32, bool) {
	vec, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Set stores a copy of vec
func (c *Cache) Set(key string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.cache.Add(key, stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// DimensionCache memoizes the probed output dimension of each model.
// Entries are never invalidated: a model name is assumed to keep its
// dimension for the life of the process. Failed probes are not stored.
type DimensionCache struct {
	mu   sync.RWMutex
	dims map[string]int
}

// NewDimensionCache creates an empty cache
func NewDimensionCache() *DimensionCache {
	return &DimensionCache{dims: make(map[string]int)}
}

// Get returns the cached dimension of model
func (c *DimensionCache) Get(model string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.dims[model]
	return d, ok
}

// Set records the dimension of model
func (c *DimensionCache) Set(model string, dim int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dims[model] = dim
}

// Len returns the number of cached models
func (c *DimensionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.dims)
}

// GetOrCompute returns the cached dimension or calls compute and stores a
// positive result. The lock is not held during compute, so concurrent
// callers may probe the same model twice; both store the same value.
func (c *DimensionCache) GetOrCompute(ctx context.Context, model string, compute func(context.Context, string) (int, error)) (int, error) {
	if d, ok := c.Get(model); ok {
		return d, nil
	}
	d, err := compute(ctx, model)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: model %s returned an empty probe vector", ErrEmptyEmbeddingResult, model)
	}
	c.Set(model, d)
	return d, nil
}
