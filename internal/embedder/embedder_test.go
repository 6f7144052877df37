package embedder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns vectors of a fixed width per model
type fakeProvider struct {
	mu      sync.Mutex
	dims    map[string]int
	calls   int
	batches [][]string
	empty   map[string]bool // texts that get an empty slot
	failN   int             // fail this many calls before succeeding
	err     error
	catalog StaticCatalog
	listErr error
}

func newFakeProvider(dims map[string]int) *fakeProvider {
	catalog := make(StaticCatalog, 0, len(dims))
	for name := range dims {
		catalog = append(catalog, ModelInfo{Name: name, EmbeddingCapable: true})
	}
	return &fakeProvider{dims: dims, empty: map[string]bool{}, catalog: catalog}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.catalog.ListModels(ctx)
}

func (f *fakeProvider) Embed(_ context.Context, model string, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.failN > 0 {
		f.failN--
		return nil, errors.New("temporary failure")
	}
	if f.err != nil {
		return nil, f.err
	}
	dim, ok := f.dims[model]
	if !ok {
		return nil, permanent(ErrUnsupportedModel)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.empty[text] {
			continue
		}
		vec := make([]float32, dim)
		vec[0] = float32(len(text))
		out[i] = vec
	}
	return out, nil
}

func (f *fakeProvider) Close() error { return nil }

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestEmbed_OneSlotPerInput(t *testing.T) {
	p := newFakeProvider(map[string]int{"m": 8})
	p.empty["bad"] = true
	e := NewEmbedder(p)

	vectors, err := e.Embed(context.Background(), "m", []string{"a", "bad", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Len(t, vectors[0], 8)
	assert.Empty(t, vectors[1])
	assert.Len(t, vectors[2], 8)
	assert.Equal(t, 1, p.calls, "whole request should be one provider call")
}

func TestEmbed_EmptyInput(t *testing.T) {
	p := newFakeProvider(map[string]int{"m": 8})
	e := NewEmbedder(p)

	vectors, err := e.Embed(context.Background(), "m", nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, p.calls)
}

func TestEmbed_RequiresModel(t *testing.T) {
	e := NewEmbedder(newFakeProvider(nil))
	_, err := e.Embed(context.Background(), "", []string{"x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEmbed_BatchSize(t *testing.T) {
	p := newFakeProvider(map[string]int{"m": 4})
	e := NewEmbedder(p, WithBatchSize(2))

	vectors, err := e.Embed(context.Background(), "m", []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []string{"e"}, p.batches[2])
}

func TestEmbed_Cache(t *testing.T) {
	p := newFakeProvider(map[string]int{"m": 4})
	e := NewEmbedder(p, WithCache(100))
	ctx := context.Background()

	_, err := e.Embed(ctx, "m", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, e.CacheSize())

	vectors, err := e.Embed(ctx, "m", []string{"b", "c"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 2, p.calls)
	assert.Equal(t, []string{"c"}, p.batches[1], "cached text should not be sent again")

	// Mutating a returned vector must not affect the cache
	vectors[0][0] = 999
	again, err := e.Embed(ctx, "m", []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, float32(1), again[0][0])
}

func TestEmbed_CacheSkipsEmptyVectors(t *testing.T) {
	p := newFakeProvider(map[string]int{"m": 4})
	p.empty["bad"] = true
	e := NewEmbedder(p, WithCache(100))

	_, err := e.Embed(context.Background(), "m", []string{"bad"})
	require.NoError(t, err)
	assert.Zero(t, e.CacheSize())
}

func TestEmbed_CacheKeyIncludesModel(t *testing.T) {
	p := newFakeProvider(map[string]int{"small": 4, "large": 16})
	e := NewEmbedder(p, WithCache(100))
	ctx := context.Background()

	a, err := e.Embed(ctx, "small", []string{"x"})
	require.NoError(t, err)
	b, err := e.Embed(ctx, "large", []string{"x"})
	require.NoError(t, err)
	assert.Len(t, a[0], 4)
	assert.Len(t, b[0], 16)
}

func TestEmbed_RetriesTransientErrors(t *testing.T) {
	p := newFakeProvider(map[string]int{"m": 4})
	p.failN = 2
	e := NewEmbedder(p, WithRetry(fastRetry()))

	vectors, err := e.Embed(context.Background(), "m", []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vectors[0], 4)
	assert.Equal(t, 3, p.calls)
}

func TestEmbed_PermanentErrorNotRetried(t *testing.T) {
	p := newFakeProvider(map[string]int{"m": 4})
	e := NewEmbedder(p, WithRetry(fastRetry()))

	_, err := e.Embed(context.Background(), "unknown", []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, 1, p.calls)
}

func TestEmbed_RateLimit(t *testing.T) {
	p := newFakeProvider(map[string]int{"m": 4})
	e := NewEmbedder(p, WithBatchSize(1), WithRateLimit(50))

	start := time.Now()
	_, err := e.Embed(context.Background(), "m", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestEmbedQuery(t *testing.T) {
	p := newFakeProvider(map[string]int{"m": 4})
	p.empty["nothing"] = true
	e := NewEmbedder(p)
	ctx := context.Background()

	vec, err := e.EmbedQuery(ctx, "m", "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)

	_, err = e.EmbedQuery(ctx, "m", "nothing")
	assert.ErrorIs(t, err, ErrEmptyEmbeddingResult)

	_, err = e.EmbedQuery(ctx, "m", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCache_LRUEviction(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Set("c", []float32{3})

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Size())

	c.Clear()
	assert.Zero(t, c.Size())
}

func TestDimensionCache_GetOrCompute(t *testing.T) {
	c := NewDimensionCache()
	ctx := context.Background()
	calls := 0
	compute := func(context.Context, string) (int, error) {
		calls++
		return 768, nil
	}

	d, err := c.GetOrCompute(ctx, "m", compute)
	require.NoError(t, err)
	assert.Equal(t, 768, d)

	d, err = c.GetOrCompute(ctx, "m", compute)
	require.NoError(t, err)
	assert.Equal(t, 768, d)
	assert.Equal(t, 1, calls)
}

func TestDimensionCache_FailuresNotCached(t *testing.T) {
	c := NewDimensionCache()
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, "m", func(context.Context, string) (int, error) {
		return 0, errors.New("down")
	})
	require.Error(t, err)

	_, err = c.GetOrCompute(ctx, "m", func(context.Context, string) (int, error) {
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrEmptyEmbeddingResult)
	assert.Zero(t, c.Len())
}

func TestDimensionCache_Concurrent(t *testing.T) {
	c := NewDimensionCache()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.GetOrCompute(context.Background(), "m", func(context.Context, string) (int, error) {
				return 384, nil
			})
		}()
	}
	wg.Wait()

	d, ok := c.Get("m")
	assert.True(t, ok)
	assert.Equal(t, 384, d)
}
