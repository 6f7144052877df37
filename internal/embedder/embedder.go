package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/dshills/docrag-mcp/internal/logger"
	"github.com/dshills/docrag-mcp/pkg/types"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")

	// ErrEmptyEmbeddingResult is returned when a query produced no vector
	ErrEmptyEmbeddingResult = errors.New("embedding provider returned an empty vector")

	// ErrEmbeddingDimensionMismatch is matched by *EmbeddingDimensionMismatchError
	ErrEmbeddingDimensionMismatch = errors.New("no embedding model matches the index dimension")
)

// ProbedModel is one candidate tried during model resolution.
// Dimension is 0 when the probe failed.
type ProbedModel struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// EmbeddingDimensionMismatchError reports that no available model produces
// vectors of the dimension already bound to the index.
type EmbeddingDimensionMismatchError struct {
	Expected int
	Tried    []ProbedModel
}

func (e *EmbeddingDimensionMismatchError) Error() string {
	tried := make([]string, len(e.Tried))
	for i, p := range e.Tried {
		if p.Dimension == 0 {
			tried[i] = p.Model + "=probe failed"
			continue
		}
		tried[i] = fmt.Sprintf("%s=%d", p.Model, p.Dimension)
	}
	return fmt.Sprintf("no embedding model produces dimension %d (tried: %s)", e.Expected, strings.Join(tried, ", "))
}

// Is makes errors.Is(err, ErrEmbeddingDimensionMismatch) true
func (e *EmbeddingDimensionMismatchError) Is(target error) bool {
	return target == ErrEmbeddingDimensionMismatch
}

// TextEmbedder turns texts into vectors with a named model.
// The result has exactly one slot per input; a slot may be empty.
type TextEmbedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Embedder wraps a Provider with caching, batching, retry and rate limiting
type Embedder struct {
	provider  Provider
	cache     *Cache
	retry     RetryConfig
	limiter   *rate.Limiter
	batchSize int
}

// Option configures an Embedder
type Option func(*Embedder)

// WithCache enables an LRU vector cache holding up to size entries
func WithCache(size int) Option {
	return func(e *Embedder) {
		if size > 0 {
			e.cache = NewCache(size)
		}
	}
}

// WithRetry overrides the retry policy for provider calls
func WithRetry(cfg RetryConfig) Option {
	return func(e *Embedder) {
		if cfg.MaxRetries > 0 {
			e.retry = cfg
		}
	}
}

// WithRateLimit caps provider calls per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(e *Embedder) {
		if rps > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithBatchSize splits requests into provider calls of at most n texts.
// Zero sends every request in a single call.
func WithBatchSize(n int) Option {
	return func(e *Embedder) {
		if n >= 0 {
			e.batchSize = n
		}
	}
}

// NewEmbedder creates a new Embedder around provider
func NewEmbedder(provider Provider, opts ...Option) *Embedder {
	e := &Embedder{
		provider: provider,
		retry:    DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Provider returns the provider name
func (e *Embedder) Provider() string {
	return e.provider.Name()
}

// DefaultModel returns the documented default model of the provider
func (e *Embedder) DefaultModel() string {
	return DefaultModelFor(e.provider.Name())
}

// ListModels delegates to the provider catalog
func (e *Embedder) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return e.provider.ListModels(ctx)
}

// CacheSize returns the number of cached vectors
func (e *Embedder) CacheSize() int {
	if e.cache == nil {
		return 0
	}
	return e.cache.Size()
}

// Embed returns one vector slot per text. Empty slots are not an error;
// callers decide how to treat them.
func (e *Embedder) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrInvalidInput)
	}
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	// Serve cached vectors and collect the misses
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if e.cache != nil {
			if vec, ok := e.cache.Get(cacheKey(model, text)); ok {
				vectors[i] = vec
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	size := e.batchSize
	if size == 0 || size > len(missing) {
		size = len(missing)
	}

	for start := 0; start < len(missing); start += size {
		end := start + size
		if end > len(missing) {
			end = len(missing)
		}
		idx := missing[start:end]
		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}

		out, err := e.call(ctx, model, batch)
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			if j >= len(out) {
				break
			}
			vectors[i] = out[j]
			if e.cache != nil && len(out[j]) > 0 {
				e.cache.Set(cacheKey(model, texts[i]), out[j])
			}
		}
	}

	return vectors, nil
}

// EmbedQuery embeds a single query string and rejects an empty vector
func (e *Embedder) EmbedQuery(ctx context.Context, model, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	vectors, err := e.Embed(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: model %s", ErrEmptyEmbeddingResult, model)
	}
	return vectors[0], nil
}

// call performs one rate-limited provider request with retry
func (e *Embedder) call(ctx context.Context, model string, batch []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	out, err := retryWithBackoff(ctx, e.retry, func() ([][]float32, error) {
		return e.provider.Embed(ctx, model, batch)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s model %s: %v", ErrProviderFailed, e.provider.Name(), model, err)
	}
	if len(out) != len(batch) {
		logger.Warn("provider %s returned %d vectors for %d texts", e.provider.Name(), len(out), len(batch))
	}
	return out, nil
}

// Close releases provider resources
func (e *Embedder) Close() error {
	if e.cache != nil {
		e.cache.Clear()
	}
	return e.provider.Close()
}

func cacheKey(model, text string) string {
	return model + ":" + types.ContentHash(text)
}
