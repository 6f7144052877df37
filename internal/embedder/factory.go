package embedder

import (
	"fmt"
	"strings"

	"github.com/dshills/docrag-mcp/internal/config"
)

// NewProvider creates the provider named in cfg
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Timeout()), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Timeout())
	case ProviderLocal, "":
		return NewLocalProvider(), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// New creates an embedder with explicit configuration
func New(cfg config.EmbeddingConfig) (*Embedder, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewEmbedder(provider,
		WithCache(cfg.CacheSize),
		WithBatchSize(cfg.BatchSize),
		WithRateLimit(cfg.RequestsPerSecond),
	), nil
}

// NewResolverFor wires a Resolver to e, using e's provider as the catalog.
// The configured model, when set, replaces the provider default.
func NewResolverFor(e *Embedder, dims *DimensionCache, configuredModel string) *Resolver {
	def := configuredModel
	if def == "" {
		def = e.DefaultModel()
	}
	return NewResolver(e, e, dims, def)
}
