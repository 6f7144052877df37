package embedder

import (
	"context"
	"fmt"

	"github.com/dshills/docrag-mcp/internal/logger"
)

// ProbeText is embedded to discover a model's output dimension
const ProbeText = "dimension probe"

// DimensionProbe reports the vector width bound to an index; 0 means no
// table exists yet and any model may be used.
type DimensionProbe interface {
	Dimension(ctx context.Context) (int, error)
}

// Resolver picks an embedding model whose output width matches the index
type Resolver struct {
	catalog      ModelCatalog
	embedder     TextEmbedder
	dims         *DimensionCache
	defaultModel string
}

// NewResolver creates a new Resolver. dims may be shared across resolvers;
// a nil cache gets a private one.
func NewResolver(catalog ModelCatalog, emb TextEmbedder, dims *DimensionCache, defaultModel string) *Resolver {
	if dims == nil {
		dims = NewDimensionCache()
	}
	return &Resolver{
		catalog:      catalog,
		embedder:     emb,
		dims:         dims,
		defaultModel: defaultModel,
	}
}

// DefaultModel returns the model used when nothing else constrains the choice
func (r *Resolver) DefaultModel() string {
	return r.defaultModel
}

// Resolve returns a model name compatible with targetDimension.
// With targetDimension <= 0 the preferred model (or the default) is returned
// without validation. Otherwise the preferred model and then every
// embedding-capable catalog model is probed in order, and the first whose
// dimension equals targetDimension wins. A catalog failure aborts; a single
// failed probe only skips that candidate.
func (r *Resolver) Resolve(ctx context.Context, preferred string, targetDimension int) (string, error) {
	if targetDimension <= 0 {
		if preferred != "" {
			return preferred, nil
		}
		return r.defaultModel, nil
	}

	models, err := r.catalog.ListModels(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list embedding models: %w", err)
	}

	candidates := make([]string, 0, len(models)+1)
	seen := make(map[string]bool, len(models)+1)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			candidates = append(candidates, name)
		}
	}
	add(preferred)
	for _, m := range models {
		if m.EmbeddingCapable {
			add(m.Name)
		}
	}

	tried := make([]ProbedModel, 0, len(candidates))
	for _, model := range candidates {
		dim, err := r.ProbeDimension(ctx, model)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Warn("dimension probe failed model=%s err=%v", model, err)
			tried = append(tried, ProbedModel{Model: model})
			continue
		}
		if dim == targetDimension {
			if model != preferred && preferred != "" {
				logger.Info("preferred model %s does not match dimension %d, using %s", preferred, targetDimension, model)
			}
			return model, nil
		}
		logger.Debug("model %s has dimension %d, need %d", model, dim, targetDimension)
		tried = append(tried, ProbedModel{Model: model, Dimension: dim})
	}

	return "", &EmbeddingDimensionMismatchError{Expected: targetDimension, Tried: tried}
}

// ResolveFor reads the index dimension from probe and resolves against it
func (r *Resolver) ResolveFor(ctx context.Context, preferred string, probe DimensionProbe) (string, int, error) {
	dim, err := probe.Dimension(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read index dimension: %w", err)
	}
	model, err := r.Resolve(ctx, preferred, dim)
	if err != nil {
		return "", dim, err
	}
	return model, dim, nil
}

// ProbeDimension returns the output dimension of model, embedding ProbeText
// on the first call and serving later calls from the cache.
func (r *Resolver) ProbeDimension(ctx context.Context, model string) (int, error) {
	return r.dims.GetOrCompute(ctx, model, func(ctx context.Context, model string) (int, error) {
		vectors, err := r.embedder.Embed(ctx, model, []string{ProbeText})
		if err != nil {
			return 0, err
		}
		if len(vectors) == 0 {
			return 0, nil
		}
		return len(vectors[0]), nil
	})
}
