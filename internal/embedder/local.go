package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// LocalCatalog lists the offline hashing models
var LocalCatalog = StaticCatalog{
	{Name: "local-384", Family: "hashing", EmbeddingCapable: true, Dimension: 384},
	{Name: "local-768", Family: "hashing", EmbeddingCapable: true, Dimension: 768},
	{Name: "local-1536", Family: "hashing", EmbeddingCapable: true, Dimension: 1536},
}

// LocalProvider is an offline embedder based on signed feature hashing of
// lowercase word tokens. Texts sharing words get similar vectors. The model
// name selects the dimension: "local-<dim>".
type LocalProvider struct {
	catalog StaticCatalog
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{catalog: LocalCatalog}
}

func (l *LocalProvider) Name() string {
	return ProviderLocal
}

func (l *LocalProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return l.catalog.ListModels(ctx)
}

func (l *LocalProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	dim, err := localDimension(model)
	if err != nil {
		return nil, permanent(err)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = hashEmbed(text, dim)
	}
	return vectors, nil
}

func (l *LocalProvider) Close() error {
	return nil
}

func localDimension(model string) (int, error) {
	suffix, ok := strings.CutPrefix(model, "local-")
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}
	dim, err := strconv.Atoi(suffix)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}
	return dim, nil
}

func hashEmbed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) == 0 {
		tokens = []string{text}
	}
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(dim))
		if sum>>63 == 1 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	return NormalizeVector(vec)
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
