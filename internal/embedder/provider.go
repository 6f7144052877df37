package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Provider names
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Default models
const (
	DefaultOllamaModel = "nomic-embed-text"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-384"
)

// DefaultModelFor returns the model used when none is configured and the
// index has no dimension yet.
func DefaultModelFor(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderOllama:
		return DefaultOllamaModel
	case ProviderOpenAI:
		return DefaultOpenAIModel
	default:
		return DefaultLocalModel
	}
}

// ModelInfo describes one entry in a provider catalog
type ModelInfo struct {
	Name             string `json:"name"`
	Family           string `json:"family,omitempty"`
	EmbeddingCapable bool   `json:"embedding_capable"`

	// Dimension is set when the catalog knows it without probing
	Dimension int `json:"dimension,omitempty"`
}

// ModelCatalog lists the models a provider can serve
type ModelCatalog interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// StaticCatalog is an in-memory catalog for offline use and tests
type StaticCatalog []ModelInfo

// ListModels returns a copy of the catalog
func (s StaticCatalog) ListModels(_ context.Context) ([]ModelInfo, error) {
	out := make([]ModelInfo, len(s))
	copy(out, s)
	return out, nil
}

// Provider is an embedding backend: a model catalog plus a batch embed call.
// Embed returns one slot per input text; a slot may be empty when the
// backend produced no vector for that text.
type Provider interface {
	ModelCatalog
	Name() string
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
	Close() error
}

// looksLikeEmbeddingModel applies the name heuristics used when a catalog
// does not flag embedding capability explicitly.
func looksLikeEmbeddingModel(names ...string) bool {
	for _, name := range names {
		n := strings.ToLower(name)
		for _, marker := range []string{"embed", "bert", "minilm", "e5", "bge", "gte"} {
			if strings.Contains(n, marker) {
				return true
			}
		}
	}
	return false
}

// statusError is a non-2xx response from a provider
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// doJSON sends an optional JSON body and decodes a JSON response into out.
// 4xx responses other than 429 are permanent.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return permanent(fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return permanent(fmt.Errorf("create request: %w", err))
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		se := &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return permanent(se)
		}
		return se
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// fitSlots pads or truncates vectors to exactly n slots
func fitSlots(vectors [][]float32, n int) [][]float32 {
	if len(vectors) == n {
		return vectors
	}
	out := make([][]float32, n)
	copy(out, vectors)
	return out
}
