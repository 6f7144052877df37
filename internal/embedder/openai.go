package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIProvider implements Provider using an OpenAI-compatible API
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(apiKey, baseURL string, timeout time.Duration) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrNoProviderEnabled)
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (o *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + o.apiKey}
}

// ListModels queries /v1/models
func (o *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var resp struct {
		Data []struct {
			ID      string `json:"id"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := doJSON(ctx, o.httpClient, http.MethodGet, o.baseURL+"/v1/models", o.headers(), nil, &resp); err != nil {
		return nil, fmt.Errorf("openai list models: %w", err)
	}

	models := make([]ModelInfo, 0, len(resp.Data))
	for _, m := range resp.Data {
		models = append(models, ModelInfo{
			Name:             m.ID,
			Family:           m.OwnedBy,
			EmbeddingCapable: strings.Contains(strings.ToLower(m.ID), "embed"),
		})
	}
	return models, nil
}

// Embed calls /v1/embeddings. Results are placed by their index field.
func (o *OpenAIProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	req := map[string]interface{}{
		"input": texts,
		"model": model,
	}
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := doJSON(ctx, o.httpClient, http.MethodPost, o.baseURL+"/v1/embeddings", o.headers(), req, &resp); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			continue
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
