package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider implements Provider against an Ollama server
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaProvider creates a new Ollama embedder
func NewOllamaProvider(baseURL string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (o *OllamaProvider) Name() string {
	return ProviderOllama
}

// ListModels queries /api/tags
func (o *OllamaProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var resp struct {
		Models []struct {
			Name    string `json:"name"`
			Model   string `json:"model"`
			Details struct {
				Family   string   `json:"family"`
				Families []string `json:"families"`
			} `json:"details"`
		} `json:"models"`
	}
	if err := doJSON(ctx, o.httpClient, http.MethodGet, o.baseURL+"/api/tags", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("ollama list models: %w", err)
	}

	models := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		names := append([]string{name, m.Details.Family}, m.Details.Families...)
		models = append(models, ModelInfo{
			Name:             name,
			Family:           m.Details.Family,
			EmbeddingCapable: looksLikeEmbeddingModel(names...),
		})
	}
	return models, nil
}

// Embed calls /api/embed with all texts in one request
func (o *OllamaProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	req := map[string]interface{}{
		"model": model,
		"input": texts,
	}
	var resp struct {
		Model      string      `json:"model"`
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := doJSON(ctx, o.httpClient, http.MethodPost, o.baseURL+"/api/embed", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return fitSlots(resp.Embeddings, len(texts)), nil
}

func (o *OllamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
