package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docrag-mcp/internal/config"
)

func TestOllamaProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/tags":
			assert.Equal(t, http.MethodGet, r.Method)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"models": []map[string]interface{}{
					{"name": "nomic-embed-text:latest", "details": map[string]interface{}{"family": "nomic-bert"}},
					{"name": "llama3:8b", "details": map[string]interface{}{"family": "llama"}},
					{"name": "all-minilm:l6", "details": map[string]interface{}{"family": "bert"}},
				},
			})
		case "/api/embed":
			assert.Equal(t, http.MethodPost, r.Method)
			var req struct {
				Model string   `json:"model"`
				Input []string `json:"input"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "nomic-embed-text", req.Model)
			embeddings := make([][]float32, len(req.Input))
			for i := range req.Input {
				embeddings[i] = []float32{float32(i), 0.5, 0.25}
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"model": req.Model, "embeddings": embeddings})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL+"/", 5*time.Second)
	defer p.Close()
	ctx := context.Background()

	t.Run("list models", func(t *testing.T) {
		models, err := p.ListModels(ctx)
		require.NoError(t, err)
		require.Len(t, models, 3)
		assert.True(t, models[0].EmbeddingCapable)
		assert.False(t, models[1].EmbeddingCapable)
		assert.True(t, models[2].EmbeddingCapable)
		assert.Equal(t, "nomic-bert", models[0].Family)
	})

	t.Run("embed batch", func(t *testing.T) {
		vectors, err := p.Embed(ctx, "nomic-embed-text", []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Equal(t, []float32{1, 0.5, 0.25}, vectors[1])
	})
}

func TestOllamaProvider_ShortResponsePadded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": [][]float32{{1, 2}}})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, time.Second)
	vectors, err := p.Embed(context.Background(), "m", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Len(t, vectors[0], 2)
	assert.Empty(t, vectors[1])
	assert.Empty(t, vectors[2])
}

func TestOpenAIProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/models":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{
					{"id": "gpt-4o", "owned_by": "openai"},
					{"id": "text-embedding-3-small", "owned_by": "openai"},
				},
			})
		case "/v1/embeddings":
			// Out of order, second input missing
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"model": "text-embedding-3-small",
				"data": []map[string]interface{}{
					{"index": 2, "embedding": []float32{3, 3}},
					{"index": 0, "embedding": []float32{1, 1}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p, err := NewOpenAIProvider("test-key", server.URL+"/v1", 5*time.Second)
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	models, err := p.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.False(t, models[0].EmbeddingCapable)
	assert.True(t, models[1].EmbeddingCapable)

	vectors, err := p.Embed(ctx, "text-embedding-3-small", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1, 1}, vectors[0])
	assert.Empty(t, vectors[1])
	assert.Equal(t, []float32{3, 3}, vectors[2])
}

func TestOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider("", "", 0)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestProviderErrors_Classification(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, time.Second)
	ctx := context.Background()

	_, err := p.Embed(ctx, "m", []string{"a"})
	require.Error(t, err)
	assert.True(t, isPermanent(err))
	var se *statusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, err.Error(), "model not found")

	status.Store(http.StatusTooManyRequests)
	_, err = p.Embed(ctx, "m", []string{"a"})
	require.Error(t, err)
	assert.False(t, isPermanent(err))

	status.Store(http.StatusServiceUnavailable)
	_, err = p.Embed(ctx, "m", []string{"a"})
	require.Error(t, err)
	assert.False(t, isPermanent(err))
}

func TestLocalProvider(t *testing.T) {
	p := NewLocalProvider()
	ctx := context.Background()

	models, err := p.ListModels(ctx)
	require.NoError(t, err)
	assert.Len(t, models, 3)

	vectors, err := p.Embed(ctx, "local-768", []string{"quarterly revenue report", "revenue report", "garden tomatoes"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 768)
	}

	// Deterministic
	again, err := p.Embed(ctx, "local-768", []string{"quarterly revenue report"})
	require.NoError(t, err)
	assert.Equal(t, vectors[0], again[0])

	// Shared words score higher than unrelated text
	assert.Greater(t, dot(vectors[0], vectors[1]), dot(vectors[0], vectors[2]))

	_, err = p.Embed(ctx, "gpt-4", []string{"x"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i] * b[i])
	}
	return s
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestDefaultModelFor(t *testing.T) {
	assert.Equal(t, DefaultOllamaModel, DefaultModelFor("ollama"))
	assert.Equal(t, DefaultOpenAIModel, DefaultModelFor("OpenAI"))
	assert.Equal(t, DefaultLocalModel, DefaultModelFor("local"))
}

func TestNew_FromConfig(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "local", CacheSize: 10})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, e.Provider())
	assert.Equal(t, DefaultLocalModel, e.DefaultModel())

	_, err = New(config.EmbeddingConfig{Provider: "jina"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)

	_, err = New(config.EmbeddingConfig{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	e, err = New(config.EmbeddingConfig{Provider: "ollama", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, e.Provider())
}
