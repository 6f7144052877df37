package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DOCRAG_CONFIG", "DOCRAG_DB_DRIVER", "DOCRAG_DB_PATH", "DOCRAG_DB_DSN",
		"DOCRAG_EMBEDDING_PROVIDER", "DOCRAG_EMBEDDING_MODEL", "DOCRAG_EMBEDDING_BASE_URL",
		"DOCRAG_VERBOSE", "OPENAI_API_KEY", "OLLAMA_HOST",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", t.TempDir())
}

func TestDefault(t *testing.T) {
	clearEnv(t)

	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "docrag.db", filepath.Base(cfg.Storage.Path))
	assert.Equal(t, ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, DefaultChunkSize, cfg.Chunker.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Chunker.Overlap)
	assert.Equal(t, DefaultWorkers, cfg.Indexer.Workers)
	assert.Equal(t, DefaultTopK, cfg.Search.TopK)
	assert.Equal(t, DefaultMaxContextChunks, cfg.Search.MaxContextChunks)
	assert.Equal(t, DefaultCacheSize, cfg.Embedding.CacheSize)
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, cfg.Embedding.Provider)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
storage:
  driver: sqlite
  path: /tmp/kb.db
embedding:
  provider: ollama
  model: nomic-embed-text
  batch_size: 16
chunker:
  chunk_size: 500
  overlap: 50
indexer:
  workers: 4
  exclude: ["**/*.tmp"]
search:
  top_k: 10
log:
  verbose: true
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/kb.db", cfg.Storage.Path)
	assert.Equal(t, ProviderOllama, cfg.Embedding.Provider)
	assert.Equal(t, DefaultOllamaURL, cfg.Embedding.BaseURL)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 16, cfg.Embedding.BatchSize)
	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 50, cfg.Chunker.Overlap)
	assert.Equal(t, 4, cfg.Indexer.Workers)
	assert.Equal(t, []string{"**/*.tmp"}, cfg.Indexer.Exclude)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, DefaultMaxContextChunks, cfg.Search.MaxContextChunks)
	assert.True(t, cfg.Log.Verbose)
}

func TestParse_ExplicitZeroOverlap(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte("chunker:\n  chunk_size: 500\n  overlap: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 0, cfg.Chunker.Overlap)
	assert.Equal(t, DefaultWorkers, cfg.Indexer.Workers)

	// Omitted keys still get defaults
	cfg, err = Parse([]byte("chunker:\n  chunk_size: 500\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkOverlap, cfg.Chunker.Overlap)
}

func TestLoad_EnvConfigPath(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding:\n  provider: local\n  model: local-768\n"), 0644))
	t.Setenv("DOCRAG_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local-768", cfg.Embedding.Model)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCRAG_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("DOCRAG_EMBEDDING_MODEL", "mxbai-embed-large")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434/")
	t.Setenv("DOCRAG_DB_PATH", "/data/kb.db")
	t.Setenv("DOCRAG_VERBOSE", "true")

	cfg, err := Parse([]byte("embedding:\n  provider: local\n"))
	require.NoError(t, err)

	assert.Equal(t, ProviderOllama, cfg.Embedding.Provider)
	assert.Equal(t, "mxbai-embed-large", cfg.Embedding.Model)
	assert.Equal(t, "http://gpu-box:11434", cfg.Embedding.BaseURL)
	assert.Equal(t, "/data/kb.db", cfg.Storage.Path)
	assert.True(t, cfg.Log.Verbose)
}

func TestProviderDetection(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, DefaultOpenAIURL, cfg.Embedding.BaseURL)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"openai without key", "embedding:\n  provider: openai\n", "embedding.api_key"},
		{"postgres without dsn", "storage:\n  driver: postgres\n", "storage.dsn"},
		{"unknown driver", "storage:\n  driver: mysql\n", "storage.driver"},
		{"unknown provider", "embedding:\n  provider: jina\n", "embedding.provider"},
		{"bad exclude", "indexer:\n  exclude: [\"[\"]\n", "indexer.exclude"},
		{"negative batch", "embedding:\n  batch_size: -1\n", "embedding.batch_size"},
		{"zero workers", "indexer:\n  workers: 0\n", "indexer.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, "kb.db"), expandPath("~/kb.db"))
	assert.Equal(t, filepath.Join(home, "kb.db"), expandPath("$HOME/kb.db"))
	assert.Equal(t, "/abs/kb.db", expandPath("/abs/kb.db"))
}
