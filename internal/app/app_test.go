package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docrag-mcp/internal/config"
	"github.com/dshills/docrag-mcp/internal/searcher"
	"github.com/dshills/docrag-mcp/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Storage.Driver = config.DriverSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "nested", "docrag.db")
	cfg.Embedding.Provider = config.ProviderLocal
	cfg.Embedding.Model = "local-384"
	return cfg
}

func TestOpen_IndexAndRetrieve(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	report, err := a.Indexer.Sync(ctx, []types.Document{
		{Name: "t1:pets.txt", Content: "cats and dogs are common pets"},
		{Name: "t2:space.txt", Content: "rockets reach orbit around the earth"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesCount)
	assert.Equal(t, "local-384", report.EmbeddingModel)

	result, err := a.Searcher.Retrieve(ctx, searcher.RetrieveRequest{Query: "pets", TenantPrefix: "t1:"})
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "t1:pets.txt", result.Sources[0].Path)
}

func TestOpen_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "nope"

	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}
