// Package app wires configuration into the shared runtime: one vector
// store and one embedder used by both the indexer and the searcher.
package app

import (
	"context"
	"fmt"

	"github.com/dshills/docrag-mcp/internal/chunker"
	"github.com/dshills/docrag-mcp/internal/config"
	"github.com/dshills/docrag-mcp/internal/embedder"
	"github.com/dshills/docrag-mcp/internal/indexer"
	"github.com/dshills/docrag-mcp/internal/logger"
	"github.com/dshills/docrag-mcp/internal/searcher"
	"github.com/dshills/docrag-mcp/internal/storage"
)

// App holds the long-lived components built from a Config
type App struct {
	Config   *config.Config
	Store    storage.VectorStore
	Embedder *embedder.Embedder
	Resolver *embedder.Resolver
	Indexer  *indexer.Synchronizer
	Searcher *searcher.Searcher
}

// Option adjusts the synchronizer built by Open
type Option = indexer.Option

// Open creates the store and embedder named in cfg and wires the indexer
// and searcher to them. The dimension cache is shared by both.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	logger.SetVerbose(logger.IsVerbose() || cfg.Log.Verbose)

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	dims := embedder.NewDimensionCache()
	resolver := embedder.NewResolverFor(emb, dims, cfg.Embedding.Model)

	ch := chunker.New(
		chunker.WithChunkSize(cfg.Chunker.ChunkSize),
		chunker.WithOverlap(cfg.Chunker.Overlap),
	)

	indexOpts := []indexer.Option{
		indexer.WithWorkers(cfg.Indexer.Workers),
		indexer.WithExclude(cfg.Indexer.Exclude),
		indexer.WithPreferredModel(cfg.Embedding.Model),
	}
	indexOpts = append(indexOpts, opts...)

	logger.Debug("storage=%s provider=%s model=%s", cfg.Storage.Driver, emb.Provider(), resolver.DefaultModel())

	return &App{
		Config:   cfg,
		Store:    store,
		Embedder: emb,
		Resolver: resolver,
		Indexer:  indexer.New(store, emb, resolver, ch, indexOpts...),
		Searcher: searcher.NewSearcher(store, emb, resolver, cfg.Embedding.Model),
	}, nil
}

// Close releases the embedder and the store
func (a *App) Close() error {
	embErr := a.Embedder.Close()
	if err := a.Store.Close(); err != nil {
		return err
	}
	return embErr
}
