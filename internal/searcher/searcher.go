package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/docrag-mcp/internal/embedder"
	"github.com/dshills/docrag-mcp/internal/logger"
	"github.com/dshills/docrag-mcp/internal/storage"
	"github.com/dshills/docrag-mcp/pkg/types"
)

const (
	// DefaultTopK is the number of nearest chunks requested when unset
	DefaultTopK = 20

	// DefaultMaxContextChunks caps the chunks handed to answer generation
	DefaultMaxContextChunks = 200

	// DefaultCacheTTL is how long a cached result stays valid
	DefaultCacheTTL = 5 * time.Minute

	queryCacheSize = 1000
)

// ErrEmptyQuery is returned for a similarity search without query text
var ErrEmptyQuery = errors.New("query cannot be empty")

// QueryEmbedder embeds a single query with a given model
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, model, text string) ([]float32, error)
}

// RetrieveRequest contains parameters for a retrieval
type RetrieveRequest struct {
	Query            string
	TopK             int
	TenantPrefix     string
	UseFullScan      bool // Skip similarity and return everything under the prefix
	MaxContextChunks int
	UseCache         bool
	CacheTTL         time.Duration
}

// RetrieveResult holds the chunks for answer generation plus statistics.
// Sources lists the distinct sources of Chunks in first-seen order.
type RetrieveResult struct {
	Chunks         []types.ChunkRecord
	Sources        []types.SourceInfo
	TotalRetrieved int
	Truncated      bool
	EmbeddingModel string
	Duration       time.Duration
	CacheHit       bool
}

// cacheEntry represents a cached result with expiration time
type cacheEntry struct {
	result    *RetrieveResult
	expiresAt time.Time
}

// Searcher answers retrieval requests against one vector table
type Searcher struct {
	store          storage.VectorStore
	embedder       QueryEmbedder
	resolver       *embedder.Resolver
	preferredModel string

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher. preferredModel may be empty, in which
// case the resolver's default is tried first.
func NewSearcher(store storage.VectorStore, emb QueryEmbedder, resolver *embedder.Resolver, preferredModel string) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](queryCacheSize)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		store:          store,
		embedder:       emb,
		resolver:       resolver,
		preferredModel: preferredModel,
		cache:          cache,
	}
}

// Retrieve returns the chunks relevant to req, filtered to the tenant prefix
// and capped at MaxContextChunks. An empty index yields an empty result
// without calling the embedder.
func (s *Searcher) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResult, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid retrieve request: %w", err)
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	dim, err := s.store.Dimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read index dimension: %w", err)
	}
	if dim == 0 {
		logger.Debug("index is empty, nothing to retrieve")
		return &RetrieveResult{
			Chunks:   []types.ChunkRecord{},
			Sources:  []types.SourceInfo{},
			Duration: time.Since(startTime),
		}, nil
	}

	var rows []types.ChunkRecord
	var model string
	if req.UseFullScan {
		rows, err = s.store.ScanAll(ctx, req.TenantPrefix, storage.MaxScanRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
	} else {
		model, rows, err = s.similar(ctx, req, dim)
		if err != nil {
			return nil, err
		}
	}

	result := assemble(rows, req.TenantPrefix, req.MaxContextChunks)
	result.EmbeddingModel = model
	result.Duration = time.Since(startTime)

	logger.Debug("retrieved %d chunks from %d sources prefix=%q truncated=%v",
		result.TotalRetrieved, len(result.Sources), req.TenantPrefix, result.Truncated)

	if req.UseCache {
		s.storeInCache(req, result)
	}
	return result, nil
}

// similar resolves a model compatible with dim, embeds the query and runs
// the top-k search
func (s *Searcher) similar(ctx context.Context, req RetrieveRequest, dim int) (string, []types.ChunkRecord, error) {
	model, err := s.resolver.Resolve(ctx, s.preferredModel, dim)
	if err != nil {
		return "", nil, err
	}

	vector, err := s.embedder.EmbedQuery(ctx, model, req.Query)
	if err != nil {
		return "", nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.store.QueryTopK(ctx, vector, req.TopK, req.TenantPrefix)
	if err != nil {
		return "", nil, fmt.Errorf("vector search failed: %w", err)
	}
	return model, rows, nil
}

// assemble applies the tenant filter, the context cap and source dedup
func assemble(rows []types.ChunkRecord, prefix string, maxChunks int) *RetrieveResult {
	kept := make([]types.ChunkRecord, 0, len(rows))
	for _, r := range rows {
		if types.HasTenantPrefix(r.Metadata.Source, prefix) {
			kept = append(kept, r)
		}
	}

	result := &RetrieveResult{TotalRetrieved: len(kept)}
	if len(kept) > maxChunks {
		kept = kept[:maxChunks]
		result.Truncated = true
	}
	result.Chunks = kept
	result.Sources = dedupeSources(kept)
	return result
}

// dedupeSources lists each source once, keeping the metadata of the first chunk seen
func dedupeSources(chunks []types.ChunkRecord) []types.SourceInfo {
	seen := make(map[string]bool)
	sources := make([]types.SourceInfo, 0)
	for _, c := range chunks {
		src := c.Metadata.Source
		if seen[src] {
			continue
		}
		seen[src] = true
		sources = append(sources, types.SourceInfo{
			Path:      src,
			LineCount: c.Metadata.LineCount,
			FileSize:  c.Metadata.FileSize,
		})
	}
	return sources
}

// validateRequest ensures the request is valid and applies defaults
func validateRequest(req *RetrieveRequest) error {
	if !req.UseFullScan && strings.TrimSpace(req.Query) == "" {
		return ErrEmptyQuery
	}

	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}
	if req.TopK > storage.MaxScanRows {
		req.TopK = storage.MaxScanRows
	}

	if req.MaxContextChunks <= 0 {
		req.MaxContextChunks = DefaultMaxContextChunks
	}

	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}

	return nil
}

// checkCache returns a copy of a live cached result, or nil
func (s *Searcher) checkCache(req RetrieveRequest) *RetrieveResult {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	result := copyResult(entry.result)
	s.cacheMu.RUnlock()
	return result
}

// storeInCache saves a copy of result
func (s *Searcher) storeInCache(req RetrieveRequest, result *RetrieveResult) {
	entry := &cacheEntry{
		result:    copyResult(result),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// copyResult copies the slices of src. Records and their vectors are
// treated as read-only and shared.
func copyResult(src *RetrieveResult) *RetrieveResult {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Chunks = append([]types.ChunkRecord(nil), src.Chunks...)
	dst.Sources = append([]types.SourceInfo(nil), src.Sources...)
	return &dst
}

// computeQueryHash computes a unique hash for a retrieve request
func computeQueryHash(req RetrieveRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(req.TenantPrefix)
	data.WriteString(fmt.Sprintf("|%d|%d|%t", req.TopK, req.MaxContextChunks, req.UseFullScan))
	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached result. Call it after the index changes.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached results
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
