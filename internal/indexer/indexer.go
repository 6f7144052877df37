package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docrag-mcp/internal/chunker"
	"github.com/dshills/docrag-mcp/internal/embedder"
	"github.com/dshills/docrag-mcp/internal/logger"
	"github.com/dshills/docrag-mcp/internal/storage"
	"github.com/dshills/docrag-mcp/pkg/types"
)

var (
	// ErrNoIndexableContent is returned when a request produced zero
	// persistable chunks after filtering
	ErrNoIndexableContent = errors.New("no indexable content")

	// ErrIndexingInProgress is returned when another Sync holds the index lock
	ErrIndexingInProgress = errors.New("indexing already in progress")
)

// Synchronizer keeps the vector table consistent with a caller-supplied
// document set: hash -> partition -> chunk -> embed -> filter -> persist
type Synchronizer struct {
	store    storage.VectorStore
	embedder embedder.TextEmbedder
	resolver *embedder.Resolver
	chunker  *chunker.Chunker

	workers        int
	exclude        []string
	preferredModel string
	progress       func(done, total int)

	lock IndexLock
}

// Option configures a Synchronizer
type Option func(*Synchronizer)

// WithWorkers sets how many documents are chunked and embedded concurrently
func WithWorkers(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithExclude skips documents whose name matches any doublestar pattern.
// Patterns are matched against the full name and against the name with its
// tenant prefix removed.
func WithExclude(patterns []string) Option {
	return func(s *Synchronizer) {
		s.exclude = append(s.exclude, patterns...)
	}
}

// WithPreferredModel sets the model tried first during resolution
func WithPreferredModel(model string) Option {
	return func(s *Synchronizer) {
		s.preferredModel = model
	}
}

// WithProgress registers a callback invoked after each changed document
// has been chunked and embedded
func WithProgress(fn func(done, total int)) Option {
	return func(s *Synchronizer) {
		s.progress = fn
	}
}

// New creates a Synchronizer. The chunker defaults to chunker.New() when nil.
func New(store storage.VectorStore, emb embedder.TextEmbedder, resolver *embedder.Resolver, ch *chunker.Chunker, opts ...Option) *Synchronizer {
	if ch == nil {
		ch = chunker.New()
	}
	s := &Synchronizer{
		store:    store,
		embedder: emb,
		resolver: resolver,
		chunker:  ch,
		workers:  1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers > runtime.NumCPU()*4 {
		s.workers = runtime.NumCPU() * 4
	}
	return s
}

// pending is a document that passed the empty and exclusion checks
type pending struct {
	doc  types.Document
	hash string
}

// prepared holds the outcome of chunking and embedding one document
type prepared struct {
	doc     types.Document
	hash    string
	chunks  []string
	vectors [][]float32
	empty   int
	err     error
}

// Sync indexes docs and returns a per-request report. With incremental set,
// documents whose stored hash equals the fresh hash are skipped untouched.
// Per-document failures become skip reasons; model resolution and persist
// failures abort the request.
func (s *Synchronizer) Sync(ctx context.Context, docs []types.Document, incremental bool) (*types.Report, error) {
	if !s.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer s.lock.Release()

	start := time.Now()
	report := &types.Report{SkippedFiles: make([]types.SkippedFile, 0)}

	err := s.sync(ctx, docs, incremental, report)
	report.Duration = time.Since(start)
	s.recordRun(ctx, start, report, err)
	if err != nil {
		return nil, err
	}

	logger.Info("indexed files=%d chunks=%d skipped=%d model=%s dim=%d in %v",
		report.FilesCount, report.ChunksCount, len(report.SkippedFiles),
		report.EmbeddingModel, report.EmbeddingDimension, report.Duration)
	return report, nil
}

func (s *Synchronizer) sync(ctx context.Context, docs []types.Document, incremental bool, report *types.Report) error {
	candidates := s.partition(docs, report)

	changed, err := s.changedSubset(ctx, candidates, incremental, report)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		logger.Debug("no changed documents, skipping embedding")
		return nil
	}

	// Resolve before touching the table so a mismatch leaves it intact
	model, dim, err := s.resolver.ResolveFor(ctx, s.preferredModel, s.store)
	if err != nil {
		return err
	}
	report.EmbeddingModel = model

	results, err := s.prepare(ctx, changed, model)
	if err != nil {
		return err
	}

	if dim == 0 {
		dim = firstDimension(results)
	}
	report.EmbeddingDimension = dim

	records := s.filter(results, dim, report)
	if len(records) == 0 {
		return ErrNoIndexableContent
	}

	// Only sources with replacement rows lose their old ones. A failed
	// document keeps its previous rows and stored hash, so it is retried.
	sources := persistedSources(records)
	deleted, err := s.store.DeleteBySources(ctx, sources)
	if err != nil {
		return fmt.Errorf("failed to delete stale chunks: %w", err)
	}
	logger.Debug("deleted %d stale chunks for %d sources", deleted, len(sources))

	if err := s.store.InsertChunks(ctx, records); err != nil {
		return fmt.Errorf("failed to persist chunks: %w", err)
	}
	report.ChunksCount = len(records)
	return nil
}

// persistedSources lists the distinct sources of records in order
func persistedSources(records []types.ChunkRecord) []string {
	seen := make(map[string]struct{})
	sources := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.Metadata.Source]; ok {
			continue
		}
		seen[r.Metadata.Source] = struct{}{}
		sources = append(sources, r.Metadata.Source)
	}
	return sources
}

// partition drops empty, excluded and duplicate documents and hashes the rest.
// For duplicate names the last occurrence wins.
func (s *Synchronizer) partition(docs []types.Document, report *types.Report) []pending {
	last := make(map[string]int, len(docs))
	for i, d := range docs {
		last[d.Name] = i
	}

	out := make([]pending, 0, len(docs))
	for i, d := range docs {
		switch {
		case last[d.Name] != i:
			report.Skip(d.Name, types.SkipDuplicate)
		case d.IsBlank():
			logger.Debug("skip source=%s reason=%s", d.Name, types.SkipEmptyContent)
			report.Skip(d.Name, types.SkipEmptyContent)
		case s.excluded(d.Name):
			logger.Debug("skip source=%s reason=%s", d.Name, types.SkipExcluded)
			report.Skip(d.Name, types.SkipExcluded)
		default:
			out = append(out, pending{doc: d, hash: types.ContentHash(d.Content)})
		}
	}
	return out
}

func (s *Synchronizer) excluded(name string) bool {
	if len(s.exclude) == 0 {
		return false
	}
	bare := name
	if i := strings.Index(name, ":"); i >= 0 {
		bare = name[i+1:]
	}
	for _, pattern := range s.exclude {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, bare); ok {
			return true
		}
	}
	return false
}

// changedSubset removes documents whose stored hash matches when incremental
func (s *Synchronizer) changedSubset(ctx context.Context, candidates []pending, incremental bool, report *types.Report) ([]pending, error) {
	if !incremental || len(candidates) == 0 {
		return candidates, nil
	}

	names := make([]string, len(candidates))
	for i, p := range candidates {
		names[i] = p.doc.Name
	}
	stored, err := s.store.LatestFileHashes(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored hashes: %w", err)
	}

	changed := make([]pending, 0, len(candidates))
	for _, p := range candidates {
		if h, ok := stored[p.doc.Name]; ok && h == p.hash {
			logger.Debug("skip source=%s reason=%s", p.doc.Name, types.SkipUnchanged)
			report.Skip(p.doc.Name, types.SkipUnchanged)
			continue
		}
		changed = append(changed, p)
	}
	return changed, nil
}

// prepare chunks and embeds every changed document with the resolved model.
// Each document is embedded in one call. Failures are kept per document.
func (s *Synchronizer) prepare(ctx context.Context, changed []pending, model string) ([]prepared, error) {
	results := make([]prepared, len(changed))
	total := len(changed)
	done := 0
	var progressMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := range changed {
		g.Go(func() error {
			results[i] = s.prepareOne(gctx, changed[i], model)
			if s.progress != nil {
				progressMu.Lock()
				done++
				s.progress(done, total)
				progressMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// A cancelled request is not a per-document failure
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Synchronizer) prepareOne(ctx context.Context, p pending, model string) prepared {
	out := prepared{doc: p.doc, hash: p.hash}

	split := s.chunker.Split(p.doc.Content)
	out.empty = split.Skipped
	out.chunks = split.Texts()
	if len(out.chunks) == 0 {
		return out
	}

	vectors, err := s.embedder.Embed(ctx, model, out.chunks)
	if err != nil {
		out.err = err
		return out
	}
	out.vectors = vectors
	return out
}

// firstDimension returns the length of the first non-empty vector in
// document order, used when the table does not exist yet
func firstDimension(results []prepared) int {
	for _, r := range results {
		for _, v := range r.vectors {
			if len(v) > 0 {
				return len(v)
			}
		}
	}
	return 0
}

// filter builds the rows to persist, dropping missing, empty and
// wrong-width vectors
func (s *Synchronizer) filter(results []prepared, dim int, report *types.Report) []types.ChunkRecord {
	now := time.Now()
	records := make([]types.ChunkRecord, 0)

	for _, r := range results {
		report.SkippedEmptyChunks += r.empty

		if r.err != nil {
			logger.Warn("embedding failed source=%s err=%v", r.doc.Name, r.err)
			report.Skip(r.doc.Name, types.SkipEmbedding+": "+r.err.Error())
			continue
		}
		if len(r.chunks) == 0 {
			report.Skip(r.doc.Name, types.SkipAllChunksEmpty)
			continue
		}

		meta := types.NewChunkMetadata(r.doc, r.hash, now)
		kept := 0
		for i, text := range r.chunks {
			var vec []float32
			if i < len(r.vectors) {
				vec = r.vectors[i]
			}
			if len(vec) == 0 || len(vec) != dim {
				report.SkippedBadEmbeddings++
				continue
			}
			records = append(records, types.ChunkRecord{
				Content:   text,
				Embedding: vec,
				Metadata:  meta,
			})
			kept++
		}

		if kept == 0 {
			report.Skip(r.doc.Name, types.SkipEmbedding+": no usable vectors")
			continue
		}
		if kept < len(r.chunks) {
			logger.Debug("source=%s dropped %d of %d vectors", r.doc.Name, len(r.chunks)-kept, len(r.chunks))
		}
		report.FilesCount++
	}
	return records
}

// Remove deletes rows for the exact sources given and, when prefix is not
// empty, every row under prefix. It takes the index lock like Sync.
func (s *Synchronizer) Remove(ctx context.Context, sources []string, prefix string) (int64, error) {
	if !s.lock.TryAcquire() {
		return 0, ErrIndexingInProgress
	}
	defer s.lock.Release()

	var total int64
	if len(sources) > 0 {
		n, err := s.store.DeleteBySources(ctx, sources)
		if err != nil {
			return total, fmt.Errorf("failed to delete sources: %w", err)
		}
		total += n
	}
	if prefix != "" {
		n, err := s.store.DeleteBySourcePrefix(ctx, prefix)
		if err != nil {
			return total, fmt.Errorf("failed to delete prefix %s: %w", prefix, err)
		}
		total += n
	}
	logger.Info("removed %d chunks sources=%d prefix=%q", total, len(sources), prefix)
	return total, nil
}

// recordRun appends the request to the run history. Failures are logged only.
func (s *Synchronizer) recordRun(ctx context.Context, start time.Time, report *types.Report, runErr error) {
	run := &storage.IndexRun{
		StartedAt:    start,
		Duration:     report.Duration,
		FilesCount:   report.FilesCount,
		ChunksCount:  report.ChunksCount,
		SkippedCount: len(report.SkippedFiles),
		Model:        report.EmbeddingModel,
		Dimension:    report.EmbeddingDimension,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed to record index run: %v", err)
	}
}
