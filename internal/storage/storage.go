package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dshills/docrag-mcp/pkg/types"
)

const (
	// TableName is the vector table shared by every backend
	TableName = "kb_chunks"

	// MaxScanRows caps full scans regardless of the caller's limit
	MaxScanRows = 10000
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the table width
	ErrDimensionMismatch = errors.New("vector dimension does not match table")
)

// VectorStore persists chunk records in a single vector table whose
// embedding width is fixed by the first insert.
type VectorStore interface {
	// InsertChunks writes all records in one transaction, creating the
	// table on first use. Every embedding must have the same length.
	InsertChunks(ctx context.Context, chunks []types.ChunkRecord) error

	// DeleteBySources removes rows whose source exactly matches one of sources
	DeleteBySources(ctx context.Context, sources []string) (int64, error)

	// DeleteBySourcePrefix removes rows whose source starts with prefix
	DeleteBySourcePrefix(ctx context.Context, prefix string) (int64, error)

	// LatestFileHashes returns MAX(file_hash) per source for the given sources.
	// Sources with no rows are absent from the map.
	LatestFileHashes(ctx context.Context, sources []string) (map[string]string, error)

	// QueryTopK returns the k rows closest to vector, filtered by source prefix
	QueryTopK(ctx context.Context, vector []float32, k int, sourcePrefix string) ([]types.ChunkRecord, error)

	// ScanAll returns rows under sourcePrefix without ranking, at most
	// min(limit, MaxScanRows) of them.
	ScanAll(ctx context.Context, sourcePrefix string, limit int) ([]types.ChunkRecord, error)

	// Dimension returns the embedding width bound to the table, 0 if the
	// table does not exist yet.
	Dimension(ctx context.Context) (int, error)

	Status(ctx context.Context, sourcePrefix string) (*IndexStatus, error)
	ListSources(ctx context.Context, sourcePrefix string, limit int) ([]types.SourceInfo, error)

	RecordRun(ctx context.Context, run *IndexRun) error
	RecentRuns(ctx context.Context, n int) ([]IndexRun, error)

	Close() error
}

// IndexStatus describes the vector table. Counts are scoped to the prefix
// given to Status; an empty prefix counts everything.
type IndexStatus struct {
	Backend       string `json:"backend"`
	TableExists   bool   `json:"table_exists"`
	HasRows       bool   `json:"has_rows"`
	HasTenantRows bool   `json:"has_tenant_rows"`
	ChunkCount    int64  `json:"chunk_count"`
	SourceCount   int64  `json:"source_count"`
	Dimension     int    `json:"embedding_dimension"`
}

// IndexRun is one entry of the indexing history
type IndexRun struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"-"`
	DurationMs   int64         `json:"duration_ms"`
	FilesCount   int           `json:"files_count"`
	ChunksCount  int           `json:"chunks_count"`
	SkippedCount int           `json:"skipped_count"`
	Model        string        `json:"model,omitempty"`
	Dimension    int           `json:"dimension"`
	Error        string        `json:"error,omitempty"`
}

// escapeLike escapes LIKE wildcards so prefix matches literally with ESCAPE '\'
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// likePrefix returns the escaped LIKE pattern matching every string that starts with prefix
func likePrefix(prefix string) string {
	return escapeLike(prefix) + "%"
}

// clampScanLimit applies MaxScanRows
func clampScanLimit(limit int) int {
	if limit <= 0 || limit > MaxScanRows {
		return MaxScanRows
	}
	return limit
}

// checkUniformDimension validates records and returns their shared vector length
func checkUniformDimension(chunks []types.ChunkRecord) (int, error) {
	dim := 0
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return 0, err
		}
		n := len(chunks[i].Embedding)
		if dim == 0 {
			dim = n
			continue
		}
		if n != dim {
			return 0, ErrDimensionMismatch
		}
	}
	return dim, nil
}
