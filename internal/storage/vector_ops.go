package storage

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/dshills/docrag-mcp/internal/logger"
	"github.com/dshills/docrag-mcp/pkg/types"
)

// vecFunctionMissing is set once a connection reports that
// vec_distance_cosine is not registered
var vecFunctionMissing atomic.Bool

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, queryVector []float32, limit int, sourcePrefix string) ([]types.ChunkRecord, error) {
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable && !vecFunctionMissing.Load() {
		results, err := searchVectorOptimized(ctx, db, queryVector, limit, sourcePrefix)
		if err == nil || !isMissingVecFunction(err) {
			return results, err
		}
		vecFunctionMissing.Store(true)
		logger.Warn("vec_distance_cosine unavailable, ranking in Go: %v", err)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, db, queryVector, limit, sourcePrefix)
}

// isMissingVecFunction reports whether err is SQLite's unknown function
// error for vec_distance_cosine
func isMissingVecFunction(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such function") && strings.Contains(msg, "vec_distance_cosine")
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, db *sql.DB, queryVector []float32, limit int, sourcePrefix string) ([]types.ChunkRecord, error) {
	queryVectorBlob := serializeVector(queryVector)

	// vec_distance_cosine returns distance (lower is better); report similarity
	cond, condArgs := prefixCondition(sourcePrefix)
	query := fmt.Sprintf(`
		SELECT id, content, embedding, metadata,
			1.0 - vec_distance_cosine(embedding, ?) AS similarity
		FROM %s
		WHERE %s
		ORDER BY similarity DESC
		LIMIT ?`, TableName, cond)
	args := append([]interface{}{queryVectorBlob}, condArgs...)
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ChunkRecord, 0, limit)
	for rows.Next() {
		var score float64
		rec, err := scanChunk(rows, &score)
		if err != nil {
			return nil, err
		}
		rec.Score = score
		results = append(results, *rec)
	}
	return results, rows.Err()
}

// searchVectorFallback ranks rows in Go, holding at most limit candidates.
// Used by purego builds where vec_distance_cosine is unavailable.
func searchVectorFallback(ctx context.Context, db *sql.DB, queryVector []float32, limit int, sourcePrefix string) ([]types.ChunkRecord, error) {
	cond, args := prefixCondition(sourcePrefix)
	query := fmt.Sprintf("SELECT id, content, embedding, metadata FROM %s WHERE %s", TableName, cond)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	top := newTopK(limit)
	for rows.Next() {
		rec, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		if len(rec.Embedding) != len(queryVector) {
			continue
		}
		rec.Score = cosineSimilarity(queryVector, rec.Embedding)
		top.offer(*rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return top.sorted(), nil
}

type ranked struct {
	rec types.ChunkRecord
	seq int
}

// worse orders by score, then by arrival: later rows lose ties
func worse(a, b ranked) bool {
	if a.rec.Score != b.rec.Score {
		return a.rec.Score < b.rec.Score
	}
	return a.seq > b.seq
}

// rankHeap is a min-heap with the weakest candidate at the root
type rankHeap []ranked

func (h rankHeap) Len() int           { return len(h) }
func (h rankHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h rankHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *rankHeap) Push(x any)        { *h = append(*h, x.(ranked)) }
func (h *rankHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK keeps the k best-scoring records seen so far
type topK struct {
	k     int
	seq   int
	items rankHeap
}

func newTopK(k int) *topK {
	if k < 0 {
		k = 0
	}
	return &topK{k: k, items: make(rankHeap, 0, min(k, 1024))}
}

func (t *topK) offer(rec types.ChunkRecord) {
	if t.k == 0 {
		return
	}
	r := ranked{rec: rec, seq: t.seq}
	t.seq++
	if len(t.items) < t.k {
		heap.Push(&t.items, r)
		return
	}
	if worse(t.items[0], r) {
		t.items[0] = r
		heap.Fix(&t.items, 0)
	}
}

// sorted returns the kept records by score descending; ties keep arrival order
func (t *topK) sorted() []types.ChunkRecord {
	items := make([]ranked, len(t.items))
	copy(items, t.items)
	sort.Slice(items, func(i, j int) bool { return worse(items[j], items[i]) })

	out := make([]types.ChunkRecord, len(items))
	for i, r := range items {
		out[i] = r.rec
	}
	return out
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
