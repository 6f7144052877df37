package storage

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/docrag-mcp/pkg/types"
)

func TestSerializeVector(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, float32(math.Pi)}
	blob := serializeVector(vec)
	assert.Len(t, blob, 4*len(vec))
	assert.Equal(t, vec, deserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTopK(t *testing.T) {
	scores := []float64{0.5, 0.9, 0.1, 0.5, 0.7, 0.5}
	top := newTopK(4)
	for i, score := range scores {
		top.offer(types.ChunkRecord{ID: string(rune('a' + i)), Score: score})
	}

	got := top.sorted()
	ids := make([]string, len(got))
	for i, rec := range got {
		ids[i] = rec.ID
	}
	// Ties at 0.5 keep arrival order and the last one is dropped
	assert.Equal(t, []string{"b", "e", "a", "d"}, ids)
}

func TestTopK_FewerThanK(t *testing.T) {
	top := newTopK(10)
	top.offer(types.ChunkRecord{ID: "x", Score: 0.2})
	top.offer(types.ChunkRecord{ID: "y", Score: 0.8})

	got := top.sorted()
	assert.Len(t, got, 2)
	assert.Equal(t, "y", got[0].ID)
}

func TestTopK_Zero(t *testing.T) {
	top := newTopK(0)
	top.offer(types.ChunkRecord{ID: "x", Score: 1})
	assert.Empty(t, top.sorted())
}

func TestIsMissingVecFunction(t *testing.T) {
	assert.True(t, isMissingVecFunction(errors.New("failed to execute vector search: no such function: vec_distance_cosine")))
	assert.False(t, isMissingVecFunction(errors.New("no such function: other_fn")))
	assert.False(t, isMissingVecFunction(errors.New("database is locked")))
}

func TestBuildMode_Consistent(t *testing.T) {
	switch BuildMode {
	case "cgo":
		assert.Equal(t, "sqlite3", DriverName)
		assert.True(t, VectorExtensionAvailable)
	case "purego":
		assert.Equal(t, "sqlite", DriverName)
		assert.False(t, VectorExtensionAvailable)
	default:
		t.Fatalf("unexpected build mode %q", BuildMode)
	}
}
