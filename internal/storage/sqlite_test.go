package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docrag-mcp/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func record(source, hash, content string, vec ...float32) types.ChunkRecord {
	doc := types.Document{Name: source, Content: content}
	return types.ChunkRecord{
		Content:   content,
		Embedding: vec,
		Metadata:  types.NewChunkMetadata(doc, hash, time.Now()),
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestDimension_EmptyIndex(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	dim, err := s.Dimension(ctx)
	require.NoError(t, err)
	assert.Zero(t, dim)

	status, err := s.Status(ctx, "")
	require.NoError(t, err)
	assert.False(t, status.TableExists)
	assert.False(t, status.HasRows)

	// Reads on a missing table are empty, not errors
	rows, err := s.ScanAll(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	hits, err := s.QueryTopK(ctx, []float32{1, 0, 0}, 5, "")
	require.NoError(t, err)
	assert.Empty(t, hits)

	hashes, err := s.LatestFileHashes(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, hashes)

	n, err := s.DeleteBySources(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertChunks_BindsDimension(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	chunks := []types.ChunkRecord{
		record("t1:a.txt", "h1", "alpha", 1, 0, 0),
		record("t1:a.txt", "h1", "beta", 0, 1, 0),
	}
	require.NoError(t, s.InsertChunks(ctx, chunks))
	assert.NotEmpty(t, chunks[0].ID, "ids are assigned on insert")

	dim, err := s.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	// A different width is rejected and nothing is written
	err = s.InsertChunks(ctx, []types.ChunkRecord{record("t1:b.txt", "h2", "gamma", 1, 0)})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	status, err := s.Status(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.ChunkCount)
}

func TestInsertChunks_MixedWidthsRejected(t *testing.T) {
	s := setupTestDB(t)

	err := s.InsertChunks(context.Background(), []types.ChunkRecord{
		record("a", "h", "x", 1, 2),
		record("a", "h", "y", 1, 2, 3),
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestInsertChunks_ValidatesRecords(t *testing.T) {
	s := setupTestDB(t)

	err := s.InsertChunks(context.Background(), []types.ChunkRecord{record("a", "h", "x")})
	assert.ErrorIs(t, err, types.ErrEmptyEmbedding)

	err = s.InsertChunks(context.Background(), []types.ChunkRecord{record("", "h", "x", 1)})
	assert.ErrorIs(t, err, types.ErrEmptySource)
}

func TestInsertChunks_RoundTripMetadata(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	content := "line one\nline two\nline three"
	require.NoError(t, s.InsertChunks(ctx, []types.ChunkRecord{record("f.txt", "abc", content, 0.5, 0.25)}))

	rows, err := s.ScanAll(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, content, got.Content)
	assert.Equal(t, []float32{0.5, 0.25}, got.Embedding)
	assert.Equal(t, "f.txt", got.Metadata.Source)
	assert.Equal(t, "abc", got.Metadata.FileHash)
	require.NotNil(t, got.Metadata.LineCount)
	assert.Equal(t, 3, *got.Metadata.LineCount)
	require.NotNil(t, got.Metadata.FileSize)
	assert.Equal(t, int64(len(content)), *got.Metadata.FileSize)
	assert.False(t, got.Metadata.IndexedAt.IsZero())
}

func TestDeleteBySources_ExactMatchOnly(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []types.ChunkRecord{
		record("t1:a.txt", "h", "1", 1, 0),
		record("t1:a.txt", "h", "2", 1, 0),
		record("t1:a.txt.bak", "h", "3", 1, 0),
		record("t2:a.txt", "h", "4", 1, 0),
	}))

	n, err := s.DeleteBySources(ctx, []string{"t1:a.txt"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := s.ScanAll(ctx, "", 0)
	require.NoError(t, err)
	sources := make([]string, 0, len(rows))
	for _, r := range rows {
		sources = append(sources, r.Metadata.Source)
	}
	assert.ElementsMatch(t, []string{"t1:a.txt.bak", "t2:a.txt"}, sources)
}

func TestDeleteBySources_LargeBatch(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	chunks := make([]types.ChunkRecord, 0, 1200)
	names := make([]string, 0, 1200)
	for i := 0; i < 1200; i++ {
		name := fmt.Sprintf("doc-%04d", i)
		names = append(names, name)
		chunks = append(chunks, record(name, "h", "x", 1))
	}
	require.NoError(t, s.InsertChunks(ctx, chunks))

	n, err := s.DeleteBySources(ctx, names)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), n)
}

func TestDeleteBySourcePrefix_EscapesWildcards(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []types.ChunkRecord{
		record("t_1:a", "h", "1", 1),
		record("tX1:a", "h", "2", 1),
		record("t%:a", "h", "3", 1),
		record("tZZ:a", "h", "4", 1),
		record("T_1:a", "h", "5", 1),
	}))

	n, err := s.DeleteBySourcePrefix(ctx, "t_1:")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "underscore must not match any character, and case must match")

	n, err = s.DeleteBySourcePrefix(ctx, "t%:")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	status, err := s.Status(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), status.ChunkCount)
}

func TestLatestFileHashes(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []types.ChunkRecord{
		record("a", "h1", "1", 1),
		record("a", "h1", "2", 1),
		record("b", "h9", "3", 1),
	}))

	hashes, err := s.LatestFileHashes(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "h1", "b": "h9"}, hashes)
}

func TestQueryTopK(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []types.ChunkRecord{
		record("t1:x", "h", "east", 1, 0),
		record("t1:y", "h", "north", 0, 1),
		record("t1:z", "h", "north-east", 0.7, 0.7),
		record("t2:w", "h", "east too", 1, 0),
	}))

	hits, err := s.QueryTopK(ctx, []float32{1, 0}, 2, "t1:")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "east", hits[0].Content)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "north-east", hits[1].Content)
	for _, h := range hits {
		assert.True(t, types.HasTenantPrefix(h.Metadata.Source, "t1:"))
	}

	_, err = s.QueryTopK(ctx, []float32{1, 0, 0}, 2, "")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestScanAll_CapAndPrefix(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	chunks := make([]types.ChunkRecord, 0, 30)
	for i := 0; i < 20; i++ {
		chunks = append(chunks, record("t1:doc", "h", fmt.Sprintf("c%d", i), 1))
	}
	for i := 0; i < 10; i++ {
		chunks = append(chunks, record("t2:doc", "h", fmt.Sprintf("d%d", i), 1))
	}
	require.NoError(t, s.InsertChunks(ctx, chunks))

	rows, err := s.ScanAll(ctx, "t1:", 5)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Equal(t, "c0", rows[0].Content, "chunks of a source come back in insertion order")

	rows, err = s.ScanAll(ctx, "t2:", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 10)
}

func TestStatus_TenantCounts(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []types.ChunkRecord{
		record("t1:a", "h", "1", 1),
		record("t1:a", "h", "2", 1),
		record("t1:b", "h", "3", 1),
	}))

	status, err := s.Status(ctx, "t1:")
	require.NoError(t, err)
	assert.True(t, status.TableExists)
	assert.True(t, status.HasRows)
	assert.True(t, status.HasTenantRows)
	assert.Equal(t, int64(3), status.ChunkCount)
	assert.Equal(t, int64(2), status.SourceCount)
	assert.Equal(t, 1, status.Dimension)

	status, err = s.Status(ctx, "t2:")
	require.NoError(t, err)
	assert.True(t, status.HasRows)
	assert.False(t, status.HasTenantRows)
}

func TestListSources(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []types.ChunkRecord{
		record("t1:b.txt", "h", "one\ntwo", 1),
		record("t1:a.txt", "h", "x", 1),
		record("t1:a.txt", "h", "x", 1),
		record("t2:c.txt", "h", "y", 1),
	}))

	sources, err := s.ListSources(ctx, "t1:", 0)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "t1:a.txt", sources[0].Path)
	assert.Equal(t, "t1:b.txt", sources[1].Path)
	require.NotNil(t, sources[1].LineCount)
	assert.Equal(t, 2, *sources[1].LineCount)
	require.NotNil(t, sources[1].FileSize)
	assert.Equal(t, int64(7), *sources[1].FileSize)
}

func TestIndexRuns(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &IndexRun{
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			Duration:    1500 * time.Millisecond,
			FilesCount:  i,
			ChunksCount: i * 10,
			Model:       "local-384",
			Dimension:   384,
		}
		require.NoError(t, s.RecordRun(ctx, run))
		assert.NotEmpty(t, run.ID)
	}

	runs, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].FilesCount, "newest first")
	assert.Equal(t, int64(1500), runs[0].DurationMs)
	assert.True(t, base.Add(2*time.Minute).Equal(runs[0].StartedAt))
}

func TestMigrations_Rollback(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.RollbackMigration(ctx))
	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	require.NoError(t, applyMigrations(ctx, s.db, sqliteDialect))
	version, err = s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `t\_1:%`, likePrefix("t_1:"))
	assert.Equal(t, `100\%\\x%`, likePrefix(`100%\x`))
	assert.Equal(t, "%", likePrefix(""))
}

func TestClampScanLimit(t *testing.T) {
	assert.Equal(t, MaxScanRows, clampScanLimit(0))
	assert.Equal(t, MaxScanRows, clampScanLimit(MaxScanRows+1))
	assert.Equal(t, 50, clampScanLimit(50))
}
