package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/dshills/docrag-mcp/pkg/types"
)

// PostgresStorage implements VectorStore on PostgreSQL with the pgvector extension
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage connects to dsn, enables pgvector and applies migrations
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}

	if err := applyMigrations(ctx, db, postgresDialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &PostgresStorage{db: db}, nil
}

// Close closes the connection pool
func (p *PostgresStorage) Close() error {
	return p.db.Close()
}

// Dimension reads D from the vector column type modifier; 0 when the table is absent
func (p *PostgresStorage) Dimension(ctx context.Context) (int, error) {
	return pgDimension(ctx, p.db)
}

func pgDimension(ctx context.Context, q querier) (int, error) {
	var typmod int
	err := q.QueryRowContext(ctx, `
		SELECT a.atttypmod FROM pg_attribute a
		WHERE a.attrelid = to_regclass($1) AND a.attname = 'embedding' AND NOT a.attisdropped`,
		TableName).Scan(&typmod)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read vector column type: %w", err)
	}
	if typmod <= 0 {
		return 0, fmt.Errorf("column %s.embedding has no fixed dimension", TableName)
	}
	return typmod, nil
}

func pgCreateTable(ctx context.Context, q querier, dim int) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id uuid PRIMARY KEY,
    content text NOT NULL,
    embedding vector(%d) NOT NULL,
    metadata jsonb NOT NULL
)`, TableName, dim)
	if _, err := q.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", TableName, err)
	}
	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_source_idx ON %s ((metadata->>'source'))", TableName, TableName)
	if _, err := q.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("failed to create source index: %w", err)
	}
	return nil
}

// InsertChunks writes all records in a single transaction
func (p *PostgresStorage) InsertChunks(ctx context.Context, chunks []types.ChunkRecord) (err error) {
	if len(chunks) == 0 {
		return nil
	}
	dim, err := checkUniformDimension(chunks)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := pgDimension(ctx, tx)
	if err != nil {
		return err
	}
	switch {
	case existing == 0:
		if err = pgCreateTable(ctx, tx, dim); err != nil {
			return err
		}
	case existing != dim:
		return fmt.Errorf("%w: table has %d, got %d", ErrDimensionMismatch, existing, dim)
	}

	query := fmt.Sprintf("INSERT INTO %s (id, content, embedding, metadata) VALUES ($1, $2, $3, $4::jsonb)", TableName)
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		meta, merr := json.Marshal(c.Metadata)
		if merr != nil {
			err = fmt.Errorf("failed to encode metadata: %w", merr)
			return err
		}
		if _, err = tx.ExecContext(ctx, query, c.ID, c.Content, pgvector.NewVector(c.Embedding), string(meta)); err != nil {
			return fmt.Errorf("failed to insert chunk for %s: %w", c.Metadata.Source, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// DeleteBySources removes rows for the exact sources given
func (p *PostgresStorage) DeleteBySources(ctx context.Context, sources []string) (int64, error) {
	if len(sources) == 0 {
		return 0, nil
	}
	dim, err := p.Dimension(ctx)
	if err != nil || dim == 0 {
		return 0, err
	}
	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE metadata->>'source' = ANY($1)", TableName), sources)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return res.RowsAffected()
}

// pgPrefixCondition matches sources under prefix; PostgreSQL LIKE is case-sensitive
func pgPrefixCondition(prefix string, argN int) (string, []interface{}) {
	if prefix == "" {
		return "TRUE", nil
	}
	return fmt.Sprintf(`metadata->>'source' LIKE $%d ESCAPE '\'`, argN), []interface{}{likePrefix(prefix)}
}

// DeleteBySourcePrefix removes every row under prefix
func (p *PostgresStorage) DeleteBySourcePrefix(ctx context.Context, prefix string) (int64, error) {
	dim, err := p.Dimension(ctx)
	if err != nil || dim == 0 {
		return 0, err
	}
	cond, args := pgPrefixCondition(prefix, 1)
	res, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", TableName, cond), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks by prefix: %w", err)
	}
	return res.RowsAffected()
}

// LatestFileHashes returns MAX(file_hash) per source
func (p *PostgresStorage) LatestFileHashes(ctx context.Context, sources []string) (map[string]string, error) {
	hashes := make(map[string]string, len(sources))
	if len(sources) == 0 {
		return hashes, nil
	}
	dim, err := p.Dimension(ctx)
	if err != nil || dim == 0 {
		return hashes, err
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT metadata->>'source', MAX(metadata->>'file_hash')
		FROM %s WHERE metadata->>'source' = ANY($1)
		GROUP BY metadata->>'source'`, TableName), sources)
	if err != nil {
		return nil, fmt.Errorf("failed to query file hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var src string
		var hash sql.NullString
		if err := rows.Scan(&src, &hash); err != nil {
			return nil, err
		}
		if hash.Valid {
			hashes[src] = hash.String
		}
	}
	return hashes, rows.Err()
}

func scanPgChunk(r rowScanner, extra ...interface{}) (*types.ChunkRecord, error) {
	var rec types.ChunkRecord
	var vec pgvector.Vector
	var meta []byte
	dest := append([]interface{}{&rec.ID, &rec.Content, &vec, &meta}, extra...)
	if err := r.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	rec.Embedding = vec.Slice()
	if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for chunk %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// QueryTopK orders by cosine distance (<=>) in the database
func (p *PostgresStorage) QueryTopK(ctx context.Context, vector []float32, k int, sourcePrefix string) ([]types.ChunkRecord, error) {
	if k <= 0 {
		return []types.ChunkRecord{}, nil
	}
	dim, err := p.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []types.ChunkRecord{}, nil
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: table has %d, query has %d", ErrDimensionMismatch, dim, len(vector))
	}

	cond, condArgs := pgPrefixCondition(sourcePrefix, 3)
	query := fmt.Sprintf(`
		SELECT id::text, content, embedding, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $2`, TableName, cond)
	args := append([]interface{}{pgvector.NewVector(vector), k}, condArgs...)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ChunkRecord, 0, k)
	for rows.Next() {
		var score float64
		rec, err := scanPgChunk(rows, &score)
		if err != nil {
			return nil, err
		}
		rec.Score = score
		results = append(results, *rec)
	}
	return results, rows.Err()
}

// ScanAll returns rows under sourcePrefix in source order
func (p *PostgresStorage) ScanAll(ctx context.Context, sourcePrefix string, limit int) ([]types.ChunkRecord, error) {
	dim, err := p.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []types.ChunkRecord{}, nil
	}

	cond, condArgs := pgPrefixCondition(sourcePrefix, 2)
	query := fmt.Sprintf(`SELECT id::text, content, embedding, metadata FROM %s WHERE %s
		ORDER BY metadata->>'source', ctid LIMIT $1`, TableName, cond)
	args := append([]interface{}{clampScanLimit(limit)}, condArgs...)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ChunkRecord, 0)
	for rows.Next() {
		rec, err := scanPgChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *rec)
	}
	return results, rows.Err()
}

// Status reports table existence and row counts under sourcePrefix
func (p *PostgresStorage) Status(ctx context.Context, sourcePrefix string) (*IndexStatus, error) {
	status := &IndexStatus{Backend: "postgres"}

	dim, err := p.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return status, nil
	}
	status.TableExists = true
	status.Dimension = dim

	if err := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s)", TableName)).Scan(&status.HasRows); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	cond, args := pgPrefixCondition(sourcePrefix, 1)
	query := fmt.Sprintf("SELECT COUNT(*), COUNT(DISTINCT metadata->>'source') FROM %s WHERE %s", TableName, cond)
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&status.ChunkCount, &status.SourceCount); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	status.HasTenantRows = status.ChunkCount > 0
	return status, nil
}

// ListSources returns one entry per source under sourcePrefix, ordered by source
func (p *PostgresStorage) ListSources(ctx context.Context, sourcePrefix string, limit int) ([]types.SourceInfo, error) {
	dim, err := p.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []types.SourceInfo{}, nil
	}

	cond, condArgs := pgPrefixCondition(sourcePrefix, 2)
	query := fmt.Sprintf(`SELECT metadata->>'source' AS src,
			MAX((metadata->>'line_count')::bigint),
			MAX((metadata->>'file_size')::bigint)
		FROM %s WHERE %s GROUP BY src ORDER BY src LIMIT $1`, TableName, cond)
	args := append([]interface{}{clampScanLimit(limit)}, condArgs...)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]types.SourceInfo, 0)
	for rows.Next() {
		var info types.SourceInfo
		var lines, size sql.NullInt64
		if err := rows.Scan(&info.Path, &lines, &size); err != nil {
			return nil, err
		}
		info.LineCount, info.FileSize = nullableStats(lines, size)
		sources = append(sources, info)
	}
	return sources, rows.Err()
}

// RecordRun stores an indexing run in the history table
func (p *PostgresStorage) RecordRun(ctx context.Context, run *IndexRun) error {
	return recordRun(ctx, p.db, postgresDialect, run)
}

// RecentRuns returns the latest n runs, newest first
func (p *PostgresStorage) RecentRuns(ctx context.Context, n int) ([]IndexRun, error) {
	return recentRuns(ctx, p.db, postgresDialect, n)
}

// isPostgresDSN reports whether dsn is a PostgreSQL URL or a key=value connection string
func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=")
}
