package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dshills/docrag-mcp/pkg/types"
)

// deleteBatchSize keeps IN lists under SQLite's bind variable limit
const deleteBatchSize = 500

// runTimeFormat is fixed-width so started_at sorts as text
const runTimeFormat = "2006-01-02T15:04:05.000000000Z"

// sourceExpr extracts the source from the metadata JSON column
const sourceExpr = "json_extract(metadata, '$.source')"

// dimensionPattern reads D back from the CHECK constraint in the table DDL
var dimensionPattern = regexp.MustCompile(`length\(embedding\)\s*=\s*4\s*\*\s*(\d+)`)

// SQLiteStorage implements VectorStore using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single connection: one writer, and :memory: databases stay alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := applyMigrations(context.Background(), db, sqliteDialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// dimensionWithQuerier parses D from the table DDL; 0 when the table is absent
func dimensionWithQuerier(ctx context.Context, q querier) (int, error) {
	var ddl string
	err := q.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type='table' AND name=?", TableName).Scan(&ddl)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read table schema: %w", err)
	}

	m := dimensionPattern.FindStringSubmatch(ddl)
	if m == nil {
		return 0, fmt.Errorf("table %s has no embedding width constraint", TableName)
	}
	return strconv.Atoi(m[1])
}

// Dimension returns the embedding width bound to the table
func (s *SQLiteStorage) Dimension(ctx context.Context) (int, error) {
	return dimensionWithQuerier(ctx, s.db)
}

// createTable binds D into the table DDL
func createTable(ctx context.Context, q querier, dim int) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    embedding BLOB NOT NULL CHECK (length(embedding) = 4 * %d),
    metadata TEXT NOT NULL CHECK (json_valid(metadata))
)`, TableName, dim)
	if _, err := q.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", TableName, err)
	}

	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_source ON %s (%s)", TableName, TableName, sourceExpr)
	if _, err := q.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("failed to create source index: %w", err)
	}
	return nil
}

// InsertChunks writes all records in a single transaction
func (s *SQLiteStorage) InsertChunks(ctx context.Context, chunks []types.ChunkRecord) (err error) {
	if len(chunks) == 0 {
		return nil
	}
	dim, err := checkUniformDimension(chunks)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := dimensionWithQuerier(ctx, tx)
	if err != nil {
		return err
	}
	switch {
	case existing == 0:
		if err = createTable(ctx, tx, dim); err != nil {
			return err
		}
	case existing != dim:
		return fmt.Errorf("%w: table has %d, got %d", ErrDimensionMismatch, existing, dim)
	}

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, content, embedding, metadata) VALUES (?, ?, ?, ?)", TableName))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

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
		if _, err = stmt.ExecContext(ctx, c.ID, c.Content, serializeVector(c.Embedding), string(meta)); err != nil {
			return fmt.Errorf("failed to insert chunk for %s: %w", c.Metadata.Source, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// DeleteBySources removes rows for the exact sources given
func (s *SQLiteStorage) DeleteBySources(ctx context.Context, sources []string) (int64, error) {
	if len(sources) == 0 {
		return 0, nil
	}
	dim, err := s.Dimension(ctx)
	if err != nil || dim == 0 {
		return 0, err
	}

	var total int64
	for start := 0; start < len(sources); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(sources) {
			end = len(sources)
		}
		batch := sources[start:end]

		query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", TableName, sourceExpr, placeholders(len(batch)))
		res, err := s.db.ExecContext(ctx, query, toArgs(batch)...)
		if err != nil {
			return total, fmt.Errorf("failed to delete chunks: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// prefixCondition matches sources starting with prefix. SQLite LIKE is
// case-insensitive for ASCII, so substr keeps the comparison exact.
func prefixCondition(prefix string) (string, []interface{}) {
	if prefix == "" {
		return "1=1", nil
	}
	cond := fmt.Sprintf(`%s LIKE ? ESCAPE '\' AND substr(%s, 1, ?) = ?`, sourceExpr, sourceExpr)
	return cond, []interface{}{likePrefix(prefix), utf8.RuneCountInString(prefix), prefix}
}

// DeleteBySourcePrefix removes every row under prefix
func (s *SQLiteStorage) DeleteBySourcePrefix(ctx context.Context, prefix string) (int64, error) {
	dim, err := s.Dimension(ctx)
	if err != nil || dim == 0 {
		return 0, err
	}
	cond, args := prefixCondition(prefix)
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", TableName, cond), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks by prefix: %w", err)
	}
	return res.RowsAffected()
}

// LatestFileHashes returns MAX(file_hash) per source
func (s *SQLiteStorage) LatestFileHashes(ctx context.Context, sources []string) (map[string]string, error) {
	hashes := make(map[string]string, len(sources))
	if len(sources) == 0 {
		return hashes, nil
	}
	dim, err := s.Dimension(ctx)
	if err != nil || dim == 0 {
		return hashes, err
	}

	for start := 0; start < len(sources); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(sources) {
			end = len(sources)
		}
		batch := sources[start:end]

		query := fmt.Sprintf(`SELECT %s AS src, MAX(json_extract(metadata, '$.file_hash'))
			FROM %s WHERE %s IN (%s) GROUP BY src`, sourceExpr, TableName, sourceExpr, placeholders(len(batch)))
		if err := s.collectHashes(ctx, query, toArgs(batch), hashes); err != nil {
			return nil, err
		}
	}
	return hashes, nil
}

func (s *SQLiteStorage) collectHashes(ctx context.Context, query string, args []interface{}, into map[string]string) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query file hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var src string
		var hash sql.NullString
		if err := rows.Scan(&src, &hash); err != nil {
			return err
		}
		if hash.Valid {
			into[src] = hash.String
		}
	}
	return rows.Err()
}

// QueryTopK returns the k most similar rows under sourcePrefix
func (s *SQLiteStorage) QueryTopK(ctx context.Context, vector []float32, k int, sourcePrefix string) ([]types.ChunkRecord, error) {
	if k <= 0 {
		return []types.ChunkRecord{}, nil
	}
	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []types.ChunkRecord{}, nil
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: table has %d, query has %d", ErrDimensionMismatch, dim, len(vector))
	}
	return searchVector(ctx, s.db, vector, k, sourcePrefix)
}

// ScanAll returns rows under sourcePrefix in source order
func (s *SQLiteStorage) ScanAll(ctx context.Context, sourcePrefix string, limit int) ([]types.ChunkRecord, error) {
	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []types.ChunkRecord{}, nil
	}

	cond, args := prefixCondition(sourcePrefix)
	query := fmt.Sprintf(`SELECT id, content, embedding, metadata FROM %s WHERE %s
		ORDER BY %s, rowid LIMIT ?`, TableName, cond, sourceExpr)
	args = append(args, clampScanLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ChunkRecord, 0)
	for rows.Next() {
		rec, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *rec)
	}
	return results, rows.Err()
}

// rowScanner is implemented by *sql.Rows and *sql.Row
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(r rowScanner, extra ...interface{}) (*types.ChunkRecord, error) {
	var rec types.ChunkRecord
	var blob []byte
	var meta string
	dest := append([]interface{}{&rec.ID, &rec.Content, &blob, &meta}, extra...)
	if err := r.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	rec.Embedding = deserializeVector(blob)
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for chunk %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// Status reports table existence and row counts under sourcePrefix
func (s *SQLiteStorage) Status(ctx context.Context, sourcePrefix string) (*IndexStatus, error) {
	status := &IndexStatus{Backend: "sqlite/" + BuildMode}

	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return status, nil
	}
	status.TableExists = true
	status.Dimension = dim

	var first int64
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM (SELECT 1 FROM %s LIMIT 1)", TableName)).Scan(&first); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	status.HasRows = first > 0

	cond, args := prefixCondition(sourcePrefix)
	query := fmt.Sprintf("SELECT COUNT(*), COUNT(DISTINCT %s) FROM %s WHERE %s", sourceExpr, TableName, cond)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&status.ChunkCount, &status.SourceCount); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	status.HasTenantRows = status.ChunkCount > 0
	return status, nil
}

// ListSources returns one entry per source under sourcePrefix, ordered by source
func (s *SQLiteStorage) ListSources(ctx context.Context, sourcePrefix string, limit int) ([]types.SourceInfo, error) {
	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []types.SourceInfo{}, nil
	}

	cond, args := prefixCondition(sourcePrefix)
	query := fmt.Sprintf(`SELECT %s AS src,
			MAX(json_extract(metadata, '$.line_count')),
			MAX(json_extract(metadata, '$.file_size'))
		FROM %s WHERE %s GROUP BY src ORDER BY src LIMIT ?`, sourceExpr, TableName, cond)
	args = append(args, clampScanLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func nullableStats(lines, size sql.NullInt64) (*int, *int64) {
	var lc *int
	var fs *int64
	if lines.Valid {
		v := int(lines.Int64)
		lc = &v
	}
	if size.Valid {
		v := size.Int64
		fs = &v
	}
	return lc, fs
}

// RecordRun stores an indexing run in the history table
func (s *SQLiteStorage) RecordRun(ctx context.Context, run *IndexRun) error {
	return recordRun(ctx, s.db, sqliteDialect, run)
}

// RecentRuns returns the latest n runs, newest first
func (s *SQLiteStorage) RecentRuns(ctx context.Context, n int) ([]IndexRun, error) {
	return recentRuns(ctx, s.db, sqliteDialect, n)
}

func recordRun(ctx context.Context, db *sql.DB, d dialect, run *IndexRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.DurationMs = run.Duration.Milliseconds()

	p := make([]string, 9)
	for i := range p {
		p[i] = d.placeholder(i + 1)
	}
	query := `INSERT INTO index_runs
		(id, started_at, duration_ms, files_count, chunks_count, skipped_count, model, dimension, error)
		VALUES (` + strings.Join(p, ", ") + `)`
	_, err := db.ExecContext(ctx, query,
		run.ID, run.StartedAt.UTC().Format(runTimeFormat), run.DurationMs,
		run.FilesCount, run.ChunksCount, run.SkippedCount, run.Model, run.Dimension, run.Error)
	if err != nil {
		return fmt.Errorf("failed to record index run: %w", err)
	}
	return nil
}

func recentRuns(ctx context.Context, db *sql.DB, d dialect, n int) ([]IndexRun, error) {
	if n <= 0 {
		n = 10
	}
	query := `SELECT id, started_at, duration_ms, files_count, chunks_count, skipped_count,
		       COALESCE(model, ''), dimension, COALESCE(error, '')
		FROM index_runs ORDER BY started_at DESC LIMIT ` + d.placeholder(1)
	rows, err := db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query index runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]IndexRun, 0, n)
	for rows.Next() {
		var run IndexRun
		var started string
		if err := rows.Scan(&run.ID, &started, &run.DurationMs, &run.FilesCount, &run.ChunksCount,
			&run.SkippedCount, &run.Model, &run.Dimension, &run.Error); err != nil {
			return nil, err
		}
		run.StartedAt, err = time.Parse(runTimeFormat, started)
		if err != nil {
			return nil, fmt.Errorf("invalid started_at %q: %w", started, err)
		}
		run.Duration = time.Duration(run.DurationMs) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
