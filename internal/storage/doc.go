// Package storage persists chunk records in a vector table and answers
// similarity and bulk queries against it.
//
// # Vector Table
//
// Every backend stores rows in a single table, kb_chunks:
//
//   - id: UUID assigned at insert
//   - content: chunk text
//   - embedding: float32 vector of width D
//   - metadata: JSON {source, file_hash, indexed_at, line_count, file_size}
//
// The table is created by the first InsertChunks call, which binds D to the
// width of the vectors written. Dimension reads D back from the schema, so
// it can never drift from what is on disk. A missing table is an empty
// index, reported as D = 0.
//
// # Backends
//
// SQLiteStorage is the default. It stores vectors as little-endian float32
// blobs with a CHECK (length(embedding) = 4 * D) constraint. The driver is
// chosen at build time:
//
//	go build ./...                                  // modernc.org/sqlite, pure Go
//	CGO_ENABLED=1 go build -tags "sqlite_vec" ./... // mattn/go-sqlite3
//
// PostgresStorage uses a pgvector vector(D) column and orders by cosine
// distance in the database.
//
//	store, err := storage.Open(ctx, cfg.Storage)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Sources and Prefixes
//
// A source is an optional "<tenant>:" prefix plus a path. DeleteBySources
// matches exactly. Prefix operations escape LIKE wildcards so that a prefix
// containing "%" or "_" matches literally.
//
// # Change Tracking
//
// LatestFileHashes returns MAX(file_hash) per source. The indexer compares
// it with the hash of the incoming content to skip unchanged documents.
//
// # Auxiliary Tables
//
// schema_version and index_runs are managed by semver-ordered migrations
// that run at open time.
package storage
