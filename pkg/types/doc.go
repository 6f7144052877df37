// Package types provides shared type definitions for the docrag MCP server.
//
// This package defines the domain types exchanged between the indexer, the
// searcher and the storage backends: caller-supplied documents, persisted
// chunk records with their per-source metadata, indexing reports and
// retrieval source statistics.
//
// # Documents and Chunks
//
// A Document is transient. It is hashed, possibly chunked, and never stored
// itself; only its chunks are:
//
//	doc := types.Document{Name: "t1:reports/q3.txt", Content: text}
//	hash := types.ContentHash(doc.Content)
//
// Every ChunkRecord carries ChunkMetadata describing its parent document.
// All chunks of one source share the same FileHash, LineCount and FileSize.
//
// # Sources and Tenants
//
// A source is an optional tenant prefix ("<tenant>:") followed by a path-like
// identifier. The prefix is the only tenant isolation mechanism:
//
//	types.HasTenantPrefix("t1:a.csv", "t1:") // true
//	types.HasTenantPrefix("t2:a.csv", "t1:") // false
package types
