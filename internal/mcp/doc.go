// Package mcp implements the Model Context Protocol (MCP) server for docrag.
//
// The server exposes the knowledge base to MCP clients over stdio:
//   - index_documents: Index extracted document text
//   - search_documents: Retrieve passages for a question
//   - get_index_status: Check whether the index exists and has rows
//   - list_sources: List indexed sources
//   - delete_documents: Remove sources or a whole tenant
//
// Stdout carries protocol messages only; logs go to stderr.
//
// # Tool: index_documents
//
//	Request:
//	{
//	  "name": "index_documents",
//	  "arguments": {
//	    "files": [{"name": "t1:q3.txt", "content": "..."}],
//	    "incremental": true
//	  }
//	}
//
//	Response:
//	{
//	  "files_count": 1,
//	  "chunks_count": 4,
//	  "skipped_files": [],
//	  "skipped_empty_chunks": 0,
//	  "skipped_bad_embeddings": 0,
//	  "embedding_dimension": 768,
//	  "embedding_model": "nomic-embed-text",
//	  "duration_ms": 812
//	}
//
// # Tool: search_documents
//
//	Request:
//	{
//	  "name": "search_documents",
//	  "arguments": {
//	    "query": "revenue by region",
//	    "tenant_prefix": "t1:",
//	    "analyze_only": true
//	  }
//	}
//
//	Response:
//	{
//	  "chunks_used": 12,
//	  "total_retrieved": 12,
//	  "sources": [{"path": "t1:q3.txt", "line_count": 40, "file_size": 2210}],
//	  "truncated": false,
//	  "embedding_model": "nomic-embed-text"
//	}
//
// Without analyze_only the response also carries chunks as
// {source, content, score}.
//
// # Error Codes
//
//	-32602  invalid parameters
//	-32603  internal error (http_status 500)
//	-32001  configuration error
//	-32002  indexing already in progress
//	-32004  empty query
//	-32009  embedding dimension mismatch (http_status 409, expected_dimension)
//	-32010  no indexable content (http_status 422)
//	-32011  empty query embedding
package mcp
