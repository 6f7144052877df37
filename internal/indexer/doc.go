// Package indexer keeps the vector table in step with a caller-supplied set
// of documents without reindexing everything on every request.
//
// # Basic Usage
//
//	sync := indexer.New(store, emb, resolver, chunker.New(),
//	    indexer.WithWorkers(4),
//	    indexer.WithExclude([]string{"**/*.log"}),
//	)
//
//	report, err := sync.Sync(ctx, docs, true)
//	if errors.Is(err, indexer.ErrNoIndexableContent) {
//	    // provider outage or misconfiguration
//	}
//
// # Pipeline
//
// Each request moves through these stages:
//
//  1. Partition: drop blank, excluded and duplicate documents
//  2. Hash: SHA-256 of the raw content
//  3. Compare: with incremental set, skip sources whose stored
//     MAX(file_hash) equals the fresh hash
//  4. Resolve: pick a model whose output width matches the table
//  5. Chunk and embed: one embedding call per document
//  6. Filter: drop empty, missing and wrong-width vectors
//  7. Replace: delete rows for sources that produced new records, then insert them
//
// When nothing changed the request returns before resolution, so the
// embedder is never called.
//
// # Failure Policy
//
// A failure while chunking or embedding one document is recorded as a skip
// reason and the rest of the batch continues. Resolution failures, store
// failures and a request that yields zero persistable chunks abort the
// request. Resolution happens before any delete, so a dimension mismatch
// leaves the table untouched.
//
// Delete-then-insert is not atomic across the two calls. A crash between
// them leaves the affected sources without rows; they have no stored hash
// and are indexed again on the next incremental request.
//
// # Concurrency
//
// Documents are processed by an errgroup limited to the configured worker
// count. The resolved model is passed to every worker. IndexLock rejects a
// second concurrent Sync with ErrIndexingInProgress.
//
// # Loading Files
//
// LoadDirectory turns a directory tree into documents for the CLI:
//
//	docs, err := indexer.LoadDirectory("./docs", indexer.LoadOptions{
//	    Include: []string{"**/*.md"},
//	    Tenant:  "t1:",
//	})
package indexer
