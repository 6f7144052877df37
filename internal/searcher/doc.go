// Package searcher retrieves indexed chunks for a question and prepares the
// bookkeeping needed to build a bounded, attributable context window.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, emb, resolver, cfg.Embedding.Model)
//
//	result, err := s.Retrieve(ctx, searcher.RetrieveRequest{
//	    Query:        "what changed in the Q3 report?",
//	    TenantPrefix: "t1:",
//	})
//
//	for _, src := range result.Sources {
//	    fmt.Println(src.Path)
//	}
//
// # Retrieval Modes
//
// Similarity (default): the resolver picks a model whose output width
// matches the table, the query is embedded with it, and the store returns
// the TopK nearest chunks under the tenant prefix.
//
// Full scan (UseFullScan): similarity is skipped and every chunk under the
// prefix is returned, up to storage.MaxScanRows. Used for questions about a
// whole document set, such as summaries or aggregate statistics.
//
// An empty index returns an empty result and never calls the embedder.
//
// # Post-processing
//
// Whatever the store returns is filtered again by tenant prefix, then capped
// at MaxContextChunks (default 200):
//
//	Truncated = TotalRetrieved > MaxContextChunks
//
// Sources lists the distinct sources of the returned chunks in first-seen
// order, with line count and file size taken from the first chunk seen.
//
// # Query Caching
//
// With UseCache set, results are kept in an LRU cache with a TTL (default
// five minutes). Callers that modify the index must call InvalidateCache.
package searcher
