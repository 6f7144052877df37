// Package embedder turns text into vectors and picks a model whose output
// width matches the index.
//
// # Providers
//
// A Provider is a model catalog plus a batch embed call. Three are built in:
//
//   - ollama: GET /api/tags for the catalog, POST /api/embed for vectors
//   - openai: GET /v1/models and POST /v1/embeddings (any compatible server)
//   - local: offline feature-hashing models local-384, local-768, local-1536
//
// # Embedder
//
// Embedder wraps a Provider with an LRU vector cache keyed by model and
// content hash, exponential backoff retry, an optional rate limit and
// optional batch splitting:
//
//	emb, err := embedder.New(cfg.Embedding)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vectors, err := emb.Embed(ctx, "nomic-embed-text", chunks)
//
// Embed always returns one slot per input. A slot may be empty when the
// provider produced nothing for that text; the caller decides what to do.
// EmbedQuery instead fails with ErrEmptyEmbeddingResult.
//
// # Model Resolution
//
// The vector width of an index is fixed by its first write. Resolver reads
// that width through a DimensionProbe and returns a compatible model:
//
//	r := embedder.NewResolverFor(emb, embedder.NewDimensionCache(), cfg.Embedding.Model)
//	model, dim, err := r.ResolveFor(ctx, "", store)
//	if errors.Is(err, embedder.ErrEmbeddingDimensionMismatch) {
//	    // no model produces vectors of width dim
//	}
//
// Probed dimensions are memoized in a DimensionCache shared by the process.
package embedder
