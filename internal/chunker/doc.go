// Package chunker splits normalized document text into overlapping,
// fixed-size chunks for embedding and retrieval.
//
// # Basic Usage
//
//	c := chunker.New(chunker.WithChunkSize(1000), chunker.WithOverlap(200))
//	res := c.Split(doc.Content)
//	for _, ch := range res.Chunks {
//	    fmt.Printf("chunk %d: runes %d-%d\n", ch.Index, ch.Start, ch.End)
//	}
//
// # Splitting Strategy
//
// The text is split on the first separator of the priority list that occurs
// in it (paragraph break, line break, space, comma, single character). Pieces
// that still exceed the chunk size are split again with the remaining
// separators. Adjacent small pieces are merged up to the chunk size, and
// consecutive merged chunks share up to Overlap characters.
//
// Separators stay attached to the piece before them, so concatenating the
// non-overlapping parts of the chunks reproduces the normalized input exactly.
// Whitespace-only chunks are dropped and counted in Result.Skipped.
//
// Lengths are measured in runes, not bytes.
package chunker
