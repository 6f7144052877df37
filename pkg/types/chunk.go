package types

import (
	"time"
)

// ChunkMetadata describes the parent document of a chunk.
// It is stored as a semi-structured JSON column alongside the chunk.
type ChunkMetadata struct {
	Source    string    `json:"source"`
	FileHash  string    `json:"file_hash"`
	IndexedAt time.Time `json:"indexed_at"`
	LineCount *int      `json:"line_count,omitempty"`
	FileSize  *int64    `json:"file_size,omitempty"`
}

// ChunkRecord is one indexed passage: a row in the vector table
type ChunkRecord struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  ChunkMetadata

	// Score is the similarity to the query vector. Zero for full scans.
	Score float64
}

// Validate checks that the record can be persisted
func (c *ChunkRecord) Validate() error {
	if c.Metadata.Source == "" {
		return ErrEmptySource
	}
	if c.Content == "" {
		return ErrEmptyContent
	}
	if len(c.Embedding) == 0 {
		return ErrEmptyEmbedding
	}
	if c.Metadata.FileHash == "" {
		return ErrMissingHash
	}
	return nil
}

// NewChunkMetadata builds the metadata shared by all chunks of doc.
func NewChunkMetadata(doc Document, hash string, indexedAt time.Time) ChunkMetadata {
	lines := doc.LineCount()
	size := doc.Size()
	return ChunkMetadata{
		Source:    doc.Name,
		FileHash:  hash,
		IndexedAt: indexedAt.UTC(),
		LineCount: &lines,
		FileSize:  &size,
	}
}
