package types

import "time"

// Skip reasons reported per document
const (
	SkipEmptyContent   = "empty_content"
	SkipUnchanged      = "unchanged"
	SkipAllChunksEmpty = "all_chunks_empty"
	SkipExcluded       = "excluded"
	SkipEmbedding      = "embedding_failed"
	SkipDuplicate      = "duplicate"
)

// SkippedFile records why a document produced no new chunks
type SkippedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Report summarizes one indexing request
type Report struct {
	FilesCount           int           `json:"files_count"`
	ChunksCount          int           `json:"chunks_count"`
	SkippedFiles         []SkippedFile `json:"skipped_files"`
	SkippedEmptyChunks   int           `json:"skipped_empty_chunks"`
	SkippedBadEmbeddings int           `json:"skipped_bad_embeddings"`
	EmbeddingDimension   int           `json:"embedding_dimension"`
	EmbeddingModel       string        `json:"embedding_model,omitempty"`
	Duration             time.Duration `json:"-"`
}

// Skip appends a skipped document entry
func (r *Report) Skip(name, reason string) {
	r.SkippedFiles = append(r.SkippedFiles, SkippedFile{Name: name, Reason: reason})
}

// SourceInfo carries per-source statistics for a retrieval response.
// LineCount and FileSize are copied from the first chunk seen for the source.
type SourceInfo struct {
	Path      string `json:"path"`
	LineCount *int   `json:"line_count,omitempty"`
	FileSize  *int64 `json:"file_size,omitempty"`
}
