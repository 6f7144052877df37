package types

import "errors"

// Domain errors for type validation
var (
	ErrEmptySource    = errors.New("source cannot be empty")
	ErrEmptyContent   = errors.New("content cannot be empty")
	ErrEmptyEmbedding = errors.New("embedding cannot be empty")
	ErrMissingHash    = errors.New("file hash is required")
)
