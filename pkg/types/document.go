package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Document is a caller-supplied unit of text to index.
// Name becomes the Source of every chunk derived from it.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// IsBlank reports whether the document has no indexable characters.
func (d Document) IsBlank() bool {
	return strings.TrimSpace(d.Content) == ""
}

// LineCount returns the number of lines in the raw content.
func (d Document) LineCount() int {
	if d.Content == "" {
		return 0
	}
	return strings.Count(d.Content, "\n") + 1
}

// Size returns the content length in bytes.
func (d Document) Size() int64 {
	return int64(len(d.Content))
}

// ContentHash computes the SHA-256 fingerprint of raw content, hex encoded.
// No normalization is applied, so any byte-level edit changes the hash.
func ContentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// HasTenantPrefix reports whether source belongs to the tenant prefix.
// An empty prefix matches every source.
func HasTenantPrefix(source, prefix string) bool {
	return strings.HasPrefix(source, prefix)
}
