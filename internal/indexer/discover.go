package indexer

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/docrag-mcp/internal/logger"
	"github.com/dshills/docrag-mcp/pkg/types"
)

// DefaultMaxFileSize bounds the size of a single file read from disk
const DefaultMaxFileSize = 10 * 1024 * 1024

// LoadOptions controls which files LoadDirectory turns into documents
type LoadOptions struct {
	// Include limits files to those matching any doublestar pattern,
	// relative to the root. Empty means every text file.
	Include []string

	// Tenant is prepended to every document name, e.g. "t1:"
	Tenant string

	// MaxFileSize skips larger files. Zero means DefaultMaxFileSize.
	MaxFileSize int64
}

// LoadDirectory walks root and returns one document per readable text file.
// Hidden directories are skipped, as are files that are not valid UTF-8 or
// contain NUL bytes. Names are slash-separated paths relative to root.
func LoadDirectory(root string, opts LoadOptions) ([]types.Document, error) {
	for _, pattern := range opts.Include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern %q", pattern)
		}
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	docs := make([]types.Document, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			// Skip hidden directories
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !matchesAny(opts.Include, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxSize {
			logger.Debug("skip %s: %d bytes exceeds limit", rel, info.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !isText(content) {
			logger.Debug("skip %s: not a text file", rel)
			return nil
		}

		docs = append(docs, types.Document{Name: opts.Tenant + rel, Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return docs, nil
}

func matchesAny(patterns []string, rel string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func isText(content []byte) bool {
	return utf8.Valid(content) && bytes.IndexByte(content, 0) < 0
}
