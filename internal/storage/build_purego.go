//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// This file is compiled unless the sqlite_vec tag is set, and always when the
// purego tag is set (purego wins over sqlite_vec).
// It uses a pure Go SQLite implementation without the sqlite-vec extension.
//
// Build command:
//   CGO_ENABLED=0 go build -tags "purego" ./...
//
// No C compiler is required. QueryTopK scores every row under the
// source prefix in Go, which is fine for small and medium knowledge bases.
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
