package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/docrag-mcp/internal/config"
)

// Open creates the backend selected by cfg.Driver
func Open(ctx context.Context, cfg config.StorageConfig) (VectorStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if !isPostgresDSN(cfg.DSN) {
			return nil, &config.ConfigurationError{Field: "storage.dsn", Message: "expected a postgres:// URL or key=value connection string"}
		}
		return NewPostgresStorage(ctx, cfg.DSN)
	case config.DriverSQLite, "":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return NewSQLiteStorage(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
