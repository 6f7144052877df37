package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the auxiliary schema version.
	// The vector table itself is created lazily on first insert.
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order.
// Statements are portable between SQLite and PostgreSQL.
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS index_runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    files_count INTEGER NOT NULL DEFAULT 0,
    chunks_count INTEGER NOT NULL DEFAULT 0,
    skipped_count INTEGER NOT NULL DEFAULT 0,
    model TEXT,
    dimension INTEGER NOT NULL DEFAULT 0,
    error TEXT
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS index_runs;
DROP TABLE IF EXISTS schema_version;
`

const migrationV11Up = `
CREATE INDEX IF NOT EXISTS idx_index_runs_started ON index_runs(started_at);
`

const migrationV11Down = `
DROP INDEX IF EXISTS idx_index_runs_started;
`

// dialect holds the SQL differences between backends
type dialect struct {
	name string

	// tableExists returns a query yielding one row when the named table exists
	tableExists string

	// placeholder returns the n-th (1-based) bind parameter
	placeholder func(n int) string
}

var sqliteDialect = dialect{
	name:        "sqlite",
	tableExists: "SELECT name FROM sqlite_master WHERE type='table' AND name=?",
	placeholder: func(int) string { return "?" },
}

var postgresDialect = dialect{
	name:        "postgres",
	tableExists: "SELECT c.relname FROM pg_class c WHERE c.oid = to_regclass($1)",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

// splitStatements splits a migration script on semicolons
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// currentVersion returns the highest applied version, 0.0.0 when none
func currentVersion(ctx context.Context, db *sql.DB, d dialect) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, d.tableExists, "schema_version").Scan(&tableName)
	if err == sql.ErrNoRows {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		parsed, err := semver.NewVersion(v)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", v, err)
		}
		if parsed.GreaterThan(current) {
			current = parsed
		}
	}
	return current, rows.Err()
}

// applyMigrations runs all pending migrations
func applyMigrations(ctx context.Context, db *sql.DB, d dialect) error {
	current, err := currentVersion(ctx, db, d)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		// Skip if already applied
		if !current.LessThan(migrationVersion) {
			continue
		}

		for _, stmt := range splitStatements(migration.Up) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
			}
		}

		_, err = db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ("+d.placeholder(1)+")", migration.Version)
		if err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		current = migrationVersion
	}

	return nil
}

// rollbackMigration rolls back the most recent migration
func rollbackMigration(ctx context.Context, db *sql.DB, d dialect) error {
	current, err := currentVersion(ctx, db, d)
	if err != nil {
		return err
	}
	version := current.Original()

	var migration *Migration
	for i := range AllMigrations {
		if AllMigrations[i].Version == version {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", version)
	}

	// Remove the record first: the 1.0.0 rollback drops schema_version itself
	_, err = db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = "+d.placeholder(1), version)
	if err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", version, err)
	}

	for _, stmt := range splitStatements(migration.Down) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", version, err)
		}
	}

	return nil
}

// SchemaVersion returns the applied auxiliary schema version
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (string, error) {
	v, err := currentVersion(ctx, s.db, sqliteDialect)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// RollbackMigration rolls back the most recent auxiliary migration
func (s *SQLiteStorage) RollbackMigration(ctx context.Context) error {
	return rollbackMigration(ctx, s.db, sqliteDialect)
}
