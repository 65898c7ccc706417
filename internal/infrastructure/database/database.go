// Package database opens the SQLite database shared by the source registry
// and the download queue, applies connection pragmas and migrates the schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const driver = "sqlite"

// Schema creates the tables used by the registry and download subsystems.
// Column names match databases created by earlier deployments.
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	script      TEXT NOT NULL,
	enabled     INTEGER DEFAULT 1,
	priority    INTEGER DEFAULT 0,
	create_time DATETIME DEFAULT CURRENT_TIMESTAMP,
	update_time DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS downloads (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	singer          TEXT,
	source          TEXT NOT NULL,
	music_id        TEXT NOT NULL,
	quality         TEXT,
	url             TEXT,
	file_path       TEXT,
	file_size       INTEGER,
	downloaded_size INTEGER DEFAULT 0,
	status          TEXT DEFAULT 'pending',
	progress        REAL DEFAULT 0,
	error           TEXT,
	create_time     DATETIME DEFAULT CURRENT_TIMESTAMP,
	update_time     DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
CREATE INDEX IF NOT EXISTS idx_sources_enabled ON sources(enabled);
`

type options struct {
	busyTimeout int
	migrate     bool
	mkdirAll    bool
}

// Option customises Open
type Option func(*options)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeout = ms } }

// WithoutMigrate skips schema creation
func WithoutMigrate() Option { return func(o *options) { o.migrate = false } }

// Open opens (creating if needed) the database at path
func Open(ctx context.Context, path string, opts ...Option) (*sql.DB, error) {
	o := options{busyTimeout: 10_000, migrate: true, mkdirAll: path != ":memory:"}
	for _, fn := range opts {
		fn(&o)
	}

	if o.mkdirAll {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("database: mkdir: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("database: %s: %w", p, err)
		}
	}

	if o.migrate {
		if err := Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return db, nil
}

// Migrate applies Schema; it is idempotent
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// OpenMemory opens a migrated in-memory database for tests. A single
// connection is kept because every ":memory:" connection is its own database.
func OpenMemory(t testing.TB) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("database.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
