// Package repo implements the metadata repository: durable, transactional
// storage for files, chunks, a full-text virtual index, jobs, and
// source-level tombstones, over SQLite/FTS5.
package repo

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO

	"github.com/knowdisk/knowdisk/internal/knowerr"
)

// CurrentSchemaVersion is the schema version this build writes and expects.
const CurrentSchemaVersion = 1

// Repo is the Metadata Repository. It holds a single-writer connection to a
// SQLite database in WAL mode and exposes the operations of spec.md §4.1.
// Safe for concurrent use; internal mutex serializes the handful of
// multi-statement transactions that must be atomic.
type Repo struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the repository database at path. An empty path
// opens an in-memory database, used by tests.
func Open(path string) (*Repo, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, knowerr.Wrap(knowerr.KindStorage, "create data directory", err)
		}
		if err := validateIntegrity(path); err != nil {
			slog.Warn("repo_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, knowerr.Wrap(knowerr.KindStorage, "remove corrupted database", removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, knowerr.Wrap(knowerr.KindStorage, "open database", err)
	}

	// Single writer: modernc.org/sqlite serializes all access through one
	// connection, avoiding SQLITE_BUSY under our own process's concurrency.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, knowerr.Wrap(knowerr.KindStorage, "set pragma", err)
		}
	}

	r := &Repo{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	file_id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	size INTEGER NOT NULL,
	mtime_ms INTEGER NOT NULL,
	inode INTEGER,
	status TEXT NOT NULL,
	last_index_time_ms INTEGER,
	last_error TEXT,
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
CREATE INDEX IF NOT EXISTS idx_files_mtime ON files(mtime_ms);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL REFERENCES files(file_id) ON DELETE CASCADE,
	source_path TEXT NOT NULL,
	start_offset INTEGER,
	end_offset INTEGER,
	chunk_hash TEXT NOT NULL,
	token_count INTEGER,
	updated_at_ms INTEGER NOT NULL,
	UNIQUE(file_id, start_offset, end_offset)
);
CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id);
CREATE INDEX IF NOT EXISTS idx_chunks_hash ON chunks(chunk_hash);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
	chunk_id UNINDEXED,
	file_id UNINDEXED,
	source_path UNINDEXED,
	title,
	text,
	tokenize='unicode61'
);

CREATE TABLE IF NOT EXISTS jobs (
	job_id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT NOT NULL,
	attempt INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	next_run_at_ms INTEGER NOT NULL,
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_due ON jobs(status, next_run_at_ms);

CREATE TABLE IF NOT EXISTS tombstones (
	path TEXT PRIMARY KEY,
	deleted_time_ms INTEGER NOT NULL
);
`

// migrate applies the schema and records the schema version idempotently.
func (r *Repo) migrate() error {
	if _, err := r.db.Exec(schemaDDL); err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "apply schema", err)
	}
	_, err := r.db.Exec(
		`INSERT INTO meta(key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO NOTHING`,
		fmt.Sprintf("%d", CurrentSchemaVersion))
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "record schema version", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the underlying connection.
func (r *Repo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return r.db.Close()
}

// ClearAllIndexData truncates all index-visible tables; the schema remains.
func (r *Repo) ClearAllIndexData() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM fts_chunks",
		"DELETE FROM chunks",
		"DELETE FROM jobs",
		"DELETE FROM tombstones",
		"DELETE FROM files",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return knowerr.Wrap(knowerr.KindStorage, "clear index data", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "commit clear", err)
	}
	return nil
}
