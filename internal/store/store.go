// Package store persists resolution runs, per-node solve events, and LLM
// request records in a local SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection and hands out repositories.
type Store struct {
	db  *sql.DB
	seq *sequenceCounter
}

// Open creates a Store connected to the SQLite database at dsn. It
// applies recommended pragmas and creates missing tables.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	seq, err := newSequenceCounter(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, seq: seq}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunRepo returns the run repository backed by this store.
func (s *Store) RunRepo() RunRepo {
	return &runRepo{db: s.db}
}

// EventRepo returns the event repository backed by this store.
func (s *Store) EventRepo() EventRepo {
	return &eventRepo{db: s.db, seq: s.seq}
}

// applyPragmas configures SQLite for single-user local use.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id            TEXT PRIMARY KEY,
			root_question TEXT NOT NULL,
			strategy      TEXT NOT NULL,
			status        TEXT NOT NULL,
			answer        TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			node_count    INTEGER NOT NULL DEFAULT 0,
			solved_count  INTEGER NOT NULL DEFAULT 0,
			started_at    TIMESTAMP NOT NULL,
			finished_at   TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS node_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			sequence  INTEGER NOT NULL,
			run_id    TEXT NOT NULL,
			node_id   TEXT NOT NULL,
			question  TEXT NOT NULL,
			answer    TEXT NOT NULL,
			depth     INTEGER NOT NULL,
			timestamp TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_node_events_run ON node_events(run_id, sequence)`,
		`CREATE TABLE IF NOT EXISTS llm_requests (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			sequence      INTEGER NOT NULL,
			run_id        TEXT NOT NULL DEFAULT '',
			provider      TEXT NOT NULL,
			model         TEXT NOT NULL,
			purpose       TEXT NOT NULL,
			input_tokens  INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			latency_ms    INTEGER NOT NULL,
			success       INTEGER NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			request_body  TEXT NOT NULL DEFAULT '',
			response_body TEXT NOT NULL DEFAULT '',
			timestamp     TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// DefaultDBPath resolves the database file path in priority order:
// 1. QUANDARY_DB environment variable
// 2. $XDG_DATA_HOME/quandary/quandary.db
// 3. ~/.local/share/quandary/quandary.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("QUANDARY_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "quandary", "quandary.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
