// ABOUTME: SQLite-backed audit ledger using modernc.org/sqlite
// ABOUTME: Records every report dispatch attempt with automatic schema creation

// Package store persists the dispatch audit trail. Conversation state is
// deliberately memory-only; what must survive a restart is the record of
// which reports were attempted, when, and how the sink answered.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SQLiteStore is the ledger handle. Safe for concurrent use.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the ledger at the given path. Parent
// directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps readers from blocking the dispatch path's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("ledger initialized", "path", path)
	return s, nil
}

// createSchema creates the ledger tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS report_attempts (
			attempt_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_report_attempts_session
			ON report_attempts(session_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
