// Package memstore provides durable long-term storage for the agent:
// free-text experiences, key/value domain facts, and the task list.
// Pure storage; retention and consolidation policy live elsewhere.
package memstore

import (
	"database/sql"
	"fmt"
)

// Open opens (or creates) the agent database at dbPath with settings
// suitable for concurrent readers and writers.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Store manages experience, fact, and task persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a store using an existing database connection and
// creates its tables if they do not already exist.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("memstore migration: %w", err)
	}
	return s, nil
}

// DB exposes the underlying connection so sibling stores can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS experiences (
			id         TEXT PRIMARY KEY,
			text       TEXT NOT NULL,
			kind       TEXT NOT NULL DEFAULT 'manual',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS facts (
			id         TEXT PRIMARY KEY,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_facts_key ON facts(key);

		CREATE TABLE IF NOT EXISTS tasks (
			id           TEXT PRIMARY KEY,
			description  TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'pending',
			created_at   TEXT NOT NULL,
			completed_at TEXT
		)
	`)
	return err
}

// StatusCounts holds record counts for the status digest.
type StatusCounts struct {
	Experiences  int `json:"experiences"`
	Facts        int `json:"facts"`
	TasksPending int `json:"tasks_pending"`
	TasksDone    int `json:"tasks_done"`
}

// Counts returns record counts across all families. Individual count
// failures degrade to zero rather than failing the whole digest.
func (s *Store) Counts() StatusCounts {
	var c StatusCounts
	s.db.QueryRow(`SELECT COUNT(*) FROM experiences`).Scan(&c.Experiences)
	s.db.QueryRow(`SELECT COUNT(*) FROM facts`).Scan(&c.Facts)
	s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE status = 'pending'`).Scan(&c.TasksPending)
	s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE status = 'done'`).Scan(&c.TasksDone)
	return c
}

// Reset bulk-deletes every record family. Used only by the explicit
// full-reset operation.
func (s *Store) Reset() error {
	for _, table := range []string{"experiences", "facts", "tasks"} {
		if _, err := s.db.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}
