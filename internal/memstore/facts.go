package memstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fact is an append-only key/value record. Multiple records may share a
// key; the history is the point, later records do not overwrite earlier
// ones.
type Fact struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// AddFact appends a new fact record under key.
func (s *Store) AddFact(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO facts (id, key, value, created_at)
		VALUES (?, ?, ?, ?)
	`, uuid.NewString(), key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add fact: %w", err)
	}
	return nil
}

// FactsByKey returns the history for a key, newest first.
func (s *Store) FactsByKey(key string, limit int) ([]Fact, error) {
	rows, err := s.db.Query(`
		SELECT id, key, value, created_at FROM facts
		WHERE key = ? ORDER BY created_at DESC LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("facts by key: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// RecentFacts returns up to limit facts across all keys, newest first.
// Used to seed the system context for inference calls.
func (s *Store) RecentFacts(limit int) ([]Fact, error) {
	rows, err := s.db.Query(`
		SELECT id, key, value, created_at FROM facts
		ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	var out []Fact
	for rows.Next() {
		var f Fact
		var id, createdAt string
		if err := rows.Scan(&id, &f.Key, &f.Value, &createdAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.ID, _ = uuid.Parse(id)
		f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}
