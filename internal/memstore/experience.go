package memstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Experience kinds distinguish how a record entered long-term memory.
const (
	KindManual        = "manual"         // stored by an explicit tool call
	KindSiftedPattern = "sifted_pattern" // extracted during consolidation
	KindRawSnapshot   = "raw_snapshot"   // consolidation fallback, full buffer
	KindInsight       = "insight"        // autonomous heartbeat output
)

// Experience is an append-only free-text memory record. Experiences are
// never updated, only inserted and bulk-deleted on full reset.
type Experience struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// AddExperience inserts a new experience record.
func (s *Store) AddExperience(text, kind string) error {
	if kind == "" {
		kind = KindManual
	}
	_, err := s.db.Exec(`
		INSERT INTO experiences (id, text, kind, created_at)
		VALUES (?, ?, ?, ?)
	`, uuid.NewString(), text, kind, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add experience: %w", err)
	}
	return nil
}

// RecentExperiences returns up to limit experiences, newest first.
func (s *Store) RecentExperiences(limit int) ([]Experience, error) {
	rows, err := s.db.Query(`
		SELECT id, text, kind, created_at FROM experiences
		ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent experiences: %w", err)
	}
	defer rows.Close()

	var out []Experience
	for rows.Next() {
		var e Experience
		var id, createdAt string
		if err := rows.Scan(&id, &e.Text, &e.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scan experience: %w", err)
		}
		e.ID, _ = uuid.Parse(id)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
