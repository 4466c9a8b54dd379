// Package stream owns the active ordered buffer of conversation turns
// and its token-cost accounting. The buffer survives restarts through a
// JSON snapshot artifact; everything else about it is in-memory.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Turn is a single conversation entry. Insertion order is the dialogue
// history; the buffer is mutated only by appends and by consolidation's
// replace.
type Turn struct {
	Role string `json:"role"` // user, assistant, system
	Text string `json:"text"`
}

// budgetRatio is the fraction of the context window at which the buffer
// counts as over budget.
const budgetRatio = 0.85

// charsPerToken is the token estimation divisor. Rough but
// deterministic, and monotone under concatenation, which is all the
// capacity check needs.
const charsPerToken = 4

// Stream is the active conversation buffer.
type Stream struct {
	mu     sync.Mutex
	turns  []Turn
	path   string
	logger *slog.Logger
}

// New creates a stream backed by the snapshot file at path and
// rehydrates any previous buffer. A missing or corrupt snapshot yields
// an empty buffer; startup is never blocked by snapshot state.
func New(path string, logger *slog.Logger) *Stream {
	s := &Stream{
		path:   path,
		logger: logger.With("component", "stream"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("snapshot unreadable, starting empty", "error", err)
		}
		return s
	}

	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		s.logger.Warn("snapshot corrupt, starting empty", "error", err)
		return s
	}

	s.turns = turns
	s.logger.Info("buffer rehydrated", "turns", len(turns))
	return s
}

// Append adds a turn to the buffer and persists a snapshot. Snapshot
// write failures are logged, never returned; losing the snapshot only
// costs restart recovery, not the live conversation.
func (s *Stream) Append(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	s.persistLocked()
}

// Replace swaps the entire buffer. Used by consolidation's flush.
func (s *Stream) Replace(turns []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append([]Turn(nil), turns...)
	s.persistLocked()
}

// Turns returns a copy of the buffer.
func (s *Stream) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

// Len returns the number of buffered turns.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// EstimateTokens returns a cheap deterministic token estimate for the
// whole buffer.
func (s *Stream) EstimateTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return estimate(s.turns)
}

func estimate(turns []Turn) int {
	chars := 0
	for _, t := range turns {
		chars += len(t.Role) + len(t.Text)
	}
	return (chars + charsPerToken - 1) / charsPerToken
}

// OverBudget reports whether the estimated token cost exceeds the
// budget fraction of the context window.
func (s *Stream) OverBudget(contextTokens int) bool {
	return float64(s.EstimateTokens()) > budgetRatio*float64(contextTokens)
}

// Serialize renders the buffer as a plain transcript, one turn per
// line. Consolidation uses this both as sift input and as the
// byte-exact fallback record when sifting fails.
func (s *Stream) Serialize() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for _, t := range s.turns {
		fmt.Fprintf(&b, "[%s] %s\n", t.Role, t.Text)
	}
	return b.String()
}

// persistLocked writes the snapshot atomically. Callers must hold mu.
func (s *Stream) persistLocked() {
	if s.path == "" {
		return
	}

	data, err := json.Marshal(s.turns)
	if err != nil {
		s.logger.Warn("snapshot marshal failed", "error", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Warn("snapshot dir create failed", "error", err)
		return
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Warn("snapshot write failed", "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Warn("snapshot rename failed", "error", err)
	}
}
