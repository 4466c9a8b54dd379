// Package sleep implements the consolidation cycle: when the
// conversation buffer outgrows its budget, the engine snapshots it,
// asks an independent observer to sift it into a summary and durable
// patterns, persists those, decays the knowledge graph, and flushes
// the buffer down to a summary plus a small rolling overlap.
package sleep

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reverie-agent/reverie/internal/graph"
	"github.com/reverie-agent/reverie/internal/memstore"
	"github.com/reverie-agent/reverie/internal/stream"
)

// SiftFunc performs the scheduled analytical call. It returns raw model
// text, or "" when the call degraded away.
type SiftFunc func(ctx context.Context, prompt string) string

// Config shapes the post-consolidation buffer.
type Config struct {
	// RollingOverlap is how many recent turns survive a successful
	// consolidation alongside the summary turn.
	RollingOverlap int
	// FallbackKeep is how many turns survive when sifting fails. It is
	// deliberately larger than the overlap: with no summary to lean
	// on, the buffer keeps more raw context.
	FallbackKeep int
	// SnapshotDir receives timestamped pre-consolidation snapshots for
	// post-mortem reading. Empty disables the sidecar write.
	SnapshotDir string
}

func (c *Config) applyDefaults() {
	if c.RollingOverlap <= 0 {
		c.RollingOverlap = 3
	}
	if c.FallbackKeep <= 0 {
		c.FallbackKeep = 15
	}
}

// Engine orchestrates consolidation cycles.
type Engine struct {
	stream *stream.Stream
	store  *memstore.Store
	graph  *graph.Store
	sift   SiftFunc
	cfg    Config
	logger *slog.Logger
}

// New creates a consolidation engine.
func New(st *stream.Stream, store *memstore.Store, g *graph.Store, sift SiftFunc, cfg Config, logger *slog.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		stream: st,
		store:  store,
		graph:  g,
		sift:   sift,
		cfg:    cfg,
		logger: logger.With("component", "sleep"),
	}
}

// siftResult is the structured observer output.
type siftResult struct {
	Summary  string   `json:"summary"`
	Patterns []string `json:"patterns"`
}

// Run executes one consolidation cycle. It never loses conversation:
// when the sift call fails or returns unparsable output, the full raw
// snapshot is preserved as an experience record before the buffer is
// truncated for forward progress. A non-nil return means a durable
// write failed mid-cycle; the caller should surface degraded storage,
// but the buffer itself is always left in a safe state.
func (e *Engine) Run(ctx context.Context) error {
	serialized := e.stream.Serialize()
	turns := e.stream.Turns()

	e.logger.Info("consolidation started",
		"turns", len(turns),
		"estimated_tokens", e.stream.EstimateTokens(),
	)

	e.writeSidecar(serialized)

	raw := e.sift(ctx, siftPrompt(serialized))
	result, err := parseSift(raw)
	if err != nil {
		e.logger.Warn("sift failed, preserving raw snapshot", "error", err)
		return e.fallback(serialized, turns)
	}

	var writeErr error
	for _, p := range result.Patterns {
		if err := e.store.AddExperience("[Sifter Pattern] "+p, memstore.KindSiftedPattern); err != nil {
			e.logger.Warn("pattern store failed", "error", err)
			if writeErr == nil {
				writeErr = fmt.Errorf("store pattern: %w", err)
			}
		}
	}

	if err := e.graph.DecayAndPrune(); err != nil {
		e.logger.Warn("graph decay failed", "error", err)
		if writeErr == nil {
			writeErr = fmt.Errorf("graph decay: %w", err)
		}
	}

	e.flush(result.Summary, turns)

	e.logger.Info("consolidation complete",
		"patterns", len(result.Patterns),
		"buffer_turns", e.stream.Len(),
	)
	return writeErr
}

// flush replaces the buffer with the summary turn plus the rolling
// overlap of most recent turns.
func (e *Engine) flush(summary string, turns []stream.Turn) {
	next := []stream.Turn{{
		Role: "system",
		Text: "Summary of the earlier conversation (consolidated into memory): " + summary,
	}}
	next = append(next, tail(turns, e.cfg.RollingOverlap)...)
	e.stream.Replace(next)
}

// fallback preserves the full serialized buffer as an experience record
// and truncates the buffer. The stored text is byte-identical to the
// pre-consolidation serialization.
func (e *Engine) fallback(serialized string, turns []stream.Turn) error {
	if err := e.store.AddExperience(serialized, memstore.KindRawSnapshot); err != nil {
		// Both the sift and the store path failed. Keep the buffer
		// intact rather than truncate without a durable copy.
		e.logger.Error("fallback store failed, keeping full buffer", "error", err)
		return fmt.Errorf("store raw snapshot: %w", err)
	}
	e.stream.Replace(tail(turns, e.cfg.FallbackKeep))
	return nil
}

func tail(turns []stream.Turn, n int) []stream.Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// writeSidecar stores a timestamped copy of the buffer for post-mortem
// reading. Best-effort; failure is logged and ignored.
func (e *Engine) writeSidecar(serialized string) {
	if e.cfg.SnapshotDir == "" {
		return
	}
	if err := os.MkdirAll(e.cfg.SnapshotDir, 0o755); err != nil {
		e.logger.Debug("sidecar dir create failed", "error", err)
		return
	}
	name := fmt.Sprintf("consolidation-%s.txt", time.Now().UTC().Format("20060102-150405"))
	if err := os.WriteFile(filepath.Join(e.cfg.SnapshotDir, name), []byte(serialized), 0o644); err != nil {
		e.logger.Debug("sidecar write failed", "error", err)
	}
}

// siftPrompt frames the observer role: an analyst reading someone
// else's conversation, not a participant in it.
func siftPrompt(serialized string) string {
	var b strings.Builder
	b.WriteString("You are an analytical observer reviewing a conversation transcript ")
	b.WriteString("that is about to be compressed. You were not a participant.\n\n")
	b.WriteString("Produce a JSON object and nothing else:\n")
	b.WriteString(`{"summary":"a faithful paragraph summary of the whole conversation",`)
	b.WriteString(`"patterns":["discrete lasting facts or patterns worth remembering"]}` + "\n\n")
	b.WriteString("Transcript:\n")
	b.WriteString(serialized)
	return b.String()
}

// parseSift extracts the JSON object between the first '{' and the
// last '}' of the reply.
func parseSift(raw string) (*siftResult, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty sift reply")
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in sift reply")
	}

	var result siftResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("parse sift reply: %w", err)
	}
	if result.Summary == "" {
		return nil, fmt.Errorf("sift reply missing summary")
	}
	return &result, nil
}
