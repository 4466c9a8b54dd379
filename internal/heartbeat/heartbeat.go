// Package heartbeat runs the agent's periodic autonomous cycle. On
// each beat the agent reviews a digest of its own memory and may act
// through a restricted tool set; anything else it produces is stored
// as an insight experience.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reverie-agent/reverie/internal/graph"
	"github.com/reverie-agent/reverie/internal/llm"
	"github.com/reverie-agent/reverie/internal/memstore"
	"github.com/reverie-agent/reverie/internal/schedule"
	"github.com/reverie-agent/reverie/internal/tools"
)

// digestTopNodes is how many of the strongest graph nodes appear in
// the beat digest.
const digestTopNodes = 5

// Caller is the slice of the call scheduler the heartbeat needs.
type Caller interface {
	InferenceBusy() bool
	Schedule(ctx context.Context, req schedule.Request) string
}

// Config controls cadence and the quiet-period guard.
type Config struct {
	// Interval is the time between beats.
	Interval time.Duration
	// IdleWindow skips a beat when foreground activity happened more
	// recently than this.
	IdleWindow time.Duration
}

// Deps carries the collaborators a Heartbeat drives.
type Deps struct {
	Caller   Caller
	Registry *tools.Registry // already restricted to the heartbeat subset
	Store    *memstore.Store
	Graph    *graph.Store
	// LastActivity reports when the foreground conversation last moved.
	LastActivity func() time.Time
	Persona      string
}

// Heartbeat drives the autonomous cycle. Construct with New, then run
// Start in a goroutine.
type Heartbeat struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Heartbeat {
	return &Heartbeat{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "heartbeat"),
	}
}

// Start beats every Interval until ctx is cancelled.
func (h *Heartbeat) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	h.logger.Info("heartbeat started", "interval", h.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("heartbeat stopped")
			return
		case <-ticker.C:
			h.Beat(ctx)
		}
	}
}

// Beat runs one cycle. It is a no-op while a foreground inference is
// in flight or the conversation was active within the idle window.
func (h *Heartbeat) Beat(ctx context.Context) {
	if h.deps.Caller.InferenceBusy() {
		h.logger.Debug("beat skipped, inference in flight")
		return
	}
	if idle := time.Since(h.deps.LastActivity()); idle < h.cfg.IdleWindow {
		h.logger.Debug("beat skipped, recent activity", "idle", idle)
		return
	}

	out := h.deps.Caller.Schedule(ctx, schedule.Request{
		Purpose:  schedule.PurposeHeartbeat,
		System:   h.systemPrompt(),
		Messages: h.beatMessages(nil),
	})
	if out == "" {
		h.logger.Debug("beat call degraded, skipping")
		return
	}

	loop := tools.NewLoop(h.deps.Registry, h.regen, h.logger)
	final := strings.TrimSpace(loop.Run(ctx, out))
	if final == "" {
		return
	}
	// A leftover directive after the loop exhausted its rounds is not
	// an insight worth keeping.
	if len(tools.ParseDirectives(final, h.deps.Registry.Has)) > 0 {
		h.logger.Debug("beat ended on an unexecuted directive, not stored")
		return
	}

	if err := h.deps.Store.AddExperience("[Autonomous Insight] "+final, memstore.KindInsight); err != nil {
		h.logger.Warn("insight not stored", "error", err)
		return
	}
	h.logger.Info("insight stored", "chars", len(final))
}

// regen re-invokes the model with the tool-loop's accumulated turns.
func (h *Heartbeat) regen(ctx context.Context, extra []llm.Message) string {
	return h.deps.Caller.Schedule(ctx, schedule.Request{
		Purpose:  schedule.PurposeHeartbeat,
		System:   h.systemPrompt(),
		Messages: h.beatMessages(extra),
	})
}

func (h *Heartbeat) systemPrompt() string {
	var b strings.Builder
	if h.deps.Persona != "" {
		b.WriteString(h.deps.Persona)
		b.WriteString("\n\n")
	}
	b.WriteString("This is your periodic self-review. Nobody is waiting for a reply. ")
	b.WriteString("Look over the digest of your memory below. If something deserves ")
	b.WriteString("action, use a tool. Otherwise write down one short observation, ")
	b.WriteString("or nothing at all.\n\n")
	b.WriteString(h.deps.Registry.Describe())
	return b.String()
}

func (h *Heartbeat) beatMessages(extra []llm.Message) []llm.Message {
	msgs := []llm.Message{{Role: "user", Content: h.digest()}}
	return append(msgs, extra...)
}

// digest summarizes memory state for the beat prompt.
func (h *Heartbeat) digest() string {
	var b strings.Builder
	b.WriteString(h.deps.Graph.Digest(digestTopNodes))
	b.WriteString("\n")

	c := h.deps.Store.Counts()
	fmt.Fprintf(&b, "Memory: %d experiences, %d facts\n", c.Experiences, c.Facts)
	fmt.Fprintf(&b, "Tasks: %d pending, %d done\n", c.TasksPending, c.TasksDone)
	return b.String()
}
