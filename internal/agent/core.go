// Package agent is the conversational core. It owns the turn buffer,
// triggers consolidation when the buffer outgrows its budget, injects
// associative recall into the system context, and drives the tool loop
// over model replies.
package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reverie-agent/reverie/internal/graph"
	"github.com/reverie-agent/reverie/internal/llm"
	"github.com/reverie-agent/reverie/internal/memstore"
	"github.com/reverie-agent/reverie/internal/schedule"
	"github.com/reverie-agent/reverie/internal/sleep"
	"github.com/reverie-agent/reverie/internal/stream"
	"github.com/reverie-agent/reverie/internal/tools"
)

// recallEdges caps how many graph relationships feed one reply.
const recallEdges = 10

// recentFactCount is how many stored facts ride along in the system
// context.
const recentFactCount = 10

// Caller is the slice of the call scheduler the core needs.
type Caller interface {
	Schedule(ctx context.Context, req schedule.Request) string
}

// Config carries the core's own knobs; collaborators arrive via Deps.
type Config struct {
	// Persona is the standing system-prompt identity text.
	Persona string
	// ContextTokens is the model context budget the buffer is managed
	// against.
	ContextTokens int
}

// Deps carries the core's collaborators.
type Deps struct {
	Stream    *stream.Stream
	Store     *memstore.Store
	Graph     *graph.Store
	Extractor *graph.Extractor
	Caller    Caller
	Sleeper   *sleep.Engine
	Registry  *tools.Registry
}

// Core ties the memory subsystems into the message-handling flow.
type Core struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	activityMu   sync.Mutex
	lastActivity time.Time

	degraded atomic.Bool
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Core {
	return &Core{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "agent"),
	}
}

// HandleMessage processes one user turn and returns the reply text.
// An empty reply means the call was suppressed as a duplicate.
func (c *Core) HandleMessage(ctx context.Context, userText string) (string, error) {
	c.touchActivity()

	c.deps.Stream.Append(stream.Turn{Role: "user", Text: userText})

	// Consolidate before answering so the reply is generated against
	// a buffer that fits the budget.
	if c.deps.Stream.OverBudget(c.cfg.ContextTokens) {
		c.logger.Info("buffer over budget, consolidating",
			"estimate", c.deps.Stream.EstimateTokens(), "budget", c.cfg.ContextTokens)
		if err := c.deps.Sleeper.Run(ctx); err != nil {
			c.logger.Error("consolidation write failed", "error", err)
			c.degraded.Store(true)
		}
	}

	system := c.systemContext(userText)
	base := c.turnMessages()

	reply := c.deps.Caller.Schedule(ctx, schedule.Request{
		Purpose:  schedule.PurposeInference,
		System:   system,
		Messages: base,
	})
	if reply == "" {
		// Suppressed duplicate; nothing to append or extract.
		return "", nil
	}

	loop := tools.NewLoop(c.deps.Registry, func(ctx context.Context, extra []llm.Message) string {
		return c.deps.Caller.Schedule(ctx, schedule.Request{
			Purpose:  schedule.PurposeInference,
			System:   system,
			Messages: append(append([]llm.Message{}, base...), extra...),
		})
	}, c.logger)
	reply = loop.Run(ctx, reply)

	c.deps.Stream.Append(stream.Turn{Role: "assistant", Text: reply})

	// Background graph learning; never blocks the reply.
	c.deps.Extractor.ExtractAsync(userText, reply)

	return reply, nil
}

// HandleImageMessage describes the image through a classification call
// and folds the description into the dialogue as a user turn.
func (c *Core) HandleImageMessage(ctx context.Context, imageBytes []byte, caption string) (string, error) {
	if len(imageBytes) == 0 {
		return "", fmt.Errorf("empty image payload")
	}
	c.touchActivity()

	prompt := "Describe what this image shows, in two or three sentences."
	if caption != "" {
		prompt = fmt.Sprintf("%s The sender added: %q", prompt, caption)
	}

	desc := c.deps.Caller.Schedule(ctx, schedule.Request{
		Purpose: schedule.PurposeClassification,
		Messages: []llm.Message{{
			Role:    "user",
			Content: prompt,
			Images:  []string{base64.StdEncoding.EncodeToString(imageBytes)},
		}},
	})
	if desc == "" {
		desc = "(the image could not be analyzed)"
	}

	text := "[Image] " + desc
	if caption != "" {
		text = fmt.Sprintf("[Image] %s\n%s", caption, desc)
	}
	return c.HandleMessage(ctx, text)
}

// systemContext assembles persona, associative recall for the current
// query, and recent stored facts.
func (c *Core) systemContext(query string) string {
	var b strings.Builder
	b.WriteString(c.cfg.Persona)

	recall, err := c.deps.Graph.Recall(query, recallEdges)
	if err != nil {
		c.logger.Warn("recall failed", "error", err)
		c.degraded.Store(true)
	} else if recall != "" {
		b.WriteString("\n\n")
		b.WriteString(recall)
	}

	facts, err := c.deps.Store.RecentFacts(recentFactCount)
	if err != nil {
		c.logger.Warn("fact lookup failed", "error", err)
		c.degraded.Store(true)
	} else if len(facts) > 0 {
		b.WriteString("\n\nThings you know:\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Value)
		}
	}

	if c.deps.Registry != nil {
		b.WriteString("\n\n")
		b.WriteString(c.deps.Registry.Describe())
	}
	return b.String()
}

// turnMessages renders the buffer for the reasoning service.
func (c *Core) turnMessages() []llm.Message {
	turns := c.deps.Stream.Turns()
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Text})
	}
	return msgs
}

func (c *Core) touchActivity() {
	c.activityMu.Lock()
	c.lastActivity = time.Now()
	c.activityMu.Unlock()
}

// LastActivity reports when the foreground conversation last moved.
// The heartbeat uses it for idle detection.
func (c *Core) LastActivity() time.Time {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	return c.lastActivity
}
