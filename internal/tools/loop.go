package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reverie-agent/reverie/internal/llm"
)

// maxRounds bounds the detect-execute-regenerate cycle. A model that
// keeps emitting directives is cut off after this many regenerations.
const maxRounds = 2

// RegenFunc regenerates the model reply given the extra turns the loop
// has accumulated (assistant directive turns and system tool-result
// turns). A "" return means the call was degraded away.
type RegenFunc func(ctx context.Context, extra []llm.Message) string

// Loop runs the bounded tool-orchestration cycle over model output.
type Loop struct {
	registry *Registry
	regen    RegenFunc
	logger   *slog.Logger
}

// NewLoop creates a loop over the given registry. regen is called to
// re-invoke the model after tool results are merged in.
func NewLoop(registry *Registry, regen RegenFunc, logger *slog.Logger) *Loop {
	return &Loop{
		registry: registry,
		regen:    regen,
		logger:   logger.With("component", "toolloop"),
	}
}

// Run processes one model reply. Every directive in the reply is
// executed (not just the first), the results are merged back as a
// synthetic system turn, and the reply is regenerated, for at most
// [maxRounds] rounds. The return value is always non-empty when any
// tool produced output: if the final regeneration comes back empty or
// still directive-laden, the best available text wins, falling back to
// the concatenated raw tool results.
func (l *Loop) Run(ctx context.Context, reply string) string {
	text := reply
	var extra []llm.Message
	var lastResults []string

	for round := 0; round < maxRounds; round++ {
		directives := ParseDirectives(text, l.registry.Has)
		if len(directives) == 0 {
			return text
		}

		results := make([]string, 0, len(directives))
		for _, d := range directives {
			out := l.registry.Execute(ctx, d)
			l.logger.Debug("tool executed",
				"round", round,
				"tool", d.Tool,
				"result_len", len(out),
			)
			results = append(results, fmt.Sprintf("[TOOL RESULT] %s: %s", d.Tool, out))
		}
		lastResults = results

		extra = append(extra,
			llm.Message{Role: "assistant", Content: text},
			llm.Message{Role: "system", Content: resultsTurn(results)},
		)

		text = l.regen(ctx, extra)
		if text == "" {
			break
		}
	}

	if strings.TrimSpace(text) == "" {
		return strings.Join(lastResults, "\n")
	}
	return text
}

// resultsTurn renders the synthetic system turn carrying all tool
// results from one round.
func resultsTurn(results []string) string {
	var b strings.Builder
	b.WriteString("Tool execution finished. Results:\n\n")
	for _, r := range results {
		b.WriteString(r)
		b.WriteString("\n")
	}
	b.WriteString("\nCompose your final answer for the user from these results. ")
	b.WriteString("Do not call tools again unless necessary.")
	return b.String()
}
