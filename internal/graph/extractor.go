package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// CallFunc performs the classification call that extracts entities from
// an exchange. It returns the raw model text, or "" when the call was
// degraded away; "" is a no-op, not an error.
type CallFunc func(ctx context.Context, prompt string) string

// Extractor runs automatic entity extraction after each interaction.
// It is fully async and best-effort: failures are logged but never
// propagate to the caller or affect the user-facing response.
type Extractor struct {
	store   *Store
	call    CallFunc
	logger  *slog.Logger
	timeout time.Duration
}

// NewExtractor creates an extractor writing into store via call.
func NewExtractor(store *Store, call CallFunc, logger *slog.Logger) *Extractor {
	return &Extractor{
		store:   store,
		call:    call,
		logger:  logger.With("component", "extractor"),
		timeout: 45 * time.Second,
	}
}

// extraction is the structured output expected from the model.
type extraction struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// ExtractAsync fires a background extraction for one exchange. Returns
// immediately; the upsert happens on a separate goroutine.
func (e *Extractor) ExtractAsync(userText, assistantText string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		e.extract(ctx, userText, assistantText)
	}()
}

func (e *Extractor) extract(ctx context.Context, userText, assistantText string) {
	raw := e.call(ctx, extractionPrompt(userText, assistantText))
	if raw == "" {
		return
	}

	result, err := parseExtraction(raw)
	if err != nil {
		e.logger.Debug("extraction parse failed, skipping graph update", "error", err)
		return
	}
	if len(result.Entities) == 0 && len(result.Relations) == 0 {
		return
	}

	if err := e.store.Upsert(result.Entities, result.Relations); err != nil {
		e.logger.Warn("graph upsert failed", "error", err)
		return
	}

	e.logger.Debug("graph updated",
		"entities", len(result.Entities),
		"relations", len(result.Relations),
	)
}

func extractionPrompt(userText, assistantText string) string {
	var b strings.Builder
	b.WriteString("Extract the named entities and relationships from this exchange.\n")
	b.WriteString("Respond with only JSON in this shape:\n")
	b.WriteString(`{"entities":[{"label":"...","type":"person|place|thing|concept"}],` +
		`"relations":[{"source":"...","target":"...","rel":"..."}]}` + "\n\n")
	fmt.Fprintf(&b, "User: %s\n", userText)
	if assistantText != "" {
		fmt.Fprintf(&b, "Assistant: %s\n", assistantText)
	}
	return b.String()
}

// parseExtraction pulls the JSON object out of free-form model output:
// everything between the first '{' and the last '}'.
func parseExtraction(raw string) (*extraction, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in extraction reply")
	}

	var result extraction
	if err := json.Unmarshal([]byte(raw[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("parse extraction: %w", err)
	}
	return &result, nil
}

// Digest renders the strongest nodes and current counts as a short
// status line block for the heartbeat cycle.
func (s *Store) Digest(topN int) string {
	nodes, edges := s.Counts()
	if nodes == 0 {
		return "Knowledge graph: empty"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Knowledge graph: %d entities, %d relationships\n", nodes, edges)

	rows, err := s.db.Query(`
		SELECT label, strength FROM graph_nodes
		ORDER BY strength DESC LIMIT ?
	`, topN)
	if err != nil {
		return b.String()
	}
	defer rows.Close()

	b.WriteString("Strongest: ")
	first := true
	for rows.Next() {
		var label string
		var strength float64
		if err := rows.Scan(&label, &strength); err != nil {
			break
		}
		if !first {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%.1f)", label, strength)
		first = false
	}
	return b.String()
}
