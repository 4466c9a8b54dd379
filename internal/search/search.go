// Package search provides pluggable web search for the agent.
//
// Providers implement the [Provider] interface. The [Manager] tries
// the configured primary provider first and falls back to any other
// registered provider when the primary fails, so a missing SearXNG
// instance degrades to Brave (or vice versa) instead of erroring.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Result is a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Options are optional parameters for a search query.
type Options struct {
	// Count is the maximum number of results to return.
	// Providers may return fewer. Zero means provider default.
	Count int

	// Language is an ISO 639-1 language code (e.g., "en", "de").
	Language string
}

// Provider is the interface that search backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "searxng", "brave").
	Name() string

	// Search executes a query and returns results.
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager routes queries to registered providers, preferring the
// primary and falling back in registration order.
type Manager struct {
	primary   string
	order     []string
	providers map[string]Provider
	logger    *slog.Logger
}

// NewManager creates a search manager. The primary provider name
// determines which backend is tried first.
func NewManager(primary string, logger *slog.Logger) *Manager {
	return &Manager{
		primary:   primary,
		providers: make(map[string]Provider),
		logger:    logger.With("component", "search"),
	}
}

// Register adds a provider to the manager.
func (m *Manager) Register(p Provider) {
	if _, dup := m.providers[p.Name()]; !dup {
		m.order = append(m.order, p.Name())
	}
	m.providers[p.Name()] = p
}

// Configured reports whether at least one provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}

// Query runs a search against the primary provider, falling back to
// the remaining providers when it fails.
func (m *Manager) Query(ctx context.Context, query string, opts Options) ([]Result, error) {
	if len(m.providers) == 0 {
		return nil, fmt.Errorf("no search provider configured")
	}

	tried := make([]string, 0, len(m.order)+1)
	var lastErr error
	for _, name := range m.tryOrder() {
		p := m.providers[name]
		results, err := p.Search(ctx, query, opts)
		if err == nil {
			return results, nil
		}
		m.logger.Warn("search provider failed", "provider", name, "error", err)
		tried = append(tried, name)
		lastErr = err
	}
	return nil, fmt.Errorf("all search providers failed (%s): %w", strings.Join(tried, ", "), lastErr)
}

// tryOrder returns provider names with the primary first.
func (m *Manager) tryOrder() []string {
	names := make([]string, 0, len(m.order))
	if _, ok := m.providers[m.primary]; ok {
		names = append(names, m.primary)
	}
	for _, name := range m.order {
		if name != m.primary {
			names = append(names, name)
		}
	}
	return names
}

// Search runs a query and renders the results as a numbered list for
// the dialogue. It satisfies the tool layer's searcher interface.
func (m *Manager) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("empty search query")
	}
	results, err := m.Query(ctx, query, Options{})
	if err != nil {
		return "", err
	}
	return FormatResults(results), nil
}

// FormatResults builds a human-readable result list.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results found."
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(r.Title)
		b.WriteString("\n   ")
		b.WriteString(r.URL)
		if r.Snippet != "" {
			b.WriteString("\n   ")
			b.WriteString(r.Snippet)
		}
	}
	return b.String()
}
