package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Tool is a callable tool: a pure request-to-string operation, possibly
// with external side effects.
type Tool struct {
	Name        string
	Description string
	Handler     func(ctx context.Context, args string) (string, error)
}

// Registry holds the fixed set of tools available to one caller.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Has reports whether name is a registered tool. Passed to
// [ParseDirectives] as the membership check.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns all tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Subset returns a new registry containing only the named tools.
// Unknown names are skipped. Used to hand the heartbeat cycle a
// smaller surface than foreground chat.
func (r *Registry) Subset(names ...string) *Registry {
	sub := NewRegistry()
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			sub.Register(t)
		}
	}
	return sub
}

// Describe renders the tool instructions block for a system prompt:
// one line per tool, in the directive syntax the parser recognizes.
func (r *Registry) Describe() string {
	if len(r.tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("To use a tool, put a directive on its own line:\n")
	for _, name := range r.Names() {
		t := r.tools[name]
		fmt.Fprintf(&b, "  %s: <args>  -- %s\n", t.Name, t.Description)
	}
	return b.String()
}

// Execute dispatches one directive and always produces a result string.
// Unknown names and handler errors become result text; execution never
// raises past this boundary.
func (r *Registry) Execute(ctx context.Context, d Directive) string {
	t, ok := r.tools[d.Tool]
	if !ok {
		return fmt.Sprintf("unknown tool: %s", d.Tool)
	}

	out, err := t.Handler(ctx, d.Args)
	if err != nil {
		return fmt.Sprintf("[TOOL ERROR] %s: %s", d.Tool, err)
	}
	return out
}
