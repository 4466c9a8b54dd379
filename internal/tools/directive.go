// Package tools implements the tool-orchestration layer: detecting
// structured directives inside free-form model output, dispatching them
// through a fixed registry, and running the bounded regenerate loop.
package tools

import (
	"regexp"
	"strings"
)

// Directive is one recognized tool invocation parsed from model output.
type Directive struct {
	Tool string
	Args string
}

// directivePattern matches a candidate directive line: an uppercase
// token, optionally followed by a colon and arguments. Whether the
// token names a real tool is the registry's business, not the
// parser's.
var directivePattern = regexp.MustCompile(`^([A-Z][A-Z0-9_]{2,}):?\s*(.*)$`)

// ParseDirectives scans reply text line by line and returns every
// directive whose name the known func accepts, in order of appearance.
// A line is a directive when it is exactly a tool name, or a tool name
// followed by a colon and arguments. Detection is deliberately
// decoupled from dispatch so each side is testable alone.
func ParseDirectives(reply string, known func(name string) bool) []Directive {
	var out []Directive
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		m := directivePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]
		if !known(name) {
			continue
		}
		// A bare name with trailing text but no colon is prose, not a
		// directive ("SEARCH_WEB is a tool I have").
		if !strings.HasPrefix(line[len(name):], ":") && m[2] != "" {
			continue
		}
		out = append(out, Directive{Tool: name, Args: strings.TrimSpace(m[2])})
	}
	return out
}
