package tools

import (
	"reflect"
	"testing"
)

func knownSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestParseDirectives(t *testing.T) {
	known := knownSet("SEARCH_WEB", "LIST_TASKS", "REMEMBER")

	tests := []struct {
		name  string
		reply string
		want  []Directive
	}{
		{
			name:  "name with args",
			reply: "SEARCH_WEB: best hiking trails in Oslo",
			want:  []Directive{{Tool: "SEARCH_WEB", Args: "best hiking trails in Oslo"}},
		},
		{
			name:  "bare name",
			reply: "LIST_TASKS",
			want:  []Directive{{Tool: "LIST_TASKS", Args: ""}},
		},
		{
			name:  "embedded in prose lines",
			reply: "Let me check that for you.\nSEARCH_WEB: weather tomorrow\nOne moment.",
			want:  []Directive{{Tool: "SEARCH_WEB", Args: "weather tomorrow"}},
		},
		{
			name:  "multiple directives all recognized",
			reply: "REMEMBER: user prefers tea\nSEARCH_WEB: tea shops nearby",
			want: []Directive{
				{Tool: "REMEMBER", Args: "user prefers tea"},
				{Tool: "SEARCH_WEB", Args: "tea shops nearby"},
			},
		},
		{
			name:  "unknown tool ignored by parser",
			reply: "LAUNCH_ROCKET: now",
			want:  nil,
		},
		{
			name:  "tool name mentioned in prose is not a directive",
			reply: "SEARCH_WEB is a tool I could use here.",
			want:  nil,
		},
		{
			name:  "lowercase is prose",
			reply: "search_web: something",
			want:  nil,
		},
		{
			name:  "leading whitespace tolerated",
			reply: "   LIST_TASKS",
			want:  []Directive{{Tool: "LIST_TASKS", Args: ""}},
		},
		{
			name:  "no directives",
			reply: "Here is a plain answer with no tool use.",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDirectives(tt.reply, known)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseDirectives(%q) = %+v, want %+v", tt.reply, got, tt.want)
			}
		})
	}
}
