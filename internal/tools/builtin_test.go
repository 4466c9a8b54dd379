package tools

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/reverie-agent/reverie/internal/graph"
	"github.com/reverie-agent/reverie/internal/memstore"

	_ "modernc.org/sqlite"
)

func builtinDeps(t *testing.T) Deps {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := memstore.NewStore(db)
	if err != nil {
		t.Fatal(err)
	}
	g, err := graph.NewStore(db)
	if err != nil {
		t.Fatal(err)
	}
	return Deps{Store: store, Graph: g}
}

func TestSplitKeyValue(t *testing.T) {
	tests := []struct {
		args       string
		key, value string
		wantErr    bool
	}{
		{"favorite_color = blue", "favorite_color", "blue", false},
		{"city: Oslo", "city", "Oslo", false},
		{"spaced =  padded value ", "spaced", "padded value", false},
		{"no separator here", "", "", true},
		{"= value only", "", "", true},
	}

	for _, tt := range tests {
		key, value, err := splitKeyValue(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitKeyValue(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if key != tt.key || value != tt.value {
			t.Errorf("splitKeyValue(%q) = (%q, %q), want (%q, %q)", tt.args, key, value, tt.key, tt.value)
		}
	}
}

func TestTaskToolsRoundTrip(t *testing.T) {
	r := NewBuiltinRegistry(builtinDeps(t))
	ctx := context.Background()

	out := r.Execute(ctx, Directive{Tool: "ADD_TASK", Args: "buy oat milk"})
	if !strings.Contains(out, "Task created") {
		t.Fatalf("ADD_TASK = %q", out)
	}

	out = r.Execute(ctx, Directive{Tool: "LIST_TASKS"})
	if !strings.Contains(out, "buy oat milk") {
		t.Fatalf("LIST_TASKS = %q", out)
	}

	// Pull the short id out of the list ("- [abcd1234] buy oat milk").
	start := strings.Index(out, "[")
	end := strings.Index(out, "]")
	if start < 0 || end <= start {
		t.Fatalf("no task id in list output: %q", out)
	}
	id := out[start+1 : end]

	out = r.Execute(ctx, Directive{Tool: "COMPLETE_TASK", Args: id})
	if !strings.Contains(out, "Done: buy oat milk") {
		t.Fatalf("COMPLETE_TASK = %q", out)
	}

	out = r.Execute(ctx, Directive{Tool: "LIST_TASKS"})
	if out != "No open tasks." {
		t.Errorf("LIST_TASKS after completion = %q", out)
	}
}

func TestRememberAndFact(t *testing.T) {
	deps := builtinDeps(t)
	r := NewBuiltinRegistry(deps)
	ctx := context.Background()

	if out := r.Execute(ctx, Directive{Tool: "REMEMBER", Args: "user enjoys rainy days"}); out != "Stored." {
		t.Errorf("REMEMBER = %q", out)
	}
	if out := r.Execute(ctx, Directive{Tool: "NOTE_FACT", Args: "mood = contemplative"}); !strings.Contains(out, "Noted") {
		t.Errorf("NOTE_FACT = %q", out)
	}

	counts := deps.Store.Counts()
	if counts.Experiences != 1 || counts.Facts != 1 {
		t.Errorf("counts = %+v, want 1 experience and 1 fact", counts)
	}
}

func TestUnconfiguredCapabilities(t *testing.T) {
	r := NewBuiltinRegistry(builtinDeps(t))
	ctx := context.Background()

	for _, tc := range []struct{ tool, args string }{
		{"SEND_EMAIL", "a@b.c | hi | body"},
		{"SEND_MESSAGE", "general | hello"},
		{"SEARCH_WEB", "anything"},
		{"BROWSE", "https://example.com"},
	} {
		out := r.Execute(ctx, Directive{Tool: tc.tool, Args: tc.args})
		if !strings.HasPrefix(out, "[TOOL ERROR]") || !strings.Contains(out, "not configured") {
			t.Errorf("%s without config = %q, want a not-configured tool error", tc.tool, out)
		}
	}
}

func TestHeartbeatSubset(t *testing.T) {
	r := NewBuiltinRegistry(builtinDeps(t))
	sub := r.Subset(HeartbeatTools...)

	if sub.Has("SEND_EMAIL") || sub.Has("SEND_MESSAGE") || sub.Has("BROWSE") {
		t.Error("heartbeat subset must not carry outbound side-effect tools")
	}
	if !sub.Has("ADD_TASK") || !sub.Has("RECALL") {
		t.Error("heartbeat subset missing expected tools")
	}
}
