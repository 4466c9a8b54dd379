package stream

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAppendAndRehydrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.json")

	s := New(path, testLogger())
	s.Append(Turn{Role: "user", Text: "hello"})
	s.Append(Turn{Role: "assistant", Text: "hi there"})

	// A fresh stream on the same path sees the persisted buffer.
	s2 := New(path, testLogger())
	turns := s2.Turns()
	if len(turns) != 2 {
		t.Fatalf("rehydrated %d turns, want 2", len(turns))
	}
	if turns[0].Text != "hello" || turns[1].Role != "assistant" {
		t.Errorf("rehydrated turns out of order: %+v", turns)
	}
}

func TestCorruptSnapshotStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path, testLogger())
	if s.Len() != 0 {
		t.Errorf("corrupt snapshot should yield empty buffer, got %d turns", s.Len())
	}
}

func TestMissingSnapshotStartsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "never-written.json"), testLogger())
	if s.Len() != 0 {
		t.Errorf("missing snapshot should yield empty buffer, got %d turns", s.Len())
	}
}

func TestEstimateMonotoneUnderConcatenation(t *testing.T) {
	s := New("", testLogger())

	prev := s.EstimateTokens()
	for i := 0; i < 20; i++ {
		s.Append(Turn{Role: "user", Text: strings.Repeat("word ", i+1)})
		cur := s.EstimateTokens()
		if cur < prev {
			t.Fatalf("estimate decreased after append: %d -> %d", prev, cur)
		}
		prev = cur
	}
}

func TestOverBudget(t *testing.T) {
	s := New("", testLogger())

	// ~66,000 tokens of content against a 64,000 token window:
	// 85% of 64,000 is 54,400, so this is over budget.
	s.Append(Turn{Role: "user", Text: strings.Repeat("x", 66000*charsPerToken)})

	if !s.OverBudget(64000) {
		t.Error("expected over budget at ~66k tokens against 64k cap")
	}
	if s.OverBudget(1_000_000) {
		t.Error("unexpectedly over budget against a huge cap")
	}
}

func TestReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.json")
	s := New(path, testLogger())

	for i := 0; i < 10; i++ {
		s.Append(Turn{Role: "user", Text: "filler"})
	}

	s.Replace([]Turn{{Role: "system", Text: "summary of earlier conversation"}})
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1 after replace", s.Len())
	}

	// Replace persists too.
	s2 := New(path, testLogger())
	if s2.Len() != 1 {
		t.Errorf("rehydrated len = %d, want 1", s2.Len())
	}
}

func TestSerializeDeterministic(t *testing.T) {
	s := New("", testLogger())
	s.Append(Turn{Role: "user", Text: "first"})
	s.Append(Turn{Role: "assistant", Text: "second"})

	a := s.Serialize()
	b := s.Serialize()
	if a != b {
		t.Error("Serialize is not deterministic")
	}
	if !strings.Contains(a, "[user] first") || !strings.Contains(a, "[assistant] second") {
		t.Errorf("unexpected serialization:\n%s", a)
	}
}
