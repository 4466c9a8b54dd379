package memstore

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestExperienceAppendOnly(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddExperience("user likes hiking", KindSiftedPattern); err != nil {
		t.Fatalf("AddExperience: %v", err)
	}
	if err := s.AddExperience("second entry", ""); err != nil {
		t.Fatalf("AddExperience: %v", err)
	}

	exps, err := s.RecentExperiences(10)
	if err != nil {
		t.Fatalf("RecentExperiences: %v", err)
	}
	if len(exps) != 2 {
		t.Fatalf("got %d experiences, want 2", len(exps))
	}
	// Empty kind defaults to manual.
	for _, e := range exps {
		if e.Text == "second entry" && e.Kind != KindManual {
			t.Errorf("kind = %q, want %q", e.Kind, KindManual)
		}
	}
}

func TestFactHistorySharedKey(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddFact("favorite_color", "blue"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddFact("favorite_color", "green"); err != nil {
		t.Fatal(err)
	}

	facts, err := s.FactsByKey("favorite_color", 10)
	if err != nil {
		t.Fatalf("FactsByKey: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("got %d facts, want 2 (history, not overwrite)", len(facts))
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateTask("water the plants")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	pending, err := s.ListTasks(TaskPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending tasks, want 1", len(pending))
	}

	done, err := s.CompleteTask(id.String()[:8])
	if err != nil {
		t.Fatalf("CompleteTask by prefix: %v", err)
	}
	if done.Status != TaskDone {
		t.Errorf("status = %q, want done", done.Status)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	// Completing again is a no-op, not an error.
	if _, err := s.CompleteTask(id.String()); err != nil {
		t.Errorf("double complete: %v", err)
	}

	counts := s.Counts()
	if counts.TasksDone != 1 || counts.TasksPending != 0 {
		t.Errorf("counts = %+v, want 1 done, 0 pending", counts)
	}
}

func TestCompleteTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CompleteTask("deadbeef"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(t)

	s.AddExperience("something", "")
	s.AddFact("k", "v")
	s.CreateTask("t")

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	counts := s.Counts()
	if counts.Experiences != 0 || counts.Facts != 0 || counts.TasksPending != 0 {
		t.Errorf("counts after reset = %+v, want all zero", counts)
	}
}
