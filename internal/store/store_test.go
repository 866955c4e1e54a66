package store

import (
	"testing"

	"github.com/pavelanni/automark/internal/marker"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	// Empty DB.
	runs, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}

	id, err := s.BeginRun("http://exam.example/api", "no-answer", false)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	runs, err = s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].FinishedAt != nil {
		t.Error("expected nil finished_at before FinishRun")
	}
	if runs[0].Strategy != "no-answer" {
		t.Errorf("expected strategy 'no-answer', got %q", runs[0].Strategy)
	}

	err = s.FinishRun(id, marker.Summary{
		Students: 3, Sections: 12, Marked: 7, Skipped: 4, NoDecision: 1, Failed: 0,
	})
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, _ = s.ListRuns()
	if runs[0].FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
	if runs[0].Marked != 7 {
		t.Errorf("expected 7 marked, got %d", runs[0].Marked)
	}
	if runs[0].Skipped != 4 {
		t.Errorf("expected 4 skipped, got %d", runs[0].Skipped)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	first, _ := s.BeginRun("http://exam.example/api", "no-answer", false)
	second, _ := s.BeginRun("http://exam.example/api", "exact", true)

	runs, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("expected newest first, got %d then %d", runs[0].ID, runs[1].ID)
	}
	if !runs[0].DryRun {
		t.Error("expected second run to be a dry run")
	}
}

func TestRecordDecision(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.BeginRun("http://exam.example/api", "exact", false)
	rec := s.RunRecorder(id)

	mark := 5.0
	for _, d := range []marker.Decision{
		{Username: "alice", SectionKey: "1-1-1", Action: marker.ActionMarked, Mark: &mark, Feedback: "Correct"},
		{Username: "alice", SectionKey: "1-1-2", Action: marker.ActionSkipped},
		{Username: "bob", SectionKey: "1-1-1", Action: marker.ActionError, Err: "boom"},
	} {
		if err := rec.RecordDecision(d); err != nil {
			t.Fatalf("RecordDecision: %v", err)
		}
	}

	decisions, err := s.ListDecisions(id)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(decisions) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(decisions))
	}
	// Insertion order preserved.
	if decisions[0].Username != "alice" || decisions[0].Action != marker.ActionMarked {
		t.Errorf("unexpected first decision %+v", decisions[0])
	}
	if decisions[0].Mark == nil || *decisions[0].Mark != 5.0 {
		t.Errorf("expected mark 5.0, got %v", decisions[0].Mark)
	}
	if decisions[1].Mark != nil {
		t.Error("skipped decision should have no mark")
	}
	if decisions[2].Error != "boom" {
		t.Errorf("expected error 'boom', got %q", decisions[2].Error)
	}
}

func TestExportAll(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.BeginRun("http://exam.example/api", "no-answer", false)
	rec := s.RunRecorder(id)
	mark := 0.0
	_ = rec.RecordDecision(marker.Decision{
		Username: "alice", SectionKey: "1-1-1", Action: marker.ActionMarked,
		Mark: &mark, Feedback: "No answer submitted",
	})
	_ = s.FinishRun(id, marker.Summary{Students: 1, Sections: 1, Marked: 1})

	export, err := s.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(export.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(export.Runs))
	}
	run := export.Runs[0]
	if run.Marked != 1 {
		t.Errorf("expected 1 marked, got %d", run.Marked)
	}
	if len(run.Decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(run.Decisions))
	}
	if run.Decisions[0].Feedback != "No answer submitted" {
		t.Errorf("unexpected feedback %q", run.Decisions[0].Feedback)
	}
}
