package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestCourseArchiveLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Snapshot{
		CourseID: 7,
		Name:     "Algebra",
		Outline:  json.RawMessage(`{"id":7,"name":"Algebra","children":[]}`),
	}

	if err := svc.EnsureCourseRepo(7, initial, "Avery"); err != nil {
		t.Fatalf("EnsureCourseRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "7")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}
	// Repeating the ensure is a no-op, not a re-init.
	if err := svc.EnsureCourseRepo(7, initial, "Avery"); err != nil {
		t.Fatalf("EnsureCourseRepo() repeat error = %v", err)
	}

	updated := initial
	updated.Outline = json.RawMessage(`{"id":7,"name":"Algebra","children":[{"id":8,"name":"Basics"}]}`)
	commit, err := svc.CommitSnapshot(7, updated, "Avery", "Apply creation amendment 2")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if len(commit.Hash) != 7 {
		t.Fatalf("expected abbreviated hash, got %q", commit.Hash)
	}
	if commit.Author != "Avery" {
		t.Fatalf("expected author Avery, got %q", commit.Author)
	}

	history, err := svc.History(7, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected baseline plus one commit, got %d", len(history))
	}
	if !strings.Contains(history[0].Message, "Apply creation amendment 2") {
		t.Fatalf("expected newest first, got %q", history[0].Message)
	}
	if !strings.Contains(history[1].Message, "Course baseline") {
		t.Fatalf("expected baseline last, got %q", history[1].Message)
	}

	snapshot, err := svc.SnapshotAt(7, commit.Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() error = %v", err)
	}
	if snapshot.CourseID != 7 || snapshot.Name != "Algebra" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if !strings.Contains(string(snapshot.Outline), "Basics") {
		t.Fatalf("expected updated outline at commit, got %s", snapshot.Outline)
	}

	baseline, err := svc.SnapshotAt(7, history[1].Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() baseline error = %v", err)
	}
	if strings.Contains(string(baseline.Outline), "Basics") {
		t.Fatalf("expected baseline outline without chapter, got %s", baseline.Outline)
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := New(t.TempDir())
	initial := Snapshot{CourseID: 1, Name: "Algebra", Outline: json.RawMessage(`{}`)}
	if err := svc.EnsureCourseRepo(1, initial, "Avery"); err != nil {
		t.Fatalf("EnsureCourseRepo() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := svc.CommitSnapshot(1, initial, "Avery", "Apply meta amendment"); err != nil {
			t.Fatalf("CommitSnapshot() error = %v", err)
		}
	}
	history, err := svc.History(1, 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
}

func TestSnapshotAtUnknownHash(t *testing.T) {
	svc := New(t.TempDir())
	initial := Snapshot{CourseID: 1, Name: "Algebra", Outline: json.RawMessage(`{}`)}
	if err := svc.EnsureCourseRepo(1, initial, "Avery"); err != nil {
		t.Fatalf("EnsureCourseRepo() error = %v", err)
	}
	if _, err := svc.SnapshotAt(1, "deadbee"); err == nil {
		t.Fatal("expected error for unknown revision")
	}
}

func TestConcurrentCommitsStaySerialised(t *testing.T) {
	svc := New(t.TempDir())
	initial := Snapshot{CourseID: 1, Name: "Algebra", Outline: json.RawMessage(`{}`)}
	if err := svc.EnsureCourseRepo(1, initial, "Avery"); err != nil {
		t.Fatalf("EnsureCourseRepo() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CommitSnapshot(1, initial, "Avery", "Apply list amendment"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}

	history, err := svc.History(1, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 9 {
		t.Fatalf("expected 9 commits, got %d", len(history))
	}
}
