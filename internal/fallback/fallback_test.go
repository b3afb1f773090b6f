package fallback

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aldwick/wardview/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmbeddedDataSet(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("embedded data must parse: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Subjects) == 0 || len(snap.Entities) == 0 {
		t.Fatal("embedded data set must not be empty")
	}

	// Every link in the shipped data set resolves.
	for _, e := range snap.Entities {
		if e.LinkedSubjectID == "" {
			continue
		}
		if snap.Subject(e.LinkedSubjectID) == nil {
			t.Errorf("entity %s links to missing subject %s", e.TrackID, e.LinkedSubjectID)
		}
	}

	// All three bands are represented, so the demo view exercises every color.
	seen := map[model.RiskBand]bool{}
	for _, rec := range snap.Subjects {
		seen[rec.Band()] = true
	}
	for _, band := range model.Bands() {
		if !seen[band] {
			t.Errorf("embedded data has no %s-band subject", band)
		}
	}

	if snap.Layout == nil || snap.Layout.Width <= 0 || snap.Layout.Height <= 0 {
		t.Errorf("embedded layout invalid: %+v", snap.Layout)
	}
}

func TestLoadFile_OverridesSnapshot(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "override.yaml")
	data := []byte("subjects:\n  - subject_id: X-1\n    risk_score: 7\nentities:\n  - track_id: TX-1\n    entity_kind: subject\n    linked_subject_id: X-1\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	if err := s.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Subjects) != 1 || snap.Subjects[0].SubjectID != "X-1" {
		t.Errorf("snapshot = %+v, want override subject X-1", snap.Subjects)
	}
}

func TestLoadFile_BadDataKeepsPrevious(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	before := s.Snapshot()

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("subjects: [broken"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := s.LoadFile(path); err == nil {
		t.Fatal("LoadFile should fail on malformed YAML")
	}
	if err := s.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadFile should fail on a missing file")
	}

	if s.Snapshot() != before {
		t.Error("failed loads must keep the previous snapshot")
	}
}

func TestLoadFile_RejectsEmptySubjects(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("subjects: []\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := s.LoadFile(path); err == nil {
		t.Fatal("a data set without subjects should be rejected")
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fallback.yaml")
	write := func(id string) {
		t.Helper()
		data := []byte("subjects:\n  - subject_id: " + id + "\n    risk_score: 3\n")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}

	write("W-1")
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.LoadFile(path); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, path, discardLogger()) }()

	// Give the watcher a moment to register before the change lands.
	time.Sleep(100 * time.Millisecond)
	write("W-2")

	deadline := time.After(5 * time.Second)
	for {
		if snap := s.Snapshot(); len(snap.Subjects) == 1 && snap.Subjects[0].SubjectID == "W-2" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher did not pick up the change in time")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watcher returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
