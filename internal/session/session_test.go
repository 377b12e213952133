package session_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quorum/internal/session"
)

// writeSession creates a transcript file for cwd under root and returns its path.
func writeSession(t *testing.T, root, cwd, id, content string) string {
	t.Helper()
	dir := filepath.Join(root, session.ProjectDir(cwd))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, id+".jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProjectDir(t *testing.T) {
	cases := []struct {
		cwd, want string
	}{
		{"/home/dev/api", "-home-dev-api"},
		{"/tmp/my_project.v2", "-tmp-my-project-v2"},
		{"C:\\work\\repo", "C--work-repo"},
	}
	for _, tc := range cases {
		if got := session.ProjectDir(tc.cwd); got != tc.want {
			t.Errorf("ProjectDir(%q) = %q, want %q", tc.cwd, got, tc.want)
		}
	}
}

func TestActive_PicksNewest(t *testing.T) {
	root := t.TempDir()
	cwd := "/home/dev/api"
	older := writeSession(t, root, cwd, "older", `{"type":"user"}`)
	newer := writeSession(t, root, cwd, "newer", `{"type":"user"}`)

	past := time.Now().Add(-1 * time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatal(err)
	}

	r, err := session.NewResolver(root, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	s, err := r.Active(cwd)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if s.ID != "newer" {
		t.Errorf("Active picked %q, want newer (%s over %s)", s.ID, newer, older)
	}
}

func TestActive_NoSessionsIsHardError(t *testing.T) {
	root := t.TempDir()
	r, err := session.NewResolver(root, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Active("/nowhere/special")
	if !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestByID(t *testing.T) {
	root := t.TempDir()
	cwd := "/home/dev/api"
	writeSession(t, root, cwd, "abc-123", `{"type":"user"}`)

	r, err := session.NewResolver(root, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	s, err := r.ByID(cwd, "abc-123")
	if err != nil {
		t.Fatalf("ByID failed: %v", err)
	}
	if s.ID != "abc-123" {
		t.Errorf("got %q", s.ID)
	}

	if _, err := r.ByID(cwd, "missing"); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expected ErrNoSession for missing ID, got %v", err)
	}
}

func TestInProgress_WindowBoundary(t *testing.T) {
	root := t.TempDir()
	cwd := "/home/dev/api"
	path := writeSession(t, root, cwd, "live", `{"type":"user"}`)

	r, err := session.NewResolver(root, 2*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	s, err := r.Active(cwd)
	if err != nil {
		t.Fatal(err)
	}

	if !r.InProgress(s, time.Now()) {
		t.Error("freshly written session should be in progress")
	}

	past := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}
	if r.InProgress(s, time.Now()) {
		t.Error("stale session should not be in progress")
	}
}

func TestList_SkipsNonTranscripts(t *testing.T) {
	root := t.TempDir()
	cwd := "/home/dev/api"
	writeSession(t, root, cwd, "real", `{"type":"user"}`)
	dir := filepath.Join(root, session.ProjectDir(cwd))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := session.NewResolver(root, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	sessions, err := r.List(cwd)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ID != "real" {
		t.Errorf("List = %+v, want only 'real'", sessions)
	}
}
