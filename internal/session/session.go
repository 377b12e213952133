// Package session resolves and loads agent session transcripts.
//
// Transcripts live under a per-project directory derived from the working
// directory that produced them (every non-alphanumeric rune becomes '-'),
// one JSONL file per session. The active session for a working directory is
// the most recently modified transcript in its project directory; callers
// that need a specific session pass its ID instead.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoSession reports that no transcript could be resolved for the caller's
// working directory. Verification must not proceed on a substitute session.
var ErrNoSession = errors.New("no session transcript found")

// Session is one discovered transcript file, not yet parsed.
type Session struct {
	ID      string // file name without .jsonl
	Path    string
	Project string // munged project directory name
	ModTime time.Time
	Size    int64
}

// Resolver discovers sessions for a working directory.
type Resolver struct {
	// Root is the transcript tree, e.g. ~/.claude/projects.
	Root string
	// ActiveWindow bounds how recently a transcript must have been written
	// to count as in progress.
	ActiveWindow time.Duration
}

// NewResolver returns a Resolver rooted at root, or at ~/.claude/projects
// when root is empty.
func NewResolver(root string, activeWindow time.Duration) (*Resolver, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		root = filepath.Join(home, ".claude", "projects")
	}
	if activeWindow <= 0 {
		activeWindow = 2 * time.Minute
	}
	return &Resolver{Root: root, ActiveWindow: activeWindow}, nil
}

// ProjectDir converts a working directory to its transcript directory name.
// "/home/dev/api" → "-home-dev-api".
func ProjectDir(cwd string) string {
	var b strings.Builder
	for _, r := range cwd {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// List returns every session for cwd, newest first. An empty slice with a
// nil error means the project directory exists but holds no transcripts.
func (r *Resolver) List(cwd string) ([]Session, error) {
	project := ProjectDir(cwd)
	dir := filepath.Join(r.Root, project)

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session dir %s: %w", dir, err)
	}

	var sessions []Session
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		sessions = append(sessions, Session{
			ID:      strings.TrimSuffix(e.Name(), ".jsonl"),
			Path:    filepath.Join(dir, e.Name()),
			Project: project,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ModTime.After(sessions[j].ModTime)
	})
	return sessions, nil
}

// Active returns the most recently modified session for cwd.
// Returns ErrNoSession when the project has no transcripts at all.
func (r *Resolver) Active(cwd string) (Session, error) {
	sessions, err := r.List(cwd)
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, fmt.Errorf("%w for %s (looked in %s)", ErrNoSession, cwd, filepath.Join(r.Root, ProjectDir(cwd)))
	}
	return sessions[0], nil
}

// ByID returns the session with the given ID for cwd.
func (r *Resolver) ByID(cwd, id string) (Session, error) {
	sessions, err := r.List(cwd)
	if err != nil {
		return Session{}, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("%w: session %q not found for %s", ErrNoSession, id, cwd)
}

// InProgress reports whether the session looked live at the given instant:
// its transcript was written within the resolver's active window. The flag is
// sampled per run so downstream transcript analysis can separate verification
// activity from the original work it reviews.
func (r *Resolver) InProgress(s Session, at time.Time) bool {
	info, err := os.Stat(s.Path)
	if err != nil {
		return false
	}
	return at.Sub(info.ModTime()) < r.ActiveWindow
}
