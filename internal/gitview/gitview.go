// Package gitview provides read-only inspection of the working tree under
// review. Every operation shells out to git with the repository root as the
// working directory; no mutating subcommand is ever issued, so concurrent
// check runs can share one Inspector safely.
package gitview

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// MaxDiffBytes bounds the diff carried into prompts. Diffs beyond this are
// truncated with a marker rather than dropped.
const MaxDiffBytes = 64 * 1024

// Snapshot is the repository state handed to the planner and to check runs.
type Snapshot struct {
	Root    string   `json:"root"`
	Branch  string   `json:"branch"`
	Head    string   `json:"head"` // short hash and subject of HEAD
	Status  string   `json:"status"`
	Diff    string   `json:"diff"` // working tree vs HEAD, possibly truncated
	Log     string   `json:"log"`  // recent one-line history
	Changed []string `json:"changed_files"`
}

// Inspector inspects one repository root.
type Inspector struct {
	Root string
}

// New returns an Inspector for the given root directory.
func New(root string) *Inspector {
	return &Inspector{Root: root}
}

// Snapshot collects branch, HEAD, status, diff, and recent history.
// Fails when root is not inside a git worktree.
func (i *Inspector) Snapshot(ctx context.Context) (*Snapshot, error) {
	branch, err := i.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", i.Root, err)
	}
	head, err := i.git(ctx, "log", "-1", "--format=%h %s")
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", i.Root, err)
	}
	status, err := i.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	diff, err := i.git(ctx, "diff", "HEAD")
	if err != nil {
		return nil, err
	}
	if len(diff) > MaxDiffBytes {
		diff = diff[:MaxDiffBytes] + "\n[... diff truncated ...]\n"
	}
	log, err := i.git(ctx, "log", "--oneline", "-n", "10")
	if err != nil {
		return nil, err
	}

	changed, err := i.changedFiles(ctx, status)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Root:    i.Root,
		Branch:  strings.TrimSpace(branch),
		Head:    strings.TrimSpace(head),
		Status:  strings.TrimRight(status, "\n"),
		Diff:    diff,
		Log:     strings.TrimRight(log, "\n"),
		Changed: changed,
	}, nil
}

// changedFiles merges uncommitted paths (from porcelain status) with the
// paths touched by HEAD, deduplicated in first-seen order. Agent changes are
// usually committed by the time verification runs, so status alone is not
// enough.
func (i *Inspector) changedFiles(ctx context.Context, status string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		files = append(files, p)
	}

	for _, line := range strings.Split(status, "\n") {
		if len(line) > 3 {
			add(line[3:])
		}
	}

	committed, err := i.git(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", "HEAD")
	if err != nil {
		return nil, err
	}
	for _, p := range strings.Split(committed, "\n") {
		add(p)
	}
	return files, nil
}

// FileContent returns the current content of a tracked or untracked file,
// confined to the repository root. Paths escaping the root are rejected.
func (i *Inspector) FileContent(path string) (string, error) {
	root, err := filepath.Abs(i.Root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	full, err := filepath.Abs(filepath.Join(root, path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes repository root", path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func (i *Inspector) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = i.Root
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(errb.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return out.String(), nil
}

// Prompt renders the snapshot as a compact block for LLM prompts.
func (s *Snapshot) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "branch: %s\nHEAD: %s\n", s.Branch, s.Head)
	if len(s.Changed) > 0 {
		fmt.Fprintf(&b, "changed files:\n")
		for _, f := range s.Changed {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	}
	if s.Status != "" {
		fmt.Fprintf(&b, "uncommitted:\n%s\n", s.Status)
	}
	if s.Log != "" {
		fmt.Fprintf(&b, "recent commits:\n%s\n", s.Log)
	}
	if s.Diff != "" {
		fmt.Fprintf(&b, "diff vs HEAD:\n%s\n", s.Diff)
	}
	return b.String()
}
