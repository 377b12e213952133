// Package verify drives one verification end to end: resolve the agent
// session, snapshot the repository, plan the checks, execute the runs,
// consolidate verdicts, and build the report.
//
// Session resolution failure is fatal before any work starts. Cancellation
// mid-execution is not: whatever runs completed are consolidated and the
// report ships with its incomplete checks marked.
package verify

import (
	"context"
	"fmt"
	"os"
	"time"

	"quorum/internal/consensus"
	"quorum/internal/engine"
	"quorum/internal/gitview"
	"quorum/internal/llm"
	"quorum/internal/logging"
	"quorum/internal/plan"
	"quorum/internal/report"
	"quorum/internal/session"
	"quorum/internal/store"
)

// transcriptBudget bounds the rendered transcript handed to the planner and
// every run. Long sessions are elided in the middle, keeping the opening
// request and the most recent activity.
const transcriptBudget = 32 * 1024

// Options configures one verification.
type Options struct {
	Client llm.Client // planning, judgment runs, judge synthesis

	// Session resolution. WorkDir defaults to the process working directory;
	// an empty SessionID resolves the most recently active transcript.
	Resolver  *session.Resolver
	Loader    *session.Loader // optional transcript cache for long-lived processes
	WorkDir   string
	SessionID string

	// RepoRoot is the repository under verification; defaults to WorkDir.
	RepoRoot string

	// Planning constraints.
	Complexity string
	MinRuns    int

	// Execution.
	Parallel    int
	MaxAttempts int
	RunTimeout  time.Duration

	// PlanOnly stops after planning; no runs execute and no report is built.
	PlanOnly bool

	// Outputs. Both are optional; unset means skip.
	ReportDir string      // persisted Markdown artifacts
	Store     store.Store // report/run archive
}

// Result is the pipeline outcome.
type Result struct {
	Session      session.Session
	Plan         *plan.Plan
	Report       *report.Report // nil when PlanOnly
	ArtifactPath string         // set when ReportDir was given
	ReportID     int64          // set when Store was given
}

// Run executes the full pipeline. The returned error is non-nil only for
// failures that prevent a report: session resolution, repository inspection,
// planning, or a misconfigured plan.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := logging.New("verify")

	if opts.WorkDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		opts.WorkDir = cwd
	}
	if opts.RepoRoot == "" {
		opts.RepoRoot = opts.WorkDir
	}

	resolver := opts.Resolver
	if resolver == nil {
		var err error
		resolver, err = session.NewResolver("", 0)
		if err != nil {
			return nil, err
		}
	}

	sess, err := resolveSession(resolver, opts.WorkDir, opts.SessionID)
	if err != nil {
		return nil, err
	}
	log.Info("session resolved", "session", sess.ID, "size", sess.Size)

	transcript, err := loadTranscript(opts.Loader, sess)
	if err != nil {
		return nil, fmt.Errorf("load transcript %s: %w", sess.ID, err)
	}

	snap, err := gitview.New(opts.RepoRoot).Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect repository: %w", err)
	}

	p, err := plan.NewPlanner(opts.Client).Plan(ctx, plan.Input{
		Transcript: transcript.Render(transcriptBudget),
		Repo:       snap,
		Constraints: plan.Constraints{
			Complexity: opts.Complexity,
			MinRuns:    opts.MinRuns,
		},
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Session: sess, Plan: p}
	if opts.PlanOnly {
		return res, nil
	}

	eng := engine.New(engine.Options{
		Parallel:    opts.Parallel,
		MaxAttempts: opts.MaxAttempts,
		RunTimeout:  opts.RunTimeout,
		Judgment:    engine.NewJudgmentExecutor(opts.Client),
		Command:     engine.NewCommandExecutor(opts.RepoRoot),
		SessionActive: func(at time.Time) bool {
			return resolver.InProgress(sess, at)
		},
	})
	runs := eng.Run(ctx, p, engine.Request{
		Transcript: transcript.Render(transcriptBudget),
		Repo:       snap,
	})

	results, err := consensus.New(opts.Client).Consolidate(ctx, p, runs)
	if err != nil {
		return nil, err
	}

	res.Report = report.Build(p, results, runs, report.Meta{
		SessionID: sess.ID,
		Branch:    snap.Branch,
		Head:      snap.Head,
	})
	log.Info("report built", "verdict", res.Report.Verdict,
		"checks", len(results), "runs", len(runs), "live_runs", res.Report.LiveRuns())

	if opts.ReportDir != "" {
		path, err := report.Persist(res.Report, opts.ReportDir)
		if err != nil {
			return nil, fmt.Errorf("persist report: %w", err)
		}
		res.ArtifactPath = path
		log.Info("report persisted", "path", path)
	}
	if opts.Store != nil {
		id, err := opts.Store.SaveReport(res.Report)
		if err != nil {
			return nil, fmt.Errorf("archive report: %w", err)
		}
		res.ReportID = id
	}
	return res, nil
}

func resolveSession(r *session.Resolver, workDir, id string) (session.Session, error) {
	if id != "" {
		return r.ByID(workDir, id)
	}
	return r.Active(workDir)
}

func loadTranscript(l *session.Loader, s session.Session) (*session.Transcript, error) {
	if l != nil {
		return l.Load(s)
	}
	return session.LoadTranscript(s)
}
