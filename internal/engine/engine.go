// Package engine executes verification plans. It fans check runs out over a
// bounded worker pool, retries crashed runs up to a fixed attempt budget,
// and hands the per-run records to the consolidator untouched.
//
// Runs are isolated: each receives a read-only RunContext and no run ever
// sees another run's output. Cancellation abandons whatever is in flight;
// abandoned runs carry no verdict and are never counted as completed.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"quorum/internal/gitview"
	"quorum/internal/logging"
	"quorum/internal/plan"
)

// RunContext is the read-only input one run sees. The engine builds one per
// run; executors must not mutate it.
type RunContext struct {
	Check      plan.CheckSpec
	RunIndex   int // zero-based within the check
	Transcript string
	Repo       *gitview.Snapshot
}

// Outcome is what an executor returns for a completed attempt. An error
// return instead means the attempt crashed and may be retried.
type Outcome struct {
	Verdict   plan.Verdict
	Findings  []plan.Finding
	Rationale string
	Raw       string // raw output, kept verbatim for judge synthesis
}

// Executor performs one attempt of one run.
type Executor interface {
	Execute(ctx context.Context, rc RunContext) (*Outcome, error)
}

// RunResult is the complete record of one run.
type RunResult struct {
	CheckID   string         `json:"check_id"`
	RunIndex  int            `json:"run_index"`
	Verdict   plan.Verdict   `json:"verdict,omitempty"`
	Findings  []plan.Finding `json:"findings,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
	Raw       string         `json:"raw,omitempty"`
	Attempts  int            `json:"attempts"`
	Duration  time.Duration  `json:"duration_ns"`
	Error     string         `json:"error,omitempty"` // terminal error of an indeterminate run
	// Abandoned marks a run cancelled before it completed. No verdict is
	// fabricated for it.
	Abandoned bool `json:"abandoned,omitempty"`
	// SessionInProgress records whether the agent session was still active
	// when this run started. Downstream analysis uses it to separate
	// "agent was done" findings from knowledge-gap noise.
	SessionInProgress bool `json:"session_in_progress"`
}

// Completed reports whether the run produced a usable verdict.
func (r *RunResult) Completed() bool { return !r.Abandoned && r.Verdict != "" }

// Request is the shared input every run of a verification receives.
type Request struct {
	Transcript string
	Repo       *gitview.Snapshot
}

// Options configures an Engine.
type Options struct {
	Parallel    int           // worker pool size, minimum 1
	MaxAttempts int           // attempts per run before indeterminate, minimum 1
	RunTimeout  time.Duration // per-attempt timeout, 0 means none
	Judgment    Executor      // model-backed runs
	Command     Executor      // deterministic command runs
	// SessionActive, when set, is sampled at each run start and recorded on
	// the run.
	SessionActive func(at time.Time) bool
}

// Engine runs plans. Safe for a single Run call at a time.
type Engine struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) *Engine {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Engine{opts: opts, log: logging.New("engine")}
}

// Run executes every run of every check in the plan with bounded
// concurrency. The result slice is complete and run-major: all runs of
// checks[0] first, in run order. Failures never surface as an error here;
// they are recorded on the runs themselves, and cancellation shows up as
// abandoned runs.
func (e *Engine) Run(ctx context.Context, p *plan.Plan, req Request) []RunResult {
	results := make([]RunResult, p.TotalRuns())

	e.log.Info("executing plan", "checks", len(p.Checks), "runs", len(results), "workers", e.opts.Parallel)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallel)

	idx := 0
	for _, c := range p.Checks {
		for run := 0; run < c.Runs; run++ {
			slot := idx
			rc := RunContext{Check: c, RunIndex: run, Transcript: req.Transcript, Repo: req.Repo}
			g.Go(func() error {
				results[slot] = e.runOne(gctx, rc)
				return nil
			})
			idx++
		}
	}
	_ = g.Wait() // per-run failures live in the results

	completed, abandoned := 0, 0
	for i := range results {
		if results[i].Abandoned {
			abandoned++
		} else {
			completed++
		}
	}
	e.log.Info("plan executed", "completed", completed, "abandoned", abandoned)
	return results
}

// runOne drives one run through its attempt budget.
func (e *Engine) runOne(ctx context.Context, rc RunContext) RunResult {
	res := RunResult{CheckID: rc.Check.ID, RunIndex: rc.RunIndex}
	if e.opts.SessionActive != nil {
		res.SessionInProgress = e.opts.SessionActive(time.Now())
	}

	ex := e.opts.Judgment
	if rc.Check.Command != "" {
		ex = e.opts.Command
	}
	if ex == nil {
		res.Verdict = plan.VerdictIndeterminate
		res.Error = "no executor configured for this check"
		return res
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			res.Abandoned = true
			res.Duration = time.Since(start)
			return res
		}
		res.Attempts = attempt

		out, err := e.attempt(ctx, ex, rc)
		if err == nil {
			res.Verdict = out.Verdict
			res.Findings = out.Findings
			res.Rationale = out.Rationale
			res.Raw = out.Raw
			res.Duration = time.Since(start)
			return res
		}
		if ctx.Err() != nil {
			// The attempt died because the verification was cancelled, not
			// because the run crashed.
			res.Abandoned = true
			res.Duration = time.Since(start)
			return res
		}
		lastErr = err
		e.log.Warn("run attempt failed",
			"check", rc.Check.ID, "run", rc.RunIndex, "attempt", attempt, "error", err)
	}

	res.Verdict = plan.VerdictIndeterminate
	res.Error = lastErr.Error()
	res.Duration = time.Since(start)
	return res
}

// attempt executes one attempt under the per-attempt timeout, converting
// executor panics into retryable errors.
func (e *Engine) attempt(ctx context.Context, ex Executor, rc RunContext) (out *Outcome, err error) {
	if e.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	out, err = ex.Execute(ctx, rc)
	if err == nil && out == nil {
		err = fmt.Errorf("executor returned no outcome")
	}
	return out, err
}
