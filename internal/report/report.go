// Package report assembles the outcome of one verification into a single
// document: an overall verdict with strict precedence, the consolidated
// checks behind it, and the raw run records for later diagnosis.
package report

import (
	"time"

	"quorum/internal/consensus"
	"quorum/internal/engine"
	"quorum/internal/plan"
)

// Report is the complete outcome of one verification.
type Report struct {
	Verdict     plan.Verdict             `json:"verdict"`
	GeneratedAt time.Time                `json:"generated_at"`
	SessionID   string                   `json:"session_id"`
	Branch      string                   `json:"branch,omitempty"`
	Head        string                   `json:"head,omitempty"`
	Reasoning   string                   `json:"reasoning,omitempty"` // planner's rationale
	Trace       []plan.StageTrace        `json:"trace,omitempty"`
	Checks      []plan.CheckSpec         `json:"checks,omitempty"` // the specs behind Results
	Results     []consensus.Consolidated `json:"results"`
	Runs        []engine.RunResult       `json:"runs"`
}

// Meta carries verification context into the report. GeneratedAt is passed
// in so building stays deterministic under test.
type Meta struct {
	SessionID   string
	Branch      string
	Head        string
	GeneratedAt time.Time
}

// Build computes the overall verdict and assembles the report.
//
// Precedence is strict and order-independent: any failing check makes the
// report fail; otherwise any needs_review or incomplete check makes it
// needs_review; only a clean sheet passes.
func Build(p *plan.Plan, results []consensus.Consolidated, runs []engine.RunResult, meta Meta) *Report {
	r := &Report{
		Verdict:     overall(results),
		GeneratedAt: meta.GeneratedAt,
		SessionID:   meta.SessionID,
		Branch:      meta.Branch,
		Head:        meta.Head,
		Results:     results,
		Runs:        runs,
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}
	if p != nil {
		r.Reasoning = p.Reasoning
		r.Trace = p.Trace
		r.Checks = append([]plan.CheckSpec(nil), p.Checks...)
	}
	return r
}

func overall(results []consensus.Consolidated) plan.Verdict {
	if len(results) == 0 {
		return plan.VerdictNeedsReview
	}
	verdict := plan.VerdictPass
	for _, res := range results {
		if res.Verdict == plan.VerdictFail {
			return plan.VerdictFail
		}
		if res.Verdict == plan.VerdictNeedsReview || res.Incomplete {
			verdict = plan.VerdictNeedsReview
		}
	}
	return verdict
}

// LiveRuns counts runs that started while the agent session was still in
// progress. A nonzero count means some reviews may have seen a moving
// target.
func (r *Report) LiveRuns() int {
	n := 0
	for i := range r.Runs {
		if r.Runs[i].SessionInProgress {
			n++
		}
	}
	return n
}

// CompletedRuns counts runs that produced a usable verdict.
func (r *Report) CompletedRuns() int {
	n := 0
	for i := range r.Runs {
		if r.Runs[i].Completed() {
			n++
		}
	}
	return n
}
