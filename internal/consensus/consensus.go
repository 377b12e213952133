// Package consensus consolidates per-run verdicts into one verdict per
// check. Each convergence policy is a pure reduction except judge, which
// synthesizes over the raw run outputs through a model.
//
// Two rules hold across every policy: the agreement rate is always the
// plurality share of completed runs, and an incomplete check can never come
// out better than needs_review.
package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"quorum/internal/engine"
	"quorum/internal/llm"
	"quorum/internal/logging"
	"quorum/internal/plan"
)

// Consolidated is the per-check outcome handed to the report builder.
type Consolidated struct {
	CheckID       string         `json:"check_id"`
	Policy        plan.Policy    `json:"policy"`
	Verdict       plan.Verdict   `json:"verdict"`
	AgreementRate float64        `json:"agreement_rate"`
	Findings      []plan.Finding `json:"findings,omitempty"`
	Rationale     string         `json:"rationale,omitempty"`
	Incomplete    bool           `json:"incomplete"`
	RunsCompleted int            `json:"runs_completed"`
	RunsRequired  int            `json:"runs_required"`
}

// Consolidator reduces run results check by check.
type Consolidator struct {
	cli llm.Client // judge synthesis; nil degrades judge to a pure reduction
	log *slog.Logger
}

func New(cli llm.Client) *Consolidator {
	return &Consolidator{cli: cli, log: logging.New("consensus")}
}

// Consolidate reduces all runs of all checks, in plan order. It fails only
// on configuration errors (a deterministic check with more than one run);
// run-level trouble is absorbed into the per-check verdicts.
func (c *Consolidator) Consolidate(ctx context.Context, p *plan.Plan, runs []engine.RunResult) ([]Consolidated, error) {
	byCheck := map[string][]engine.RunResult{}
	for _, r := range runs {
		byCheck[r.CheckID] = append(byCheck[r.CheckID], r)
	}

	out := make([]Consolidated, 0, len(p.Checks))
	for i := range p.Checks {
		spec := &p.Checks[i]
		cons, err := c.consolidateCheck(ctx, spec, byCheck[spec.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, cons)
		delete(byCheck, spec.ID)
	}
	for id := range byCheck {
		c.log.Warn("dropping runs for check absent from plan", "check", id)
	}
	return out, nil
}

func (c *Consolidator) consolidateCheck(ctx context.Context, spec *plan.CheckSpec, runs []engine.RunResult) (Consolidated, error) {
	cons := Consolidated{CheckID: spec.ID, Policy: spec.Policy, RunsRequired: spec.Runs}

	var completed []engine.RunResult
	for _, r := range runs {
		if r.Completed() {
			completed = append(completed, r)
		}
	}
	cons.RunsCompleted = len(completed)
	cons.Incomplete = len(completed) < spec.Runs

	votes := countVotes(completed)
	if len(completed) > 0 {
		_, top := plurality(votes)
		cons.AgreementRate = float64(top) / float64(len(completed))
	}

	switch spec.Policy {
	case plan.PolicyDeterministic:
		if spec.Runs != 1 || len(runs) > 1 {
			return cons, fmt.Errorf("check %s: deterministic policy with %d runs is a configuration error",
				spec.ID, max(spec.Runs, len(runs)))
		}
		c.deterministic(&cons, completed)
	case plan.PolicyMajority:
		c.majority(&cons, completed, votes)
	case plan.PolicyUnanimous:
		c.unanimous(&cons, completed, votes)
	case plan.PolicyJudge:
		c.judge(ctx, spec, &cons, completed, votes)
	default:
		return cons, fmt.Errorf("check %s: unknown policy %q", spec.ID, spec.Policy)
	}

	if cons.Incomplete {
		cons.Verdict = plan.MaxVerdict(cons.Verdict, plan.VerdictNeedsReview)
		cons.Rationale = appendNote(cons.Rationale,
			fmt.Sprintf("only %d of %d runs completed", len(completed), spec.Runs))
	}

	c.log.Debug("check consolidated",
		"check", spec.ID, "policy", string(spec.Policy), "verdict", string(cons.Verdict),
		"agreement", cons.AgreementRate, "incomplete", cons.Incomplete)
	return cons, nil
}

// deterministic reports the single run verbatim. An indeterminate run has
// no judgment to report and lands on needs_review.
func (c *Consolidator) deterministic(cons *Consolidated, completed []engine.RunResult) {
	if len(completed) == 0 {
		cons.Verdict = plan.VerdictNeedsReview
		cons.Rationale = "the single run did not complete"
		return
	}
	r := completed[0]
	if r.Verdict == plan.VerdictIndeterminate {
		cons.Verdict = plan.VerdictNeedsReview
		cons.Rationale = appendNote(
			fmt.Sprintf("run indeterminate after %d attempts", r.Attempts), r.Error)
		return
	}
	cons.Verdict = r.Verdict
	cons.Findings = r.Findings
	cons.Rationale = r.Rationale
}

// majority requires a strict majority of completed runs. Ties and
// pluralities below half land on needs_review.
func (c *Consolidator) majority(cons *Consolidated, completed []engine.RunResult, votes map[plan.Verdict]int) {
	if len(completed) == 0 {
		cons.Verdict = plan.VerdictNeedsReview
		cons.Rationale = "no completed runs"
		return
	}
	cons.Findings = mergeFindings(completed)

	winner, top := plurality(votes)
	if 2*top <= len(completed) {
		cons.Verdict = plan.VerdictNeedsReview
		cons.Rationale = fmt.Sprintf("no strict majority (%s)", voteSummary(votes))
		return
	}
	if winner == plan.VerdictIndeterminate {
		cons.Verdict = plan.VerdictNeedsReview
		cons.Rationale = fmt.Sprintf("majority of runs indeterminate (%s)", voteSummary(votes))
		return
	}
	cons.Verdict = winner
	cons.Rationale = fmt.Sprintf("%d of %d completed runs returned %s", top, len(completed), winner)
}

// unanimous accepts only total agreement; any split is a signal that a
// human should look.
func (c *Consolidator) unanimous(cons *Consolidated, completed []engine.RunResult, votes map[plan.Verdict]int) {
	verdict, rationale := reduceUnanimous(completed, votes)
	cons.Verdict = verdict
	cons.Rationale = rationale
	cons.Findings = mergeFindings(completed)
}

// reduceUnanimous is the unanimity core, shared with the judge fallback.
func reduceUnanimous(completed []engine.RunResult, votes map[plan.Verdict]int) (plan.Verdict, string) {
	if len(completed) == 0 {
		return plan.VerdictNeedsReview, "no completed runs"
	}
	if len(votes) > 1 {
		return plan.VerdictNeedsReview, fmt.Sprintf("runs split (%s); unanimity required", voteSummary(votes))
	}
	only, _ := plurality(votes)
	if only == plan.VerdictIndeterminate {
		return plan.VerdictNeedsReview, "all runs indeterminate"
	}
	return only, fmt.Sprintf("all %d completed runs returned %s", len(completed), only)
}

func countVotes(completed []engine.RunResult) map[plan.Verdict]int {
	votes := map[plan.Verdict]int{}
	for _, r := range completed {
		votes[r.Verdict]++
	}
	return votes
}

// plurality returns the most common verdict and its count. A count tie
// resolves toward the more severe verdict so the result is stable.
func plurality(votes map[plan.Verdict]int) (plan.Verdict, int) {
	var winner plan.Verdict
	best := 0
	for v, n := range votes {
		switch {
		case n > best:
			winner, best = v, n
		case n == best:
			winner = plan.MaxVerdict(winner, v)
		}
	}
	return winner, best
}

// voteSummary renders votes as "2x pass, 1x fail", largest bucket first.
func voteSummary(votes map[plan.Verdict]int) string {
	type bucket struct {
		v plan.Verdict
		n int
	}
	buckets := make([]bucket, 0, len(votes))
	for v, n := range votes {
		buckets = append(buckets, bucket{v, n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].n != buckets[j].n {
			return buckets[i].n > buckets[j].n
		}
		return plan.MaxVerdict(buckets[i].v, buckets[j].v) == buckets[i].v
	})
	parts := make([]string, len(buckets))
	for i, b := range buckets {
		parts[i] = fmt.Sprintf("%dx %s", b.n, b.v)
	}
	return strings.Join(parts, ", ")
}

// mergeFindings unions findings across runs, dropping exact duplicates.
// Independent runs flagging the same problem should not inflate the report.
func mergeFindings(completed []engine.RunResult) []plan.Finding {
	seen := map[string]bool{}
	var merged []plan.Finding
	for _, r := range completed {
		for _, f := range r.Findings {
			key := f.Severity + "|" + f.Summary + "|" + f.Path
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, f)
		}
	}
	return merged
}

func appendNote(s, note string) string {
	if note == "" {
		return s
	}
	if s == "" {
		return note
	}
	return s + "; " + note
}
