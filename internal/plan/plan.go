// Package plan turns agent transcripts and repository state into a
// verification plan: which reviewer perspectives to run, how many instances
// of each, what every instance looks at, and how per-run verdicts converge
// into check verdicts.
//
// Planning is a single model call followed by five normalization stages.
// There is no fallback plan: if the model output cannot be normalized into a
// valid Plan, the whole verification fails before any check runs.
package plan

import (
	"fmt"
	"strings"
)

// Verdict is the outcome vocabulary shared by runs, checks, and reports.
// Runs may additionally report indeterminate when they crash out of their
// attempt budget; consolidated checks and reports only use the other three.
type Verdict string

const (
	VerdictPass          Verdict = "pass"
	VerdictFail          Verdict = "fail"
	VerdictNeedsReview   Verdict = "needs_review"
	VerdictIndeterminate Verdict = "indeterminate"
)

// verdictRank orders verdicts for worst-of merges. A missing entry ranks
// lowest, so unknown input never outranks a real verdict.
var verdictRank = map[Verdict]int{
	VerdictPass:          1,
	VerdictIndeterminate: 2,
	VerdictNeedsReview:   3,
	VerdictFail:          4,
}

// MaxVerdict returns the more severe of two verdicts.
func MaxVerdict(a, b Verdict) Verdict {
	if verdictRank[b] > verdictRank[a] {
		return b
	}
	return a
}

// NormalizeVerdict maps model-provided spellings onto canonical verdicts.
// Model output drifts; downstream code only ever sees the canonical four.
func NormalizeVerdict(s string) (Verdict, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "passed", "ok", "success":
		return VerdictPass, true
	case "fail", "failed", "failure":
		return VerdictFail, true
	case "needs_review", "needs-review", "needs review", "review", "uncertain":
		return VerdictNeedsReview, true
	case "indeterminate", "unknown", "inconclusive":
		return VerdictIndeterminate, true
	}
	return "", false
}

// Policy selects how per-run verdicts converge into one check verdict.
type Policy string

const (
	// PolicyDeterministic runs once and reports that run verbatim.
	PolicyDeterministic Policy = "deterministic"
	// PolicyMajority requires a strict majority of completed runs.
	PolicyMajority Policy = "majority"
	// PolicyUnanimous treats any split as needs_review.
	PolicyUnanimous Policy = "unanimous"
	// PolicyJudge synthesizes a verdict over the raw run outputs.
	PolicyJudge Policy = "judge"
)

// NormalizePolicy maps model-provided spellings onto canonical policies.
func NormalizePolicy(s string) (Policy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deterministic", "exact", "single":
		return PolicyDeterministic, true
	case "majority", "majority_vote", "majority-vote", "vote", "voting":
		return PolicyMajority, true
	case "unanimous", "unanimity", "all":
		return PolicyUnanimous, true
	case "judge", "judged", "synthesis", "judge_synthesis":
		return PolicyJudge, true
	}
	return "", false
}

// NormalizeSeverity maps model-provided severities onto the canonical four.
// Anything unrecognized lands on info rather than being dropped.
func NormalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "blocker", "fatal":
		return "critical"
	case "major", "high", "severe":
		return "major"
	case "minor", "medium", "moderate", "low":
		return "minor"
	default:
		return "info"
	}
}

// Finding is one issue surfaced by a run or a judge synthesis.
type Finding struct {
	Severity string `json:"severity"` // critical, major, minor, info
	Summary  string `json:"summary"`
	Path     string `json:"path,omitempty"`
}

// CheckSpec is one verification check: a reviewer perspective applied with a
// fixed scope, convergence policy, and run count.
type CheckSpec struct {
	ID          string   `json:"id"`
	Perspective string   `json:"perspective"` // reviewer role, e.g. "concurrency reviewer"
	Scope       string   `json:"scope"`       // concrete instruction for this check
	FocusPaths  []string `json:"focus_paths,omitempty"`
	// Command, when set, makes this a deterministic check: the command's
	// exit code is the verdict and no model is involved in the run.
	Command      string `json:"command,omitempty"`
	Policy       Policy `json:"policy"`
	Runs         int    `json:"runs"`
	Coordination string `json:"coordination,omitempty"` // rationale for unusually wide fan-out
}

// Deterministic reports whether the check runs a command instead of a model.
func (c *CheckSpec) Deterministic() bool { return c.Policy == PolicyDeterministic }

// StageTrace records the adjustments one planning stage made.
type StageTrace struct {
	Stage string   `json:"stage"` // e.g. "S1_PERSPECTIVES"
	Notes []string `json:"notes"`
}

// Plan is the complete verification plan for one change.
type Plan struct {
	Reasoning string       `json:"reasoning"`
	Checks    []CheckSpec  `json:"checks"`
	Trace     []StageTrace `json:"trace,omitempty"`
}

// Constraints narrow the planner without choosing for it.
type Constraints struct {
	// Complexity is a caller-supplied tier hint ("low", "medium", "high").
	// It steers the model; it is never enforced during normalization.
	Complexity string
	// MinRuns raises the run count of judgment checks. It never lowers one
	// and never touches deterministic checks.
	MinRuns int
}

// TotalRuns sums the run counts across all checks.
func (p *Plan) TotalRuns() int {
	total := 0
	for i := range p.Checks {
		total += p.Checks[i].Runs
	}
	return total
}

// Check returns the spec with the given ID, or nil.
func (p *Plan) Check(id string) *CheckSpec {
	for i := range p.Checks {
		if p.Checks[i].ID == id {
			return &p.Checks[i]
		}
	}
	return nil
}

// Validate enforces the invariants every normalized plan must hold. The
// planner calls this after its final stage; loaders of persisted plans call
// it on their own input.
func (p *Plan) Validate() error {
	if len(p.Checks) == 0 {
		return fmt.Errorf("plan has no checks")
	}
	seen := map[string]bool{}
	for i := range p.Checks {
		c := &p.Checks[i]
		if c.ID == "" {
			return fmt.Errorf("check %d has no id", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate check id %q", c.ID)
		}
		seen[c.ID] = true
		if strings.TrimSpace(c.Scope) == "" {
			return fmt.Errorf("check %s has no scope", c.ID)
		}
		switch c.Policy {
		case PolicyDeterministic:
			if c.Command == "" {
				return fmt.Errorf("check %s is deterministic but has no command", c.ID)
			}
			if c.Runs != 1 {
				return fmt.Errorf("check %s is deterministic but has %d runs", c.ID, c.Runs)
			}
		case PolicyMajority, PolicyUnanimous, PolicyJudge:
			if c.Runs < 1 {
				return fmt.Errorf("check %s has %d runs", c.ID, c.Runs)
			}
		default:
			return fmt.Errorf("check %s has unknown policy %q", c.ID, c.Policy)
		}
	}
	return nil
}
