package consensus

import (
	"context"
	"encoding/json"
	"fmt"

	"quorum/internal/engine"
	"quorum/internal/plan"
)

// judgeRawLimit bounds how much of each run's raw output enters the
// synthesis prompt.
const judgeRawLimit = 4 * 1024

// judge synthesizes a verdict over the raw run outputs. It is the only
// policy allowed to reweight a fail, and only downward pressure backed by
// nothing worse than minor findings can move: a fail supported by a
// critical or major finding stands, and no fail ever synthesizes into a
// clean pass.
//
// A missing or failing judge model degrades to the unanimity reduction; a
// check never dies because its judge did.
func (c *Consolidator) judge(ctx context.Context, spec *plan.CheckSpec, cons *Consolidated, completed []engine.RunResult, votes map[plan.Verdict]int) {
	if len(completed) == 0 {
		cons.Verdict = plan.VerdictNeedsReview
		cons.Rationale = "no completed runs"
		return
	}
	cons.Findings = mergeFindings(completed)

	fallback := func(note string) {
		verdict, rationale := reduceUnanimous(completed, votes)
		cons.Verdict = verdict
		cons.Rationale = appendNote(rationale, note)
	}

	if c.cli == nil {
		fallback("judge unavailable; applied unanimity reduction")
		return
	}

	raw, err := c.cli.GenerateJSON(ctx, buildJudgePrompt(spec, completed), nil)
	if err != nil {
		c.log.Warn("judge call failed", "check", spec.ID, "error", err)
		fallback(fmt.Sprintf("judge call failed (%v); applied unanimity reduction", err))
		return
	}

	var resp struct {
		Verdict   string         `json:"verdict"`
		Findings  []plan.Finding `json:"findings"`
		Rationale string         `json:"rationale"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		fallback("judge returned unparseable output; applied unanimity reduction")
		return
	}
	verdict, ok := plan.NormalizeVerdict(resp.Verdict)
	if !ok || verdict == plan.VerdictIndeterminate {
		fallback(fmt.Sprintf("judge returned unusable verdict %q; applied unanimity reduction", resp.Verdict))
		return
	}

	anyFail := votes[plan.VerdictFail] > 0
	if anyFail && verdict == plan.VerdictPass {
		verdict = plan.VerdictNeedsReview
		resp.Rationale = appendNote(resp.Rationale, "a failing run caps the synthesis at needs_review")
	}
	if anyFail && verdict == plan.VerdictNeedsReview && hasBlockingFinding(completed) {
		verdict = plan.VerdictFail
		resp.Rationale = appendNote(resp.Rationale, "critical or major findings cannot be reweighted")
	}

	cons.Verdict = verdict
	if len(resp.Findings) > 0 {
		for i := range resp.Findings {
			resp.Findings[i].Severity = plan.NormalizeSeverity(resp.Findings[i].Severity)
		}
		cons.Findings = resp.Findings
	}
	cons.Rationale = resp.Rationale
}

// hasBlockingFinding reports whether any failing run is backed by a
// critical or major finding. Such a fail is evidence, not noise.
func hasBlockingFinding(completed []engine.RunResult) bool {
	for _, r := range completed {
		if r.Verdict != plan.VerdictFail {
			continue
		}
		for _, f := range r.Findings {
			if f.Severity == "critical" || f.Severity == "major" {
				return true
			}
		}
	}
	return false
}

func buildJudgePrompt(spec *plan.CheckSpec, completed []engine.RunResult) string {
	prompt := fmt.Sprintf("You are the judge for verification check %q (%s).\nScope: %s\n", spec.ID, spec.Perspective, spec.Scope)
	prompt += fmt.Sprintf("\n%d independent runs reported:\n", len(completed))

	for _, r := range completed {
		prompt += fmt.Sprintf("\n--- run %d: verdict=%s\n", r.RunIndex+1, r.Verdict)
		if r.Raw != "" {
			raw := r.Raw
			if len(raw) > judgeRawLimit {
				raw = raw[:judgeRawLimit] + "\n[... truncated ...]"
			}
			prompt += raw + "\n"
			continue
		}
		if r.Rationale != "" {
			prompt += "rationale: " + r.Rationale + "\n"
		}
		for _, f := range r.Findings {
			prompt += fmt.Sprintf("  [%s] %s", f.Severity, f.Summary)
			if f.Path != "" {
				prompt += " (" + f.Path + ")"
			}
			prompt += "\n"
		}
	}

	prompt += "\nWeigh the runs as evidence about the same change. Runs may have seen different fragments of one problem; reconcile them instead of counting heads. You may soften a fail to needs_review only when the findings behind it are minor. Never clear a concrete defect.\n"
	prompt += "\nOutput JSON with fields: verdict (pass|fail|needs_review), findings (array of {severity, summary, path}), rationale."
	return prompt
}
