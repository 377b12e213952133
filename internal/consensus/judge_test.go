package consensus_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quorum/internal/consensus"
	"quorum/internal/engine"
	"quorum/internal/llm"
	"quorum/internal/plan"
)

func judgePlan(runs int) *plan.Plan {
	return &plan.Plan{Checks: []plan.CheckSpec{{
		ID: "flaky-review", Perspective: "regression tester",
		Scope: "decide whether the intermittent timeout reports are real",
		Policy: plan.PolicyJudge, Runs: runs,
	}}}
}

func judgeConsolidate(t *testing.T, cli llm.Client, runs []engine.RunResult) consensus.Consolidated {
	t.Helper()
	out, err := consensus.New(cli).Consolidate(context.Background(), judgePlan(len(runs)), runs)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	return out[0]
}

func TestJudge_SynthesizesVerdict(t *testing.T) {
	stub := llm.NewStub(`{
		"verdict": "needs_review",
		"findings": [{"severity": "minor", "summary": "runs disagree on timeout root cause"}],
		"rationale": "both fail reports describe the same flaky fixture"
	}`)
	cons := judgeConsolidate(t, stub, []engine.RunResult{
		run("flaky-review", 0, plan.VerdictFail, plan.Finding{Severity: "minor", Summary: "timeout in TestSlow"}),
		run("flaky-review", 1, plan.VerdictPass),
		run("flaky-review", 2, plan.VerdictFail, plan.Finding{Severity: "minor", Summary: "timeout in TestSlow"}),
	})
	if cons.Verdict != plan.VerdictNeedsReview {
		t.Errorf("verdict = %s, want judge's needs_review", cons.Verdict)
	}
	if !strings.Contains(cons.Rationale, "flaky fixture") {
		t.Errorf("rationale = %q, want judge rationale", cons.Rationale)
	}
	if len(cons.Findings) != 1 || cons.Findings[0].Summary != "runs disagree on timeout root cause" {
		t.Errorf("findings = %+v, want judge findings", cons.Findings)
	}
	wantAgreement(t, cons.AgreementRate, 2.0/3.0)
}

func TestJudge_DowngradesMinorBackedFail(t *testing.T) {
	stub := llm.NewStub(`{"verdict": "needs_review", "rationale": "fail evidence is a naming nit"}`)
	cons := judgeConsolidate(t, stub, []engine.RunResult{
		run("flaky-review", 0, plan.VerdictFail, plan.Finding{Severity: "minor", Summary: "loop variable name"}),
		run("flaky-review", 1, plan.VerdictFail, plan.Finding{Severity: "minor", Summary: "loop variable name"}),
	})
	if cons.Verdict != plan.VerdictNeedsReview {
		t.Errorf("verdict = %s, want downgrade to needs_review", cons.Verdict)
	}
}

func TestJudge_CannotReweightMajorFindings(t *testing.T) {
	stub := llm.NewStub(`{"verdict": "needs_review", "rationale": "probably fine"}`)
	cons := judgeConsolidate(t, stub, []engine.RunResult{
		run("flaky-review", 0, plan.VerdictFail, plan.Finding{Severity: "major", Summary: "nil deref on retry path"}),
		run("flaky-review", 1, plan.VerdictPass),
	})
	if cons.Verdict != plan.VerdictFail {
		t.Errorf("verdict = %s, major-backed fail must stand", cons.Verdict)
	}
	if !strings.Contains(cons.Rationale, "cannot be reweighted") {
		t.Errorf("rationale = %q, want clamp note", cons.Rationale)
	}
}

func TestJudge_NeverClearsFailToPass(t *testing.T) {
	stub := llm.NewStub(`{"verdict": "pass", "rationale": "dissent looks spurious"}`)
	cons := judgeConsolidate(t, stub, []engine.RunResult{
		run("flaky-review", 0, plan.VerdictPass),
		run("flaky-review", 1, plan.VerdictFail),
	})
	if cons.Verdict != plan.VerdictNeedsReview {
		t.Errorf("verdict = %s, want cap at needs_review", cons.Verdict)
	}
}

func TestJudge_PassWithCleanRuns(t *testing.T) {
	stub := llm.NewStub(`{"verdict": "pass", "rationale": "all runs clean"}`)
	cons := judgeConsolidate(t, stub, []engine.RunResult{
		run("flaky-review", 0, plan.VerdictPass),
		run("flaky-review", 1, plan.VerdictPass),
	})
	if cons.Verdict != plan.VerdictPass {
		t.Errorf("verdict = %s, want pass", cons.Verdict)
	}
}

func TestJudge_NoClientFallsBackToUnanimity(t *testing.T) {
	cons := judgeConsolidate(t, nil, []engine.RunResult{
		run("flaky-review", 0, plan.VerdictPass),
		run("flaky-review", 1, plan.VerdictFail),
	})
	if cons.Verdict != plan.VerdictNeedsReview {
		t.Errorf("verdict = %s, want unanimity fallback needs_review", cons.Verdict)
	}
	if !strings.Contains(cons.Rationale, "judge unavailable") {
		t.Errorf("rationale = %q, want fallback note", cons.Rationale)
	}
}

func TestJudge_ModelFailureFallsBack(t *testing.T) {
	stub := llm.NewStub().ThenErr(errors.New("quota exhausted"))
	cons := judgeConsolidate(t, stub, []engine.RunResult{
		run("flaky-review", 0, plan.VerdictPass),
		run("flaky-review", 1, plan.VerdictPass),
	})
	if cons.Verdict != plan.VerdictPass {
		t.Errorf("verdict = %s, want unanimity fallback pass", cons.Verdict)
	}
	if !strings.Contains(cons.Rationale, "judge call failed") {
		t.Errorf("rationale = %q, want failure note", cons.Rationale)
	}
}

func TestJudge_UnusableOutputFallsBack(t *testing.T) {
	stub := llm.NewStub(`{"verdict": "kind of fine"}`)
	cons := judgeConsolidate(t, stub, []engine.RunResult{
		run("flaky-review", 0, plan.VerdictPass),
		run("flaky-review", 1, plan.VerdictPass),
	})
	if cons.Verdict != plan.VerdictPass {
		t.Errorf("verdict = %s, want fallback pass", cons.Verdict)
	}
	if !strings.Contains(cons.Rationale, "unusable verdict") {
		t.Errorf("rationale = %q", cons.Rationale)
	}
}

func TestJudge_PromptCarriesRawOutputs(t *testing.T) {
	stub := llm.NewStub(`{"verdict": "pass", "rationale": "ok"}`)
	r0 := run("flaky-review", 0, plan.VerdictPass)
	r0.Raw = `{"verdict":"pass","rationale":"saw no timeout"}`
	r1 := run("flaky-review", 1, plan.VerdictFail)
	r1.Rationale = "timeout reproduced twice"
	judgeConsolidate(t, stub, []engine.RunResult{r0, r1})

	prompt := stub.Calls()[0].Prompt
	for _, want := range []string{"saw no timeout", "timeout reproduced twice", "intermittent timeout"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("judge prompt missing %q", want)
		}
	}
}
