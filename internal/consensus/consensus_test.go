package consensus_test

import (
	"context"
	"math"
	"strings"
	"testing"

	"quorum/internal/consensus"
	"quorum/internal/engine"
	"quorum/internal/plan"
)

func spec(id string, policy plan.Policy, runs int) *plan.Plan {
	c := plan.CheckSpec{ID: id, Perspective: "reviewer", Scope: "inspect the change", Policy: policy, Runs: runs}
	if policy == plan.PolicyDeterministic {
		c.Command = "true"
	}
	return &plan.Plan{Checks: []plan.CheckSpec{c}}
}

func run(check string, idx int, v plan.Verdict, findings ...plan.Finding) engine.RunResult {
	return engine.RunResult{CheckID: check, RunIndex: idx, Verdict: v, Findings: findings, Attempts: 1}
}

func abandonedRun(check string, idx int) engine.RunResult {
	return engine.RunResult{CheckID: check, RunIndex: idx, Abandoned: true}
}

func consolidate(t *testing.T, p *plan.Plan, runs []engine.RunResult) consensus.Consolidated {
	t.Helper()
	out, err := consensus.New(nil).Consolidate(context.Background(), p, runs)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(out) != len(p.Checks) {
		t.Fatalf("consolidated %d checks, want %d", len(out), len(p.Checks))
	}
	return out[0]
}

func wantAgreement(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("agreement = %v, want %v", got, want)
	}
}

func TestMajority_TwoOfThreePasses(t *testing.T) {
	cons := consolidate(t, spec("review", plan.PolicyMajority, 3), []engine.RunResult{
		run("review", 0, plan.VerdictPass),
		run("review", 1, plan.VerdictPass),
		run("review", 2, plan.VerdictFail),
	})
	if cons.Verdict != plan.VerdictPass {
		t.Errorf("verdict = %s, want pass", cons.Verdict)
	}
	wantAgreement(t, cons.AgreementRate, 2.0/3.0)
	if cons.Incomplete {
		t.Error("check is complete")
	}
}

func TestMajority_TwoRunTieNeedsReview(t *testing.T) {
	cons := consolidate(t, spec("review", plan.PolicyMajority, 2), []engine.RunResult{
		run("review", 0, plan.VerdictPass),
		run("review", 1, plan.VerdictFail),
	})
	if cons.Verdict != plan.VerdictNeedsReview {
		t.Errorf("verdict = %s, want needs_review on a tie", cons.Verdict)
	}
	wantAgreement(t, cons.AgreementRate, 0.5)
}

func TestMajority_IndeterminateMajorityNeedsReview(t *testing.T) {
	cons := consolidate(t, spec("review", plan.PolicyMajority, 3), []engine.RunResult{
		run("review", 0, plan.VerdictIndeterminate),
		run("review", 1, plan.VerdictIndeterminate),
		run("review", 2, plan.VerdictPass),
	})
	if cons.Verdict != plan.VerdictNeedsReview {
		t.Errorf("verdict = %s, want needs_review", cons.Verdict)
	}
	if !strings.Contains(cons.Rationale, "indeterminate") {
		t.Errorf("rationale = %q", cons.Rationale)
	}
}

func TestUnanimous_AgreementHolds(t *testing.T) {
	cons := consolidate(t, spec("review", plan.PolicyUnanimous, 2), []engine.RunResult{
		run("review", 0, plan.VerdictPass),
		run("review", 1, plan.VerdictPass),
	})
	if cons.Verdict != plan.VerdictPass {
		t.Errorf("verdict = %s, want pass", cons.Verdict)
	}
	wantAgreement(t, cons.AgreementRate, 1.0)
}

func TestUnanimous_SingleDissentNeedsReview(t *testing.T) {
	cons := consolidate(t, spec("review", plan.PolicyUnanimous, 3), []engine.RunResult{
		run("review", 0, plan.VerdictPass),
		run("review", 1, plan.VerdictPass),
		run("review", 2, plan.VerdictNeedsReview),
	})
	if cons.Verdict != plan.VerdictNeedsReview {
		t.Errorf("verdict = %s, want needs_review on dissent", cons.Verdict)
	}
	wantAgreement(t, cons.AgreementRate, 2.0/3.0)
}

func TestDeterministic_ReportsRunVerbatim(t *testing.T) {
	f := plan.Finding{Severity: "major", Summary: "go vet exited 1"}
	cons := consolidate(t, spec("vet", plan.PolicyDeterministic, 1), []engine.RunResult{
		run("vet", 0, plan.VerdictFail, f),
	})
	if cons.Verdict != plan.VerdictFail {
		t.Errorf("verdict = %s, want fail", cons.Verdict)
	}
	wantAgreement(t, cons.AgreementRate, 1.0)
	if len(cons.Findings) != 1 || cons.Findings[0].Summary != f.Summary {
		t.Errorf("findings = %+v", cons.Findings)
	}
}

func TestDeterministic_ExtraRunsAreConfigError(t *testing.T) {
	p := spec("vet", plan.PolicyDeterministic, 2)
	_, err := consensus.New(nil).Consolidate(context.Background(), p, []engine.RunResult{
		run("vet", 0, plan.VerdictPass),
		run("vet", 1, plan.VerdictPass),
	})
	if err == nil {
		t.Fatal("expected configuration error for deterministic check with 2 runs")
	}
}

func TestDeterministic_IndeterminateRunNeedsReview(t *testing.T) {
	r := run("vet", 0, plan.VerdictIndeterminate)
	r.Error = "command never started"
	r.Attempts = 2
	cons := consolidate(t, spec("vet", plan.PolicyDeterministic, 1), []engine.RunResult{r})
	if cons.Verdict != plan.VerdictNeedsReview {
		t.Errorf("verdict = %s, want needs_review", cons.Verdict)
	}
}

func TestIncomplete_CancelledRunsCapVerdict(t *testing.T) {
	cons := consolidate(t, spec("review", plan.PolicyMajority, 3), []engine.RunResult{
		run("review", 0, plan.VerdictPass),
		abandonedRun("review", 1),
		abandonedRun("review", 2),
	})
	if !cons.Incomplete {
		t.Error("check with abandoned runs must be incomplete")
	}
	if cons.RunsCompleted != 1 || cons.RunsRequired != 3 {
		t.Errorf("completed %d/%d, want 1/3", cons.RunsCompleted, cons.RunsRequired)
	}
	if cons.Verdict == plan.VerdictPass {
		t.Error("incomplete check must not report pass")
	}
	if !strings.Contains(cons.Rationale, "1 of 3") {
		t.Errorf("rationale = %q, want completion note", cons.Rationale)
	}
}

func TestIncomplete_DoesNotSoftenFail(t *testing.T) {
	cons := consolidate(t, spec("review", plan.PolicyUnanimous, 3), []engine.RunResult{
		run("review", 0, plan.VerdictFail),
		run("review", 1, plan.VerdictFail),
		abandonedRun("review", 2),
	})
	if cons.Verdict != plan.VerdictFail {
		t.Errorf("verdict = %s, incomplete must not downgrade fail", cons.Verdict)
	}
	if !cons.Incomplete {
		t.Error("want incomplete")
	}
}

func TestIncomplete_NoRunsAtAll(t *testing.T) {
	cons := consolidate(t, spec("review", plan.PolicyMajority, 3), nil)
	if cons.Verdict != plan.VerdictNeedsReview || !cons.Incomplete {
		t.Errorf("got %s incomplete=%v, want needs_review incomplete", cons.Verdict, cons.Incomplete)
	}
	wantAgreement(t, cons.AgreementRate, 0)
}

func TestFindingsMergeDropsDuplicates(t *testing.T) {
	dup := plan.Finding{Severity: "minor", Summary: "shadowed err", Path: "a.go"}
	cons := consolidate(t, spec("review", plan.PolicyMajority, 3), []engine.RunResult{
		run("review", 0, plan.VerdictFail, dup),
		run("review", 1, plan.VerdictFail, dup, plan.Finding{Severity: "major", Summary: "lost cancel"}),
		run("review", 2, plan.VerdictFail),
	})
	if len(cons.Findings) != 2 {
		t.Errorf("findings = %+v, want 2 after dedup", cons.Findings)
	}
}

func TestConsolidate_PreservesPlanOrder(t *testing.T) {
	p := &plan.Plan{Checks: []plan.CheckSpec{
		{ID: "b-check", Perspective: "r", Scope: "s", Policy: plan.PolicyMajority, Runs: 1},
		{ID: "a-check", Perspective: "r", Scope: "s", Policy: plan.PolicyMajority, Runs: 1},
	}}
	out, err := consensus.New(nil).Consolidate(context.Background(), p, []engine.RunResult{
		run("a-check", 0, plan.VerdictPass),
		run("b-check", 0, plan.VerdictPass),
	})
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if out[0].CheckID != "b-check" || out[1].CheckID != "a-check" {
		t.Errorf("order = %s, %s, want plan order", out[0].CheckID, out[1].CheckID)
	}
}
