package plan_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quorum/internal/gitview"
	"quorum/internal/llm"
	"quorum/internal/plan"
)

func planFor(t *testing.T, stub *llm.Stub, in plan.Input) *plan.Plan {
	t.Helper()
	p, err := plan.NewPlanner(stub).Plan(context.Background(), in)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return p
}

func traceNotes(p *plan.Plan, stage string) []string {
	for _, tr := range p.Trace {
		if tr.Stage == stage {
			return tr.Notes
		}
	}
	return nil
}

func TestPlan_HappyPath(t *testing.T) {
	stub := llm.NewStub(`{
		"reasoning": "two-sided review of the cache rewrite",
		"checks": [
			{"id": "race-review", "perspective": "concurrency reviewer",
			 "scope": "inspect cache.go for data races around the new eviction path",
			 "focus_paths": ["internal/cache/cache.go"],
			 "policy": "majority", "runs": 3},
			{"id": "tests", "perspective": "test runner",
			 "scope": "run the cache package tests",
			 "command": "go test ./internal/cache/", "policy": "deterministic", "runs": 1}
		]
	}`)
	p := planFor(t, stub, plan.Input{Transcript: "agent rewrote the cache"})

	if len(p.Checks) != 2 {
		t.Fatalf("checks = %d, want 2", len(p.Checks))
	}
	if p.Checks[0].Policy != plan.PolicyMajority || p.Checks[0].Runs != 3 {
		t.Errorf("race-review = %s/%d", p.Checks[0].Policy, p.Checks[0].Runs)
	}
	if !p.Checks[1].Deterministic() {
		t.Errorf("tests check should be deterministic")
	}
	if len(p.Trace) != 0 {
		t.Errorf("clean draft should need no normalization, trace = %+v", p.Trace)
	}
}

func TestPlan_ClampsFanOutWithoutCoordination(t *testing.T) {
	stub := llm.NewStub(`{"checks": [
		{"id": "review", "perspective": "reviewer",
		 "scope": "audit the new retry loop in client.go",
		 "policy": "majority", "runs": 7}
	]}`)
	p := planFor(t, stub, plan.Input{})

	if p.Checks[0].Runs != 4 {
		t.Errorf("runs = %d, want clamp to 4", p.Checks[0].Runs)
	}
	if notes := traceNotes(p, "S2_INSTANCES"); len(notes) == 0 {
		t.Error("expected an instance-count trace note")
	}
}

func TestPlan_KeepsWideFanOutWithCoordination(t *testing.T) {
	stub := llm.NewStub(`{"checks": [
		{"id": "review", "perspective": "reviewer",
		 "scope": "audit one migration file each across the six schema migrations",
		 "policy": "majority", "runs": 6,
		 "coordination": "one instance per migration file"}
	]}`)
	p := planFor(t, stub, plan.Input{})

	if p.Checks[0].Runs != 6 {
		t.Errorf("runs = %d, want 6 kept", p.Checks[0].Runs)
	}
}

func TestPlan_ReconcilesPolicyWithShape(t *testing.T) {
	stub := llm.NewStub(`{"checks": [
		{"id": "lint", "perspective": "linter",
		 "scope": "run the linter over the changed files",
		 "command": "golangci-lint run", "policy": "majority", "runs": 3},
		{"id": "design", "perspective": "design reviewer",
		 "scope": "judge whether the new interface fits the existing store API",
		 "policy": "deterministic", "runs": 1}
	]}`)
	p := planFor(t, stub, plan.Input{})

	if p.Checks[0].Policy != plan.PolicyDeterministic || p.Checks[0].Runs != 1 {
		t.Errorf("command check = %s/%d, want deterministic/1", p.Checks[0].Policy, p.Checks[0].Runs)
	}
	if p.Checks[1].Policy != plan.PolicyMajority {
		t.Errorf("judgment check = %s, want demotion to majority", p.Checks[1].Policy)
	}
	if notes := traceNotes(p, "S4_POLICIES"); len(notes) < 2 {
		t.Errorf("policy notes = %v, want both reconciliations recorded", notes)
	}
}

func TestPlan_UnknownPolicyAndMissingRunsDefault(t *testing.T) {
	stub := llm.NewStub(`{"checks": [
		{"id": "review", "perspective": "reviewer",
		 "scope": "walk the error paths added to the uploader",
		 "policy": "plurality"}
	]}`)
	p := planFor(t, stub, plan.Input{})

	if p.Checks[0].Policy != plan.PolicyMajority {
		t.Errorf("policy = %s, want majority fallback", p.Checks[0].Policy)
	}
	if p.Checks[0].Runs != 3 {
		t.Errorf("runs = %d, want majority default 3", p.Checks[0].Runs)
	}
}

func TestPlan_RunFloorOnlyRaises(t *testing.T) {
	stub := llm.NewStub(`{"checks": [
		{"id": "review", "perspective": "reviewer",
		 "scope": "check the pagination fix against off-by-one cases",
		 "policy": "majority", "runs": 2},
		{"id": "wide", "perspective": "reviewer",
		 "scope": "survey the renamed symbols for stale references",
		 "policy": "unanimous", "runs": 4},
		{"id": "build", "perspective": "build",
		 "scope": "compile the module",
		 "command": "go build ./...", "policy": "deterministic", "runs": 1}
	]}`)
	p := planFor(t, stub, plan.Input{Constraints: plan.Constraints{MinRuns: 3}})

	if p.Checks[0].Runs != 3 {
		t.Errorf("raised check runs = %d, want 3", p.Checks[0].Runs)
	}
	if p.Checks[1].Runs != 4 {
		t.Errorf("floor must not lower: runs = %d, want 4", p.Checks[1].Runs)
	}
	if p.Checks[2].Runs != 1 {
		t.Errorf("deterministic check runs = %d, want 1 untouched", p.Checks[2].Runs)
	}
}

func TestPlan_GenericScopeIsFatal(t *testing.T) {
	stub := llm.NewStub(`{"checks": [
		{"id": "review", "perspective": "reviewer",
		 "scope": "review everything", "policy": "majority", "runs": 3}
	]}`)
	_, err := plan.NewPlanner(stub).Plan(context.Background(), plan.Input{})
	if !errors.Is(err, plan.ErrPlanning) {
		t.Errorf("err = %v, want ErrPlanning", err)
	}
}

func TestPlan_ModelFailureIsFatal(t *testing.T) {
	stub := llm.NewStub().ThenErr(errors.New("rate limited"))
	_, err := plan.NewPlanner(stub).Plan(context.Background(), plan.Input{})
	if !errors.Is(err, plan.ErrPlanning) {
		t.Errorf("err = %v, want ErrPlanning", err)
	}
}

func TestPlan_UnparseableJSONIsFatal(t *testing.T) {
	stub := llm.NewStub(`the plan is to review carefully`)
	_, err := plan.NewPlanner(stub).Plan(context.Background(), plan.Input{})
	if !errors.Is(err, plan.ErrPlanning) {
		t.Errorf("err = %v, want ErrPlanning", err)
	}
}

func TestPlan_EmptyChecksIsFatal(t *testing.T) {
	stub := llm.NewStub(`{"reasoning": "nothing to verify", "checks": []}`)
	_, err := plan.NewPlanner(stub).Plan(context.Background(), plan.Input{})
	if !errors.Is(err, plan.ErrPlanning) {
		t.Errorf("err = %v, want ErrPlanning", err)
	}
}

func TestPlan_AcceptsWrappedDocument(t *testing.T) {
	stub := llm.NewStub(`{"plan": {"checks": [
		{"id": "review", "perspective": "reviewer",
		 "scope": "re-check the merge conflict resolution in router.go",
		 "policy": "unanimous", "runs": 2}
	]}}`)
	p := planFor(t, stub, plan.Input{})
	if len(p.Checks) != 1 || p.Checks[0].Policy != plan.PolicyUnanimous {
		t.Errorf("wrapped plan not decoded: %+v", p.Checks)
	}
}

func TestPlan_CleansFocusPaths(t *testing.T) {
	stub := llm.NewStub(`{"checks": [
		{"id": "review", "perspective": "reviewer",
		 "scope": "inspect the handler changes",
		 "focus_paths": ["a.go", "a.go", " b.go ", "../outside.go", "/abs.go"],
		 "policy": "majority", "runs": 3}
	]}`)
	p := planFor(t, stub, plan.Input{})

	got := p.Checks[0].FocusPaths
	if len(got) != 2 || got[0] != "a.go" || got[1] != "b.go" {
		t.Errorf("focus paths = %v, want [a.go b.go]", got)
	}
	if notes := traceNotes(p, "S3_SCOPES"); len(notes) == 0 {
		t.Error("expected scope notes for dropped paths")
	}
}

func TestPlan_RenamesDuplicateIDs(t *testing.T) {
	stub := llm.NewStub(`{"checks": [
		{"id": "review", "perspective": "reviewer",
		 "scope": "check the encoder half of the codec change",
		 "policy": "majority", "runs": 3},
		{"id": "review", "perspective": "reviewer",
		 "scope": "check the decoder half of the codec change",
		 "policy": "majority", "runs": 3}
	]}`)
	p := planFor(t, stub, plan.Input{})

	if p.Checks[0].ID != "review" || p.Checks[1].ID != "review-2" {
		t.Errorf("ids = %s, %s, want review, review-2", p.Checks[0].ID, p.Checks[1].ID)
	}
}

func TestPlan_PromptCarriesContext(t *testing.T) {
	stub := llm.NewStub(`{"checks": [
		{"id": "review", "perspective": "reviewer",
		 "scope": "verify the snapshot logic", "policy": "majority", "runs": 3}
	]}`)
	in := plan.Input{
		Transcript: "user: tighten the snapshot logic",
		Repo:       &gitview.Snapshot{Branch: "main", Head: "abc1234 snapshots", Changed: []string{"snap.go"}},
		Constraints: plan.Constraints{
			Complexity: "high",
			MinRuns:    3,
		},
	}
	planFor(t, stub, in)

	calls := stub.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	prompt := calls[0].Prompt
	for _, want := range []string{"tighten the snapshot logic", "snap.go", "high", "at least 3 runs"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
