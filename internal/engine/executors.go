package engine

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"text/template"

	"quorum/internal/llm"
	"quorum/internal/plan"
)

//go:embed run_prompt.md
var runPromptTemplate string

// JudgmentExecutor performs model-backed runs. Each run is a fresh prompt;
// no conversation state is shared between runs.
type JudgmentExecutor struct {
	cli llm.Client
}

func NewJudgmentExecutor(cli llm.Client) *JudgmentExecutor {
	return &JudgmentExecutor{cli: cli}
}

type runParams struct {
	Perspective string
	Scope       string
	FocusPaths  []string
	RunIndex    int
	Transcript  string
	Repo        string
}

func (x *JudgmentExecutor) Execute(ctx context.Context, rc RunContext) (*Outcome, error) {
	params := runParams{
		Perspective: rc.Check.Perspective,
		Scope:       rc.Check.Scope,
		FocusPaths:  rc.Check.FocusPaths,
		RunIndex:    rc.RunIndex,
		Transcript:  rc.Transcript,
	}
	if rc.Repo != nil {
		params.Repo = rc.Repo.Prompt()
	}
	tmpl, err := template.New("run").Parse(runPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse run template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return nil, fmt.Errorf("execute run template: %w", err)
	}

	raw, err := x.cli.GenerateJSON(ctx, buf.String(), nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Verdict   string         `json:"verdict"`
		Findings  []plan.Finding `json:"findings"`
		Rationale string         `json:"rationale"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unparseable run output: %v", err)
	}
	verdict, ok := plan.NormalizeVerdict(out.Verdict)
	if !ok {
		return nil, fmt.Errorf("run returned unusable verdict %q", out.Verdict)
	}
	if verdict == plan.VerdictNeedsReview {
		// Runs speak pass/fail/indeterminate; needs_review belongs to
		// consolidated checks. An unsettled run is indeterminate.
		verdict = plan.VerdictIndeterminate
	}
	for i := range out.Findings {
		out.Findings[i].Severity = plan.NormalizeSeverity(out.Findings[i].Severity)
	}
	return &Outcome{
		Verdict:   verdict,
		Findings:  out.Findings,
		Rationale: strings.TrimSpace(out.Rationale),
		Raw:       string(raw),
	}, nil
}

// CommandExecutor performs deterministic runs: the check's command decides
// the verdict through its exit code. Zero is pass, anything else is fail.
type CommandExecutor struct {
	Dir       string // working directory, normally the repository root
	MaxOutput int    // bytes of combined output kept, default 16 KiB
}

func NewCommandExecutor(dir string) *CommandExecutor {
	return &CommandExecutor{Dir: dir}
}

func (x *CommandExecutor) Execute(ctx context.Context, rc RunContext) (*Outcome, error) {
	command := strings.TrimSpace(rc.Check.Command)
	if command == "" {
		return nil, fmt.Errorf("check %s has no command", rc.Check.ID)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = x.Dir
	out, err := cmd.CombinedOutput()
	tail := tailBytes(out, x.maxOutput())

	if err == nil {
		return &Outcome{Verdict: plan.VerdictPass, Rationale: "command exited 0", Raw: tail}, nil
	}
	if ctx.Err() != nil {
		// Killed by cancellation or the per-attempt timeout.
		return nil, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return &Outcome{
			Verdict:   plan.VerdictFail,
			Rationale: fmt.Sprintf("command exited %d", code),
			Findings: []plan.Finding{{
				Severity: "major",
				Summary:  fmt.Sprintf("%s exited %d", command, code),
			}},
			Raw: tail,
		}, nil
	}
	return nil, fmt.Errorf("run %q: %w", command, err)
}

func (x *CommandExecutor) maxOutput() int {
	if x.MaxOutput > 0 {
		return x.MaxOutput
	}
	return 16 * 1024
}

func tailBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return "[... output truncated ...]\n" + string(b[len(b)-n:])
}
