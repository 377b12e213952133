package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"quorum/internal/display"
	"quorum/internal/engine"
	"quorum/internal/format"
	"quorum/internal/plan"
)

// Render produces the persisted Markdown report. The first line is the
// overall verdict; everything else is detail.
func Render(r *Report) string {
	var b strings.Builder

	b.WriteString("# " + verdictToken(r) + "\n\n")

	writeHeader(&b, r)
	writeChecks(&b, r, format.Markdown)
	writeFindings(&b, r)
	writeRuns(&b, r)
	writePlan(&b, r)

	return b.String()
}

// Digest produces the short terminal summary. The first line is the overall
// verdict.
func Digest(r *Report) string {
	var b strings.Builder

	b.WriteString(verdictToken(r) + "\n\n")
	fmt.Fprintf(&b, "=== Verification Report ===\n")
	fmt.Fprintf(&b, "Session:  %s\n", r.SessionID)
	if r.Branch != "" {
		fmt.Fprintf(&b, "Branch:   %s @ %s\n", r.Branch, r.Head)
	}
	fmt.Fprintf(&b, "Runs:     %s completed\n\n", format.FmtRatio(r.CompletedRuns(), len(r.Runs)))

	writeChecks(&b, r, format.ASCII)

	findings := 0
	for _, res := range r.Results {
		findings += len(res.Findings)
	}
	if findings > 0 {
		fmt.Fprintf(&b, "\n%d finding(s):\n", findings)
		for _, res := range r.Results {
			for _, f := range res.Findings {
				fmt.Fprintf(&b, "  [%s] %s: %s\n", display.Severity(f.Severity), res.CheckID, f.Summary)
			}
		}
	}
	if live := r.LiveRuns(); live > 0 {
		fmt.Fprintf(&b, "\n%d run(s) overlapped the live agent session; their findings may reflect unfinished work.\n", live)
	}
	return b.String()
}

// Persist writes the Markdown report under dir with a UTC-timestamped name
// and returns the written path.
func Persist(r *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	name := fmt.Sprintf("verify-%s.md", r.GeneratedAt.UTC().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(Render(r)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func verdictToken(r *Report) string {
	return strings.ToUpper(string(r.Verdict))
}

func writeHeader(b *strings.Builder, r *Report) {
	tbl := format.NewTable(format.Markdown)
	tbl.Header("Field", "Value")
	tbl.Row("Session", r.SessionID)
	if r.Branch != "" {
		tbl.Row("Branch", r.Branch)
	}
	if r.Head != "" {
		tbl.Row("HEAD", r.Head)
	}
	tbl.Row("Generated", r.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"))
	tbl.Row("Checks", len(r.Results))
	tbl.Row("Runs", format.FmtRatio(r.CompletedRuns(), len(r.Runs))+" completed")
	if live := r.LiveRuns(); live > 0 {
		tbl.Row("Live-session runs", live)
	}
	b.WriteString(tbl.String())
	b.WriteString("\n\n")
}

func writeChecks(b *strings.Builder, r *Report, mode format.Mode) {
	if mode == format.Markdown {
		b.WriteString("## Checks\n\n")
	}
	tbl := format.NewTable(mode)
	tbl.Header("Check", "Policy", "Verdict", "Agreement", "Runs")
	tbl.Columns(format.Column{Number: 4, Align: format.AlignRight})
	for _, res := range r.Results {
		verdict := display.Verdict(string(res.Verdict))
		if res.Incomplete {
			verdict += " (incomplete)"
		}
		tbl.Row(
			res.CheckID,
			display.Policy(string(res.Policy)),
			verdict,
			format.FmtPercent(res.AgreementRate),
			format.FmtRatio(res.RunsCompleted, res.RunsRequired),
		)
	}
	b.WriteString(tbl.String())
	b.WriteString("\n")

	if mode == format.Markdown {
		b.WriteString("\n")
		for _, res := range r.Results {
			spec := r.checkSpec(res.CheckID)
			if spec == nil && res.Rationale == "" {
				continue
			}
			fmt.Fprintf(b, "**%s**", res.CheckID)
			if spec != nil && spec.Perspective != "" {
				fmt.Fprintf(b, " — %s", spec.Perspective)
			}
			b.WriteString("\n\n")
			if spec != nil {
				fmt.Fprintf(b, "Scope: %s\n\n", spec.Scope)
				if spec.Command != "" {
					fmt.Fprintf(b, "Command: `%s`\n\n", spec.Command)
				}
			}
			if res.Rationale != "" {
				fmt.Fprintf(b, "%s\n\n", res.Rationale)
			}
		}
	}
}

func (r *Report) checkSpec(id string) *plan.CheckSpec {
	for i := range r.Checks {
		if r.Checks[i].ID == id {
			return &r.Checks[i]
		}
	}
	return nil
}

func writeFindings(b *strings.Builder, r *Report) {
	total := 0
	for _, res := range r.Results {
		total += len(res.Findings)
	}
	if total == 0 {
		return
	}
	b.WriteString("## Findings\n\n")
	for _, res := range r.Results {
		if len(res.Findings) == 0 {
			continue
		}
		fmt.Fprintf(b, "### %s\n\n", res.CheckID)
		for _, f := range res.Findings {
			fmt.Fprintf(b, "- **%s:** %s", display.Severity(f.Severity), f.Summary)
			if f.Path != "" {
				fmt.Fprintf(b, " (`%s`)", f.Path)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
}

func writeRuns(b *strings.Builder, r *Report) {
	if len(r.Runs) == 0 {
		return
	}
	b.WriteString("## Runs\n\n")
	tbl := format.NewTable(format.Markdown)
	tbl.Header("Check", "Run", "Verdict", "Attempts", "Duration", "Session")
	for i := range r.Runs {
		tbl.Row(runRow(&r.Runs[i])...)
	}
	b.WriteString(tbl.String())
	b.WriteString("\n\n")
}

func runRow(run *engine.RunResult) []any {
	verdict := display.Verdict(string(run.Verdict))
	if run.Abandoned {
		verdict = "abandoned"
	}
	session := "ended"
	if run.SessionInProgress {
		session = "in progress"
	}
	return []any{
		run.CheckID,
		run.RunIndex + 1,
		verdict,
		run.Attempts,
		format.FmtDuration(run.Duration),
		session,
	}
}

func writePlan(b *strings.Builder, r *Report) {
	if r.Reasoning == "" && len(r.Trace) == 0 {
		return
	}
	b.WriteString("## Plan\n\n")
	if r.Reasoning != "" {
		b.WriteString(r.Reasoning + "\n\n")
	}
	for _, tr := range r.Trace {
		fmt.Fprintf(b, "**%s**\n\n", display.Stage(tr.Stage))
		for _, note := range tr.Notes {
			b.WriteString("- " + note + "\n")
		}
		b.WriteString("\n")
	}
}
