package plan

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
)

//go:embed plan_prompt.md
var promptTemplate string

type promptParams struct {
	Complexity string
	MinRuns    int
	Transcript string
	Repo       string
}

// renderPrompt fills the embedded planning template with the session
// transcript, repository snapshot, and caller constraints.
func renderPrompt(in Input) (string, error) {
	params := promptParams{
		Complexity: in.Constraints.Complexity,
		MinRuns:    in.Constraints.MinRuns,
		Transcript: in.Transcript,
	}
	if in.Repo != nil {
		params.Repo = in.Repo.Prompt()
	}

	tmpl, err := template.New("plan").Parse(promptTemplate)
	if err != nil {
		return "", fmt.Errorf("parse plan template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("execute plan template: %w", err)
	}
	return buf.String(), nil
}
