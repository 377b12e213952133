package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"quorum/internal/gitview"
	"quorum/internal/llm"
	"quorum/internal/logging"
)

// ErrPlanning marks a fatal planning failure. Callers must not substitute a
// default plan; verification stops here.
var ErrPlanning = errors.New("planning failed")

// maxFanOut caps instances of one perspective unless the model supplies a
// coordination rationale for going wider.
const maxFanOut = 4

// defaultRuns is the run count per policy when the model leaves it unset.
var defaultRuns = map[Policy]int{
	PolicyDeterministic: 1,
	PolicyMajority:      3,
	PolicyUnanimous:     2,
	PolicyJudge:         3,
}

// genericScopes are scope phrasings with no concrete target. A check whose
// scope normalizes to one of these fails planning: a reviewer told to
// "review everything" reviews nothing in particular.
var genericScopes = map[string]bool{
	"":                   true,
	"review everything":  true,
	"check everything":   true,
	"everything":         true,
	"review the code":    true,
	"review the changes": true,
	"check the code":     true,
	"review all code":    true,
	"general review":     true,
	"full review":        true,
	"review":             true,
}

// Input carries everything the planner may consult.
type Input struct {
	Transcript  string // rendered session dialog
	Repo        *gitview.Snapshot
	Constraints Constraints
}

// Planner produces one Plan per verification request.
type Planner struct {
	cli llm.Client
	log *slog.Logger
}

func NewPlanner(cli llm.Client) *Planner {
	return &Planner{cli: cli, log: logging.New("planner")}
}

type stageFunc func(*Plan, Input) ([]string, error)

// Plan asks the model for a draft plan, then runs the five normalization
// stages over it in order. Any stage error is fatal and wraps ErrPlanning.
func (p *Planner) Plan(ctx context.Context, in Input) (*Plan, error) {
	prompt, err := renderPrompt(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}

	raw, err := p.cli.GenerateJSON(ctx, prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: model call: %v", ErrPlanning, err)
	}

	draft, err := decodeDraft(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}

	stages := []struct {
		code string
		fn   stageFunc
	}{
		{"S1_PERSPECTIVES", stagePerspectives},
		{"S2_INSTANCES", stageInstances},
		{"S3_SCOPES", stageScopes},
		{"S4_POLICIES", stagePolicies},
		{"S5_RUN_FLOORS", stageRunFloors},
	}
	for _, s := range stages {
		notes, err := s.fn(draft, in)
		if err != nil {
			return nil, fmt.Errorf("%w: stage %s: %v", ErrPlanning, s.code, err)
		}
		if len(notes) > 0 {
			draft.Trace = append(draft.Trace, StageTrace{Stage: s.code, Notes: notes})
			for _, n := range notes {
				p.log.Debug("normalized", "stage", s.code, "note", n)
			}
		}
	}

	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}
	p.log.Info("plan ready", "checks", len(draft.Checks), "total_runs", draft.TotalRuns())
	return draft, nil
}

// decodeDraft unmarshals the model's JSON. Some models wrap the document in
// a top-level "plan" key; both shapes are accepted.
func decodeDraft(raw json.RawMessage) (*Plan, error) {
	var draft Plan
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("unparseable plan JSON: %v", err)
	}
	if len(draft.Checks) == 0 {
		var wrapped struct {
			Plan *Plan `json:"plan"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Plan != nil {
			draft = *wrapped.Plan
		}
	}
	draft.Trace = nil
	return &draft, nil
}

// stagePerspectives settles check identity: every check needs a perspective,
// a concrete scope, and a unique id.
func stagePerspectives(p *Plan, _ Input) ([]string, error) {
	if len(p.Checks) == 0 {
		return nil, fmt.Errorf("model proposed no checks")
	}
	var notes []string
	seen := map[string]int{}
	for i := range p.Checks {
		c := &p.Checks[i]
		c.Perspective = strings.TrimSpace(c.Perspective)
		c.Scope = strings.TrimSpace(c.Scope)
		c.ID = slug(c.ID)
		if c.ID == "" {
			c.ID = slug(c.Perspective)
			if c.ID == "" {
				return nil, fmt.Errorf("check %d has neither id nor perspective", i)
			}
			notes = append(notes, fmt.Sprintf("derived id %q from perspective", c.ID))
		}
		if c.Perspective == "" {
			c.Perspective = c.ID
		}
		if genericScopes[strings.ToLower(c.Scope)] {
			return nil, fmt.Errorf("check %s has no concrete scope (%q)", c.ID, c.Scope)
		}
		if n := seen[c.ID]; n > 0 {
			renamed := fmt.Sprintf("%s-%d", c.ID, n+1)
			notes = append(notes, fmt.Sprintf("renamed duplicate id %q to %q", c.ID, renamed))
			seen[c.ID] = n + 1
			c.ID = renamed
		}
		seen[c.ID]++
	}
	return notes, nil
}

// stageInstances bounds fan-out. More than maxFanOut instances of one
// perspective needs a coordination rationale; without one the count is
// clamped, never the whole check dropped.
func stageInstances(p *Plan, _ Input) ([]string, error) {
	var notes []string
	for i := range p.Checks {
		c := &p.Checks[i]
		if c.Runs < 0 {
			notes = append(notes, fmt.Sprintf("%s: negative run count %d reset", c.ID, c.Runs))
			c.Runs = 0
		}
		if c.Runs > maxFanOut && strings.TrimSpace(c.Coordination) == "" {
			notes = append(notes, fmt.Sprintf("%s: clamped %d runs to %d (no coordination rationale)", c.ID, c.Runs, maxFanOut))
			c.Runs = maxFanOut
		}
	}
	return notes, nil
}

// stageScopes cleans focus paths: repo-relative, deduplicated, no escapes.
func stageScopes(p *Plan, _ Input) ([]string, error) {
	var notes []string
	for i := range p.Checks {
		c := &p.Checks[i]
		if len(c.FocusPaths) == 0 {
			continue
		}
		seen := map[string]bool{}
		kept := c.FocusPaths[:0]
		for _, fp := range c.FocusPaths {
			fp = strings.TrimSpace(fp)
			if fp == "" {
				continue
			}
			cleaned := path.Clean(fp)
			if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
				notes = append(notes, fmt.Sprintf("%s: dropped focus path %q (outside repository)", c.ID, fp))
				continue
			}
			if seen[cleaned] {
				continue
			}
			seen[cleaned] = true
			kept = append(kept, cleaned)
		}
		c.FocusPaths = kept
	}
	return notes, nil
}

// stagePolicies normalizes policy codes and reconciles them with the check
// shape: command checks are deterministic, judgment checks are not.
func stagePolicies(p *Plan, _ Input) ([]string, error) {
	var notes []string
	for i := range p.Checks {
		c := &p.Checks[i]
		c.Command = strings.TrimSpace(c.Command)

		pol, ok := NormalizePolicy(string(c.Policy))
		if !ok {
			if c.Command != "" {
				pol = PolicyDeterministic
			} else {
				pol = PolicyMajority
			}
			if strings.TrimSpace(string(c.Policy)) != "" {
				notes = append(notes, fmt.Sprintf("%s: unknown policy %q replaced with %s", c.ID, c.Policy, pol))
			} else {
				notes = append(notes, fmt.Sprintf("%s: defaulted policy to %s", c.ID, pol))
			}
		}
		if c.Command != "" && pol != PolicyDeterministic {
			notes = append(notes, fmt.Sprintf("%s: command check forced from %s to deterministic", c.ID, pol))
			pol = PolicyDeterministic
		}
		if c.Command == "" && pol == PolicyDeterministic {
			notes = append(notes, fmt.Sprintf("%s: deterministic without a command, demoted to majority", c.ID))
			pol = PolicyMajority
		}
		c.Policy = pol

		if c.Runs == 0 {
			c.Runs = defaultRuns[pol]
			notes = append(notes, fmt.Sprintf("%s: defaulted to %d runs for %s", c.ID, c.Runs, pol))
		}
		if pol == PolicyDeterministic && c.Runs != 1 {
			notes = append(notes, fmt.Sprintf("%s: deterministic check reduced from %d runs to 1", c.ID, c.Runs))
			c.Runs = 1
		}
	}
	return notes, nil
}

// stageRunFloors applies the caller's run floor. The floor only raises
// judgment checks; it never lowers a count and never touches deterministic
// checks.
func stageRunFloors(p *Plan, in Input) ([]string, error) {
	floor := in.Constraints.MinRuns
	if floor <= 0 {
		return nil, nil
	}
	var notes []string
	for i := range p.Checks {
		c := &p.Checks[i]
		if c.Deterministic() || c.Runs >= floor {
			continue
		}
		notes = append(notes, fmt.Sprintf("%s: raised %d runs to floor %d", c.ID, c.Runs, floor))
		c.Runs = floor
	}
	return notes, nil
}

// slug lowercases, hyphenates, and strips anything that is not a letter,
// digit, or hyphen.
func slug(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
