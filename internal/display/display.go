// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output, markdown reports, and logs.
// Keep raw codes for JSON fields, map keys, and equality comparisons.
package display

import "strings"

// --- Run and check verdicts ---

var verdicts = map[string]string{
	"pass":          "Pass",
	"fail":          "Fail",
	"indeterminate": "Indeterminate",
	"needs_review":  "Needs Review",
}

// Verdict returns the human-readable name for a verdict code.
// Unknown codes are returned as-is.
func Verdict(code string) string {
	if name, ok := verdicts[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// --- Convergence policies ---

var policies = map[string]string{
	"deterministic": "Deterministic",
	"majority":      "Majority Vote",
	"unanimous":     "Unanimous",
	"judge":         "Judge Synthesis",
}

// Policy returns the human-readable name for a convergence policy code.
func Policy(code string) string {
	if name, ok := policies[code]; ok {
		return name
	}
	return code
}

// PolicyWithCode returns "Majority Vote (majority)" format for dual-audience
// contexts like the persisted report.
func PolicyWithCode(code string) string {
	if name, ok := policies[code]; ok {
		return name + " (" + code + ")"
	}
	return code
}

// --- Finding severities ---

var severities = map[string]string{
	"critical": "Critical",
	"major":    "Major",
	"minor":    "Minor",
	"info":     "Info",
}

// Severity returns the human-readable name for a severity code.
func Severity(code string) string {
	if name, ok := severities[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// --- Planner stages ---

var stages = map[string]string{
	"S1_PERSPECTIVES": "Perspectives",
	"S2_INSTANCES":    "Instance Count",
	"S3_SCOPES":       "Scopes",
	"S4_POLICIES":     "Policies",
	"S5_RUN_FLOORS":   "Run Floors",
}

// Stage returns the human-readable name for a planner stage code.
// "S1_PERSPECTIVES" -> "Perspectives".
func Stage(code string) string {
	if name, ok := stages[code]; ok {
		return name
	}
	return code
}

// StagePath converts a slice of stage codes to a human-readable path.
// ["S1_PERSPECTIVES", "S2_INSTANCES"] -> "Perspectives → Instance Count"
func StagePath(codes []string) string {
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = Stage(c)
	}
	return strings.Join(names, " → ")
}
