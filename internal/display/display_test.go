package display

import "testing"

func TestVerdict(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"pass", "Pass"},
		{"fail", "Fail"},
		{"indeterminate", "Indeterminate"},
		{"needs_review", "Needs Review"},
		{"PASS", "Pass"},
		{"unknown", "unknown"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Verdict(tc.code); got != tc.want {
			t.Errorf("Verdict(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestPolicy(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"deterministic", "Deterministic"},
		{"majority", "Majority Vote"},
		{"unanimous", "Unanimous"},
		{"judge", "Judge Synthesis"},
		{"vote", "vote"},
	}
	for _, tc := range cases {
		if got := Policy(tc.code); got != tc.want {
			t.Errorf("Policy(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestPolicyWithCode(t *testing.T) {
	if got := PolicyWithCode("majority"); got != "Majority Vote (majority)" {
		t.Errorf("got %q", got)
	}
	if got := PolicyWithCode("unknown"); got != "unknown" {
		t.Errorf("got %q", got)
	}
}

func TestSeverity(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"critical", "Critical"},
		{"major", "Major"},
		{"minor", "Minor"},
		{"info", "Info"},
		{"MAJOR", "Major"},
		{"odd", "odd"},
	}
	for _, tc := range cases {
		if got := Severity(tc.code); got != tc.want {
			t.Errorf("Severity(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestStagePath(t *testing.T) {
	got := StagePath([]string{"S1_PERSPECTIVES", "S2_INSTANCES", "S5_RUN_FLOORS"})
	want := "Perspectives → Instance Count → Run Floors"
	if got != want {
		t.Errorf("StagePath = %q, want %q", got, want)
	}
}
