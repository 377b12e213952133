package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"

	"quorum/internal/config"
	"quorum/internal/llm"
	"quorum/internal/report"
	"quorum/internal/session"
	"quorum/internal/store"
	"quorum/internal/verify"
)

var verifyFlags struct {
	sessionID   string
	repoRoot    string
	reportDir   string
	model       string
	complexity  string
	minRuns     int
	parallel    int
	maxAttempts int
	runTimeout  time.Duration
	timeout     time.Duration
	planOnly    bool
	noArchive   bool
}

var verifyCmd = &cobra.Command{
	Use:   "verify [session-id]",
	Short: "Plan and run a verification of an agent session",
	Long: `Verify plans a panel of review checks from the session transcript and the
repository state, executes them with bounded concurrency, and consolidates
the run verdicts into one report.

With no session argument the active session is resolved from the working
directory: the most recently modified transcript for this project. No
session resolvable is a hard error, never a silent fallback.

The first line of output is always the verdict. Exit status: PASS 0,
FAIL 1, NEEDS_REVIEW 2.

Interrupting a running verification (Ctrl-C) abandons the in-flight runs
and still produces a report; the affected checks are marked incomplete.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	f.StringVar(&verifyFlags.sessionID, "session", "", "Session ID to verify (default: active session)")
	f.StringVar(&verifyFlags.repoRoot, "repo", "", "Repository root (default: working directory)")
	f.StringVar(&verifyFlags.reportDir, "report-dir", "", "Directory for the Markdown report artifact")
	f.StringVar(&verifyFlags.model, "model", "", "LLM model for planning, checks, and judging")
	f.StringVar(&verifyFlags.complexity, "complexity", "", "Complexity tier floor (low, medium, high)")
	f.IntVar(&verifyFlags.minRuns, "min-runs", 0, "Per-check run count floor for judgment checks")
	f.IntVar(&verifyFlags.parallel, "parallel", 0, "Max in-flight check runs")
	f.IntVar(&verifyFlags.maxAttempts, "max-attempts", 0, "Attempts per run before it is recorded indeterminate")
	f.DurationVar(&verifyFlags.runTimeout, "run-timeout", 0, "Per-run deadline")
	f.DurationVar(&verifyFlags.timeout, "timeout", 0, "Whole-invocation deadline (0 = none)")
	f.BoolVar(&verifyFlags.planOnly, "plan-only", false, "Print the plan as YAML and skip execution")
	f.BoolVar(&verifyFlags.noArchive, "no-archive", false, "Skip the report/run archive database")
}

func runVerify(cmd *cobra.Command, args []string) error {
	c := cfg
	overrideString(cmd, "report-dir", &c.ReportDir, verifyFlags.reportDir)
	overrideString(cmd, "model", &c.Model, verifyFlags.model)
	overrideString(cmd, "complexity", &c.Complexity, verifyFlags.complexity)
	overrideInt(cmd, "min-runs", &c.MinRuns, verifyFlags.minRuns)
	overrideInt(cmd, "parallel", &c.Parallel, verifyFlags.parallel)
	overrideInt(cmd, "max-attempts", &c.MaxAttempts, verifyFlags.maxAttempts)
	overrideDuration(cmd, "run-timeout", &c.RunTimeout, verifyFlags.runTimeout)
	overrideDuration(cmd, "timeout", &c.Timeout, verifyFlags.timeout)
	if err := c.Validate(); err != nil {
		return err
	}

	sessionID := verifyFlags.sessionID
	if len(args) == 1 {
		sessionID = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := time.Duration(c.Timeout); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	client, err := llm.NewGemini(cmd.Context(), c.Model)
	if err != nil {
		if errors.Is(err, llm.ErrNoAPIKey) {
			return fmt.Errorf("%w\nSet it in the environment or in a .env file in the working directory", err)
		}
		return err
	}

	resolver, err := session.NewResolver(c.SessionRoot, time.Duration(c.ActiveWindow))
	if err != nil {
		return err
	}

	opts := verify.Options{
		Client:      client,
		Resolver:    resolver,
		SessionID:   sessionID,
		RepoRoot:    verifyFlags.repoRoot,
		Complexity:  c.Complexity,
		MinRuns:     c.MinRuns,
		Parallel:    c.Parallel,
		MaxAttempts: c.MaxAttempts,
		RunTimeout:  time.Duration(c.RunTimeout),
		PlanOnly:    verifyFlags.planOnly,
	}
	if !verifyFlags.planOnly {
		opts.ReportDir = c.ReportDir
		if !verifyFlags.noArchive {
			db, err := store.Open(c.DBPath)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer db.Close()
			opts.Store = db
		}
	}

	res, err := verify.Run(ctx, opts)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return fmt.Errorf("%w\nRun from the directory the agent worked in, or name a session:\n  quorum verify <session-id>\n  quorum sessions", err)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if verifyFlags.planOnly {
		dump, err := yaml.Marshal(res.Plan)
		if err != nil {
			return fmt.Errorf("render plan: %w", err)
		}
		fmt.Fprintf(out, "Session: %s\n\n", res.Session.ID)
		fmt.Fprint(out, string(dump))
		return nil
	}

	fmt.Fprint(out, report.Digest(res.Report))
	if res.ArtifactPath != "" {
		fmt.Fprintf(out, "\nReport: %s\n", res.ArtifactPath)
	}
	if res.ReportID != 0 {
		fmt.Fprintf(out, "Archived as report #%d (quorum reports show %d)\n", res.ReportID, res.ReportID)
	}

	if code := verdictExitCode(string(res.Report.Verdict)); code != 0 {
		return exitCodeError{code: code}
	}
	return nil
}

func overrideString(cmd *cobra.Command, name string, dst *string, v string) {
	if cmd.Flags().Changed(name) {
		*dst = v
	}
}

func overrideInt(cmd *cobra.Command, name string, dst *int, v int) {
	if cmd.Flags().Changed(name) {
		*dst = v
	}
}

func overrideDuration(cmd *cobra.Command, name string, dst *config.Duration, v time.Duration) {
	if cmd.Flags().Changed(name) {
		*dst = config.Duration(v)
	}
}
