package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"quorum/internal/format"
	"quorum/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List agent sessions resolvable for this directory",
	Long: `Lists every transcript discovered for the working directory, newest first.
The newest one is what "quorum verify" picks as the active session; a
session written within the activity window shows as in progress.`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

func runSessions(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	resolver, err := session.NewResolver(cfg.SessionRoot, time.Duration(cfg.ActiveWindow))
	if err != nil {
		return err
	}
	sessions, err := resolver.List(cwd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintf(out, "No sessions found for %s\n", cwd)
		fmt.Fprintf(out, "(looked in %s)\n", resolver.Root)
		return nil
	}

	now := time.Now()
	tbl := format.NewTable(format.ASCII)
	tbl.Header("Session", "Last Activity", "Size", "State")
	for _, s := range sessions {
		state := "ended"
		if resolver.InProgress(s, now) {
			state = "in progress"
		}
		tbl.Row(s.ID, s.ModTime.Format("2006-01-02 15:04:05"), s.Size, state)
	}
	fmt.Fprintln(out, tbl.String())
	fmt.Fprintf(out, "\n%d session(s); the newest is the active session for \"quorum verify\"\n", len(sessions))
	return nil
}
