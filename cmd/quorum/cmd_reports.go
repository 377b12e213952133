package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"quorum/internal/display"
	"quorum/internal/format"
	"quorum/internal/report"
	"quorum/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Browse the verification report archive",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived reports, newest first",
	Args:  cobra.NoArgs,
	RunE:  runReportsList,
}

var reportsShowCmd = &cobra.Command{
	Use:   "show [report-id]",
	Short: "Print one archived report as Markdown (default: most recent)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReportsShow,
}

func init() {
	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
}

func runReportsList(cmd *cobra.Command, _ []string) error {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer db.Close()

	list, err := db.ListReports()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No reports archived yet. Run \"quorum verify\" first.")
		return nil
	}

	tbl := format.NewTable(format.ASCII)
	tbl.Header("ID", "Verdict", "Session", "Generated", "Checks", "Runs", "Live")
	tbl.Columns(
		format.Column{Number: 5, Align: format.AlignRight},
		format.Column{Number: 7, Align: format.AlignRight},
	)
	for _, m := range list {
		tbl.Row(
			m.ID,
			display.Verdict(m.Verdict),
			format.Truncate(m.SessionID, 24),
			m.GeneratedAt,
			m.Checks,
			format.FmtRatio(m.RunsCompleted, m.RunsTotal),
			m.RunsLive,
		)
	}
	fmt.Fprintln(out, tbl.String())

	stats, err := db.RunStats()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d report(s), %d run(s) total: %d completed, %d abandoned, %d against a live session\n",
		len(list), stats.Total, stats.Completed, stats.Abandoned, stats.Live)
	return nil
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer db.Close()

	var r *report.Report
	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid report id %q", args[0])
		}
		r, err = db.GetReport(id)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("no report #%d in the archive (see \"quorum reports list\")", id)
		}
	} else {
		r, err = db.LatestReport()
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("no reports archived yet; run \"quorum verify\" first")
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), report.Render(r))
	return nil
}
