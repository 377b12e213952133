package store

import "quorum/internal/report"

// DefaultDBPath is the default relative path for the SQLite DB (per-workspace).
// Resolve against cwd or workspace root; Open() creates the parent dir (e.g. .quorum).
const DefaultDBPath = ".quorum/quorum.db"

// ReportMeta is a listing row: report identity plus the counters needed to
// summarize it without loading the payload.
type ReportMeta struct {
	ID            int64
	Verdict       string
	SessionID     string
	Branch        string
	Head          string
	GeneratedAt   string
	Checks        int
	RunsTotal     int
	RunsCompleted int
	RunsLive      int
}

// RunStats aggregates run records across all stored reports. Live counts runs
// whose agent session was still in progress when the run executed; a high live
// share means verdicts were drawn against moving targets.
type RunStats struct {
	Total     int
	Completed int
	Abandoned int
	Live      int
}

// Store is the persistence facade for verification reports and their per-run
// records. CLI and MCP server use only this interface; implementation is
// SQLite or in-memory.
type Store interface {
	// Reports
	SaveReport(r *report.Report) (reportID int64, err error)
	GetReport(reportID int64) (*report.Report, error)
	LatestReport() (*report.Report, error)
	ListReports() ([]*ReportMeta, error)
	// Run records
	RunStats() (*RunStats, error)
}
