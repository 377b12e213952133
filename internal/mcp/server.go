// Package mcp exposes verification over the Model Context Protocol so agents
// can trigger a review of their own session from inside it. The server runs
// over stdio and mirrors the CLI: one verify tool plus read access to the
// report archive and the session list.
package mcp

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	yaml "gopkg.in/yaml.v3"

	"quorum/internal/llm"
	"quorum/internal/report"
	"quorum/internal/session"
	"quorum/internal/store"
	"quorum/internal/verify"
)

// Options wires the server's collaborators. Client and Store are required;
// everything else falls back to sensible defaults.
type Options struct {
	Client   llm.Client
	Store    store.Store
	Resolver *session.Resolver

	WorkDir   string // defaults to the process working directory
	ReportDir string // empty skips the Markdown artifact

	Parallel    int
	MaxAttempts int
	RunTimeout  time.Duration
}

// Server wraps the MCP SDK server around the verification pipeline.
type Server struct {
	MCPServer *sdkmcp.Server

	opts Options

	mu   sync.Mutex
	busy bool
}

// NewServer builds the server and registers its tools.
func NewServer(opts Options) (*Server, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("mcp server needs an LLM client")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("mcp server needs a report store")
	}
	if opts.WorkDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		opts.WorkDir = cwd
	}
	if opts.Resolver == nil {
		r, err := session.NewResolver("", 0)
		if err != nil {
			return nil, err
		}
		opts.Resolver = r
	}

	s := &Server{opts: opts}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "quorum", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "verify",
		Description: "Plan and run a verification of the current agent session. Blocks until the report is ready and returns the top-line verdict first.",
	}, s.handleVerify)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_sessions",
		Description: "List resolvable agent sessions for the working directory, newest first.",
	}, s.handleListSessions)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_reports",
		Description: "List archived verification reports, newest first.",
	}, s.handleListReports)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_report",
		Description: "Get one archived verification report as Markdown. Omit report_id for the most recent.",
	}, s.handleGetReport)
}

// --- Tool input/output types ---

type verifyInput struct {
	SessionID  string `json:"session_id,omitempty" jsonschema:"session to verify; empty resolves the active session"`
	Complexity string `json:"complexity,omitempty" jsonschema:"complexity tier floor (low, medium, high)"`
	MinRuns    int    `json:"min_runs,omitempty" jsonschema:"per-check run count floor for judgment checks"`
	PlanOnly   bool   `json:"plan_only,omitempty" jsonschema:"plan the checks but do not execute them"`
}

type verifyOutput struct {
	Verdict      string `json:"verdict,omitempty"`
	SessionID    string `json:"session_id"`
	Checks       int    `json:"checks"`
	RunsTotal    int    `json:"runs_total,omitempty"`
	RunsDone     int    `json:"runs_completed,omitempty"`
	ReportID     int64  `json:"report_id,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	PlanYAML     string `json:"plan_yaml,omitempty"` // plan_only runs only
	Digest       string `json:"digest,omitempty"`
}

type listSessionsOutput struct {
	Sessions []sessionRow `json:"sessions"`
}

type sessionRow struct {
	ID         string `json:"id"`
	ModTime    string `json:"mod_time"`
	Size       int64  `json:"size"`
	InProgress bool   `json:"in_progress"`
}

type listReportsOutput struct {
	Reports []*store.ReportMeta `json:"reports"`
}

type getReportInput struct {
	ReportID int64 `json:"report_id,omitempty" jsonschema:"archived report ID; 0 means the most recent"`
}

type getReportOutput struct {
	ReportID    int64  `json:"report_id,omitempty"`
	Verdict     string `json:"verdict"`
	GeneratedAt string `json:"generated_at"`
	Markdown    string `json:"markdown"`
}

// --- Tool handlers ---

func (s *Server) handleVerify(ctx context.Context, _ *sdkmcp.CallToolRequest, input verifyInput) (*sdkmcp.CallToolResult, verifyOutput, error) {
	if !s.acquire() {
		return nil, verifyOutput{}, fmt.Errorf("a verification is already running; wait for it to finish")
	}
	defer s.release()

	res, err := verify.Run(ctx, verify.Options{
		Client:      s.opts.Client,
		Resolver:    s.opts.Resolver,
		WorkDir:     s.opts.WorkDir,
		SessionID:   input.SessionID,
		Complexity:  input.Complexity,
		MinRuns:     input.MinRuns,
		Parallel:    s.opts.Parallel,
		MaxAttempts: s.opts.MaxAttempts,
		RunTimeout:  s.opts.RunTimeout,
		PlanOnly:    input.PlanOnly,
		ReportDir:   s.opts.ReportDir,
		Store:       s.storeFor(input),
	})
	if err != nil {
		return nil, verifyOutput{}, fmt.Errorf("verify: %w", err)
	}

	out := verifyOutput{
		SessionID: res.Session.ID,
		Checks:    len(res.Plan.Checks),
	}
	if input.PlanOnly {
		dump, err := yaml.Marshal(res.Plan)
		if err != nil {
			return nil, verifyOutput{}, fmt.Errorf("render plan: %w", err)
		}
		out.PlanYAML = string(dump)
		return nil, out, nil
	}

	out.Verdict = string(res.Report.Verdict)
	out.RunsTotal = len(res.Report.Runs)
	out.RunsDone = res.Report.CompletedRuns()
	out.ReportID = res.ReportID
	out.ArtifactPath = res.ArtifactPath
	out.Digest = report.Digest(res.Report)
	return nil, out, nil
}

// storeFor withholds the archive from plan-only runs so inspection never
// leaves a row behind.
func (s *Server) storeFor(input verifyInput) store.Store {
	if input.PlanOnly {
		return nil
	}
	return s.opts.Store
}

func (s *Server) handleListSessions(ctx context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, listSessionsOutput, error) {
	sessions, err := s.opts.Resolver.List(s.opts.WorkDir)
	if err != nil {
		return nil, listSessionsOutput{}, fmt.Errorf("list sessions: %w", err)
	}
	now := time.Now()
	rows := make([]sessionRow, 0, len(sessions))
	for _, sess := range sessions {
		rows = append(rows, sessionRow{
			ID:         sess.ID,
			ModTime:    sess.ModTime.UTC().Format(time.RFC3339),
			Size:       sess.Size,
			InProgress: s.opts.Resolver.InProgress(sess, now),
		})
	}
	return nil, listSessionsOutput{Sessions: rows}, nil
}

func (s *Server) handleListReports(ctx context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, listReportsOutput, error) {
	list, err := s.opts.Store.ListReports()
	if err != nil {
		return nil, listReportsOutput{}, fmt.Errorf("list reports: %w", err)
	}
	return nil, listReportsOutput{Reports: list}, nil
}

func (s *Server) handleGetReport(ctx context.Context, _ *sdkmcp.CallToolRequest, input getReportInput) (*sdkmcp.CallToolResult, getReportOutput, error) {
	var (
		r   *report.Report
		err error
	)
	if input.ReportID > 0 {
		r, err = s.opts.Store.GetReport(input.ReportID)
	} else {
		r, err = s.opts.Store.LatestReport()
	}
	if err != nil {
		return nil, getReportOutput{}, fmt.Errorf("get report: %w", err)
	}
	if r == nil {
		return nil, getReportOutput{}, fmt.Errorf("no such report (id=%d)", input.ReportID)
	}
	return nil, getReportOutput{
		ReportID:    input.ReportID,
		Verdict:     string(r.Verdict),
		GeneratedAt: r.GeneratedAt.UTC().Format(time.RFC3339),
		Markdown:    report.Render(r),
	}, nil
}

func (s *Server) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Server) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}
