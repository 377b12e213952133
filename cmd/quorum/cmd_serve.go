package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"quorum/internal/llm"
	"quorum/internal/logging"
	mcpserver "quorum/internal/mcp"
	"quorum/internal/session"
	"quorum/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout so an agent can trigger verification
of its own session with the verify tool, and browse the report archive with
list_reports / get_report.

The server watches for parent process death and self-terminates when its
client goes away, so disconnects never leave zombie servers behind.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	client, err := llm.NewGemini(cmd.Context(), cfg.Model)
	if err != nil {
		return err
	}
	resolver, err := session.NewResolver(cfg.SessionRoot, time.Duration(cfg.ActiveWindow))
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer db.Close()

	srv, err := mcpserver.NewServer(mcpserver.Options{
		Client:      client,
		Store:       db,
		Resolver:    resolver,
		ReportDir:   cfg.ReportDir,
		Parallel:    cfg.Parallel,
		MaxAttempts: cfg.MaxAttempts,
		RunTimeout:  time.Duration(cfg.RunTimeout),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting quorum MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
