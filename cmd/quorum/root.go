package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quorum/internal/config"
	"quorum/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string
}

// cfg is the effective configuration: defaults, then .quorum.yaml, then
// flags. Loaded once before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Consensus-based verification of agent code changes",
	Long: `Quorum reviews the work an agent just did. It reads the session transcript
and repository state, plans a panel of specialized review checks, runs each
check one or more times, and reduces the disagreeing runs into one verdict:
PASS, FAIL, or NEEDS_REVIEW.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func setup(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(rootFlags.logLevel)
	if err != nil {
		return err
	}
	logging.Init(level, rootFlags.logFormat)

	if rootFlags.configPath != "" {
		cfg, err = config.LoadFrom(rootFlags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if rootCmd.PersistentFlags().Changed("db") {
		cfg.DBPath = rootFlags.dbPath
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = setup
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "Path to a .quorum.yaml (default: working dir, then $HOME)")
	pf.StringVar(&rootFlags.dbPath, "db", "", "Path to the report archive database")
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// exitCodeError carries a process exit status through cobra after the
// verdict has already been printed. main exits with the code silently.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// verdictExitCode maps the top-line verdict to the process exit status:
// PASS 0, FAIL 1, NEEDS_REVIEW 2.
func verdictExitCode(verdict string) int {
	switch verdict {
	case "pass":
		return 0
	case "fail":
		return 1
	default:
		return 2
	}
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ec exitCodeError
	if errors.As(err, &ec) {
		os.Exit(ec.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
