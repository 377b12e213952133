// Package config loads layered settings for the verifier: built-in defaults,
// then a .quorum.yaml file (working directory first, then home), then
// environment variables. Flags override on top at the CLI layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory and $HOME.
const FileName = ".quorum.yaml"

// Config holds every tunable of a verification invocation.
type Config struct {
	// Execution
	Parallel    int      `yaml:"parallel"`     // max in-flight check runs
	MaxAttempts int      `yaml:"max_attempts"` // attempts per run before indeterminate
	RunTimeout  Duration `yaml:"run_timeout"`  // per-run deadline
	Timeout     Duration `yaml:"timeout"`      // whole-invocation deadline; 0 = none

	// Planning constraints (lower bounds, never bypasses)
	MinRuns    int    `yaml:"min_runs"`   // caller floor for per-check run counts
	Complexity string `yaml:"complexity"` // caller floor for the complexity tier

	// Collaborators
	Model        string   `yaml:"model"`         // LLM model for planning, checks, judging
	SessionRoot  string   `yaml:"session_root"`  // transcript tree; empty = ~/.claude/projects
	ActiveWindow Duration `yaml:"active_window"` // mtime window that marks a session in progress

	// Outputs
	ReportDir string `yaml:"report_dir"` // persisted report artifacts
	DBPath    string `yaml:"db_path"`    // report/run archive
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Parallel:     4,
		MaxAttempts:  2,
		RunTimeout:   Duration(5 * time.Minute),
		Timeout:      0,
		Model:        "gemini-2.5-flash",
		ActiveWindow: Duration(2 * time.Minute),
		ReportDir:    ".quorum/reports",
		DBPath:       ".quorum/quorum.db",
	}
}

// Load produces the effective config: defaults overlaid with the first
// .quorum.yaml found (cwd, then home). A .env file in the working directory
// is loaded into the environment as a side effect so GEMINI_API_KEY and
// friends are available; a missing .env is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	path, ok := findFile()
	if !ok {
		return cfg, nil
	}
	if err := mergeFile(&cfg, path); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFrom is Load with an explicit config file path; the file must exist.
func LoadFrom(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if err := mergeFile(&cfg, path); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func findFile() (string, bool) {
	if _, err := os.Stat(FileName); err == nil {
		return FileName, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	p := filepath.Join(home, FileName)
	if _, err := os.Stat(p); err == nil {
		return p, true
	}
	return "", false
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects values no invocation can run with.
func (c Config) Validate() error {
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be >= 1, got %d", c.Parallel)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.MinRuns < 0 {
		return fmt.Errorf("min_runs must be >= 0, got %d", c.MinRuns)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive, got %s", time.Duration(c.RunTimeout))
	}
	return nil
}

// Duration is a time.Duration that unmarshals from YAML strings like "90s"
// or "5m" (plain integers are taken as nanoseconds, matching time.Duration).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case int:
		*d = Duration(time.Duration(v))
		return nil
	case float64:
		*d = Duration(time.Duration(v))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}

// MarshalYAML implements yaml.Marshaler so dumps stay human-readable.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
