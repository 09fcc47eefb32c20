// Package config loads and persists yukemuri configuration.
// Configuration lives as YAML inside the data directory (default ~/.yukemuri)
// and can be overridden per-field through YUKEMURI_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FileName is the config file name inside the data directory.
const FileName = "config.yaml"

// Config holds all yukemuri configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Database  DatabaseConfig  `yaml:"database"`
	Output    OutputConfig    `yaml:"output"`
	Revisions RevisionsConfig `yaml:"revisions"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Report    ReportConfig    `yaml:"report"`
	Serve     ServeConfig     `yaml:"serve"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is relative to the data directory unless absolute.
	Path string `yaml:"path"`
}

// OutputConfig configures where generated artifacts land.
type OutputConfig struct {
	// Dir is relative to the data directory unless absolute.
	Dir string `yaml:"dir"`
}

// RevisionsConfig configures the rule revision documents.
type RevisionsConfig struct {
	// Dir is relative to the data directory unless absolute.
	Dir string `yaml:"dir"`
}

// AnalysisConfig holds model search defaults; all overridable via flags.
type AnalysisConfig struct {
	Dependent string  `yaml:"dependent"` // default dependent variable
	Criterion string  `yaml:"criterion"` // adjr2 | aic | bic
	Robust    string  `yaml:"robust"`    // none | hc0 | hc1 | hc2 | hc3
	MaxVars   int     `yaml:"max_vars"`  // optional regressors per spec
	MaxSpecs  int     `yaml:"max_specs"` // cap on generated specifications
	Workers   int     `yaml:"workers"`   // 0 = GOMAXPROCS
	TopN      int     `yaml:"top_n"`     // models kept for insight mining
	VIFLimit  float64 `yaml:"vif_limit"` // collinearity penalty threshold
}

// ReportConfig configures markdown report generation.
type ReportConfig struct {
	Title    string `yaml:"title"`
	WordWrap int    `yaml:"word_wrap"` // glamour terminal wrap
}

// ServeConfig configures the local artifact server.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the logging tree.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "yukemuri",
		Version: "0.6.0",

		Database:  DatabaseConfig{Path: "yukemuri.db"},
		Output:    OutputConfig{Dir: "out"},
		Revisions: RevisionsConfig{Dir: "revisions"},

		Analysis: AnalysisConfig{
			Dependent: "rating",
			Criterion: "adjr2",
			Robust:    "hc1",
			MaxVars:   4,
			MaxSpecs:  400,
			Workers:   0,
			TopN:      20,
			VIFLimit:  10,
		},

		Report: ReportConfig{
			Title:    "Onsen Tracker Report",
			WordWrap: 100,
		},

		Serve:   ServeConfig{Addr: "127.0.0.1:8807"},
		Logging: LoggingConfig{Debug: false},
	}
}

// DefaultDataDir resolves the data directory: $YUKEMURI_DATA if set,
// otherwise ~/.yukemuri.
func DefaultDataDir() (string, error) {
	if dir := os.Getenv("YUKEMURI_DATA"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, ".yukemuri"), nil
}

// Load reads <dataDir>/config.yaml. A missing file yields defaults; a broken
// file is an error. Environment overrides are applied last.
func Load(dataDir string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(dataDir, FileName))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to <dataDir>/config.yaml.
func (c *Config) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, FileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DBPath resolves the database path against the data directory.
func (c *Config) DBPath(dataDir string) string { return resolve(dataDir, c.Database.Path) }

// OutDir resolves the artifact output directory against the data directory.
func (c *Config) OutDir(dataDir string) string { return resolve(dataDir, c.Output.Dir) }

// RevisionsDir resolves the revision documents directory.
func (c *Config) RevisionsDir(dataDir string) string { return resolve(dataDir, c.Revisions.Dir) }

func resolve(dataDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}

// applyEnvOverrides applies YUKEMURI_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("YUKEMURI_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("YUKEMURI_OUT"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("YUKEMURI_ADDR"); v != "" {
		c.Serve.Addr = v
	}
	if v := os.Getenv("YUKEMURI_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Debug = b
		}
	}
	if v := os.Getenv("YUKEMURI_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Analysis.Workers = n
		}
	}
}

// Validate rejects nonsensical analysis settings early; flag handling relies
// on it so bad values fail before a run starts.
func (c *Config) Validate() error {
	switch c.Analysis.Criterion {
	case "adjr2", "aic", "bic":
	default:
		return fmt.Errorf("unknown ranking criterion %q (want adjr2, aic or bic)", c.Analysis.Criterion)
	}
	switch c.Analysis.Robust {
	case "none", "hc0", "hc1", "hc2", "hc3":
	default:
		return fmt.Errorf("unknown robust covariance %q (want none or hc0..hc3)", c.Analysis.Robust)
	}
	if c.Analysis.MaxVars < 1 {
		return fmt.Errorf("analysis.max_vars must be at least 1")
	}
	if c.Analysis.MaxSpecs < 1 {
		return fmt.Errorf("analysis.max_specs must be at least 1")
	}
	if c.Analysis.TopN < 1 {
		return fmt.Errorf("analysis.top_n must be at least 1")
	}
	if c.Analysis.VIFLimit <= 0 {
		return fmt.Errorf("analysis.vif_limit must be positive")
	}
	return nil
}
