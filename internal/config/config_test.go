package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("Load() defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Analysis.Criterion = "bic"
	cfg.Analysis.MaxVars = 6
	cfg.Serve.Addr = "127.0.0.1:9001"
	cfg.Logging.Debug = true

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestLoadBrokenYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("analysis: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("Load() expected parse error, got nil")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("YUKEMURI_DB", "/tmp/elsewhere.db")
	t.Setenv("YUKEMURI_DEBUG", "true")
	t.Setenv("YUKEMURI_WORKERS", "3")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/elsewhere.db" {
		t.Errorf("YUKEMURI_DB override not applied, got %q", cfg.Database.Path)
	}
	if !cfg.Logging.Debug {
		t.Errorf("YUKEMURI_DEBUG override not applied")
	}
	if cfg.Analysis.Workers != 3 {
		t.Errorf("YUKEMURI_WORKERS override not applied, got %d", cfg.Analysis.Workers)
	}
}

func TestPathResolution(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.DBPath("/data"); got != filepath.Join("/data", "yukemuri.db") {
		t.Errorf("DBPath relative resolution = %q", got)
	}
	cfg.Database.Path = "/abs/track.db"
	if got := cfg.DBPath("/data"); got != "/abs/track.db" {
		t.Errorf("DBPath absolute passthrough = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bad criterion", func(c *Config) { c.Analysis.Criterion = "r2" }, false},
		{"bad robust", func(c *Config) { c.Analysis.Robust = "hc9" }, false},
		{"zero max vars", func(c *Config) { c.Analysis.MaxVars = 0 }, false},
		{"zero top n", func(c *Config) { c.Analysis.TopN = 0 }, false},
		{"negative vif", func(c *Config) { c.Analysis.VIFLimit = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Errorf("Validate() = nil, want error")
			}
		})
	}
}
