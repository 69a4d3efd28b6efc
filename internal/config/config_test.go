package config

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers.Count != runtime.NumCPU() {
		t.Errorf("Workers = %d, want %d", cfg.Workers.Count, runtime.NumCPU())
	}
	if cfg.Engine.FrameSamples != 4000 || cfg.Output.Normalizer != "wav" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
engine:
  model_path: /models/vosk-ru
workers:
  count: 3
server:
  enabled: true
  port: 8080
output:
  normalizer: ffmpeg
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.ModelPath != "/models/vosk-ru" || cfg.Workers.Count != 3 {
		t.Errorf("engine/workers = %q/%d", cfg.Engine.ModelPath, cfg.Workers.Count)
	}
	if !cfg.Server.Enabled || cfg.Server.Port != 8080 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Output.Normalizer != "ffmpeg" || cfg.Engine.Command != "vosk-frame-engine" {
		t.Errorf("unset keys should keep defaults: %+v", cfg)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("workers: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolveDerivesDirectories(t *testing.T) {
	input := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.InputDir = input
	if err := cfg.Resolve(); err != nil {
		t.Fatal(err)
	}

	if cfg.Storage.TempDir != filepath.Join(input, "temp_files") {
		t.Errorf("TempDir = %s", cfg.Storage.TempDir)
	}
	if cfg.Storage.OutputDir != filepath.Join(input, "transcriptions") {
		t.Errorf("OutputDir = %s", cfg.Storage.OutputDir)
	}
	if cfg.Storage.Database != filepath.Join(input, "transcriptions", "transcriptions.db") {
		t.Errorf("Database = %s", cfg.Storage.Database)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"zero workers", func(c *Config) { c.Workers.Count = 0 }, "workers"},
		{"negative workers", func(c *Config) { c.Workers.Count = -2 }, "workers"},
		{"empty model", func(c *Config) { c.Engine.ModelPath = "" }, "model path"},
		{"empty engine", func(c *Config) { c.Engine.Command = "" }, "engine command"},
		{"zero frame", func(c *Config) { c.Engine.FrameSamples = 0 }, "frame_samples"},
		{"unknown normalizer", func(c *Config) { c.Output.Normalizer = "sox" }, "normalizer"},
		{"bad port", func(c *Config) { c.Server.Enabled = true; c.Server.Port = 0 }, "port"},
		{"port ignored when disabled", func(c *Config) { c.Server.Port = 0 }, ""},
		{"output equals temp", func(c *Config) { c.Storage.OutputDir = c.Storage.TempDir + "/" }, "must differ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Storage.InputDir = t.TempDir()
			if err := cfg.Resolve(); err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseFlagsOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "workers:\n  count: 2\nengine:\n  model_path: /from/file\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	opts, err := ParseFlags([]string{
		"-config", path,
		"-input", dir,
		"-model", "/from/flag",
		"-serve",
		"-strict-exit",
	}, io.Discard)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg := opts.Config
	if cfg.Engine.ModelPath != "/from/flag" {
		t.Errorf("ModelPath = %s, flag should win", cfg.Engine.ModelPath)
	}
	if cfg.Workers.Count != 2 {
		t.Errorf("Workers = %d, file value should hold when flag unset", cfg.Workers.Count)
	}
	if !cfg.Server.Enabled || !opts.StrictExit {
		t.Errorf("serve/strict not applied: %+v", opts)
	}
	if cfg.Storage.OutputDir != filepath.Join(dir, "transcriptions") {
		t.Errorf("OutputDir = %s", cfg.Storage.OutputDir)
	}
}

func TestParseFlagsExplicitZeroWorkersFailsValidation(t *testing.T) {
	opts, err := ParseFlags([]string{
		"-config", filepath.Join(t.TempDir(), "none.yaml"),
		"-workers", "0",
	}, io.Discard)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if err := opts.Config.Validate(); err == nil {
		t.Error("expected validation error for -workers 0")
	}
}

func TestParseFlagsVersion(t *testing.T) {
	opts, err := ParseFlags([]string{"-version"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if !opts.ShowVersion || opts.Config != nil {
		t.Errorf("opts = %+v", opts)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	if _, err := ParseFlags([]string{"-help"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("-help err = %v, want flag.ErrHelp", err)
	}
	if _, err := ParseFlags([]string{"-bogus"}, io.Discard); err == nil {
		t.Error("expected error for unknown flag")
	}
	if _, err := ParseFlags([]string{"extra"}, io.Discard); err == nil {
		t.Error("expected error for positional argument")
	}
}

func TestDefaultEngineIsShipped(t *testing.T) {
	cfg := DefaultConfig()
	script := filepath.Join("..", "..", "scripts", cfg.Engine.Command)

	info, err := os.Stat(script)
	if err != nil {
		t.Fatalf("default engine %q is not in scripts/: %v", cfg.Engine.Command, err)
	}
	if info.Mode()&0111 == 0 {
		t.Errorf("%s is not executable", script)
	}

	src, err := os.ReadFile(script)
	if err != nil {
		t.Fatal(err)
	}
	for _, arg := range cfg.Engine.Args {
		if strings.HasPrefix(arg, "--") && !strings.Contains(string(src), `"`+arg+`"`) {
			t.Errorf("engine does not accept default argument %s", arg)
		}
	}
}
