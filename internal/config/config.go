package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config file is looked up when -config is not given
const DefaultPath = "config/config.yaml"

// Config represents the application configuration
type Config struct {
	Engine struct {
		ModelPath    string   `yaml:"model_path"`
		Command      string   `yaml:"command"`
		Args         []string `yaml:"args"`
		Env          []string `yaml:"env"`
		FrameSamples int      `yaml:"frame_samples"`
		Verbose      bool     `yaml:"verbose"`
	} `yaml:"engine"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Storage struct {
		InputDir  string `yaml:"input_dir"`
		TempDir   string `yaml:"temp_dir"`
		OutputDir string `yaml:"output_dir"`
		// Database is the outcome history file; empty disables history
		Database string `yaml:"database"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Server struct {
		Enabled     bool   `yaml:"enabled"`
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		RequestLogs bool   `yaml:"request_logs"`
	} `yaml:"server"`

	Output struct {
		// Normalizer is "wav" (built in) or "ffmpeg"
		Normalizer    string `yaml:"normalizer"`
		FFmpegPath    string `yaml:"ffmpeg_path"`
		WriteMetadata bool   `yaml:"write_metadata"`
	} `yaml:"output"`

	Logging struct {
		File string `yaml:"file"`
	} `yaml:"logging"`
}

// DefaultConfig returns the settings used when no config file exists.
// Directory defaults are filled in later by Resolve.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Engine.ModelPath = "model"
	cfg.Engine.Command = "vosk-frame-engine"
	cfg.Engine.Args = []string{"--model", "{model}", "--rate", "{rate}"}
	cfg.Engine.FrameSamples = 4000

	cfg.Workers.Count = runtime.NumCPU()

	cfg.Storage.InputDir = "."
	cfg.Storage.Database = "transcriptions.db"

	cfg.Cleanup.IntervalMinutes = 30
	cfg.Cleanup.MaxAgeHours = 24

	cfg.GoogleDrive.CredentialsFile = "config/credentials.json"
	cfg.GoogleDrive.TokenFile = "config/token.json"
	cfg.GoogleDrive.FolderName = "Transcriptions"

	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 3000

	cfg.Output.Normalizer = "wav"
	cfg.Output.FFmpegPath = "ffmpeg"

	return cfg
}

// Load reads the YAML file at path over the defaults. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve makes the input directory absolute and derives the temp and
// output directories from it when they are unset. A relative database path
// is placed in the output directory.
func (c *Config) Resolve() error {
	input, err := filepath.Abs(c.Storage.InputDir)
	if err != nil {
		return fmt.Errorf("invalid input folder %q: %w", c.Storage.InputDir, err)
	}
	c.Storage.InputDir = input

	if c.Storage.TempDir == "" {
		c.Storage.TempDir = filepath.Join(input, "temp_files")
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = filepath.Join(input, "transcriptions")
	}
	if c.Storage.Database != "" && !filepath.IsAbs(c.Storage.Database) {
		c.Storage.Database = filepath.Join(c.Storage.OutputDir, c.Storage.Database)
	}
	return nil
}

// Validate checks settings that would make every job fail or clobber files
func (c *Config) Validate() error {
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers.Count)
	}
	if c.Engine.ModelPath == "" {
		return errors.New("model path is required")
	}
	if c.Engine.Command == "" {
		return errors.New("engine command is required")
	}
	if c.Engine.FrameSamples < 1 {
		return fmt.Errorf("frame_samples must be positive, got %d", c.Engine.FrameSamples)
	}
	switch c.Output.Normalizer {
	case "wav", "ffmpeg":
	default:
		return fmt.Errorf("unknown normalizer %q (want wav or ffmpeg)", c.Output.Normalizer)
	}
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	tmp, err := filepath.Abs(c.Storage.TempDir)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(c.Storage.OutputDir)
	if err != nil {
		return err
	}
	if tmp == out {
		return fmt.Errorf("output folder and temp folder must differ (%s)", out)
	}
	return nil
}

// Addr returns the status server listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
