package config

import (
	"flag"
	"fmt"
	"io"
)

// Options is the parsed command line
type Options struct {
	Config     *Config
	ConfigPath string
	// StrictExit makes any failed job produce a non-zero exit status
	StrictExit  bool
	ShowVersion bool
}

// ParseFlags parses args, loads the config file named by -config and applies
// only the flags that were given on top of it. Usage and errors go to out.
func ParseFlags(args []string, out io.Writer) (*Options, error) {
	fs := flag.NewFlagSet("transcriber", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		configPath = fs.String("config", DefaultPath, "path to the YAML config file")
		input      = fs.String("input", "", "folder containing the videos (default: current directory)")
		model      = fs.String("model", "", "recognition model directory")
		workers    = fs.Int("workers", 0, "number of videos processed at once (default: number of CPUs)")
		temp       = fs.String("temp", "", "folder for intermediate audio (default: <input>/temp_files)")
		output     = fs.String("output", "", "folder for transcripts (default: <input>/transcriptions)")
		serve      = fs.Bool("serve", false, "serve batch status over HTTP while running")
		verbose    = fs.Bool("verbose", false, "log per-job transcription progress")
		strict     = fs.Bool("strict-exit", false, "exit with status 1 when any video fails")
		version    = fs.Bool("version", false, "print version and exit")
	)

	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: transcriber [options]")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Transcribes every video in a folder to <name>.txt.")
		fmt.Fprintln(out)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	opts := &Options{
		ConfigPath:  *configPath,
		StrictExit:  *strict,
		ShowVersion: *version,
	}
	if opts.ShowVersion {
		return opts, nil
	}

	cfg, err := Load(*configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Storage.InputDir = *input
		case "model":
			cfg.Engine.ModelPath = *model
		case "workers":
			cfg.Workers.Count = *workers
		case "temp":
			cfg.Storage.TempDir = *temp
		case "output":
			cfg.Storage.OutputDir = *output
		case "serve":
			cfg.Server.Enabled = *serve
		case "verbose":
			cfg.Engine.Verbose = *verbose
		}
	})

	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	opts.Config = cfg
	return opts, nil
}
