package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/codebuildervaibhav/video-transcription/internal/cleanup"
	"github.com/codebuildervaibhav/video-transcription/internal/config"
	"github.com/codebuildervaibhav/video-transcription/internal/handlers"
	"github.com/codebuildervaibhav/video-transcription/internal/progress"
	"github.com/codebuildervaibhav/video-transcription/internal/queue"
	"github.com/codebuildervaibhav/video-transcription/internal/storage"
	"github.com/codebuildervaibhav/video-transcription/internal/transcription"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := config.ParseFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if opts.ShowVersion {
		fmt.Println("transcriber v" + version)
		return 0
	}

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 2
	}

	// Setup logging
	logBuffer := handlers.NewLogBuffer()
	writers := []io.Writer{os.Stdout, logBuffer}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		writers = append(writers, f)
	}
	log.SetOutput(io.MultiWriter(writers...))

	ctx, stop := interruptContext(context.Background())
	defer stop()

	log.Println("Initializing components...")

	if err := cleanup.EnsureTempDirExists(cfg.Storage.TempDir); err != nil {
		log.Printf("Failed to create temp folder: %v", err)
		return 1
	}
	if err := os.MkdirAll(cfg.Storage.OutputDir, 0755); err != nil {
		log.Printf("Failed to create output folder: %v", err)
		return 1
	}

	stager := cleanup.NewStager(cfg.Storage.TempDir)

	// Leftovers from interrupted runs are swept at startup and periodically
	cleanupScheduler := cleanup.NewScheduler(
		cfg.Storage.TempDir,
		cfg.Cleanup.IntervalMinutes,
		cfg.Cleanup.MaxAgeHours,
		stager,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// A missing model does not stop the batch; every job reports it.
	var model transcription.Model
	loaded, err := transcription.LoadModel(transcription.EngineConfig{
		ModelPath: cfg.Engine.ModelPath,
		Command:   cfg.Engine.Command,
		Args:      cfg.Engine.Args,
		Env:       cfg.Engine.Env,
	})
	if err != nil {
		log.Printf("Recognition model unavailable: %v", err)
		model = transcription.UnavailableModel(err)
	} else {
		model = loaded
	}

	var normalizer transcription.Normalizer = transcription.NewWAVNormalizer()
	if cfg.Output.Normalizer == "ffmpeg" {
		normalizer = transcription.NewFFmpegNormalizer(cfg.Output.FFmpegPath)
	}

	procCfg := queue.ProcessorConfig{
		Stager:      stager,
		Extractor:   transcription.NewFFmpegExtractor(cfg.Output.FFmpegPath),
		Normalizer:  normalizer,
		Transcriber: transcription.NewTranscriber(model, cfg.Engine.FrameSamples, cfg.Engine.Verbose),
		Writer:      storage.NewLocalStorage(cfg.Output.WriteMetadata),
		ModelName:   filepath.Base(cfg.Engine.ModelPath),
	}
	batchOpts := queue.BatchOptions{
		InputDir:  cfg.Storage.InputDir,
		OutputDir: cfg.Storage.OutputDir,
		Workers:   cfg.Workers.Count,
	}

	// Database (optional)
	var db *storage.MetadataDB
	if cfg.Storage.Database != "" {
		db, err = storage.NewMetadataDB(cfg.Storage.Database)
		if err != nil {
			log.Printf("Outcome history disabled: %v", err)
		} else {
			defer db.Close()
			procCfg.Recorder = db
			batchOpts.Recorder = db
		}
	}

	// Google Drive client (optional)
	if cfg.GoogleDrive.Enabled {
		driveClient, err := storage.NewDriveClient(ctx,
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("Google Drive unavailable - saving locally only: %v", err)
		} else {
			procCfg.Uploader = driveClient
		}
	}

	processor := queue.NewProcessor(procCfg)

	var reporter progress.Reporter = progress.NewLogReporter(nil)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		reporter = progress.NewBarReporter(os.Stderr)
	}
	tracker := progress.NewTracker(reporter)

	if cfg.Server.Enabled {
		var outcomes handlers.OutcomeStore
		if db != nil {
			outcomes = db
		}
		app := handlers.NewApp(
			handlers.NewStatusHandler(tracker, outcomes, logBuffer, version),
			handlers.NewStreamHandler(tracker),
			cfg.Server.RequestLogs,
		)
		go func() {
			log.Printf("Status server listening on http://%s", cfg.Addr())
			if err := app.Listen(cfg.Addr()); err != nil {
				log.Printf("Status server stopped: %v", err)
			}
		}()
		defer app.ShutdownWithTimeout(5 * time.Second)
	}

	log.Printf("Transcribing %s with %d workers", cfg.Storage.InputDir, cfg.Workers.Count)

	report, err := queue.RunBatch(ctx, batchOpts, processor, tracker)
	if err != nil {
		log.Printf("Batch failed: %v", err)
		return 1
	}

	printSummary(os.Stdout, report)

	if opts.StrictExit && report.Failed() > 0 {
		return 1
	}
	return 0
}

// interruptContext cancels the returned context on the first SIGINT or
// SIGTERM. Jobs then finish their current stage; a second signal gets the
// default handling and kills the process.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go watchInterrupt(ctx, sigCh, func() { signal.Stop(sigCh) }, cancel)
	return ctx, cancel
}

func watchInterrupt(ctx context.Context, sigCh <-chan os.Signal, release, cancel func()) {
	defer release()
	select {
	case <-sigCh:
		release()
		log.Println("Received interrupt, finishing current stage (press Ctrl+C again to abort)...")
		cancel()
	case <-ctx.Done():
	}
}

func printSummary(w io.Writer, report *types.BatchReport) {
	if report.NoJobsFound() {
		fmt.Fprintf(w, "\n%s: no video files found in %s\n", types.KindNoJobsFound, report.Folder)
		return
	}

	fmt.Fprintln(w)
	for _, o := range report.Outcomes() {
		name := filepath.Base(o.SourcePath)
		if o.Succeeded() {
			fmt.Fprintf(w, "OK    %s -> %s (%s words, %s)\n",
				name, o.OutputPath, humanize.Comma(int64(o.WordCount)), o.Duration().Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(w, "FAIL  %s: %s\n", name, o.Kind())
	}

	fmt.Fprintf(w, "\n%s of %s videos transcribed in %s\n",
		humanize.Comma(int64(report.Succeeded())),
		humanize.Comma(int64(report.Len())),
		report.Elapsed().Round(time.Second))

	failed := report.FailedOutcomes()
	if len(failed) == 0 {
		return
	}
	fmt.Fprintf(w, "\nFailed jobs (%d):\n", len(failed))
	for _, o := range failed {
		kind := string(o.Kind())
		if cause := o.Cause(); cause != "" && cause != o.Kind() {
			kind = fmt.Sprintf("%s (%s)", kind, cause)
		}
		fmt.Fprintf(w, "  %s\n    %s: %s\n", o.SourcePath, kind, o.Message())
	}
}
