package queue

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/codebuildervaibhav/video-transcription/internal/transcription"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// Progress receives live batch progress
type Progress interface {
	Start(total int)
	Complete(outcome types.JobOutcome)
}

// BatchRecorder persists batch-level bookkeeping
type BatchRecorder interface {
	StartBatch(folder string, startedAt time.Time) (string, error)
	FinishBatch(batchID string, report *types.BatchReport) error
}

// BatchOptions configures one RunBatch call
type BatchOptions struct {
	InputDir  string
	OutputDir string
	Workers   int
	// Recorder is optional
	Recorder BatchRecorder
}

// Discover lists regular files directly inside dir that have a recognized
// video extension, sorted by name.
func Discover(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read input folder %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !transcription.ValidateVideoFormat(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		// Stat follows symlinks so a linked video still counts.
		info, err := os.Stat(path)
		if err != nil {
			log.Printf("Skipping %s: %v", entry.Name(), err)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// RunBatch transcribes every video in opts.InputDir and waits for all of
// them. Job failures are reported in the BatchReport; the returned error is
// only set when the folder cannot be read. An empty folder yields a report
// with NoJobsFound() true. progress may be nil.
func RunBatch(ctx context.Context, opts BatchOptions, runner JobRunner, progress Progress) (*types.BatchReport, error) {
	report := types.NewBatchReport(opts.InputDir)

	sources, err := Discover(ctx, opts.InputDir)
	if err != nil {
		return nil, err
	}
	report.Discovered = len(sources)

	if len(sources) == 0 {
		log.Printf("No video files found in %s", opts.InputDir)
		report.Finish()
		return report, nil
	}
	log.Printf("Found %d video files in %s", len(sources), opts.InputDir)

	var batchID string
	if opts.Recorder != nil {
		batchID, err = opts.Recorder.StartBatch(opts.InputDir, report.StartedAt)
		if err != nil {
			log.Printf("Batch history unavailable: %v", err)
		}
	}

	resolver := NewOutputPathResolver(opts.OutputDir)
	jobs := make([]*Job, 0, len(sources))
	for _, src := range sources {
		job := NewJob(src, resolver.Resolve(src))
		job.BatchID = batchID
		jobs = append(jobs, job)
	}

	if progress != nil {
		progress.Start(len(jobs))
	}

	pool := NewWorkerPool(opts.Workers, runner)
	for outcome := range pool.Process(ctx, jobs) {
		report.Add(outcome)
		if progress != nil {
			progress.Complete(outcome)
		}
	}
	report.Finish()

	if opts.Recorder != nil && batchID != "" {
		if err := opts.Recorder.FinishBatch(batchID, report); err != nil {
			log.Printf("Saving batch summary failed: %v", err)
		}
	}

	log.Printf("Batch finished in %s: %d succeeded, %d failed",
		report.Elapsed().Round(time.Millisecond), report.Succeeded(), report.Failed())
	return report, nil
}
