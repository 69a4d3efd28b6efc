package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/codebuildervaibhav/video-transcription/internal/cleanup"
	"github.com/codebuildervaibhav/video-transcription/internal/storage"
	"github.com/codebuildervaibhav/video-transcription/internal/transcription"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// AudioTranscriber turns a canonical WAV file into text
type AudioTranscriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// TranscriptWriter commits finished transcripts
type TranscriptWriter interface {
	SaveTranscript(outputPath, text string, meta *storage.TranscriptMeta) error
}

// Uploader mirrors a transcript somewhere remote and returns its link
type Uploader interface {
	Upload(ctx context.Context, name, text string) (string, error)
}

// OutcomeRecorder persists job outcomes
type OutcomeRecorder interface {
	SaveOutcome(batchID string, outcome types.JobOutcome) error
}

const uploadAttempts = 3

// ProcessorConfig wires the pipeline stages. Uploader and Recorder are optional.
type ProcessorConfig struct {
	Stager      *cleanup.Stager
	Extractor   transcription.Extractor
	Normalizer  transcription.Normalizer
	Transcriber AudioTranscriber
	Writer      TranscriptWriter
	Uploader    Uploader
	Recorder    OutcomeRecorder
	// ModelName is copied into transcript metadata
	ModelName string
}

// Processor runs the extract, normalize, transcribe and write stages for
// one job at a time. It holds no per-job state and is shared by all workers.
type Processor struct {
	stager      *cleanup.Stager
	extractor   transcription.Extractor
	normalizer  transcription.Normalizer
	transcriber AudioTranscriber
	writer      TranscriptWriter
	uploader    Uploader
	recorder    OutcomeRecorder
	modelName   string

	// backoff is the wait before upload retry number attempt
	backoff func(attempt int) time.Duration
}

// NewProcessor creates a new job processor
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		stager:      cfg.Stager,
		extractor:   cfg.Extractor,
		normalizer:  cfg.Normalizer,
		transcriber: cfg.Transcriber,
		writer:      cfg.Writer,
		uploader:    cfg.Uploader,
		recorder:    cfg.Recorder,
		modelName:   cfg.ModelName,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

// Run processes one job and always returns its outcome. Errors and panics
// from any stage end up in the outcome; staged files are removed on every
// path out.
func (p *Processor) Run(ctx context.Context, job *Job) (outcome types.JobOutcome) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC processing job %s (%s): %v\n%s", job.ID, job.Name(), r, string(debug.Stack()))
			outcome = types.Fail(job.ID, job.SourcePath,
				types.NewJobError(types.KindInternal, fmt.Sprintf("pipeline panic: %v", r), nil))
		}
		outcome.StartedAt = started
		outcome.CompletedAt = time.Now()

		if outcome.Succeeded() {
			job.Status = types.StatusCompleted
		} else {
			job.Status = types.StatusFailed
		}
		p.record(job, outcome)
	}()

	return p.run(ctx, job)
}

func (p *Processor) run(ctx context.Context, job *Job) types.JobOutcome {
	fail := func(kind types.ErrorKind, msg string, err error) types.JobOutcome {
		jerr := types.NewJobError(kind, msg, err)
		jerr.Cause = classify(err)
		if kind == types.KindTranscription && jerr.Cause == "" {
			jerr.Cause = types.KindTranscription
		}
		log.Printf("Job %s (%s) failed: %v", job.ID, job.Name(), jerr)
		return types.Fail(job.ID, job.SourcePath, jerr)
	}

	if err := ctx.Err(); err != nil {
		return fail(types.KindCancelled, "batch interrupted before the job started", err)
	}

	paths, err := p.stager.Acquire(job.ID)
	if err != nil {
		return fail(types.KindInternal, "cannot stage temp files", err)
	}
	job.Staging = paths
	defer func() {
		if err := p.stager.Release(paths); err != nil {
			log.Printf("Job %s: cleanup failed: %v", job.ID, err)
		}
	}()

	job.Status = types.StatusProcessing
	// A started stage runs to completion even if the batch is interrupted;
	// cancellation is honoured between stages.
	stageCtx := context.WithoutCancel(ctx)

	// Step 1: Extract audio track
	if err := p.extractor.Extract(stageCtx, job.SourcePath, paths.RawAudio); err != nil {
		return fail(types.KindExtraction, "audio extraction failed", err)
	}
	if err := ctx.Err(); err != nil {
		return fail(types.KindCancelled, "batch interrupted after extraction", err)
	}

	// Step 2: Normalize audio
	if err := p.normalizer.Normalize(stageCtx, paths.RawAudio, paths.Normalized); err != nil {
		return fail(types.KindNormalization, "audio normalization failed", err)
	}
	if err := ctx.Err(); err != nil {
		return fail(types.KindCancelled, "batch interrupted after normalization", err)
	}

	// Step 3: Transcribe
	text, err := p.transcriber.Transcribe(stageCtx, paths.Normalized)
	if err != nil {
		return fail(types.KindTranscription, "transcription failed", err)
	}
	wordCount := len(strings.Fields(text))

	// Step 4: Save transcript
	meta := &storage.TranscriptMeta{
		JobID:       job.ID,
		SourcePath:  job.SourcePath,
		WordCount:   wordCount,
		Model:       p.modelName,
		StartedAt:   job.CreatedAt,
		CompletedAt: time.Now(),
	}
	if err := p.writer.SaveTranscript(job.OutputPath, text, meta); err != nil {
		return fail(types.KindWrite, "writing transcript failed", err)
	}

	outcome := types.Succeed(job.ID, job.SourcePath, job.OutputPath, text, wordCount)

	// Step 5: Mirror to remote storage (with retry)
	if p.uploader != nil {
		outcome.RemoteURL = p.upload(ctx, job, text)
	}

	log.Printf("Job %s completed: %s -> %s (%d words)", job.ID, job.Name(), job.OutputPath, wordCount)
	return outcome
}

// upload tries a few times and only logs failures; the local transcript is
// the job's result.
func (p *Processor) upload(ctx context.Context, job *Job, text string) string {
	name := filepath.Base(job.OutputPath)
	var err error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		var url string
		url, err = p.uploader.Upload(context.WithoutCancel(ctx), name, text)
		if err == nil {
			return url
		}
		log.Printf("Job %s: upload attempt %d/%d failed: %v", job.ID, attempt, uploadAttempts, err)
		if attempt == uploadAttempts {
			break
		}
		select {
		case <-time.After(p.backoff(attempt)):
		case <-ctx.Done():
			log.Printf("Job %s: WARNING - upload abandoned, batch interrupted", job.ID)
			return ""
		}
	}
	log.Printf("Job %s: WARNING - upload failed after %d attempts, continuing with local save only: %v",
		job.ID, uploadAttempts, err)
	return ""
}

func (p *Processor) record(job *Job, outcome types.JobOutcome) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.SaveOutcome(job.BatchID, outcome); err != nil {
		log.Printf("Job %s: saving outcome failed: %v", job.ID, err)
	}
}

// classify maps lower-layer sentinel errors to their taxonomy kind
func classify(err error) types.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, transcription.ErrModelNotFound),
		errors.Is(err, transcription.ErrEngineUnavailable):
		return types.KindModelNotFound
	case errors.Is(err, transcription.ErrUnsupportedAudioFormat):
		return types.KindUnsupportedAudioFormat
	case errors.Is(err, transcription.ErrMalformedAudioFile):
		return types.KindMalformedAudioFile
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.KindCancelled
	}
	return ""
}
