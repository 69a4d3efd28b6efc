package types

import (
	"fmt"
	"time"
)

// Job status constants
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// ErrorKind classifies why a job (or a batch) did not succeed
type ErrorKind string

const (
	KindExtraction             ErrorKind = "ExtractionError"
	KindNormalization          ErrorKind = "NormalizationError"
	KindUnsupportedAudioFormat ErrorKind = "UnsupportedAudioFormat"
	KindModelNotFound          ErrorKind = "ModelNotFound"
	KindMalformedAudioFile     ErrorKind = "MalformedAudioFile"
	KindTranscription          ErrorKind = "TranscriptionError"
	KindWrite                  ErrorKind = "WriteError"
	KindNoJobsFound            ErrorKind = "NoJobsFound"
	KindCancelled              ErrorKind = "Cancelled"
	KindInternal               ErrorKind = "InternalError"
)

// JobError is a stage-aware failure. Cause holds the more specific kind
// reported by a lower layer (e.g. ModelNotFound under TranscriptionError).
type JobError struct {
	Kind    ErrorKind
	Cause   ErrorKind
	Message string
	Err     error
}

// Error formats the failure for logs and summaries
func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	kind := string(e.Kind)
	if e.Cause != "" && e.Cause != e.Kind {
		kind += "/" + string(e.Cause)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", kind, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As
func (e *JobError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewJobError builds a JobError of the given kind
func NewJobError(kind ErrorKind, message string, err error) *JobError {
	return &JobError{Kind: kind, Message: message, Err: err}
}

// JobOutcome is the terminal result of one job. It is never mutated after
// the pipeline returns it.
type JobOutcome struct {
	JobID      string
	SourcePath string
	OutputPath string
	Transcript string
	WordCount  int
	// RemoteURL is the mirrored copy's link, when mirroring is enabled
	RemoteURL   string
	Err         *JobError
	StartedAt   time.Time
	CompletedAt time.Time
}

// Succeeded reports whether the job produced a transcript
func (o JobOutcome) Succeeded() bool {
	return o.Err == nil
}

// Kind returns the failure kind, or "" on success
func (o JobOutcome) Kind() ErrorKind {
	if o.Err == nil {
		return ""
	}
	return o.Err.Kind
}

// Cause returns the most specific failure kind known for the job
func (o JobOutcome) Cause() ErrorKind {
	if o.Err == nil {
		return ""
	}
	if o.Err.Cause != "" {
		return o.Err.Cause
	}
	return o.Err.Kind
}

// Message returns the human-readable failure text
func (o JobOutcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Duration returns how long the job ran
func (o JobOutcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.CompletedAt.IsZero() {
		return 0
	}
	return o.CompletedAt.Sub(o.StartedAt)
}

// Succeed builds a success outcome
func Succeed(jobID, source, output, text string, wordCount int) JobOutcome {
	return JobOutcome{
		JobID:      jobID,
		SourcePath: source,
		OutputPath: output,
		Transcript: text,
		WordCount:  wordCount,
	}
}

// Fail builds a failure outcome
func Fail(jobID, source string, err *JobError) JobOutcome {
	return JobOutcome{
		JobID:      jobID,
		SourcePath: source,
		Err:        err,
	}
}
