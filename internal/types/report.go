package types

import (
	"sort"
	"sync"
	"time"
)

// BatchReport collects every JobOutcome of one batch run. Add is safe to
// call from concurrent workers.
type BatchReport struct {
	Folder     string
	StartedAt  time.Time
	FinishedAt time.Time
	// Discovered is the number of jobs dispatched; 0 means NoJobsFound.
	Discovered int

	mu       sync.Mutex
	outcomes []JobOutcome
}

// NewBatchReport starts an empty report for folder
func NewBatchReport(folder string) *BatchReport {
	return &BatchReport{
		Folder:    folder,
		StartedAt: time.Now(),
	}
}

// Add appends one outcome
func (r *BatchReport) Add(o JobOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

// Outcomes returns a copy of the outcomes sorted by source path
func (r *BatchReport) Outcomes() []JobOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]JobOutcome, len(r.outcomes))
	copy(out, r.outcomes)
	sort.Slice(out, func(i, j int) bool {
		return out[i].SourcePath < out[j].SourcePath
	})
	return out
}

// Len returns the number of collected outcomes
func (r *BatchReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// Succeeded counts successful outcomes
func (r *BatchReport) Succeeded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

// Failed counts failed outcomes
func (r *BatchReport) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.outcomes {
		if !o.Succeeded() {
			n++
		}
	}
	return n
}

// FailedOutcomes returns only the failed outcomes, sorted by source path
func (r *BatchReport) FailedOutcomes() []JobOutcome {
	var failed []JobOutcome
	for _, o := range r.Outcomes() {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}
	return failed
}

// NoJobsFound reports the empty-batch terminal state
func (r *BatchReport) NoJobsFound() bool {
	return r.Discovered == 0
}

// Finish stamps the completion time
func (r *BatchReport) Finish() {
	r.FinishedAt = time.Now()
}

// Elapsed returns the wall time of the batch
func (r *BatchReport) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
