package queue

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// JobRunner executes one job to a terminal outcome
type JobRunner interface {
	Run(ctx context.Context, job *Job) types.JobOutcome
}

// WorkerPool runs jobs on a fixed number of workers
type WorkerPool struct {
	workerCount int
	runner      JobRunner
}

// NewWorkerPool creates a new worker pool. workerCount < 1 means one worker.
func NewWorkerPool(workerCount int, runner JobRunner) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &WorkerPool{
		workerCount: workerCount,
		runner:      runner,
	}
}

// Process queues jobs for the workers and returns a channel that yields
// exactly one outcome per job, in completion order. The channel is closed
// once every job has an outcome. Jobs still queued when ctx is cancelled
// are reported as Cancelled without being started.
func (wp *WorkerPool) Process(ctx context.Context, jobs []*Job) <-chan types.JobOutcome {
	jobQueue := make(chan *Job, len(jobs))
	for _, job := range jobs {
		job.Status = types.StatusQueued
		jobQueue <- job
	}
	close(jobQueue)

	results := make(chan types.JobOutcome, len(jobs))

	workers := wp.workerCount
	if workers > len(jobs) {
		workers = len(jobs)
	}
	log.Printf("Starting worker pool with %d workers for %d jobs", workers, len(jobs))

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		id := i
		g.Go(func() error {
			wp.worker(ctx, id, jobQueue, results)
			return nil
		})
	}

	go func() {
		g.Wait()
		close(results)
	}()

	return results
}

// worker processes jobs from the queue until it is drained
func (wp *WorkerPool) worker(ctx context.Context, id int, jobQueue <-chan *Job, results chan<- types.JobOutcome) {
	log.Printf("Worker %d started", id)
	defer log.Printf("Worker %d finished", id)

	for job := range jobQueue {
		if ctx.Err() != nil {
			results <- types.Fail(job.ID, job.SourcePath,
				types.NewJobError(types.KindCancelled, "batch interrupted before the job started", ctx.Err()))
			continue
		}
		log.Printf("Worker %d: Processing job %s (%s)", id, job.ID, job.Name())
		results <- wp.runJob(ctx, id, job)
	}
}

// runJob contains panics from runners that do not recover their own
func (wp *WorkerPool) runJob(ctx context.Context, id int, job *Job) (outcome types.JobOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker %d: PANIC processing job %s: %v\n%s",
				id, job.ID, r, string(debug.Stack()))
			outcome = types.Fail(job.ID, job.SourcePath,
				types.NewJobError(types.KindInternal, fmt.Sprintf("worker panic: %v", r), nil))
		}
	}()
	return wp.runner.Run(ctx, job)
}
