package cleanup

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrAlreadyStaged is returned when a job ID already holds a staging lease
var ErrAlreadyStaged = errors.New("job already staged")

// StagingPaths are the temp files owned by one job
type StagingPaths struct {
	JobID      string
	RawAudio   string
	Normalized string
}

// All returns every staged path
func (p StagingPaths) All() []string {
	return []string{p.RawAudio, p.Normalized}
}

// Stager hands out per-job temp paths inside one directory. Paths embed the
// job ID so concurrent jobs never collide on the filesystem.
type Stager struct {
	dir string

	mu     sync.Mutex
	leased map[string]StagingPaths
}

// NewStager creates a stager rooted at dir
func NewStager(dir string) *Stager {
	return &Stager{
		dir:    dir,
		leased: make(map[string]StagingPaths),
	}
}

// Dir returns the staging directory
func (s *Stager) Dir() string {
	return s.dir
}

// Acquire allocates the raw and normalized audio paths for jobID
func (s *Stager) Acquire(jobID string) (StagingPaths, error) {
	if strings.TrimSpace(jobID) == "" || strings.ContainsAny(jobID, `/\`) {
		return StagingPaths{}, fmt.Errorf("invalid job id %q", jobID)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return StagingPaths{}, fmt.Errorf("failed to create staging directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leased[jobID]; ok {
		return StagingPaths{}, fmt.Errorf("%w: %s", ErrAlreadyStaged, jobID)
	}

	paths := StagingPaths{
		JobID:      jobID,
		RawAudio:   filepath.Join(s.dir, jobID+".raw.wav"),
		Normalized: filepath.Join(s.dir, jobID+".norm.wav"),
	}
	s.leased[jobID] = paths
	return paths, nil
}

// Release removes the job's staged files. Missing files are not an error,
// so releasing twice is a no-op the second time.
func (s *Stager) Release(paths StagingPaths) error {
	var errs []error
	for _, p := range paths.All() {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to cleanup temp file %s: %v", p, err)
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	delete(s.leased, paths.JobID)
	s.mu.Unlock()

	return errors.Join(errs...)
}

// Active returns the number of outstanding leases
func (s *Stager) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leased)
}

// IsLeased reports whether path belongs to a job that is still running
func (s *Stager) IsLeased(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.leased {
		if p.RawAudio == path || p.Normalized == path {
			return true
		}
	}
	return false
}
