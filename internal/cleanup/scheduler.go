package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Scheduler sweeps orphaned staging files left behind by crashed runs
type Scheduler struct {
	tempDir         string
	intervalMinutes int
	maxAgeHours     int
	stager          *Stager
	stopChan        chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

// NewScheduler creates a new cleanup scheduler. Files currently leased by
// stager are never removed.
func NewScheduler(tempDir string, intervalMinutes, maxAgeHours int, stager *Stager) *Scheduler {
	return &Scheduler{
		tempDir:         tempDir,
		intervalMinutes: intervalMinutes,
		maxAgeHours:     maxAgeHours,
		stager:          stager,
		stopChan:        make(chan struct{}),
		now:             time.Now,
	}
}

// Start runs one sweep immediately and then one per interval
func (s *Scheduler) Start() {
	log.Println("Running initial temp file cleanup...")
	s.CleanOldFiles()

	if s.intervalMinutes <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(s.intervalMinutes) * time.Minute)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.CleanOldFiles()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("Cleanup scheduler started (interval: %dm, max age: %dh)",
		s.intervalMinutes, s.maxAgeHours)
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		log.Println("Cleanup scheduler stopped")
	})
}

// CleanOldFiles removes files older than maxAgeHours from the temp directory
// and returns how many were deleted.
func (s *Scheduler) CleanOldFiles() int {
	now := s.now()
	maxAge := time.Duration(s.maxAgeHours) * time.Hour

	var deletedCount int
	var deletedSize int64

	err := filepath.Walk(s.tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if s.stager != nil && s.stager.IsLeased(path) {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age > maxAge {
			size := info.Size()
			if err := os.Remove(path); err != nil {
				log.Printf("Failed to delete old file %s: %v", path, err)
			} else {
				deletedCount++
				deletedSize += size
				log.Printf("Deleted old temp file: %s (age: %s, size: %dKB)",
					filepath.Base(path), age.Round(time.Hour), size/1024)
			}
		}
		return nil
	})

	if err != nil {
		log.Printf("Error during cleanup: %v", err)
	}

	if deletedCount > 0 {
		log.Printf("Cleanup complete: %d files deleted, %.2fMB freed",
			deletedCount, float64(deletedSize)/(1024*1024))
	}
	return deletedCount
}

// EnsureTempDirExists creates the temp directory if it doesn't exist
func EnsureTempDirExists(tempDir string) error {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return err
	}
	log.Printf("Temp directory ready: %s", tempDir)
	return nil
}
