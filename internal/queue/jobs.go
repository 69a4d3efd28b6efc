package queue

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/video-transcription/internal/cleanup"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// Job represents one video's transcription task
type Job struct {
	ID         string
	BatchID    string
	SourcePath string
	OutputPath string
	// Staging is filled in when the pipeline acquires its temp paths
	Staging   cleanup.StagingPaths
	Status    string
	CreatedAt time.Time
}

// NewJob creates a new job with default values
func NewJob(sourcePath, outputPath string) *Job {
	return &Job{
		ID:         uuid.NewString(),
		SourcePath: sourcePath,
		OutputPath: outputPath,
		Status:     types.StatusQueued,
		CreatedAt:  time.Now(),
	}
}

// Name returns the video's file name for log lines
func (j *Job) Name() string {
	return filepath.Base(j.SourcePath)
}

// OutputPathResolver maps videos to <base>.txt in one directory. Videos
// sharing a base name get " - dupN" suffixes so no transcript overwrites
// another one from the same batch.
type OutputPathResolver struct {
	dir string

	mu   sync.Mutex
	used map[string]int
}

// NewOutputPathResolver creates a resolver writing into dir
func NewOutputPathResolver(dir string) *OutputPathResolver {
	return &OutputPathResolver{
		dir:  dir,
		used: make(map[string]int),
	}
}

// Resolve returns the transcript path for sourcePath
func (r *OutputPathResolver) Resolve(sourcePath string) string {
	name := filepath.Base(sourcePath)
	base := strings.TrimSuffix(name, filepath.Ext(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	candidate := base
	for n := 0; ; n++ {
		if n > 0 {
			candidate = fmt.Sprintf("%s - dup%d", base, n)
		}
		// Case-insensitive filesystems treat Clip and clip as one file.
		key := strings.ToLower(candidate)
		if _, taken := r.used[key]; !taken {
			r.used[key] = n
			break
		}
	}
	return filepath.Join(r.dir, candidate+".txt")
}
