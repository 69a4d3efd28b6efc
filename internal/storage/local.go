package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TranscriptMeta is the sidecar written next to a transcript
type TranscriptMeta struct {
	JobID       string    `json:"job_id"`
	SourcePath  string    `json:"source_path"`
	WordCount   int       `json:"word_count"`
	Model       string    `json:"model_used"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	LocalPath   string    `json:"local_path"`
}

// LocalStorage handles saving transcripts to the local filesystem
type LocalStorage struct {
	writeMetadata bool
}

// NewLocalStorage creates a new local storage handler. When writeMetadata
// is set every transcript gets a <name>_meta.json sidecar.
func NewLocalStorage(writeMetadata bool) *LocalStorage {
	return &LocalStorage{
		writeMetadata: writeMetadata,
	}
}

// SaveTranscript writes text to outputPath atomically. A reader never sees
// a partially written transcript. meta may be nil.
func (ls *LocalStorage) SaveTranscript(outputPath, text string, meta *TranscriptMeta) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeFileAtomic(outputPath, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	if !ls.writeMetadata || meta == nil {
		return nil
	}

	m := *meta
	m.LocalPath = outputPath
	metaJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := writeFileAtomic(MetaPath(outputPath), metaJSON, 0644); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// MetaPath returns the sidecar path for a transcript
func MetaPath(transcriptPath string) string {
	return strings.TrimSuffix(transcriptPath, filepath.Ext(transcriptPath)) + "_meta.json"
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// sanitizeFilename strips path separators and reserved characters
func sanitizeFilename(name string) string {
	result := filepath.Base(name)
	result = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, result)
	if len(result) > 100 {
		result = result[:100] // Limit length
	}
	return result
}
