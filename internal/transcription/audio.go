package transcription

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// Sentinel errors reported by the adapter and its collaborators.
var (
	ErrModelNotFound          = errors.New("recognition model not found")
	ErrEngineUnavailable      = errors.New("recognition engine command not found")
	ErrUnsupportedAudioFormat = errors.New("audio must be 16kHz mono 16-bit PCM")
	ErrMalformedAudioFile     = errors.New("audio file is not a readable WAV container")
	ErrNoAudioTrack           = errors.New("video has no audio track")
)

// VideoExtensions are the container extensions picked up from the input folder
var VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

// ValidateVideoFormat checks if the file extension is a supported video container
func ValidateVideoFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, format := range VideoExtensions {
		if ext == format {
			return true
		}
	}
	return false
}

// ReadAudioSpec reads the WAV header of path
func ReadAudioSpec(path string) (types.AudioSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.AudioSpec{}, fmt.Errorf("%w: %v", ErrMalformedAudioFile, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	return decoderSpec(d)
}

// decoderSpec parses the header through d and returns its layout
func decoderSpec(d *wav.Decoder) (types.AudioSpec, error) {
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return types.AudioSpec{}, fmt.Errorf("%w: %v", ErrMalformedAudioFile, err)
	}
	if d.NumChans == 0 || d.SampleRate == 0 || d.BitDepth == 0 {
		return types.AudioSpec{}, fmt.Errorf("%w: missing format information", ErrMalformedAudioFile)
	}
	return types.AudioSpec{
		Channels:   int(d.NumChans),
		SampleRate: int(d.SampleRate),
		BitDepth:   int(d.BitDepth),
	}, nil
}
