package transcription

import (
	"context"
	"fmt"
	"os"
	"regexp"
)

// Extractor pulls the primary audio track out of a video container
type Extractor interface {
	Extract(ctx context.Context, videoPath, rawAudioPath string) error
}

var noAudioPattern = regexp.MustCompile(`(?i)(does not contain any stream|matches no streams|no audio)`)

// FFmpegExtractor demuxes audio with the ffmpeg binary
type FFmpegExtractor struct {
	ffmpegPath string
	runner     commandRunner
}

// NewFFmpegExtractor creates an extractor that runs ffmpegPath
func NewFFmpegExtractor(ffmpegPath string) *FFmpegExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegExtractor{ffmpegPath: ffmpegPath, runner: &execRunner{}}
}

// Extract writes the first audio stream of videoPath to rawAudioPath as
// 16-bit PCM WAV at the source rate and channel layout.
func (e *FFmpegExtractor) Extract(ctx context.Context, videoPath, rawAudioPath string) error {
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("cannot read video: %w", err)
	}

	res, err := e.runner.Run(ctx, e.ffmpegPath,
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", videoPath,
		"-map", "0:a:0", // first audio stream only
		"-vn",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		rawAudioPath,
	)
	if err != nil {
		if noAudioPattern.MatchString(res.Stderr) {
			return fmt.Errorf("%w: %s", ErrNoAudioTrack, videoPath)
		}
		return fmt.Errorf("ffmpeg failed (exit %d): %v\nOutput: %s", res.ExitCode, err, tailLines(res.Stderr, 5))
	}

	info, err := os.Stat(rawAudioPath)
	if err != nil {
		return fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrNoAudioTrack, videoPath)
	}
	return nil
}
