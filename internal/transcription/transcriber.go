package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// DefaultFrameSamples is how many samples are fed to the recognizer per call
const DefaultFrameSamples = 4000

// Transcriber turns canonical 16kHz mono WAV files into text using a shared
// Model. It holds no per-job state and may be used from many goroutines.
type Transcriber struct {
	model        Model
	frameSamples int
	verbose      bool
}

// NewTranscriber creates an adapter over model. frameSamples <= 0 selects
// DefaultFrameSamples.
func NewTranscriber(model Model, frameSamples int, verbose bool) *Transcriber {
	if frameSamples <= 0 {
		frameSamples = DefaultFrameSamples
	}
	return &Transcriber{
		model:        model,
		frameSamples: frameSamples,
		verbose:      verbose,
	}
}

// Transcribe reads audioPath and returns the trimmed transcript. Segments
// are trimmed, empty ones dropped, and the rest joined by newlines.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedAudioFile, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	spec, err := decoderSpec(dec)
	if err != nil {
		return "", err
	}
	if !spec.Matches(types.CanonicalSpec) {
		return "", fmt.Errorf("%w: got %s", ErrUnsupportedAudioFormat, spec)
	}
	if err := dec.FwdToPCM(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedAudioFile, err)
	}

	rec, err := t.model.NewRecognizer(ctx, spec.SampleRate)
	if err != nil {
		return "", err
	}
	defer rec.Close()

	total := int64(dec.PCMSize)
	pcm := io.LimitReader(dec.PCMChunk, total)
	frame := make([]byte, t.frameSamples*spec.BytesPerSample())
	name := filepath.Base(audioPath)

	var segments []string
	var read int64
	lastReported := -1

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := io.ReadFull(pcm, frame)
		if n > 0 {
			accepted, aerr := rec.AcceptWaveform(frame[:n])
			if aerr != nil {
				return "", fmt.Errorf("recognizer rejected frame: %w", aerr)
			}
			if accepted {
				text, derr := decodeText(rec.Result())
				if derr != nil {
					return "", derr
				}
				segments = append(segments, text)
			}
			read += int64(n)
			if t.verbose && total > 0 {
				pct := int(read * 100 / total)
				if step := pct / 25 * 25; step > lastReported {
					lastReported = step
					log.Printf("Transcribing %s: %d%%", name, step)
				}
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedAudioFile, err)
		}
	}

	final, err := rec.FinalResult()
	if err != nil {
		return "", fmt.Errorf("recognizer final result: %w", err)
	}
	text, err := decodeText(final)
	if err != nil {
		return "", err
	}
	segments = append(segments, text)

	return joinSegments(segments), nil
}

// joinSegments trims each segment, drops empty ones and joins the rest
func joinSegments(segments []string) string {
	kept := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

type engineResult struct {
	Text    *string `json:"text"`
	Partial *string `json:"partial"`
}

// decodeText extracts the text field of a segment result
func decodeText(raw string) (string, error) {
	text, _, err := decodeEngineLine([]byte(raw))
	return text, err
}

// decodeEngineLine parses one engine answer. final is true when the line
// carries a completed segment.
func decodeEngineLine(line []byte) (text string, final bool, err error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return "", false, errors.New("empty engine result")
	}
	var res engineResult
	if err := json.Unmarshal(line, &res); err != nil {
		return "", false, fmt.Errorf("failed to parse engine result: %v", err)
	}
	if res.Text != nil {
		return *res.Text, true, nil
	}
	return "", false, nil
}
