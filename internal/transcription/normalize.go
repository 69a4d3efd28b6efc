package transcription

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// Normalizer rewrites a WAV file into the canonical recognizer layout
type Normalizer interface {
	Normalize(ctx context.Context, inputPath, outputPath string) error
}

// pcmFrames is how many interleaved frames WAVNormalizer decodes at once
const pcmFrames = 8192

// WAVNormalizer converts PCM WAV in process: downmix to mono, linear
// resample to 16kHz and requantize to 16-bit.
type WAVNormalizer struct{}

// NewWAVNormalizer creates the in-process normalizer
func NewWAVNormalizer() *WAVNormalizer {
	return &WAVNormalizer{}
}

// Normalize converts inputPath into outputPath
func (n *WAVNormalizer) Normalize(ctx context.Context, inputPath, outputPath string) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open raw audio: %w", err)
	}
	defer in.Close()

	dec := wav.NewDecoder(in)
	src, err := decoderSpec(dec)
	if err != nil {
		return err
	}
	if dec.WavAudioFormat != 1 && dec.WavAudioFormat != 0xFFFE {
		return fmt.Errorf("%w: WAV format tag %d is not integer PCM", ErrMalformedAudioFile, dec.WavAudioFormat)
	}
	switch src.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("unsupported source bit depth %d", src.BitDepth)
	}
	if err := dec.FwdToPCM(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedAudioFile, err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create normalized audio: %w", err)
	}
	defer out.Close()

	target := types.CanonicalSpec
	enc := wav.NewEncoder(out, target.SampleRate, target.BitDepth, target.Channels, 1)
	rs := newLinearResampler(src.SampleRate, target.SampleRate)

	buf := &audio.IntBuffer{Data: make([]int, pcmFrames*src.Channels)}
	mono := make([]int, 0, pcmFrames)
	resampled := make([]int, 0, pcmFrames)
	// carry holds samples of a frame split across two reads
	var carry []int

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		got, err := dec.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedAudioFile, err)
		}
		if got == 0 {
			break
		}
		samples := buf.Data[:got]
		if len(carry) > 0 {
			samples = append(carry, samples...)
		}
		whole := len(samples) - len(samples)%src.Channels
		mono = downmix(samples[:whole], src.Channels, src.BitDepth, mono[:0])
		carry = append([]int(nil), samples[whole:]...)

		resampled = rs.write(mono, resampled[:0])
		if err := writeSamples(enc, resampled); err != nil {
			return err
		}
	}

	resampled = rs.flush(resampled[:0])
	if err := writeSamples(enc, resampled); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize normalized audio: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finalize normalized audio: %w", err)
	}
	return verifyCanonical(outputPath)
}

// verifyCanonical re-reads the header of a normalizer's output
func verifyCanonical(path string) error {
	spec, err := ReadAudioSpec(path)
	if err != nil {
		return fmt.Errorf("normalized audio unreadable: %w", err)
	}
	if !spec.Matches(types.CanonicalSpec) {
		return fmt.Errorf("%w: normalized audio is %s, want %s", ErrUnsupportedAudioFormat, spec, types.CanonicalSpec)
	}
	return nil
}

func writeSamples(enc *wav.Encoder, samples []int) error {
	err := enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{NumChannels: 1, SampleRate: types.CanonicalSpec.SampleRate},
		SourceBitDepth: types.CanonicalSpec.BitDepth,
	})
	if err != nil {
		return fmt.Errorf("failed to write normalized audio: %w", err)
	}
	return nil
}

// downmix averages interleaved frames into one channel at 16-bit scale
func downmix(interleaved []int, channels, bitDepth int, dst []int) []int {
	for i := 0; i+channels <= len(interleaved); i += channels {
		var sum int
		for c := 0; c < channels; c++ {
			sum += to16(interleaved[i+c], bitDepth)
		}
		dst = append(dst, clamp16(sum/channels))
	}
	return dst
}

// to16 rescales one sample of the given depth to the signed 16-bit range.
// 8-bit WAV is unsigned.
func to16(v, bitDepth int) int {
	switch bitDepth {
	case 8:
		return (v - 128) << 8
	case 24:
		return v >> 8
	case 32:
		return v >> 16
	default:
		return v
	}
}

func clamp16(v int) int {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}

// linearResampler converts a mono stream between sample rates with linear
// interpolation. It keeps just enough input across calls to interpolate
// over chunk boundaries.
type linearResampler struct {
	srcRate, dstRate int64
	next             int64 // next output sample index
	base             int64 // absolute input index of buf[0]
	buf              []int
}

func newLinearResampler(srcRate, dstRate int) *linearResampler {
	return &linearResampler{srcRate: int64(srcRate), dstRate: int64(dstRate)}
}

func (r *linearResampler) write(samples, out []int) []int {
	r.buf = append(r.buf, samples...)
	end := r.base + int64(len(r.buf))

	for {
		num := r.next * r.srcRate
		i0 := num / r.dstRate
		if i0+1 >= end {
			break
		}
		frac := num % r.dstRate
		a := int64(r.buf[i0-r.base])
		b := int64(r.buf[i0+1-r.base])
		out = append(out, int(a+(b-a)*frac/r.dstRate))
		r.next++
	}

	drop := r.next*r.srcRate/r.dstRate - r.base
	if drop > int64(len(r.buf)) {
		drop = int64(len(r.buf))
	}
	if drop > 0 {
		kept := copy(r.buf, r.buf[drop:])
		r.buf = r.buf[:kept]
		r.base += drop
	}
	return out
}

// flush emits the tail that had no following sample to interpolate towards
func (r *linearResampler) flush(out []int) []int {
	end := r.base + int64(len(r.buf))
	for {
		i0 := r.next * r.srcRate / r.dstRate
		if i0 >= end {
			break
		}
		out = append(out, r.buf[i0-r.base])
		r.next++
	}
	r.buf = r.buf[:0]
	return out
}

// FFmpegNormalizer resamples with ffmpeg for sources the in-process path
// cannot decode.
type FFmpegNormalizer struct {
	ffmpegPath string
	runner     commandRunner
}

// NewFFmpegNormalizer creates a normalizer that runs ffmpegPath
func NewFFmpegNormalizer(ffmpegPath string) *FFmpegNormalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegNormalizer{ffmpegPath: ffmpegPath, runner: &execRunner{}}
}

// Normalize converts inputPath to 16kHz mono 16-bit PCM at outputPath
func (n *FFmpegNormalizer) Normalize(ctx context.Context, inputPath, outputPath string) error {
	res, err := n.runner.Run(ctx, n.ffmpegPath,
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-ar", "16000", // 16kHz sample rate
		"-ac", "1", // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		outputPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg failed (exit %d): %v\nOutput: %s", res.ExitCode, err, tailLines(res.Stderr, 5))
	}

	return verifyCanonical(outputPath)
}
