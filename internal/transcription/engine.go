package transcription

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Model is a loaded recognition model. It is read-only after loading and
// safe to share between goroutines; every job takes its own Recognizer.
type Model interface {
	NewRecognizer(ctx context.Context, sampleRate int) (Recognizer, error)
}

// Recognizer consumes PCM frames and yields segment results as JSON
// objects of the form {"text": "..."}. A Recognizer belongs to one job.
type Recognizer interface {
	// AcceptWaveform feeds one frame and reports whether a segment completed
	AcceptWaveform(frame []byte) (bool, error)
	// Result returns the segment completed by the last accepting call
	Result() string
	// FinalResult flushes buffered audio and returns the trailing segment
	FinalResult() (string, error)
	Close() error
}

// EngineConfig describes how the recognition engine is launched
type EngineConfig struct {
	ModelPath string
	// Command is the engine executable. Args may reference {model} and {rate}.
	Command string
	Args    []string
	// Env is appended to the parent environment
	Env []string
}

// ProcessModel runs one engine subprocess per recognizer. Frames are sent
// on stdin as a little-endian uint32 length followed by raw PCM; a zero
// length asks for the final result. The engine answers every frame with
// one JSON line: {"text": ...} when a segment completed, {"partial": ...}
// otherwise.
type ProcessModel struct {
	modelPath string
	command   string
	args      []string
	env       []string
}

// LoadModel verifies the model and engine exist and returns a shareable model
func LoadModel(cfg EngineConfig) (*ProcessModel, error) {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, fmt.Errorf("%w: no model path configured", ErrModelNotFound)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
		}
		return nil, fmt.Errorf("cannot access model %s: %w", cfg.ModelPath, err)
	}

	command, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, cfg.Command, err)
	}

	log.Printf("Recognition model loaded: %s (engine: %s)", cfg.ModelPath, command)

	return &ProcessModel{
		modelPath: cfg.ModelPath,
		command:   command,
		args:      append([]string(nil), cfg.Args...),
		env:       append([]string(nil), cfg.Env...),
	}, nil
}

// NewRecognizer starts an engine process for one job
func (m *ProcessModel) NewRecognizer(ctx context.Context, sampleRate int) (Recognizer, error) {
	args := make([]string, len(m.args))
	for i, a := range m.args {
		a = strings.ReplaceAll(a, "{model}", m.modelPath)
		args[i] = strings.ReplaceAll(a, "{rate}", strconv.Itoa(sampleRate))
	}

	cmd := exec.CommandContext(ctx, m.command, args...)
	if len(m.env) > 0 {
		cmd.Env = append(os.Environ(), m.env...)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	return &processRecognizer{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		stderr: stderr,
	}, nil
}

type processRecognizer struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *tailBuffer

	result    string
	closeOnce sync.Once
	closeErr  error
}

func (r *processRecognizer) AcceptWaveform(frame []byte) (bool, error) {
	if len(frame) == 0 {
		return false, nil
	}
	line, err := r.exchange(frame)
	if err != nil {
		return false, err
	}
	_, final, err := decodeEngineLine(line)
	if err != nil {
		return false, err
	}
	if final {
		r.result = string(bytes.TrimSpace(line))
	}
	return final, nil
}

// Result returns the raw JSON of the last completed segment
func (r *processRecognizer) Result() string {
	return r.result
}

// FinalResult returns the raw JSON of the engine's flush answer
func (r *processRecognizer) FinalResult() (string, error) {
	line, err := r.exchange(nil)
	if err != nil {
		return "", err
	}
	if _, _, err := decodeEngineLine(line); err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(line)), nil
}

// exchange writes one frame and reads the engine's answer line
func (r *processRecognizer) exchange(frame []byte) ([]byte, error) {
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(frame)))
	if _, err := r.stdin.Write(header[:]); err != nil {
		return nil, r.engineError("write frame header", err)
	}
	if len(frame) > 0 {
		if _, err := r.stdin.Write(frame); err != nil {
			return nil, r.engineError("write frame", err)
		}
	}
	line, err := r.stdout.ReadBytes('\n')
	if err != nil {
		return nil, r.engineError("read result", err)
	}
	return line, nil
}

func (r *processRecognizer) engineError(op string, err error) error {
	if msg := strings.TrimSpace(r.stderr.String()); msg != "" {
		return fmt.Errorf("engine %s: %v: %s", op, err, msg)
	}
	return fmt.Errorf("engine %s: %w", op, err)
}

// Close ends the engine process. It is safe to call more than once.
func (r *processRecognizer) Close() error {
	r.closeOnce.Do(func() {
		r.stdin.Close()
		err := r.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			r.closeErr = err
		}
	})
	return r.closeErr
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// unavailableModel stands in for a model that failed to load so that every
// job reports the load failure instead of aborting the batch.
type unavailableModel struct {
	err error
}

// UnavailableModel returns a Model whose recognizers always fail with err
func UnavailableModel(err error) Model {
	if err == nil {
		err = ErrModelNotFound
	}
	return unavailableModel{err: err}
}

func (m unavailableModel) NewRecognizer(context.Context, int) (Recognizer, error) {
	return nil, m.err
}
