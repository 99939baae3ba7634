package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"resumechat/internal/ports"
)

const (
	defaultRecorder   = "ffmpeg"
	defaultSettleTime = 250 * time.Millisecond
	stopGracePeriod   = 1200 * time.Millisecond
)

// CaptureError is returned when the recorder exits before producing audio.
// Stderr carries the recorder's own diagnostics.
type CaptureError struct {
	Stderr string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("microphone capture failed: %v", e.Err)
	}
	return fmt.Sprintf("microphone capture failed: %v: %s", e.Err, e.Stderr)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// PermissionDenied reports whether the operating system refused microphone access.
func (e *CaptureError) PermissionDenied() bool {
	if errors.Is(e.Err, os.ErrPermission) {
		return true
	}
	lower := strings.ToLower(e.Stderr)
	return strings.Contains(lower, "permission denied") || strings.Contains(lower, "operation not permitted")
}

// FFMPEGCapture records microphone PCM through an ffmpeg child process.
type FFMPEGCapture struct {
	command string
	settle  time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if strings.TrimSpace(command) == "" {
		command = defaultRecorder
	}
	return &FFMPEGCapture{command: command, settle: defaultSettleTime}
}

// Available reports whether the recorder binary can be found.
func (c *FFMPEGCapture) Available() error {
	_, err := exec.LookPath(c.command)
	return err
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cmd := exec.CommandContext(ctx, c.command, recorderArgs(withAudioDefaults(cfg))...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &CaptureError{Err: err}
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	timer := time.NewTimer(c.settle)
	defer timer.Stop()

	select {
	case err := <-exited:
		if err == nil {
			err = errors.New("recorder exited before capture started")
		}
		return nil, &CaptureError{Stderr: stderr.Trimmed(), Err: err}
	case <-timer.C:
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		exited:  exited,
	}, nil
}

func withAudioDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

func recorderArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type ffmpegSession struct {
	stdout  io.ReadCloser
	stderr  *syncBuffer
	process *os.Process
	exited  <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

// Stop interrupts the recorder and kills it if it does not exit in time.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		timer := time.NewTimer(stopGracePeriod)
		defer timer.Stop()

		var err error
		select {
		case err = <-s.exited:
		case <-timer.C:
			if s.process != nil {
				_ = s.process.Kill()
			}
			err = <-s.exited
		}
		s.stopErr = ignoreExitStatus(err)

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}
		if s.stopErr != nil {
			s.stopErr = &CaptureError{Stderr: s.stderr.Trimmed(), Err: s.stopErr}
		}
	})
	return s.stopErr
}

// ignoreExitStatus drops the non-zero exit caused by interrupting the recorder.
func ignoreExitStatus(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Trimmed() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
