package ports

import (
	"context"
	"io"
	"time"

	"resumechat/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// RecognizerOptions mirrors the options a speech engine is started with.
type RecognizerOptions struct {
	Continuous bool
	Language   string
}

// Recognition is one running recognition. Events is closed once the
// recognizer has delivered its last update after Stop.
type Recognition interface {
	Events() <-chan domain.TranscriptEvent
	Stop() error
}

// Recognizer is the speech-recognition capability dictation is built on.
type Recognizer interface {
	Capability() domain.Capability
	Start(ctx context.Context, opts RecognizerOptions) (Recognition, error)
}

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// PostProcessor cleans up dictated text before it is handed to the host.
type PostProcessor interface {
	Process(text string) string
}

// TranscriptSink receives composed text for the host's editable buffer.
type TranscriptSink interface {
	OnTranscript(text string)
}

// EventSink emits session state and user-visible errors to the host.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	SessionError(code domain.ErrorCode, detail string)
}
