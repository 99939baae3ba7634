package recognizer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"resumechat/internal/audio"
	"resumechat/internal/domain"
	"resumechat/internal/logger"
	"resumechat/internal/ports"
	"resumechat/internal/providers/deepgram"
)

// recorderProbe is implemented by captures that can tell whether their
// recorder is installed.
type recorderProbe interface {
	Available() error
}

// providerProbe is implemented by providers that expose their endpoint.
type providerProbe interface {
	Configured() bool
	Endpoint() (*url.URL, error)
}

// Config controls how audio is captured and streamed.
type Config struct {
	Audio        ports.AudioConfig
	ChunkSize    int
	DrainTimeout time.Duration
	Logger       *logger.Logger
}

// Recognizer is a speech-recognition capability built from a microphone
// capture and a streaming transcription provider.
type Recognizer struct {
	capture  ports.AudioCapture
	provider ports.TranscriptionProvider
	events   ports.EventSink
	cfg      Config
	log      *logger.Logger
}

// New builds a recognizer. events receives errors raised after a recognition
// has started and may be nil.
func New(capture ports.AudioCapture, provider ports.TranscriptionProvider, events ports.EventSink, cfg Config) *Recognizer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4096
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 2 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Recognizer{
		capture:  capture,
		provider: provider,
		events:   events,
		cfg:      cfg,
		log:      log.WithComponent("recognizer"),
	}
}

// Capability reports whether recognition can start. Audio leaves the machine
// only over TLS or to a loopback host.
func (r *Recognizer) Capability() domain.Capability {
	if probe, ok := r.capture.(recorderProbe); ok {
		if err := probe.Available(); err != nil {
			return domain.Capability{Reason: "audio recorder not found: " + err.Error()}
		}
	}

	probe, ok := r.provider.(providerProbe)
	if !ok {
		return domain.Capability{Supported: true, Secure: true}
	}
	if !probe.Configured() {
		return domain.Capability{Reason: "speech service api key is not configured"}
	}
	endpoint, err := probe.Endpoint()
	if err != nil {
		return domain.Capability{Supported: true, Reason: err.Error()}
	}
	if !secureEndpoint(endpoint) {
		return domain.Capability{Supported: true, Reason: "speech service endpoint " + endpoint.Host + " is not encrypted"}
	}
	return domain.Capability{Supported: true, Secure: true}
}

// Start opens the provider stream and then the microphone. A failure of
// either is returned as a *domain.StartError.
func (r *Recognizer) Start(ctx context.Context, opts ports.RecognizerOptions) (ports.Recognition, error) {
	// The session outlives the caller's context; Stop ends it.
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	stream, err := r.provider.StartStreaming(sessionCtx, ports.StreamingConfig{
		SampleRate:     r.cfg.Audio.SampleRate,
		Channels:       r.cfg.Audio.Channels,
		Encoding:       "linear16",
		Language:       opts.Language,
		InterimResults: true,
	})
	if err != nil {
		cancel()
		return nil, classifyStartError(err, opts.Language)
	}

	mic, err := r.capture.Start(sessionCtx, r.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, classifyStartError(err, opts.Language)
	}

	rec := &recognition{
		mic:          mic,
		stream:       stream,
		cancel:       cancel,
		drainTimeout: r.cfg.DrainTimeout,
		continuous:   opts.Continuous,
		events:       make(chan domain.TranscriptEvent, 64),
		pumpDone:     make(chan struct{}),
	}
	go pumpAudio(mic, stream, r.cfg.ChunkSize, r.report, rec.pumpDone)
	go rec.forward()

	r.log.Debug("recognition started", logger.Fields("language", opts.Language, "continuous", opts.Continuous))
	return rec, nil
}

func (r *Recognizer) report(code domain.ErrorCode, detail string) {
	r.log.Warn(detail, logger.Fields(logger.FieldCode, string(code)))
	if r.events != nil {
		r.events.SessionError(code, detail)
	}
}

type recognition struct {
	mic          ports.AudioSession
	stream       ports.StreamingSession
	cancel       context.CancelFunc
	drainTimeout time.Duration
	continuous   bool

	events   chan domain.TranscriptEvent
	pumpDone chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (r *recognition) Events() <-chan domain.TranscriptEvent {
	return r.events
}

// Stop ends the capture and lets the provider flush its last results before
// Events is closed.
func (r *recognition) Stop() error {
	r.stopOnce.Do(func() {
		defer r.cancel()

		micErr := r.mic.Stop()
		<-r.pumpDone

		_ = r.stream.CloseSend()
		streamErr := drainStream(r.stream, r.drainTimeout)
		r.stopErr = errors.Join(micErr, streamErr)
	})
	return r.stopErr
}

func (r *recognition) forward() {
	defer close(r.events)

	for event := range r.stream.Events() {
		r.events <- event
		if !r.continuous && event.Kind == domain.TranscriptKindFinal {
			go func() { _ = r.Stop() }()
			r.drain()
			return
		}
	}
}

func (r *recognition) drain() {
	for range r.stream.Events() {
	}
}

func secureEndpoint(endpoint *url.URL) bool {
	switch strings.ToLower(endpoint.Scheme) {
	case "wss", "https":
		return true
	}
	host := endpoint.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func classifyStartError(err error, language string) error {
	var startErr *domain.StartError
	if errors.As(err, &startErr) {
		return startErr
	}

	code := domain.ErrorCodeStartFailed

	var captureErr *audio.CaptureError
	var handshake *deepgram.HandshakeError
	switch {
	case errors.As(err, &captureErr) && captureErr.PermissionDenied():
		code = domain.ErrorCodePermissionDenied
	case errors.As(err, &handshake):
		switch {
		case handshake.StatusCode == http.StatusUnauthorized || handshake.StatusCode == http.StatusForbidden:
			code = domain.ErrorCodeServiceNotAllowed
		case handshake.StatusCode == http.StatusBadRequest && language != "":
			code = domain.ErrorCodeLanguageUnsupported
		}
	case errors.Is(err, deepgram.ErrMissingAPIKey):
		code = domain.ErrorCodeServiceNotAllowed
	}
	return &domain.StartError{Code: code, Err: err}
}
