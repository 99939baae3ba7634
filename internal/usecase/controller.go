package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"resumechat/internal/dictation"
	"resumechat/internal/domain"
	"resumechat/internal/logger"
	"resumechat/internal/metrics"
	"resumechat/internal/ports"
)

var (
	ErrNotListening     = errors.New("dictation is not active")
	ErrAlreadyListening = errors.New("dictation is already active")
	ErrUnsupported      = errors.New("speech recognition is not supported")
	ErrInsecureContext  = errors.New("speech recognition requires a secure context")
)

// PauseConfig holds the silence thresholds of a dictation session.
type PauseConfig struct {
	Short      time.Duration
	Medium     time.Duration
	Long       time.Duration
	ResetGrace time.Duration
}

// DefaultPauses are 2s/4s/6s of silence and a 100ms reset grace.
func DefaultPauses() PauseConfig {
	return PauseConfig{
		Short:      2 * time.Second,
		Medium:     4 * time.Second,
		Long:       6 * time.Second,
		ResetGrace: 100 * time.Millisecond,
	}
}

// Config controls dictation behavior.
type Config struct {
	Pauses        PauseConfig
	OverlapWindow int
	Recognizer    ports.RecognizerOptions
	Logger        *logger.Logger
	Metrics       *metrics.Recorder
}

// DictationController turns a recognizer's fragment stream into composed text
// for a host input buffer.
//
// Host callbacks run while the controller's lock is held so that emissions
// stay ordered. Sinks must not call back into the controller synchronously.
type DictationController struct {
	recognizer  ports.Recognizer
	scheduler   ports.Scheduler
	transcripts ports.TranscriptSink
	events      ports.EventSink
	finalizer   transcriptFinalizer
	log         *logger.Logger
	metrics     *metrics.Recorder
	cfg         Config

	mu         sync.Mutex
	state      domain.SessionState
	generation uint64
	assembler  *dictation.Assembler
	current    *activeSession
	timers     pauseTimers
	grace      ports.Timer
}

func NewDictationController(
	recognizer ports.Recognizer,
	scheduler ports.Scheduler,
	post ports.PostProcessor,
	transcripts ports.TranscriptSink,
	events ports.EventSink,
	cfg Config,
) *DictationController {
	defaults := DefaultPauses()
	if cfg.Pauses.Short <= 0 {
		cfg.Pauses.Short = defaults.Short
	}
	if cfg.Pauses.Medium <= 0 {
		cfg.Pauses.Medium = defaults.Medium
	}
	if cfg.Pauses.Long <= 0 {
		cfg.Pauses.Long = defaults.Long
	}
	if cfg.Pauses.ResetGrace <= 0 {
		cfg.Pauses.ResetGrace = defaults.ResetGrace
	}
	if cfg.Recognizer.Language == "" {
		cfg.Recognizer.Language = "en-US"
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &DictationController{
		recognizer:  recognizer,
		scheduler:   scheduler,
		transcripts: transcripts,
		events:      events,
		finalizer:   newTranscriptFinalizer(post, transcripts),
		log:         log.WithComponent("dictation"),
		metrics:     cfg.Metrics,
		cfg:         cfg,
		state:       domain.SessionStateIdle,
		assembler:   dictation.New(cfg.OverlapWindow),
	}
}

// Capability reports whether dictation can be started.
func (c *DictationController) Capability() domain.Capability {
	return c.recognizer.Capability()
}

// Start begins a session on top of currentText. The session is marked active
// before the recognizer is started and rolled back if the recognizer refuses.
func (c *DictationController) Start(ctx context.Context, currentText string) error {
	capability := c.recognizer.Capability()
	if !capability.Supported {
		c.events.SessionError(domain.ErrorCodeUnsupported, capability.Reason)
		return ErrUnsupported
	}
	if !capability.Secure {
		c.events.SessionError(domain.ErrorCodeInsecureContext, capability.Reason)
		return ErrInsecureContext
	}

	c.mu.Lock()
	if c.state == domain.SessionStateListening {
		c.mu.Unlock()
		return ErrAlreadyListening
	}
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
	c.generation++
	generation := c.generation
	c.current = nil
	c.assembler.Reset(currentText)
	c.state = domain.SessionStateListening
	c.armPauseTimersLocked(generation)
	c.mu.Unlock()

	c.metrics.SessionStarted()
	c.events.SessionStateChanged(domain.SessionStateListening, domain.SessionReasonListeningStarted)

	recognition, err := c.recognizer.Start(ctx, c.cfg.Recognizer)
	if err != nil {
		return c.rollbackStart(generation, err)
	}

	c.mu.Lock()
	if c.generation != generation || c.state != domain.SessionStateListening {
		c.mu.Unlock()
		_ = recognition.Stop()
		return nil
	}
	active := &activeSession{
		generation:  generation,
		recognition: recognition,
		eventsDone:  make(chan struct{}),
	}
	c.current = active
	c.mu.Unlock()

	go c.consumeFragments(active)
	return nil
}

// Stop ends the active session and emits the post-processed text.
func (c *DictationController) Stop() error {
	return c.stop(0, domain.SessionReasonStoppedByUser)
}

// Toggle starts a session when idle and stops it while listening.
func (c *DictationController) Toggle(ctx context.Context, currentText string) error {
	if c.Listening() {
		return c.Stop()
	}
	return c.Start(ctx, currentText)
}

// OnFragment merges one recognition update into the current session.
func (c *DictationController) OnFragment(event domain.TranscriptEvent) {
	c.mu.Lock()
	generation := c.generation
	c.mu.Unlock()
	c.handleFragment(generation, event)
}

// Listening reports whether a session is capturing speech.
func (c *DictationController) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == domain.SessionStateListening
}

// Status returns the current session status.
func (c *DictationController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Status{State: c.state, Listening: c.state == domain.SessionStateListening}
}

// Snapshot returns the session text state.
func (c *DictationController) Snapshot() SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SessionSnapshot{
		Initial:     c.assembler.Initial(),
		Accumulated: c.assembler.Accumulated(),
		Live:        c.assembler.Live(),
	}
}

// Close stops any active session and waits for its recognizer to drain.
func (c *DictationController) Close() error {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()

	err := c.Stop()
	if errors.Is(err, ErrNotListening) {
		err = nil
	}
	if active != nil {
		<-active.eventsDone
	}
	return err
}

func (c *DictationController) rollbackStart(generation uint64, err error) error {
	code := domain.ErrorCodeStartFailed
	var startErr *domain.StartError
	if errors.As(err, &startErr) {
		code = startErr.Code
	} else {
		startErr = &domain.StartError{Code: code, Err: err}
	}

	c.mu.Lock()
	rolledBack := c.generation == generation && c.state == domain.SessionStateListening
	if rolledBack {
		c.timers.stop()
		c.assembler.Clear()
		c.state = domain.SessionStateIdle
	}
	c.mu.Unlock()

	c.log.WithError(err).Warn("recognizer refused to start", logger.Fields(logger.FieldCode, string(code)))
	c.metrics.StartFailed(string(code))
	if rolledBack {
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonStartFailed)
	}
	c.events.SessionError(code, errorDetail(err))
	return startErr
}

func (c *DictationController) consumeFragments(active *activeSession) {
	defer close(active.eventsDone)

	for event := range active.recognition.Events() {
		c.handleFragment(active.generation, event)
	}
}

func (c *DictationController) handleFragment(generation uint64, event domain.TranscriptEvent) {
	if event.Text == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}

	switch c.state {
	case domain.SessionStateListening:
		c.metrics.Fragment(string(event.Kind))
		if event.Kind == domain.TranscriptKindFinal {
			c.assembler.CommitFinal(event.Text)
			c.finalizer.Finalize(c.assembler)
		} else {
			c.assembler.SetLive(event.Text)
			c.finalizer.Interim(c.assembler)
		}
		c.armPauseTimersLocked(generation)
	case domain.SessionStateDraining:
		// The recognizer may flush its last words after Stop.
		if event.Kind == domain.TranscriptKindFinal && c.assembler.CommitFinal(event.Text) {
			c.metrics.Fragment(string(event.Kind))
			c.finalizer.Finalize(c.assembler)
		}
	}
}

func (c *DictationController) armPauseTimersLocked(generation uint64) {
	c.timers.stop()
	c.timers = pauseTimers{
		short:  c.scheduler.AfterFunc(c.cfg.Pauses.Short, func() { c.onShortPause(generation) }),
		medium: c.scheduler.AfterFunc(c.cfg.Pauses.Medium, func() { c.onMediumPause(generation) }),
		long:   c.scheduler.AfterFunc(c.cfg.Pauses.Long, func() { c.onLongPause(generation) }),
	}
}

func (c *DictationController) onShortPause(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation || c.state != domain.SessionStateListening {
		return
	}
	c.timers.short = nil
	c.log.Debug("short pause detected")
}

func (c *DictationController) onMediumPause(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation || c.state != domain.SessionStateListening {
		return
	}
	c.timers.medium = nil
	if c.assembler.FlushLive() {
		c.metrics.MediumMerge()
		c.log.Debug("medium pause detected, live fragment settled")
	}
}

func (c *DictationController) onLongPause(generation uint64) {
	c.log.Info("long pause detected, stopping dictation")
	_ = c.stop(generation, domain.SessionReasonAutoStopped)
}

// stop finalizes the session. A zero generation matches any session.
func (c *DictationController) stop(generation uint64, reason domain.SessionStateReason) error {
	c.mu.Lock()
	if c.state != domain.SessionStateListening || (generation != 0 && generation != c.generation) {
		c.mu.Unlock()
		return ErrNotListening
	}

	c.timers.stop()
	c.assembler.FlushLive()
	c.finalizer.Finalize(c.assembler)
	c.state = domain.SessionStateDraining
	current := c.generation
	c.grace = c.scheduler.AfterFunc(c.cfg.Pauses.ResetGrace, func() { c.onResetGrace(current) })
	active := c.current
	c.mu.Unlock()

	c.metrics.SessionStopped(string(reason))
	c.events.SessionStateChanged(domain.SessionStateDraining, reason)

	if active == nil {
		return nil
	}
	if err := active.recognition.Stop(); err != nil {
		c.log.WithError(err).Warn("recognizer did not stop cleanly")
		c.events.SessionError(domain.ErrorCodeRecognition, errorDetail(err))
	}
	return nil
}

func (c *DictationController) onResetGrace(generation uint64) {
	c.mu.Lock()
	if generation != c.generation || c.state != domain.SessionStateDraining {
		c.mu.Unlock()
		return
	}
	c.grace = nil
	c.assembler.Clear()
	c.state = domain.SessionStateIdle
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonSessionCleared)
}

func errorDetail(err error) string {
	var startErr *domain.StartError
	if errors.As(err, &startErr) && startErr.Err != nil {
		return startErr.Err.Error()
	}
	return err.Error()
}
