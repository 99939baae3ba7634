package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"resumechat/internal/clock"
	"resumechat/internal/domain"
	"resumechat/internal/ports"
	"resumechat/internal/textproc"
)

type controllerHarness struct {
	controller  *DictationController
	clock       *clock.Fake
	recognizer  *fakeRecognizer
	transcripts *fakeTranscriptSink
	events      *fakeEventSink
}

func newControllerHarness(t *testing.T, recognizer *fakeRecognizer) *controllerHarness {
	t.Helper()

	if recognizer == nil {
		recognizer = newFakeRecognizer()
	}
	h := &controllerHarness{
		clock:       clock.NewFake(),
		recognizer:  recognizer,
		transcripts: &fakeTranscriptSink{},
		events:      &fakeEventSink{},
	}
	h.controller = NewDictationController(
		recognizer,
		h.clock,
		textproc.NewProcessor(nil),
		h.transcripts,
		h.events,
		Config{},
	)
	t.Cleanup(func() { _ = h.controller.Close() })
	return h
}

func TestDictationControllerStartStopKeepsInitialText(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Start(context.Background(), "Hello"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !h.controller.Listening() {
		t.Fatalf("expected listening after start")
	}
	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if got := h.transcripts.snapshot(); len(got) != 1 || got[0] != "Hello" {
		t.Fatalf("expected a single emission of the initial text, got %v", got)
	}

	h.clock.Advance(100 * time.Millisecond)

	states := h.events.snapshotStates()
	want := []stateEvent{
		{state: domain.SessionStateListening, reason: domain.SessionReasonListeningStarted},
		{state: domain.SessionStateDraining, reason: domain.SessionReasonStoppedByUser},
		{state: domain.SessionStateIdle, reason: domain.SessionReasonSessionCleared},
	}
	if len(states) != len(want) {
		t.Fatalf("unexpected state transitions: %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("transition %d: got %+v, want %+v", i, states[i], want[i])
		}
	}
	if h.recognizer.lastRecognition().stopCalls() != 1 {
		t.Fatalf("expected recognition to be stopped once")
	}
}

func TestDictationControllerDoubleToggleLeavesEmptyState(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Toggle(context.Background(), ""); err != nil {
		t.Fatalf("first toggle failed: %v", err)
	}
	if err := h.controller.Toggle(context.Background(), ""); err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	h.clock.Advance(100 * time.Millisecond)

	snapshot := h.controller.Snapshot()
	if snapshot.Accumulated != "" || snapshot.Live != "" {
		t.Fatalf("expected empty session state, got %+v", snapshot)
	}
	if status := h.controller.Status(); status.State != domain.SessionStateIdle || status.Listening {
		t.Fatalf("unexpected status: %+v", status)
	}
	if got := h.transcripts.snapshot(); len(got) != 1 || got[0] != "" {
		t.Fatalf("unexpected emissions: %v", got)
	}
}

func TestDictationControllerAppliesCorrectionsOnStop(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Start(context.Background(), "Hello"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindInterim, Text: "there are my"})
	if got := h.transcripts.last(); got != "Hello there are my" {
		t.Fatalf("expected raw interim text, got %q", got)
	}

	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "there are my qualifications"})
	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if got := h.transcripts.last(); got != "Hello Their my qualifications." {
		t.Fatalf("unexpected final text: %q", got)
	}
}

func TestDictationControllerAutoStopsAfterLongPause(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Start(context.Background(), ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindInterim, Text: "i led the platform team"})

	h.clock.Advance(5999 * time.Millisecond)
	if !h.controller.Listening() {
		t.Fatalf("expected session to survive until the long pause")
	}

	h.clock.Advance(time.Millisecond)
	if h.controller.Listening() {
		t.Fatalf("expected auto-stop after six seconds of silence")
	}

	got := h.transcripts.snapshot()
	if len(got) != 2 || got[1] != "I led the platform team." {
		t.Fatalf("expected one interim and one finalization, got %v", got)
	}

	states := h.events.snapshotStates()
	if states[len(states)-1].reason != domain.SessionReasonAutoStopped {
		t.Fatalf("expected auto_stopped reason, got %+v", states[len(states)-1])
	}
}

func TestDictationControllerAutoStopsWithoutSpeech(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Start(context.Background(), "draft"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.clock.Advance(6 * time.Second)

	if h.controller.Listening() {
		t.Fatalf("expected auto-stop without any fragment")
	}
	if got := h.transcripts.snapshot(); len(got) != 1 || got[0] != "draft" {
		t.Fatalf("unexpected emissions: %v", got)
	}
}

func TestDictationControllerFragmentsRearmPauseTimers(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Start(context.Background(), ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		h.clock.Advance(5 * time.Second)
		h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindInterim, Text: "still talking"})
	}
	if !h.controller.Listening() {
		t.Fatalf("expected fragments to keep the session alive")
	}
	if pending := h.clock.Pending(); pending != 3 {
		t.Fatalf("expected exactly three pause timers, got %d", pending)
	}
}

func TestDictationControllerMediumPauseDoesNotDuplicateWords(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Start(context.Background(), ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindInterim, Text: "I am a"})
	h.clock.Advance(4 * time.Second)
	if snapshot := h.controller.Snapshot(); snapshot.Accumulated != "I am a" || snapshot.Live != "" {
		t.Fatalf("expected live text to settle on the medium pause, got %+v", snapshot)
	}

	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindInterim, Text: "I am a developer"})
	if got := h.transcripts.last(); got != "I am a developer" {
		t.Fatalf("unexpected interim text: %q", got)
	}

	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := h.transcripts.last(); got != "I am a developer." {
		t.Fatalf("unexpected final text: %q", got)
	}
}

func TestDictationControllerWidenedPhraseAfterMediumPause(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Start(context.Background(), ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "I have ten years of experience"})
	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindInterim, Text: "in Go"})
	h.clock.Advance(4 * time.Second)
	if snapshot := h.controller.Snapshot(); snapshot.Accumulated != "I have ten years of experience in Go" || snapshot.Live != "" {
		t.Fatalf("expected live text to settle on the medium pause, got %+v", snapshot)
	}

	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindInterim, Text: "in Go and Rust"})
	if got := h.transcripts.last(); got != "I have ten years of experience in Go and Rust" {
		t.Fatalf("unexpected interim text: %q", got)
	}

	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "in Go and Rust"})
	if got := h.transcripts.last(); got != "I have ten years of experience in Go and Rust." {
		t.Fatalf("unexpected final text: %q", got)
	}
	if snapshot := h.controller.Snapshot(); snapshot.Accumulated != "I have ten years of experience in Go and Rust" {
		t.Fatalf("unexpected accumulated text: %q", snapshot.Accumulated)
	}
}

func TestDictationControllerLateFinalWhileDraining(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Start(context.Background(), ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindInterim, Text: "I built"})
	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := h.transcripts.last(); got != "I built." {
		t.Fatalf("unexpected stop text: %q", got)
	}

	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindInterim, Text: "I built APIs and"})
	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "I built APIs"})
	got := h.transcripts.snapshot()
	if len(got) != 3 || got[2] != "I built APIs." {
		t.Fatalf("expected only the late final to be emitted, got %v", got)
	}

	h.clock.Advance(100 * time.Millisecond)
	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "too late"})
	if len(h.transcripts.snapshot()) != 3 {
		t.Fatalf("expected fragments after the grace window to be ignored")
	}
}

func TestDictationControllerRestartDuringGraceKeepsNewSession(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Start(context.Background(), ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := h.controller.Start(context.Background(), "again"); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	h.controller.OnFragment(domain.TranscriptEvent{Kind: domain.TranscriptKindInterim, Text: "hello"})
	h.clock.Advance(100 * time.Millisecond)

	if !h.controller.Listening() {
		t.Fatalf("expected the stale grace timer to be cancelled")
	}
	if snapshot := h.controller.Snapshot(); snapshot.Initial != "again" || snapshot.Live != "hello" {
		t.Fatalf("unexpected session state: %+v", snapshot)
	}
}

func TestDictationControllerConsumesRecognitionEvents(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Start(context.Background(), "Summary:"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	recognition := h.recognizer.lastRecognition()
	recognition.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindInterim, Text: "ten years"}
	recognition.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "ten years of Go"}

	waitFor(t, func() bool { return len(h.transcripts.snapshot()) == 2 })
	if got := h.transcripts.last(); got != "Summary: Ten years of Go." {
		t.Fatalf("unexpected final text: %q", got)
	}

	if err := h.controller.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if h.controller.Listening() {
		t.Fatalf("expected close to stop the session")
	}
}

func TestDictationControllerStartFailureRollsBack(t *testing.T) {
	t.Parallel()

	recognizer := newFakeRecognizer()
	recognizer.startErr = &domain.StartError{Code: domain.ErrorCodePermissionDenied, Err: errors.New("microphone blocked")}
	h := newControllerHarness(t, recognizer)

	err := h.controller.Start(context.Background(), "text")
	var startErr *domain.StartError
	if !errors.As(err, &startErr) || startErr.Code != domain.ErrorCodePermissionDenied {
		t.Fatalf("expected permission denied start error, got %v", err)
	}
	if h.controller.Listening() {
		t.Fatalf("expected rollback to idle")
	}
	if pending := h.clock.Pending(); pending != 0 {
		t.Fatalf("expected pause timers to be cleared, got %d pending", pending)
	}

	states := h.events.snapshotStates()
	if len(states) != 2 || states[1] != (stateEvent{state: domain.SessionStateIdle, reason: domain.SessionReasonStartFailed}) {
		t.Fatalf("unexpected state transitions: %v", states)
	}
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodePermissionDenied || errs[0].detail != "microphone blocked" {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(h.transcripts.snapshot()) != 0 {
		t.Fatalf("expected no transcript emission on failed start")
	}
}

func TestDictationControllerUnclassifiedStartFailure(t *testing.T) {
	t.Parallel()

	recognizer := newFakeRecognizer()
	recognizer.startErr = errors.New("boom")
	h := newControllerHarness(t, recognizer)

	err := h.controller.Start(context.Background(), "")
	var startErr *domain.StartError
	if !errors.As(err, &startErr) || startErr.Code != domain.ErrorCodeStartFailed {
		t.Fatalf("expected start_failed, got %v", err)
	}
	if errs := h.events.snapshotErrors(); len(errs) != 1 || errs[0].code != domain.ErrorCodeStartFailed {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestDictationControllerRejectsUnavailableRecognizer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		capability domain.Capability
		wantErr    error
		wantCode   domain.ErrorCode
	}{
		{
			name:       "unsupported",
			capability: domain.Capability{Supported: false, Secure: true, Reason: "no recorder"},
			wantErr:    ErrUnsupported,
			wantCode:   domain.ErrorCodeUnsupported,
		},
		{
			name:       "insecure",
			capability: domain.Capability{Supported: true, Secure: false, Reason: "plain ws"},
			wantErr:    ErrInsecureContext,
			wantCode:   domain.ErrorCodeInsecureContext,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			recognizer := newFakeRecognizer()
			recognizer.capability = tc.capability
			h := newControllerHarness(t, recognizer)

			if err := h.controller.Start(context.Background(), ""); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if recognizer.startCalls() != 0 {
				t.Fatalf("recognizer must not be started")
			}
			if errs := h.events.snapshotErrors(); len(errs) != 1 || errs[0].code != tc.wantCode {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if len(h.events.snapshotStates()) != 0 {
				t.Fatalf("expected no state change")
			}
		})
	}
}

func TestDictationControllerStopWithoutSession(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, nil)
	if err := h.controller.Stop(); !errors.Is(err, ErrNotListening) {
		t.Fatalf("expected ErrNotListening, got %v", err)
	}

	if err := h.controller.Start(context.Background(), ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.Start(context.Background(), ""); !errors.Is(err, ErrAlreadyListening) {
		t.Fatalf("expected ErrAlreadyListening, got %v", err)
	}
}

func TestDictationControllerReportsRecognitionStopFailure(t *testing.T) {
	t.Parallel()

	recognizer := newFakeRecognizer()
	recognizer.stopErr = errors.New("stream reset")
	h := newControllerHarness(t, recognizer)

	if err := h.controller.Start(context.Background(), ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeRecognition || errs[0].detail != "stream reset" {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

type fakeRecognizer struct {
	mu           sync.Mutex
	capability   domain.Capability
	startErr     error
	stopErr      error
	starts       int
	recognitions []*fakeRecognition
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{capability: domain.Capability{Supported: true, Secure: true}}
}

func (f *fakeRecognizer) Capability() domain.Capability {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capability
}

func (f *fakeRecognizer) Start(_ context.Context, _ ports.RecognizerOptions) (ports.Recognition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return nil, f.startErr
	}
	recognition := &fakeRecognition{events: make(chan domain.TranscriptEvent, 16), stopErr: f.stopErr}
	f.recognitions = append(f.recognitions, recognition)
	return recognition, nil
}

func (f *fakeRecognizer) startCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeRecognizer) lastRecognition() *fakeRecognition {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recognitions) == 0 {
		return nil
	}
	return f.recognitions[len(f.recognitions)-1]
}

type fakeRecognition struct {
	events  chan domain.TranscriptEvent
	stopErr error

	mu    sync.Mutex
	stops int
	once  sync.Once
}

func (f *fakeRecognition) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeRecognition) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.once.Do(func() { close(f.events) })
	return f.stopErr
}

func (f *fakeRecognition) stopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeTranscriptSink struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeTranscriptSink) OnTranscript(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeTranscriptSink) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeTranscriptSink) last() string {
	texts := f.snapshot()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type fakeEventSink struct {
	mu     sync.Mutex
	states []stateEvent
	errors []errEvent
}

type stateEvent struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}
