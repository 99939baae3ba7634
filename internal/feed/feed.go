package feed

import (
	"context"
	"errors"
	"sync"

	"resumechat/internal/domain"
)

// ErrStreamClosed is returned by Next after the consumer closed the stream.
var ErrStreamClosed = errors.New("transcript stream closed")

// SessionError is a dictation failure reported while a stream was open.
type SessionError struct {
	Code    domain.ErrorCode
	Message string
}

func (e *SessionError) Error() string { return e.Message }

// Feed turns the controller's push callbacks into pull-based streams of
// composed text, one stream per dictation session.
type Feed struct {
	mu      sync.Mutex
	current *Stream
}

func New() *Feed {
	return &Feed{}
}

// Open starts the stream for the next session. A stream that is still open
// is finished first.
func (f *Feed) Open() *Stream {
	stream := newStream(f)

	f.mu.Lock()
	previous := f.current
	f.current = stream
	f.mu.Unlock()

	if previous != nil {
		previous.finish(nil)
	}
	return stream
}

func (f *Feed) OnTranscript(text string) {
	if stream := f.active(); stream != nil {
		stream.push(text)
	}
}

// SessionStateChanged finishes the stream once the session is back to idle.
func (f *Feed) SessionStateChanged(state domain.SessionState, _ domain.SessionStateReason) {
	if state != domain.SessionStateIdle {
		return
	}
	if stream := f.detach(nil); stream != nil {
		stream.finish(nil)
	}
}

// SessionError records the error on the current stream. Refusals that never
// start a session finish the stream immediately.
func (f *Feed) SessionError(code domain.ErrorCode, detail string) {
	err := &SessionError{Code: code, Message: domain.ErrorMessage(code, detail)}

	switch code {
	case domain.ErrorCodeUnsupported, domain.ErrorCodeInsecureContext:
		if stream := f.detach(nil); stream != nil {
			stream.finish(err)
		}
	default:
		if stream := f.active(); stream != nil {
			stream.fail(err)
		}
	}
}

func (f *Feed) active() *Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// detach clears the current stream if it is want, or any stream when want is nil.
func (f *Feed) detach(want *Stream) *Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	stream := f.current
	if stream == nil || (want != nil && stream != want) {
		return nil
	}
	f.current = nil
	return stream
}

// Stream yields the composed values of one session in order.
type Stream struct {
	owner  *Feed
	notify chan struct{}

	mu       sync.Mutex
	values   []string
	finished bool
	closed   bool
	err      error
}

func newStream(owner *Feed) *Stream {
	return &Stream{owner: owner, notify: make(chan struct{}, 1)}
}

// Next returns the next composed value. It returns ("", false, err) once the
// session has ended and every value was consumed; err is the first session
// error, if any.
func (s *Stream) Next(ctx context.Context) (string, bool, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return "", false, ErrStreamClosed
		}
		if len(s.values) > 0 {
			value := s.values[0]
			s.values = s.values[1:]
			s.mu.Unlock()
			return value, true, nil
		}
		if s.finished {
			err := s.err
			s.mu.Unlock()
			return "", false, err
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close detaches the stream from its feed. Values emitted afterwards are dropped.
func (s *Stream) Close() error {
	s.owner.detach(s)

	s.mu.Lock()
	s.closed = true
	s.values = nil
	s.mu.Unlock()
	s.wake()
	return nil
}

func (s *Stream) push(value string) {
	s.mu.Lock()
	if s.finished || s.closed {
		s.mu.Unlock()
		return
	}
	s.values = append(s.values, value)
	s.mu.Unlock()
	s.wake()
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	s.finished = true
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.wake()
}

func (s *Stream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
