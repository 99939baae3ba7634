package domain

import "fmt"

// SessionState models the dictation lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateListening SessionState = "listening"
	SessionStateDraining  SessionState = "draining"
	SessionStateError     SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady            SessionStateReason = "ready"
	SessionReasonListeningStarted SessionStateReason = "listening_started"
	SessionReasonStoppedByUser    SessionStateReason = "stopped_by_user"
	SessionReasonAutoStopped      SessionStateReason = "auto_stopped"
	SessionReasonStartFailed      SessionStateReason = "start_failed"
	SessionReasonSessionCleared   SessionStateReason = "session_cleared"
)

// ErrorCode identifies user-visible failures.
type ErrorCode string

const (
	ErrorCodeStartup             ErrorCode = "startup"
	ErrorCodeUnsupported         ErrorCode = "unsupported"
	ErrorCodeInsecureContext     ErrorCode = "insecure_context"
	ErrorCodePermissionDenied    ErrorCode = "permission_denied"
	ErrorCodeServiceNotAllowed   ErrorCode = "service_not_allowed"
	ErrorCodeLanguageUnsupported ErrorCode = "language_not_supported"
	ErrorCodeStartFailed         ErrorCode = "start_failed"
	ErrorCodeRecognition         ErrorCode = "recognition"
	ErrorCodeAudioStream         ErrorCode = "audio_stream"
	ErrorCodeRules               ErrorCode = "rules"
	ErrorCodeBackend             ErrorCode = "backend"
)

// TranscriptKind identifies whether a recognition update is interim or final text.
type TranscriptKind string

const (
	TranscriptKindInterim TranscriptKind = "interim"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent is one update from the recognition capability.
type TranscriptEvent struct {
	Kind TranscriptKind `json:"kind"`
	Text string         `json:"text"`
}

// Capability describes whether dictation can run in the current context.
type Capability struct {
	Supported bool   `json:"supported"`
	Secure    bool   `json:"secure"`
	Reason    string `json:"reason,omitempty"`
}

// Status summarizes the current runtime status.
type Status struct {
	State     SessionState `json:"state"`
	Listening bool         `json:"listening"`
	Message   string       `json:"message,omitempty"`
}

// StartError classifies a recognizer start rejection.
type StartError struct {
	Code ErrorCode
	Err  error
}

func (e *StartError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}
