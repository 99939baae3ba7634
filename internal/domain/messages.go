package domain

import "fmt"

// SessionReasonMessage returns the status line shown for a state transition.
func SessionReasonMessage(reason SessionStateReason) string {
	switch reason {
	case SessionReasonReady:
		return "Voice input ready"
	case SessionReasonListeningStarted:
		return "Listening (auto-stops after silence)"
	case SessionReasonStoppedByUser:
		return "Voice input stopped"
	case SessionReasonAutoStopped:
		return "Voice input stopped after a long pause"
	case SessionReasonStartFailed:
		return "Voice input failed to start"
	case SessionReasonSessionCleared:
		return "Ready"
	default:
		return ""
	}
}

// ErrorMessage returns the user-facing text for an error code.
func ErrorMessage(code ErrorCode, detail string) string {
	switch code {
	case ErrorCodeStartup:
		return "Startup failed"
	case ErrorCodeUnsupported:
		return "Voice input is not available: speech recognition is not supported here"
	case ErrorCodeInsecureContext:
		return "Voice input requires a secure connection; microphone access is blocked"
	case ErrorCodePermissionDenied:
		return "Microphone access was denied. Please allow microphone access and try again"
	case ErrorCodeServiceNotAllowed:
		return "Speech recognition service is not allowed. Please check your credentials and connection"
	case ErrorCodeLanguageUnsupported:
		return "The specified language is not supported. Please try again"
	case ErrorCodeStartFailed:
		if detail == "" {
			return "Voice input failed to start"
		}
		return fmt.Sprintf("Voice input failed to start: %s", detail)
	case ErrorCodeRecognition:
		return "Speech recognition error"
	case ErrorCodeAudioStream:
		return "Audio streaming issue"
	case ErrorCodeRules:
		return "Corrections file could not be loaded"
	case ErrorCodeBackend:
		return "Backend request failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
