// Package session orchestrates one push-to-talk translation cycle:
// capture, encode, translate, speak. Exactly one session is active at
// a time.
package session

import (
	"fmt"

	"github.com/lingo-labs/lingo-core/internal/translate"
)

// State names a point in the session lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
	StateError      State = "error"
)

// ErrorKind classifies a terminal session failure.
type ErrorKind string

const (
	ErrorCaptureUnavailable ErrorKind = "capture_unavailable"
	ErrorMissingCredential  ErrorKind = "missing_credential"
	ErrorInvalidCredential  ErrorKind = "invalid_credential"
	ErrorNetwork            ErrorKind = "network_failure"
	ErrorService            ErrorKind = "service_failure"
)

// SessionError is the structured error surfaced to the UI when a
// session terminates in StateError.
type SessionError struct {
	Kind    ErrorKind
	Message string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsCredential reports whether the failure should divert the caller to
// a credential configuration flow.
func (e *SessionError) IsCredential() bool {
	return e != nil && (e.Kind == ErrorMissingCredential || e.Kind == ErrorInvalidCredential)
}

// Snapshot is an immutable view of the active session. TranslatedText
// is set only once the session reaches StateSpeaking; Err is set only
// in StateError; the two are mutually exclusive.
type Snapshot struct {
	SessionID      string
	State          State
	TranslatedText string
	Language       string
	Err            *SessionError
}

func errorFromTranslate(err error) *SessionError {
	kind := translate.Classify(err)
	switch kind {
	case translate.KindMissingCredential:
		return &SessionError{Kind: ErrorMissingCredential, Message: "no translation credential configured"}
	case translate.KindInvalidCredential:
		return &SessionError{Kind: ErrorInvalidCredential, Message: "the translation service rejected the credential"}
	case translate.KindNetwork:
		return &SessionError{Kind: ErrorNetwork, Message: "could not reach the translation service, check connectivity and proxy settings"}
	default:
		return &SessionError{Kind: ErrorService, Message: serviceMessage(err)}
	}
}

func serviceMessage(err error) string {
	if err == nil {
		return "translation failed"
	}
	return err.Error()
}
