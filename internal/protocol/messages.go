package protocol

import "time"

// AudioFrame represents PCM audio data streamed from a capture device
// while a session is recording. Frames arrive roughly every 100ms and
// must be accumulated in sequence order.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// SessionCommand drives the push-to-talk session lifecycle from an
// edge surface (button press, HTTP call).
type SessionCommand struct {
	Action    string    `json:"action"` // start | stop | dismiss
	DeviceID  string    `json:"device_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is broadcast on every session state transition.
type SessionState struct {
	SessionID      string    `json:"session_id"`
	State          string    `json:"state"`
	TranslatedText string    `json:"translated_text,omitempty"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Translation carries the result of a completed translation round trip.
type Translation struct {
	SessionID  string    `json:"session_id"`
	SourceText string    `json:"source_text,omitempty"`
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	Timestamp  time.Time `json:"timestamp"`
}

// SpeakRequest asks the speech service to read text aloud.
type SpeakRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Language  string `json:"language"`
	Voice     string `json:"voice,omitempty"`
	Target    string `json:"target,omitempty"`
}

// AudioChunk contains synthesized PCM streamed to playback devices.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	Target     string `json:"target,omitempty"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// SpeakStatus signals utterance completion or cancellation.
type SpeakStatus struct {
	SessionID string    `json:"session_id"`
	Completed bool      `json:"completed"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectAudioFramePrefix = "audio.frame"
	SubjectSessionCommand   = "session.command"
	SubjectSessionState     = "session.state"
	SubjectTranslationDone  = "translate.result"
	SubjectSpeakRequest     = "speech.request"
	SubjectSpeakAudio       = "speech.audio"
	SubjectSpeakDone        = "speech.done"
)
