// Package event defines the typed event stream emitted by the session core.
// Events are the sole externally observable contract: presentation layers
// (CLI, UI, the WebSocket server) subscribe to a [Bus] and render events
// without ever touching internal session state.
//
// Events for a given session are appended in the exact order their
// transitions occurred and are never mutated after emission.
package event

import "time"

// Type discriminates the event union.
type Type string

const (
	WakeDetected      Type = "wake_detected"
	PartialTranscript Type = "partial_transcript"
	FinalTranscript   Type = "final_transcript"
	IntentRecognized  Type = "intent_recognized"
	ExecutionStarted  Type = "execution_started"
	ExecutionFinished Type = "execution_finished"
	TtsStarted        Type = "tts_started"
	TtsFinished       Type = "tts_finished"
	SessionTimedOut   Type = "session_timed_out"
	SessionFailed     Type = "session_failed"

	// Notification carries an out-of-session announcement, e.g. a timer
	// started in an earlier session firing.
	Notification Type = "notification"
)

// WakeInfo describes the wake trigger attached to a [WakeDetected] event.
type WakeInfo struct {
	Strategy    string  `json:"strategy"`
	Confidence  float64 `json:"confidence"`
	SustainedMs int64   `json:"sustained_ms"`
	PhraseID    string  `json:"phrase_id,omitempty"`
}

// IntentInfo describes a recognized intent attached to an
// [IntentRecognized] event.
type IntentInfo struct {
	Type       string            `json:"type"`
	Params     map[string]string `json:"params,omitempty"`
	Confidence float64           `json:"confidence"`
}

// ResultInfo describes an execution outcome attached to an
// [ExecutionFinished] event.
type ResultInfo struct {
	Success bool   `json:"success"`
	Spoken  string `json:"spoken,omitempty"`
}

// Event is one entry in the session event stream. Only the fields relevant
// to the Type are populated; the rest are zero.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	TurnIndex int       `json:"turn_index"`
	At        time.Time `json:"at"`

	// Text carries the transcript for Partial/FinalTranscript, the spoken
	// text for TtsStarted, or the message for Notification.
	Text string `json:"text,omitempty"`

	Wake   *WakeInfo   `json:"wake,omitempty"`
	Intent *IntentInfo `json:"intent,omitempty"`
	Result *ResultInfo `json:"result,omitempty"`

	// Reason explains SessionTimedOut (the stage that expired) and
	// SessionFailed (the stage error).
	Reason string `json:"reason,omitempty"`
}
