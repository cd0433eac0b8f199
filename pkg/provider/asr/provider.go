// Package asr defines the Provider interface for speech-recognition
// backends.
//
// An ASR provider wraps a recognition engine (e.g., a local whisper.cpp
// model) and exposes a uniform streaming interface. The central abstraction
// is SessionHandle: once opened, a session accepts raw PCM audio and emits
// two streams of Transcript values — low-latency partials for responsiveness
// and exactly one authoritative final per utterance stream.
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"
	"errors"
	"time"
)

// ErrRecognition wraps stage-local recognition failures. The session that
// owns the stream transitions to a failed terminal state; the process keeps
// running.
var ErrRecognition = errors.New("asr: recognition failed")

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("asr: session closed")

// Transcript is a single recognition hypothesis.
type Transcript struct {
	// Text is the recognized text.
	Text string

	// Final marks the authoritative end-of-utterance result. A stream emits
	// any number of non-final transcripts followed by exactly one final.
	Final bool

	// Confidence in [0, 1], if the engine reports one; 0 means unreported.
	Confidence float64

	// At is when the hypothesis was produced.
	At time.Time
}

// StreamConfig describes the audio format and recognition hints for a new
// streaming session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 for whisper models.
	SampleRate int

	// Channels is the channel count; 1 is required by most engines.
	Channels int

	// Language is the BCP-47 language tag (e.g. "en"). Empty lets the
	// engine auto-detect, if supported.
	Language string
}

// SessionHandle represents one open utterance stream. It is an interface so
// test code can provide scripted implementations.
//
// Callers must call Close when the stream is no longer needed; failing to do
// so may leak goroutines inside the provider. All methods must be safe for
// concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw s16le PCM matching the StreamConfig
	// format. Calling SendAudio after Close returns ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Partials emits interim hypotheses as the engine refines its guess.
	// Suitable for UI feedback; never authoritative. Closed when the
	// session ends.
	Partials() <-chan Transcript

	// Finals emits the single authoritative end-of-utterance transcript.
	// Closed when the session ends. A session closed before any speech was
	// recognized closes the channel without emitting.
	Finals() <-chan Transcript

	// Close flushes pending audio, releases resources, and closes both
	// transcript channels. Calling Close more than once is safe and
	// returns nil.
	Close() error

	// Err reports a mid-stream recognition failure (wrapping
	// ErrRecognition) after the channels have closed, or nil.
	Err() error
}

// Provider is the abstraction over any recognition backend.
type Provider interface {
	// StartStream opens a new utterance stream. The returned handle accepts
	// audio immediately. Returns an error if the engine cannot start (model
	// missing, unsupported format, ctx already cancelled).
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
