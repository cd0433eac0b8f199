// Package tts defines the Provider interface for speech-synthesis backends.
//
// A TTS provider turns text into audible output. Unlike recognition, the
// session driver needs to know when the user has actually finished hearing
// the response, so Speak blocks until playback completes (or ctx is
// cancelled) rather than returning a stream.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrSynthesis wraps stage-local synthesis failures. The session that
// requested speech transitions to a failed terminal state; the process
// keeps running.
var ErrSynthesis = errors.New("tts: synthesis failed")

// Provider is the abstraction over any synthesis backend.
type Provider interface {
	// Speak synthesises text and plays it through the output device,
	// blocking until the audio has finished or ctx is cancelled.
	// Cancellation stops playback promptly; Speak then returns ctx.Err().
	// Synthesis failures wrap ErrSynthesis.
	Speak(ctx context.Context, text string) error
}
