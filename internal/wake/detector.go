// Package wake implements wake detection over the captured frame stream.
// Two strategies are provided: Energy, which triggers on sustained loudness,
// and Keyword, which triggers when a [wakeword.Spotter] reports a confident
// phrase match. Both keep all rolling state private to the detector
// instance, so a single detector goroutine can process frames while the
// session manager consumes the emitted events.
package wake

import (
	"time"

	"github.com/earshot-ai/earshot/pkg/audio"
)

// Strategy names the detection variant that produced a WakeEvent.
type Strategy string

const (
	StrategyEnergy  Strategy = "energy"
	StrategyKeyword Strategy = "keyword"
)

// WakeEvent is emitted when a detector's trigger condition has held for its
// configured sustain. It is never emitted speculatively: SustainedMs meets
// or exceeds the strategy's minimum trigger duration.
type WakeEvent struct {
	TriggeredAt time.Time
	Confidence  float64 // in [0, 1]
	Strategy    Strategy
	SustainedMs int64
	PhraseID    string // keyword strategy only
}

// Detector consumes frames and reports wake triggers. ProcessFrame is
// synchronous and non-blocking; it returns a non-nil event only on the frame
// that satisfies the trigger condition.
type Detector interface {
	ProcessFrame(frame audio.AudioFrame) (*WakeEvent, error)
}
