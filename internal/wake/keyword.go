package wake

import (
	"fmt"
	"time"

	"github.com/earshot-ai/earshot/pkg/audio"
	"github.com/earshot-ai/earshot/pkg/provider/wakeword"
)

// KeywordConfig tunes the [Keyword] detector.
type KeywordConfig struct {
	// ConfidenceThreshold is the minimum spotter score that triggers a
	// wake. Default 0.6.
	ConfidenceThreshold float64

	// SpeechGate is the RMS level above which a frame counts toward the
	// sustained-speech measurement attached to emitted events.
	// Default 0.01.
	SpeechGate float64
}

func (c *KeywordConfig) applyDefaults() {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.6
	}
	if c.SpeechGate <= 0 {
		c.SpeechGate = 0.01
	}
}

// Keyword triggers when the wrapped [wakeword.Spotter] scores recent speech
// above the confidence threshold, attaching which phrase matched.
type Keyword struct {
	cfg     KeywordConfig
	spotter wakeword.Spotter

	speech time.Duration
}

// NewKeyword wraps a spotter as a wake detector.
func NewKeyword(spotter wakeword.Spotter, cfg KeywordConfig) (*Keyword, error) {
	if spotter == nil {
		return nil, fmt.Errorf("wake: spotter is required")
	}
	cfg.applyDefaults()
	return &Keyword{cfg: cfg, spotter: spotter}, nil
}

// ProcessFrame implements [Detector].
func (k *Keyword) ProcessFrame(frame audio.AudioFrame) (*WakeEvent, error) {
	if audio.RMS(frame.Data) >= k.cfg.SpeechGate {
		k.speech += frame.Duration()
	}

	match, err := k.spotter.ProcessFrame(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("wake: keyword spotter: %w", err)
	}
	if match.Score < k.cfg.ConfidenceThreshold || match.Score == 0 {
		return nil, nil
	}

	sustained := k.speech
	k.speech = 0
	return &WakeEvent{
		TriggeredAt: time.Now(),
		Confidence:  match.Score,
		Strategy:    StrategyKeyword,
		SustainedMs: sustained.Milliseconds(),
		PhraseID:    match.PhraseID,
	}, nil
}

var _ Detector = (*Keyword)(nil)
