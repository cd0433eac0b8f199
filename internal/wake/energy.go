package wake

import (
	"math"
	"time"

	"github.com/earshot-ai/earshot/pkg/audio"
)

// EnergyConfig tunes the [Energy] detector. Defaults favour high recall: a
// low threshold with a minimum sustain to suppress transient clicks.
type EnergyConfig struct {
	// Threshold is the normalised RMS level counted as "loud". Default 0.05.
	Threshold float64

	// TriggerDuration is how long the stream must stay above Threshold
	// without interruption before a WakeEvent fires. Default 500ms.
	TriggerDuration time.Duration
}

func (c *EnergyConfig) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 0.05
	}
	if c.TriggerDuration <= 0 {
		c.TriggerDuration = 500 * time.Millisecond
	}
}

// Energy triggers on sustained loudness. It computes RMS per frame and
// accumulates an above-threshold duration counter; any single frame below
// the threshold resets the counter to zero. Exactly one event fires at the
// moment the sustain is first satisfied; the detector re-arms only after a
// below-threshold frame.
type Energy struct {
	cfg EnergyConfig

	sustained time.Duration
	armed     bool
}

// NewEnergy creates an energy detector with defaults applied.
func NewEnergy(cfg EnergyConfig) *Energy {
	cfg.applyDefaults()
	return &Energy{cfg: cfg, armed: true}
}

// ProcessFrame implements [Detector].
func (e *Energy) ProcessFrame(frame audio.AudioFrame) (*WakeEvent, error) {
	rms := audio.RMS(frame.Data)
	if rms < e.cfg.Threshold {
		e.sustained = 0
		e.armed = true
		return nil, nil
	}

	e.sustained += frame.Duration()
	if !e.armed || e.sustained < e.cfg.TriggerDuration {
		return nil, nil
	}

	e.armed = false
	return &WakeEvent{
		TriggeredAt: time.Now(),
		Confidence:  math.Min(1, rms/(2*e.cfg.Threshold)),
		Strategy:    StrategyEnergy,
		SustainedMs: e.sustained.Milliseconds(),
	}, nil
}

var _ Detector = (*Energy)(nil)
