package wake

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/earshot-ai/earshot/pkg/audio"
)

// frameAt builds a 20ms 16kHz mono frame whose RMS is approximately level.
func frameAt(level float64) audio.AudioFrame {
	data := make([]byte, 640)
	amp := int16(level * 32768)
	for i := 0; i < len(data); i += 4 {
		binary.LittleEndian.PutUint16(data[i:], uint16(amp))
		binary.LittleEndian.PutUint16(data[i+2:], uint16(-amp))
	}
	return audio.AudioFrame{Data: data, SampleRate: 16000, Channels: 1}
}

func feedN(t *testing.T, d Detector, level float64, n int) []*WakeEvent {
	t.Helper()
	var events []*WakeEvent
	for range n {
		ev, err := d.ProcessFrame(frameAt(level))
		if err != nil {
			t.Fatal(err)
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func TestEnergyNeverTriggersBelowThreshold(t *testing.T) {
	t.Parallel()
	d := NewEnergy(EnergyConfig{Threshold: 0.05, TriggerDuration: 300 * time.Millisecond})
	if events := feedN(t, d, 0.01, 200); len(events) != 0 {
		t.Fatalf("got %d events from sub-threshold audio, want 0", len(events))
	}
}

func TestEnergyTriggersOnceWhenSustainSatisfied(t *testing.T) {
	t.Parallel()
	d := NewEnergy(EnergyConfig{Threshold: 0.05, TriggerDuration: 300 * time.Millisecond})

	// 14 frames = 280ms, still short of the sustain.
	if events := feedN(t, d, 0.08, 14); len(events) != 0 {
		t.Fatalf("triggered at 280ms, before sustain satisfied")
	}
	// 15th frame reaches 300ms: exactly one event, at that moment.
	events := feedN(t, d, 0.08, 1)
	if len(events) != 1 {
		t.Fatalf("got %d events at sustain boundary, want 1", len(events))
	}
	ev := events[0]
	if ev.Strategy != StrategyEnergy {
		t.Errorf("strategy = %s, want energy", ev.Strategy)
	}
	if ev.SustainedMs < 300 {
		t.Errorf("sustained_ms = %d, want >= 300", ev.SustainedMs)
	}
	if ev.Confidence <= 0 || ev.Confidence > 1 {
		t.Errorf("confidence = %.2f, want in (0, 1]", ev.Confidence)
	}

	// Continued loudness must not retrigger until the detector re-arms.
	if events := feedN(t, d, 0.08, 50); len(events) != 0 {
		t.Fatalf("retriggered %d times without re-arming", len(events))
	}
}

func TestEnergySingleDipResetsSustain(t *testing.T) {
	t.Parallel()
	d := NewEnergy(EnergyConfig{Threshold: 0.05, TriggerDuration: 300 * time.Millisecond})

	// 280ms loud, one quiet frame, then loud again: the dip resets the
	// counter, so the second run needs its own full 300ms.
	if events := feedN(t, d, 0.08, 14); len(events) != 0 {
		t.Fatal("triggered during first (too short) run")
	}
	if events := feedN(t, d, 0.01, 1); len(events) != 0 {
		t.Fatal("triggered on the quiet frame")
	}
	if events := feedN(t, d, 0.08, 14); len(events) != 0 {
		t.Fatal("triggered before the second run completed its own sustain")
	}
	if events := feedN(t, d, 0.08, 1); len(events) != 1 {
		t.Fatal("second uninterrupted run did not trigger at its own 300ms")
	}
}

func TestEnergyRearmsAfterQuietFrame(t *testing.T) {
	t.Parallel()
	d := NewEnergy(EnergyConfig{Threshold: 0.05, TriggerDuration: 100 * time.Millisecond})

	if events := feedN(t, d, 0.08, 10); len(events) != 1 {
		t.Fatalf("first trigger: got %d events, want 1", len(events))
	}
	feedN(t, d, 0.01, 1) // re-arm
	if events := feedN(t, d, 0.08, 10); len(events) != 1 {
		t.Fatalf("after re-arm: got %d events, want 1", len(events))
	}
}

func TestEnergyDefaults(t *testing.T) {
	t.Parallel()
	d := NewEnergy(EnergyConfig{})
	if d.cfg.Threshold != 0.05 {
		t.Errorf("default threshold = %v, want 0.05", d.cfg.Threshold)
	}
	if d.cfg.TriggerDuration != 500*time.Millisecond {
		t.Errorf("default trigger = %v, want 500ms", d.cfg.TriggerDuration)
	}
}
