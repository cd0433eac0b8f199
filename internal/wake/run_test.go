package wake

import (
	"context"
	"testing"
	"time"

	"github.com/earshot-ai/earshot/pkg/audio"
)

func TestRunForwardsWakeEvents(t *testing.T) {
	t.Parallel()
	bus := audio.NewFrameBus()
	defer bus.Close()
	sub := bus.Subscribe("wake", 64)

	d := NewEnergy(EnergyConfig{Threshold: 0.05, TriggerDuration: 100 * time.Millisecond})
	out := make(chan WakeEvent, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, sub, d, out, nil)
	}()

	for range 10 {
		bus.Publish(frameAt(0.08))
	}

	select {
	case ev := <-out:
		if ev.Strategy != StrategyEnergy {
			t.Errorf("strategy = %s, want energy", ev.Strategy)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no wake event forwarded")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunReturnsWhenSubscriptionCloses(t *testing.T) {
	t.Parallel()
	bus := audio.NewFrameBus()
	sub := bus.Subscribe("wake", 4)
	d := NewEnergy(EnergyConfig{})
	out := make(chan WakeEvent, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(context.Background(), sub, d, out, nil)
	}()

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after bus close")
	}
}
