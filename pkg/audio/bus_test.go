package audio

import (
	"testing"
	"time"
)

func frameWithSeq(seq uint64) AudioFrame {
	return AudioFrame{
		Data:       make([]byte, 640),
		SampleRate: 16000,
		Channels:   1,
		Seq:        seq,
		Timestamp:  time.Duration(seq) * 20 * time.Millisecond,
	}
}

func TestFrameBusDeliversInOrder(t *testing.T) {
	t.Parallel()
	bus := NewFrameBus()
	defer bus.Close()

	sub := bus.Subscribe("wake", 16)
	for seq := uint64(0); seq < 10; seq++ {
		bus.Publish(frameWithSeq(seq))
	}

	for want := uint64(0); want < 10; want++ {
		got := <-sub.C
		if got.Seq != want {
			t.Fatalf("frame %d: got seq %d", want, got.Seq)
		}
	}
	if sub.Drops() != 0 {
		t.Errorf("drops = %d, want 0", sub.Drops())
	}
}

func TestFrameBusShedsOldestWhenFull(t *testing.T) {
	t.Parallel()
	bus := NewFrameBus()
	defer bus.Close()

	sub := bus.Subscribe("asr", 3)
	for seq := uint64(0); seq < 5; seq++ {
		bus.Publish(frameWithSeq(seq))
	}

	// Capacity 3, published 5: seqs 0 and 1 shed, 2..4 retained in order.
	for _, want := range []uint64{2, 3, 4} {
		got := <-sub.C
		if got.Seq != want {
			t.Fatalf("got seq %d, want %d", got.Seq, want)
		}
	}
	if sub.Drops() != 2 {
		t.Errorf("drops = %d, want 2", sub.Drops())
	}
}

func TestFrameBusDropHook(t *testing.T) {
	t.Parallel()
	var dropped []string
	bus := NewFrameBus(WithDropHook(func(name string) {
		dropped = append(dropped, name)
	}))
	defer bus.Close()

	bus.Subscribe("slow", 1)
	bus.Publish(frameWithSeq(0))
	bus.Publish(frameWithSeq(1))

	if len(dropped) != 1 || dropped[0] != "slow" {
		t.Errorf("drop hook calls = %v, want [slow]", dropped)
	}
}

func TestFrameBusIsolatesSubscribers(t *testing.T) {
	t.Parallel()
	bus := NewFrameBus()
	defer bus.Close()

	slow := bus.Subscribe("slow", 1)
	fast := bus.Subscribe("fast", 8)
	for seq := uint64(0); seq < 4; seq++ {
		bus.Publish(frameWithSeq(seq))
	}

	// The fast subscriber sees everything despite the slow one lagging.
	for want := uint64(0); want < 4; want++ {
		got := <-fast.C
		if got.Seq != want {
			t.Fatalf("fast: got seq %d, want %d", got.Seq, want)
		}
	}
	if fast.Drops() != 0 {
		t.Errorf("fast drops = %d, want 0", fast.Drops())
	}
	if slow.Drops() != 3 {
		t.Errorf("slow drops = %d, want 3", slow.Drops())
	}
}

func TestFrameBusPauseDiscardsSilently(t *testing.T) {
	t.Parallel()
	bus := NewFrameBus()
	defer bus.Close()

	sub := bus.Subscribe("wake", 4)
	sub.Pause()
	bus.Publish(frameWithSeq(0))
	bus.Publish(frameWithSeq(1))
	sub.Resume()
	bus.Publish(frameWithSeq(2))

	got := <-sub.C
	if got.Seq != 2 {
		t.Errorf("got seq %d, want 2 (paused frames discarded)", got.Seq)
	}
	if sub.Drops() != 0 {
		t.Errorf("drops = %d, want 0 (pause is not a drop)", sub.Drops())
	}
}

func TestFrameBusDrainEmptiesBuffer(t *testing.T) {
	t.Parallel()
	bus := NewFrameBus()
	defer bus.Close()

	sub := bus.Subscribe("asr", 8)
	for seq := uint64(0); seq < 5; seq++ {
		bus.Publish(frameWithSeq(seq))
	}

	sub.Pause()
	if n := sub.Drain(); n != 5 {
		t.Errorf("drained %d frames, want 5", n)
	}
	if n := sub.Drain(); n != 0 {
		t.Errorf("second drain returned %d, want 0", n)
	}

	// Frames published after the drain arrive as usual.
	sub.Resume()
	bus.Publish(frameWithSeq(9))
	got := <-sub.C
	if got.Seq != 9 {
		t.Errorf("got seq %d, want 9", got.Seq)
	}
}

func TestFrameBusCloseClosesSubscribers(t *testing.T) {
	t.Parallel()
	bus := NewFrameBus()
	sub := bus.Subscribe("wake", 2)
	bus.Close()

	if _, ok := <-sub.C; ok {
		t.Error("subscription channel still open after Close")
	}
	// Publish after close must not panic.
	bus.Publish(frameWithSeq(0))
}

func TestFrameBusUnsubscribe(t *testing.T) {
	t.Parallel()
	bus := NewFrameBus()
	defer bus.Close()

	sub := bus.Subscribe("asr", 2)
	bus.Unsubscribe("asr")
	if _, ok := <-sub.C; ok {
		t.Error("subscription channel still open after Unsubscribe")
	}
	bus.Unsubscribe("asr") // no-op
}
