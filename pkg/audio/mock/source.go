// Package mock provides a scripted [audio.Source] for tests: a fixed frame
// sequence delivered on Start, optionally paced, with injectable failures.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/earshot-ai/earshot/pkg/audio"
)

// Source replays a scripted frame sequence.
type Source struct {
	// Script is the frame sequence delivered after Start. Seq numbers are
	// assigned automatically if left zero.
	Script []audio.AudioFrame

	// Interval optionally paces delivery; zero delivers as fast as the
	// consumer accepts.
	Interval time.Duration

	// StartErr, when set, is returned by Start without producing frames.
	StartErr error

	// StreamErr, when set, is surfaced via Err after the script completes,
	// simulating mid-stream device loss.
	StreamErr error

	// HoldOpen keeps the frame channel open after the script completes until
	// Stop is called, mimicking a quiet microphone.
	HoldOpen bool

	mu      sync.Mutex
	started bool
	stopped bool
	err     error
	frames  chan audio.AudioFrame
	done    chan struct{}
}

func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return s.StartErr
	}
	if s.started {
		return nil
	}
	s.started = true
	s.frames = make(chan audio.AudioFrame, len(s.Script)+1)
	s.done = make(chan struct{})

	go func() {
		defer close(s.frames)
		for i, frame := range s.Script {
			if frame.Seq == 0 && i > 0 {
				frame.Seq = uint64(i)
			}
			if s.Interval > 0 {
				select {
				case <-time.After(s.Interval):
				case <-ctx.Done():
					return
				case <-s.done:
					return
				}
			}
			select {
			case s.frames <- frame:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
		if s.StreamErr != nil {
			s.mu.Lock()
			s.err = s.StreamErr
			s.mu.Unlock()
			return
		}
		if s.HoldOpen {
			select {
			case <-ctx.Done():
			case <-s.done:
			}
		}
	}()
	return nil
}

func (s *Source) Frames() <-chan audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || !s.started {
		s.stopped = true
		return nil
	}
	s.stopped = true
	close(s.done)
	return nil
}

func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
