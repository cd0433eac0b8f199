// Package mock provides a recording tts.Provider for tests.
package mock

import (
	"context"
	"sync"
	"time"
)

// Provider records every Speak call and completes after an optional delay.
type Provider struct {
	// Delay simulates playback time per utterance.
	Delay time.Duration

	// Err, when set, is returned by every Speak call.
	Err error

	// Block, when set, makes Speak wait for ctx cancellation — used to
	// exercise cancellation during the responding stage.
	Block bool

	mu     sync.Mutex
	spoken []string
}

// Speak records the text and returns per the configured behaviour.
func (p *Provider) Speak(ctx context.Context, text string) error {
	p.mu.Lock()
	p.spoken = append(p.spoken, text)
	p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	if p.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Spoken returns every utterance passed to Speak, in order.
func (p *Provider) Spoken() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}
