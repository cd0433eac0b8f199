// Package playback plays s16le PCM through the system speaker using
// ebitengine/oto. The process may hold only one oto context, so a single
// [Player] should be shared by everything that produces audible output.
package playback

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Player owns the speaker output device.
type Player struct {
	sampleRate int
	channels   int

	mu     sync.Mutex
	ctx    *oto.Context
	closed bool
}

// NewPlayer opens the speaker for the given output format. The call blocks
// until the audio backend is ready.
func NewPlayer(sampleRate, channels int) (*Player, error) {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	if channels <= 0 {
		channels = 1
	}
	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("playback: opening speaker: %w", err)
	}
	<-ready
	return &Player{sampleRate: sampleRate, channels: channels, ctx: otoCtx}, nil
}

// Play writes the PCM buffer to the speaker and blocks until playback
// finishes or ctx is cancelled. Cancellation stops output immediately.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("playback: player closed")
	}
	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	p.mu.Unlock()
	defer player.Close()

	player.Play()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// SampleRate returns the output sample rate the player was opened with.
// PCM passed to Play must match it.
func (p *Player) SampleRate() int { return p.sampleRate }

// Close marks the player unusable. The underlying audio context has no
// teardown; in-flight Play calls finish on their own.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
