// Package mock provides a scripted asr.Provider for tests. Each StartStream
// consumes the next scripted utterance and replays its partials and final on
// the handle channels, optionally delayed, without touching any audio engine.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/earshot-ai/earshot/pkg/provider/asr"
)

// Utterance scripts one stream's output.
type Utterance struct {
	// Partials are emitted in order before the final.
	Partials []string

	// Final is the authoritative transcript. Empty means the stream stays
	// silent forever (drives timeout paths).
	Final string

	// Delay postpones emission after StartStream.
	Delay time.Duration

	// Err, when set, surfaces via the handle's Err after the channels close
	// instead of emitting a final.
	Err error
}

// Provider replays scripted utterances, one per StartStream call. Streams
// beyond the script stay silent.
type Provider struct {
	// StartErr, when set, fails every StartStream call.
	StartErr error

	mu      sync.Mutex
	script  []Utterance
	started int
	handles []*Handle
}

// NewProvider creates a provider that replays the given utterances in order.
func NewProvider(script ...Utterance) *Provider {
	return &Provider{script: script}
}

// Started reports how many streams have been opened.
func (p *Provider) Started() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Handles returns every handle opened so far, for post-hoc assertions.
func (p *Provider) Handles() []*Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Handle(nil), p.handles...)
}

func (p *Provider) StartStream(ctx context.Context, _ asr.StreamConfig) (asr.SessionHandle, error) {
	p.mu.Lock()
	if p.StartErr != nil {
		p.mu.Unlock()
		return nil, p.StartErr
	}
	var ut Utterance
	if p.started < len(p.script) {
		ut = p.script[p.started]
	}
	p.started++

	h := &Handle{
		partials: make(chan asr.Transcript, 16),
		finals:   make(chan asr.Transcript, 1),
		done:     make(chan struct{}),
	}
	p.handles = append(p.handles, h)
	p.mu.Unlock()

	go h.replay(ctx, ut)
	return h, nil
}

// Handle is a scripted asr.SessionHandle. It records audio pushed through
// SendAudio and whether Close was called.
type Handle struct {
	partials chan asr.Transcript
	finals   chan asr.Transcript
	done     chan struct{}
	once     sync.Once

	mu         sync.Mutex
	audioBytes int
	closed     bool
	err        error
}

func (h *Handle) replay(ctx context.Context, ut Utterance) {
	defer close(h.partials)
	defer close(h.finals)

	if ut.Delay > 0 {
		select {
		case <-time.After(ut.Delay):
		case <-ctx.Done():
			return
		case <-h.done:
			return
		}
	}
	for _, text := range ut.Partials {
		select {
		case h.partials <- asr.Transcript{Text: text, At: time.Now()}:
		case <-ctx.Done():
			return
		case <-h.done:
			return
		}
	}
	if ut.Err != nil {
		h.mu.Lock()
		h.err = ut.Err
		h.mu.Unlock()
		return
	}
	if ut.Final == "" {
		// Scripted silence: wait for teardown.
		select {
		case <-ctx.Done():
		case <-h.done:
		}
		return
	}
	select {
	case h.finals <- asr.Transcript{Text: ut.Final, Final: true, Confidence: 1, At: time.Now()}:
	case <-ctx.Done():
	case <-h.done:
	}
}

func (h *Handle) SendAudio(chunk []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return asr.ErrSessionClosed
	}
	h.audioBytes += len(chunk)
	return nil
}

// AudioBytes reports how much audio was pushed into the stream.
func (h *Handle) AudioBytes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.audioBytes
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Handle) Partials() <-chan asr.Transcript { return h.partials }
func (h *Handle) Finals() <-chan asr.Transcript   { return h.finals }

func (h *Handle) Close() error {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		close(h.done)
	})
	return nil
}

func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

var (
	_ asr.Provider      = (*Provider)(nil)
	_ asr.SessionHandle = (*Handle)(nil)
)
