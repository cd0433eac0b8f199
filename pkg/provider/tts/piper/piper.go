// Package piper implements tts.Provider by running the Piper binary as a
// subprocess. Piper reads text on stdin and writes raw s16le PCM on stdout,
// which is played through a shared playback device.
package piper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/earshot-ai/earshot/pkg/audio/playback"
	"github.com/earshot-ai/earshot/pkg/provider/tts"
)

const defaultSampleRate = 22050

var _ tts.Provider = (*Provider)(nil)

// Config describes a Piper installation.
type Config struct {
	// Binary is the piper executable path. Defaults to "piper" on PATH.
	Binary string

	// Model is the .onnx voice model path. Required.
	Model string

	// SampleRate of the model's output PCM. Defaults to 22050, which is
	// what the common voices ship with.
	SampleRate int

	// SynthesisTimeout bounds the subprocess run per utterance. Defaults
	// to 30s.
	SynthesisTimeout time.Duration

	// Player is the shared speaker output. Its sample rate must match
	// SampleRate. Required.
	Player *playback.Player

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Provider shells out to piper per utterance.
type Provider struct {
	cfg Config
}

// New validates the config and returns a provider. The piper binary is not
// spawned until the first Speak call.
func New(cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("piper: Model is required")
	}
	if cfg.Player == nil {
		return nil, fmt.Errorf("piper: Player is required")
	}
	if cfg.Binary == "" {
		cfg.Binary = "piper"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if got := cfg.Player.SampleRate(); got != cfg.SampleRate {
		return nil, fmt.Errorf("piper: player rate %d does not match model rate %d", got, cfg.SampleRate)
	}
	return &Provider{cfg: cfg}, nil
}

// Speak synthesises text with piper and plays the result, blocking until
// playback finishes or ctx is cancelled.
func (p *Provider) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	pcm, err := p.synthesize(ctx, text)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		p.cfg.Logger.Warn("piper produced no audio", "text_len", len(text))
		return nil
	}

	start := time.Now()
	if err := p.cfg.Player.Play(ctx, pcm); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: playback: %v", tts.ErrSynthesis, err)
	}
	p.cfg.Logger.Debug("spoke response",
		"text_len", len(text),
		"audio_ms", len(pcm)/2*1000/p.cfg.SampleRate,
		"took", time.Since(start),
	)
	return nil
}

func (p *Provider) synthesize(ctx context.Context, text string) ([]byte, error) {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.SynthesisTimeout)
	defer cancel()

	cmd := exec.CommandContext(sctx, p.cfg.Binary,
		"--model", p.cfg.Model,
		"--output-raw",
	)
	cmd.Stdin = strings.NewReader(text + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: piper: %v: %s", tts.ErrSynthesis, err, firstLine(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
