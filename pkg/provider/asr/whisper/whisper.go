// Package whisper implements asr.Provider with the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
//
// The model is loaded once and shared; each utterance stream creates its own
// whisper context, so streams can run concurrently without interference.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/earshot-ai/earshot/pkg/audio"
	"github.com/earshot-ai/earshot/pkg/provider/asr"
)

const (
	defaultLanguage           = "en"
	defaultSampleRate         = 16000
	defaultSilenceThresholdMs = 1500
	defaultMaxBufferMs        = 10000

	// Frames below this RMS count as silence for end-of-utterance detection.
	speechRMSThreshold = 0.01
)

var _ asr.Provider = (*Provider)(nil)

// Provider implements asr.Provider using whisper.cpp natively.
type Provider struct {
	model    whisperlib.Model
	language string

	sampleRate         int
	silenceThresholdMs int
	maxBufferMs        int
}

// Option configures a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription. Defaults
// to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the expected PCM sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceThreshold sets the consecutive-silence duration that ends the
// utterance and produces the final transcript. Defaults to 1.5s.
func WithSilenceThreshold(d time.Duration) Option {
	return func(p *Provider) { p.silenceThresholdMs = int(d.Milliseconds()) }
}

// WithMaxBufferDuration sets how much speech accumulates before an interim
// inference pass emits a partial. Defaults to 10s.
func WithMaxBufferDuration(d time.Duration) Option {
	return func(p *Provider) { p.maxBufferMs = int(d.Milliseconds()) }
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:              model,
		language:           defaultLanguage,
		sampleRate:         defaultSampleRate,
		silenceThresholdMs: defaultSilenceThresholdMs,
		maxBufferMs:        defaultMaxBufferMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the shared model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Recognize runs one inference pass over a complete s16le mono PCM
// segment and returns its transcript. It satisfies the recognizer
// contract of the phonetic wake-word spotter, sharing the loaded model
// with the streaming path.
func (p *Provider) Recognize(pcm []byte) (string, error) {
	return infer(p.model, p.language, pcm)
}

// StartStream opens a new utterance stream ready to accept audio.
func (p *Provider) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}

	s := &session{
		model:              p.model,
		language:           lang,
		sampleRate:         sr,
		silenceThresholdMs: p.silenceThresholdMs,
		maxBufferMs:        p.maxBufferMs,

		audioCh:  make(chan []byte, 256),
		partials: make(chan asr.Transcript, 64),
		finals:   make(chan asr.Transcript, 1),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)

	return s, nil
}

// session is one live utterance stream. All mutable state driving silence
// detection and buffering is confined to the processLoop goroutine.
type session struct {
	model              whisperlib.Model
	language           string
	sampleRate         int
	silenceThresholdMs int
	maxBufferMs        int

	audioCh  chan []byte
	partials chan asr.Transcript
	finals   chan asr.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	errMu sync.Mutex
	err   error
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return asr.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return asr.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan asr.Transcript { return s.partials }
func (s *session) Finals() <-chan asr.Transcript   { return s.finals }

// Close flushes pending speech as the final transcript and tears the stream
// down. Safe to call more than once.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *session) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = fmt.Errorf("%w: %v", asr.ErrRecognition, err)
	}
	s.errMu.Unlock()
}

// processLoop owns silence detection, buffering, and inference dispatch.
// Interim inference on a long buffer emits a partial; end of utterance
// (sustained silence, Close, or context cancellation) emits the one final.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
	)

	bytesPerMs := s.sampleRate * 2 / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.maxBufferMs * bytesPerMs

	emitPartial := func() {
		if len(buffer) == 0 || !hadSpeech {
			return
		}
		text, err := s.infer(buffer)
		if err != nil {
			slog.Error("whisper interim inference failed", "error", err)
			return
		}
		if text == "" {
			return
		}
		select {
		case s.partials <- asr.Transcript{Text: text, At: time.Now()}:
		default:
		}
	}

	emitFinal := func() {
		if len(buffer) == 0 || !hadSpeech {
			return
		}
		text, err := s.infer(buffer)
		buffer = nil
		if err != nil {
			s.setErr(err)
			return
		}
		if text == "" {
			return
		}
		s.finals <- asr.Transcript{Text: text, Final: true, At: time.Now()}
	}

	for {
		select {
		case <-ctx.Done():
			emitFinal()
			return

		case <-s.done:
			emitFinal()
			return

		case chunk := <-s.audioCh:
			rms := audio.RMS(chunk)
			chunkMs := len(chunk) / bytesPerMs

			if rms < speechRMSThreshold {
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= s.silenceThresholdMs {
						emitFinal()
						return
					}
				}
				continue
			}

			hadSpeech = true
			silenceMs = 0
			buffer = append(buffer, chunk...)
			if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
				emitPartial()
			}
		}
	}
}

func (s *session) infer(pcm []byte) (string, error) {
	return infer(s.model, s.language, pcm)
}

// infer converts PCM to float32 mono, runs whisper.cpp inference on a
// fresh context, and returns the concatenated segment text. Contexts are
// not thread-safe, but the shared model is.
func infer(model whisperlib.Model, language string, pcm []byte) (string, error) {
	samples := pcmToFloat32(pcm)

	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(language); err != nil {
		slog.Warn("whisper: failed to set language, using default",
			"language", language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// pcmToFloat32 converts s16le mono PCM to normalised float32 samples as
// expected by whisper.cpp.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

var _ asr.SessionHandle = (*session)(nil)
