// Package malgo provides a microphone [audio.Source] backed by miniaudio via
// the gen2brain/malgo bindings. It opens the capture device in s16le at the
// requested rate, slices the driver callbacks into fixed-duration frames, and
// normalises them to mono before delivery.
package malgo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/earshot-ai/earshot/pkg/audio"
)

// Source captures microphone audio through miniaudio.
type Source struct {
	cfg audio.SourceConfig
	log *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	err     error

	frames chan audio.AudioFrame
	raw    chan []byte
	done   chan struct{}
}

// New creates a microphone source for the given capture format. The device
// is not opened until Start.
func New(cfg audio.SourceConfig, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 20
	}
	return &Source{
		cfg:    cfg,
		log:    log,
		frames: make(chan audio.AudioFrame, 32),
		raw:    make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

// Start opens the capture device and begins streaming frames. Device-open
// failures wrap [audio.ErrDeviceUnavailable].
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("malgo source: already started")
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, ctxCfg, func(msg string) {
		s.log.Debug("miniaudio", "message", msg)
	})
	if err != nil {
		return fmt.Errorf("%w: init context: %v", audio.ErrDeviceUnavailable, err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(s.cfg.Channels)
	devCfg.SampleRate = uint32(s.cfg.SampleRate)
	devCfg.PeriodSizeInMilliseconds = uint32(s.cfg.FrameDuration)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			// Driver thread: copy out and hand off without blocking.
			buf := make([]byte, len(input))
			copy(buf, input)
			select {
			case s.raw <- buf:
			default:
				// Chunker stalled; shed the driver callback.
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, devCfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		return fmt.Errorf("%w: init device %q: %v", audio.ErrDeviceUnavailable, s.cfg.Device, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		return fmt.Errorf("%w: start device: %v", audio.ErrDeviceUnavailable, err)
	}

	s.ctx = mctx
	s.device = device
	s.started = true
	go s.chunkLoop(ctx)

	s.log.Info("microphone capture started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
		"frame_ms", s.cfg.FrameDuration,
	)
	return nil
}

// chunkLoop assembles driver callbacks into fixed-duration mono frames.
func (s *Source) chunkLoop(ctx context.Context) {
	defer close(s.frames)

	frameBytes := s.cfg.SampleRate * s.cfg.FrameDuration / 1000 * 2 // mono s16le
	conv := audio.FormatConverter{TargetRate: s.cfg.SampleRate}
	var (
		pending []byte
		seq     uint64
	)
	frameDur := time.Duration(s.cfg.FrameDuration) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		case <-s.done:
			return
		case buf := <-s.raw:
			mono := conv.Convert(audio.AudioFrame{
				Data:       buf,
				SampleRate: s.cfg.SampleRate,
				Channels:   s.cfg.Channels,
			})
			if len(mono.Data) == 0 {
				continue
			}
			pending = append(pending, mono.Data...)
			for len(pending) >= frameBytes {
				data := make([]byte, frameBytes)
				copy(data, pending)
				pending = pending[frameBytes:]
				frame := audio.AudioFrame{
					Data:       data,
					SampleRate: s.cfg.SampleRate,
					Channels:   1,
					Seq:        seq,
					Timestamp:  time.Duration(seq) * frameDur,
				}
				seq++
				select {
				case s.frames <- frame:
				case <-s.done:
					return
				case <-ctx.Done():
					s.setErr(ctx.Err())
					return
				}
			}
		}
	}
}

// Frames returns the capture stream. Closed when the source stops.
func (s *Source) Frames() <-chan audio.AudioFrame { return s.frames }

// Stop releases the device. Safe to call multiple times.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || !s.started {
		s.stopped = true
		return nil
	}
	s.stopped = true
	close(s.done)
	if err := s.device.Stop(); err != nil {
		s.log.Warn("stopping capture device", "error", err)
	}
	s.device.Uninit()
	if err := s.ctx.Uninit(); err != nil {
		s.log.Warn("closing audio context", "error", err)
	}
	s.log.Info("microphone capture stopped")
	return nil
}

// Err returns the terminal stream error, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Source) setErr(err error) {
	if err == nil || err == context.Canceled {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}
