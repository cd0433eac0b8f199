package audio

import (
	"context"
	"errors"
)

// ErrDeviceUnavailable is returned by [Source.Start] when the capture device
// cannot be opened. The failure is fatal to that attempt only; callers may
// retry with a different device id.
var ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

// SourceConfig describes the capture format requested from a [Source].
type SourceConfig struct {
	// SampleRate is the target sample rate in Hz.
	SampleRate int

	// Channels is the device channel count to open. Sources downmix to mono
	// before publishing regardless of this value.
	Channels int

	// FrameDuration is the duration of each emitted frame in milliseconds
	// (e.g., 20).
	FrameDuration int

	// Device optionally names a specific capture device. Empty selects the
	// system default.
	Device string
}

// Source owns the microphone device and produces a continuous sequence of
// mono [AudioFrame] values on a dedicated capture goroutine.
//
// A Source performs no buffering beyond what the device driver requires and
// never drops frames itself; drop policy belongs to the [FrameBus] its frames
// are pumped into. The frame channel is owned by the Source and closed when
// capture ends, whether by Stop, context cancellation, or device loss.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Start begins continuous capture. Frames become available on the
	// channel returned by Frames until Stop is called or ctx is cancelled.
	// A device-open failure is reported as an error wrapping
	// [ErrDeviceUnavailable].
	Start(ctx context.Context) error

	// Frames returns the channel frames are delivered on. The channel is
	// closed when the stream ends.
	Frames() <-chan AudioFrame

	// Stop releases the capture device deterministically. It is safe to call
	// Stop more than once; subsequent calls are no-ops and return nil.
	Stop() error

	// Err returns the terminal stream error after the frame channel has been
	// closed, or nil for a clean stop. Mid-stream device loss surfaces here
	// rather than panicking the capture path.
	Err() error
}
