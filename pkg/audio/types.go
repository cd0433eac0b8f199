// Package audio defines the frame type, capture contract, and fan-out bus
// that carry microphone audio through the Earshot pipeline.
//
// The three primary abstractions are:
//
//   - [AudioFrame] — a fixed-duration chunk of mono PCM, the atomic unit of
//     audio transport. Frames are produced once and never mutated.
//   - [Source] — owns the capture device and pushes frames as they arrive.
//   - [FrameBus] — fans frames out to independent subscribers (wake
//     detection, an active ASR stream) without ever blocking the producer.
//
// Implementations of [Source] are provided by device-specific adapter
// packages (e.g., audio/malgo). This package lives under pkg/ because
// external code is expected to implement [Source].
package audio

import "time"

// AudioFrame represents a single frame of audio data flowing through the
// pipeline. Frames are captured by a [Source], distributed by a [FrameBus],
// and consumed — never mutated — by every downstream stage.
type AudioFrame struct {
	// Data is raw little-endian signed 16-bit PCM.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for speech recognition).
	SampleRate int

	// Channels is the channel count. The bus carries mono frames; a Source
	// downmixes multi-channel devices before publishing.
	Channels int

	// Seq is the monotonic sequence number assigned at capture time.
	Seq uint64

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame's PCM payload.
// Returns zero if the frame's format fields are unset.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
