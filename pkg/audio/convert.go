package audio

import (
	"encoding/binary"
	"log/slog"
	"sync"
)

// FormatConverter normalises captured frames to a target mono sample rate.
// It logs a warning on the first format mismatch and validates PCM alignment.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	TargetRate     int
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert downmixes a frame to mono and resamples it to the target rate.
// If the frame already matches, it is returned unchanged (zero allocation).
// A frame with an odd byte count is corrupt and returned with nil Data.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"sample_rate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		frame.Data = nil
		return frame
	}

	// Fast path: already mono at the target rate.
	if frame.Channels == 1 && frame.SampleRate == c.TargetRate {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from_rate", frame.SampleRate, "from_channels", frame.Channels,
			"to_rate", c.TargetRate, "to_channels", 1,
		)
	})

	pcm := frame.Data
	if frame.Channels > 1 {
		pcm = DownmixToMono(pcm, frame.Channels)
	}
	if frame.SampleRate != c.TargetRate {
		pcm = ResampleMono16(pcm, frame.SampleRate, c.TargetRate)
	}

	frame.Data = pcm
	frame.SampleRate = c.TargetRate
	frame.Channels = 1
	return frame
}

// DownmixToMono averages interleaved int16 channels into a mono stream.
// Uses int32 accumulation to prevent overflow and clamps to int16 range.
// channels <= 1 returns the input unchanged.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / 2 / channels
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			s := int16(binary.LittleEndian.Uint16(pcm[(i*channels+ch)*2:]))
			sum += int32(s)
		}
		avg := sum / int32(channels)
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(avg)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples.
// If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[srcIdx*2:]))
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(srcIdx+1)*2:]))
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(interpolated))
	}
	return out
}
