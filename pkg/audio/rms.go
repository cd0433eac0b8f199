package audio

import (
	"encoding/binary"
	"math"
)

// RMS computes the root-mean-square energy of little-endian signed 16-bit
// PCM, normalised to [0, 1]. Silence is 0; a full-scale square wave is 1.
// Odd trailing bytes are ignored.
func RMS(s16le []byte) float64 {
	n := len(s16le) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(s16le[i*2:]))
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum/float64(n)) / 32768.0
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs whose signs
// differ, in [0, 1]. Speech typically sits well below 0.3; fricatives and
// noise push it higher.
func ZeroCrossingRate(s16le []byte) float64 {
	n := len(s16le) / 2
	if n < 2 {
		return 0
	}
	var crossings int
	prev := int16(binary.LittleEndian.Uint16(s16le))
	for i := 1; i < n; i++ {
		cur := int16(binary.LittleEndian.Uint16(s16le[i*2:]))
		if (prev >= 0) != (cur >= 0) {
			crossings++
		}
		prev = cur
	}
	return float64(crossings) / float64(n-1)
}
