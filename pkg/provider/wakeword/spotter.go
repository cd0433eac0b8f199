// Package wakeword defines the keyword-matching capability consumed by the
// keyword-spotting wake strategy. A Spotter inspects the raw audio stream
// frame by frame and reports how strongly the most recent speech resembles
// one of the configured wake phrases.
package wakeword

// Match is the spotter's verdict for the most recent frame. A zero Match
// (Score 0) means "nothing yet" — most frames produce it.
type Match struct {
	// Score is the phrase similarity in [0, 1].
	Score float64

	// PhraseID identifies which configured phrase matched. Empty when
	// Score is 0.
	PhraseID string
}

// Spotter consumes audio frames and reports wake-phrase matches. Frames are
// raw s16le mono PCM at the rate the spotter was configured with.
//
// ProcessFrame is called from a single detector goroutine; implementations
// may keep private rolling state without locking.
type Spotter interface {
	ProcessFrame(frame []byte) (Match, error)
}
