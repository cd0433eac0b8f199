// Package phonetic implements [wakeword.Spotter] without a dedicated
// keyword-spotting model. It gates the incoming stream on energy to find
// speech segments, hands each finished segment to a pluggable Recognizer
// (typically a small whisper model), and scores the recognized tokens
// against the configured wake phrases.
//
// Scoring proceeds in two stages per phrase:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the recognized tokens and the phrase tokens. Overlapping codes make
//     the phrase a phonetic candidate.
//  2. Jaro-Winkler ranking: candidates are ranked by the best Jaro-Winkler
//     similarity across full-string, concatenated, and pairwise-token
//     comparisons. Without a phonetic overlap a stricter fuzzy threshold
//     applies, so "air shot" still wakes "earshot" but "der shift" does not.
package phonetic

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/earshot-ai/earshot/pkg/audio"
	"github.com/earshot-ai/earshot/pkg/provider/wakeword"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
	defaultEnergyGate        = 0.01
	defaultMinSpeechMs       = 300
	defaultEndSilenceMs      = 400
	defaultMaxSegmentMs      = 3000
	defaultSampleRate        = 16000
)

// Recognizer transcribes one short speech segment of s16le mono PCM.
// In production this is a whisper pass; tests supply a fake.
type Recognizer interface {
	Recognize(pcm []byte) (string, error)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(pcm []byte) (string, error)

func (f RecognizerFunc) Recognize(pcm []byte) (string, error) { return f(pcm) }

// Option configures a [Spotter].
type Option func(*Spotter)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically-matched phrase. Default 0.70.
func WithPhoneticThreshold(t float64) Option {
	return func(s *Spotter) { s.phoneticThreshold = t }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// overlap exists. Default 0.85.
func WithFuzzyThreshold(t float64) Option {
	return func(s *Spotter) { s.fuzzyThreshold = t }
}

// WithEnergyGate sets the RMS level separating speech from background.
// Default 0.01.
func WithEnergyGate(g float64) Option {
	return func(s *Spotter) { s.energyGate = g }
}

// WithSampleRate sets the PCM sample rate of incoming frames. Default 16000.
func WithSampleRate(rate int) Option {
	return func(s *Spotter) { s.sampleRate = rate }
}

// WithSegmentBounds tunes segmentation: minimum speech before a segment is
// considered, trailing silence that ends it, and the hard cap after which a
// segment is recognized regardless. Zero values keep the defaults
// (300 ms / 400 ms / 3000 ms).
func WithSegmentBounds(minSpeechMs, endSilenceMs, maxSegmentMs int) Option {
	return func(s *Spotter) {
		if minSpeechMs > 0 {
			s.minSpeechMs = minSpeechMs
		}
		if endSilenceMs > 0 {
			s.endSilenceMs = endSilenceMs
		}
		if maxSegmentMs > 0 {
			s.maxSegmentMs = maxSegmentMs
		}
	}
}

// Spotter buffers energy-gated speech and scores recognized segments
// against wake phrases. Not safe for concurrent use; it belongs to one
// detector goroutine.
type Spotter struct {
	phrases    []string
	recognizer Recognizer

	phoneticThreshold float64
	fuzzyThreshold    float64
	energyGate        float64
	sampleRate        int
	minSpeechMs       int
	endSilenceMs      int
	maxSegmentMs      int

	// rolling segmentation state
	segment   []byte
	speechMs  int
	silenceMs int
}

// New creates a spotter for the given wake phrases.
func New(phrases []string, recognizer Recognizer, opts ...Option) (*Spotter, error) {
	if len(phrases) == 0 {
		return nil, fmt.Errorf("phonetic: at least one wake phrase is required")
	}
	if recognizer == nil {
		return nil, fmt.Errorf("phonetic: recognizer is required")
	}
	s := &Spotter{
		phrases:           phrases,
		recognizer:        recognizer,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		energyGate:        defaultEnergyGate,
		sampleRate:        defaultSampleRate,
		minSpeechMs:       defaultMinSpeechMs,
		endSilenceMs:      defaultEndSilenceMs,
		maxSegmentMs:      defaultMaxSegmentMs,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ProcessFrame feeds one frame of s16le mono PCM. Most frames return a zero
// Match; a Match with a non-zero score is returned on the frame that
// completes a speech segment resembling a wake phrase.
func (s *Spotter) ProcessFrame(frame []byte) (wakeword.Match, error) {
	frameMs := len(frame) / 2 * 1000 / s.sampleRate
	rms := audio.RMS(frame)

	if rms >= s.energyGate {
		s.segment = append(s.segment, frame...)
		s.speechMs += frameMs
		s.silenceMs = 0
		if s.speechMs >= s.maxSegmentMs {
			return s.finishSegment()
		}
		return wakeword.Match{}, nil
	}

	if s.speechMs == 0 {
		// Background noise before any speech; nothing buffered.
		return wakeword.Match{}, nil
	}
	s.segment = append(s.segment, frame...)
	s.silenceMs += frameMs
	if s.silenceMs < s.endSilenceMs {
		return wakeword.Match{}, nil
	}
	if s.speechMs < s.minSpeechMs {
		// Too short to be a phrase; a click or a cough.
		s.reset()
		return wakeword.Match{}, nil
	}
	return s.finishSegment()
}

func (s *Spotter) finishSegment() (wakeword.Match, error) {
	pcm := s.segment
	s.reset()

	text, err := s.recognizer.Recognize(pcm)
	if err != nil {
		return wakeword.Match{}, fmt.Errorf("phonetic: recognize segment: %w", err)
	}
	return s.score(text), nil
}

func (s *Spotter) reset() {
	s.segment = nil
	s.speechMs = 0
	s.silenceMs = 0
}

// score ranks the recognized text against every wake phrase and returns the
// best acceptable match, or a zero Match.
func (s *Spotter) score(text string) wakeword.Match {
	textLower := strings.ToLower(strings.TrimSpace(text))
	if textLower == "" {
		return wakeword.Match{}
	}
	textTokens := strings.Fields(textLower)
	textCodes := codesForTokens(textTokens)

	var best wakeword.Match
	bestPhonetic := false

	for _, phrase := range s.phrases {
		phraseLower := strings.ToLower(strings.TrimSpace(phrase))
		if phraseLower == "" {
			continue
		}
		phraseTokens := strings.Fields(phraseLower)
		phonetic := codesOverlap(textCodes, codesForTokens(phraseTokens))
		jw := bestJWScore(textTokens, phraseTokens, textLower, phraseLower)

		switch {
		case phonetic && jw >= s.phoneticThreshold:
			if !bestPhonetic || jw > best.Score {
				best = wakeword.Match{Score: jw, PhraseID: phrase}
				bestPhonetic = true
			}
		case !phonetic && !bestPhonetic:
			if jw >= s.fuzzyThreshold && jw > best.Score {
				best = wakeword.Match{Score: jw, PhraseID: phrase}
			}
		}
	}
	return best
}

// codesForTokens returns the union of all Double Metaphone codes for the
// tokens, excluding empty codes.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// recognized text and the phrase across full-string, concatenated, and
// pairwise-token comparisons, so "air shot" vs "earshot" still ranks high.
func bestJWScore(textTokens, phraseTokens []string, textFull, phraseFull string) float64 {
	score := matchr.JaroWinkler(textFull, phraseFull, false)

	if len(textTokens) > 1 || len(phraseTokens) > 1 {
		c1 := strings.Join(textTokens, "")
		c2 := strings.Join(phraseTokens, "")
		if s := matchr.JaroWinkler(c1, c2, false); s > score {
			score = s
		}
	}

	for _, tt := range textTokens {
		for _, pt := range phraseTokens {
			if s := matchr.JaroWinkler(tt, pt, false); s > score {
				score = s
			}
		}
	}
	return score
}

var _ wakeword.Spotter = (*Spotter)(nil)
