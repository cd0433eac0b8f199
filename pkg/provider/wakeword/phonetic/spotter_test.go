package phonetic

import (
	"encoding/binary"
	"errors"
	"testing"
)

// loudFrame is 20ms of 16kHz mono PCM well above the energy gate.
func loudFrame() []byte {
	frame := make([]byte, 640)
	for i := 0; i < len(frame); i += 2 {
		binary.LittleEndian.PutUint16(frame[i:], uint16(int16(8000)))
	}
	return frame
}

// quietFrame is 20ms of near-silence.
func quietFrame() []byte {
	return make([]byte, 640)
}

// feedSegment pushes enough loud frames for speechMs, then silence until the
// spotter decides, returning the first non-zero match (if any).
func feedSegment(t *testing.T, s *Spotter, speechFrames, silenceFrames int) (score float64, phrase string) {
	t.Helper()
	for range speechFrames {
		m, err := s.ProcessFrame(loudFrame())
		if err != nil {
			t.Fatal(err)
		}
		if m.Score > 0 {
			return m.Score, m.PhraseID
		}
	}
	for range silenceFrames {
		m, err := s.ProcessFrame(quietFrame())
		if err != nil {
			t.Fatal(err)
		}
		if m.Score > 0 {
			return m.Score, m.PhraseID
		}
	}
	return 0, ""
}

func fixedRecognizer(text string) Recognizer {
	return RecognizerFunc(func([]byte) (string, error) { return text, nil })
}

func TestSpotterMatchesExactPhrase(t *testing.T) {
	t.Parallel()
	s, err := New([]string{"earshot", "hey earshot"}, fixedRecognizer("hey earshot"))
	if err != nil {
		t.Fatal(err)
	}

	score, phrase := feedSegment(t, s, 20, 25) // 400ms speech, 500ms silence
	if score < 0.99 {
		t.Errorf("score = %.2f, want ~1.0", score)
	}
	if phrase != "hey earshot" {
		t.Errorf("phrase = %q, want %q", phrase, "hey earshot")
	}
}

func TestSpotterMatchesPhoneticVariant(t *testing.T) {
	t.Parallel()
	// A plausible whisper mishearing of "earshot".
	s, err := New([]string{"earshot"}, fixedRecognizer("ear shot"))
	if err != nil {
		t.Fatal(err)
	}

	score, phrase := feedSegment(t, s, 20, 25)
	if score < 0.70 {
		t.Errorf("score = %.2f, want >= phonetic threshold", score)
	}
	if phrase != "earshot" {
		t.Errorf("phrase = %q, want earshot", phrase)
	}
}

func TestSpotterRejectsUnrelatedSpeech(t *testing.T) {
	t.Parallel()
	s, err := New([]string{"earshot"}, fixedRecognizer("turn on the lights"))
	if err != nil {
		t.Fatal(err)
	}

	if score, _ := feedSegment(t, s, 20, 25); score != 0 {
		t.Errorf("score = %.2f, want 0 for unrelated speech", score)
	}
}

func TestSpotterIgnoresShortBursts(t *testing.T) {
	t.Parallel()
	called := false
	rec := RecognizerFunc(func([]byte) (string, error) {
		called = true
		return "earshot", nil
	})
	s, err := New([]string{"earshot"}, rec)
	if err != nil {
		t.Fatal(err)
	}

	// 100ms of speech is below the 300ms minimum — a click, not a phrase.
	if score, _ := feedSegment(t, s, 5, 25); score != 0 {
		t.Errorf("score > 0 for a sub-minimum burst")
	}
	if called {
		t.Error("recognizer invoked for a sub-minimum burst")
	}
}

func TestSpotterSilenceOnlyNeverRecognizes(t *testing.T) {
	t.Parallel()
	rec := RecognizerFunc(func([]byte) (string, error) {
		t.Error("recognizer invoked without speech")
		return "", nil
	})
	s, err := New([]string{"earshot"}, rec)
	if err != nil {
		t.Fatal(err)
	}
	for range 100 {
		if m, _ := s.ProcessFrame(quietFrame()); m.Score != 0 {
			t.Fatal("match emitted from silence")
		}
	}
}

func TestSpotterRecognizerError(t *testing.T) {
	t.Parallel()
	recErr := errors.New("model busy")
	s, err := New([]string{"earshot"}, RecognizerFunc(func([]byte) (string, error) {
		return "", recErr
	}))
	if err != nil {
		t.Fatal(err)
	}

	for range 20 {
		if _, err := s.ProcessFrame(loudFrame()); err != nil {
			t.Fatal(err)
		}
	}
	var got error
	for range 25 {
		if _, err := s.ProcessFrame(quietFrame()); err != nil {
			got = err
			break
		}
	}
	if !errors.Is(got, recErr) {
		t.Errorf("error = %v, want wrapped %v", got, recErr)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, fixedRecognizer("x")); err == nil {
		t.Error("expected error for empty phrase list")
	}
	if _, err := New([]string{"earshot"}, nil); err == nil {
		t.Error("expected error for nil recognizer")
	}
}
