package wake

import (
	"errors"
	"testing"

	"github.com/earshot-ai/earshot/pkg/provider/wakeword"
)

// scriptedSpotter returns canned matches in order, then zero matches.
type scriptedSpotter struct {
	matches []wakeword.Match
	err     error
	calls   int
}

func (s *scriptedSpotter) ProcessFrame([]byte) (wakeword.Match, error) {
	s.calls++
	if s.err != nil {
		return wakeword.Match{}, s.err
	}
	if len(s.matches) == 0 {
		return wakeword.Match{}, nil
	}
	m := s.matches[0]
	s.matches = s.matches[1:]
	return m, nil
}

func TestKeywordTriggersAboveConfidence(t *testing.T) {
	t.Parallel()
	spotter := &scriptedSpotter{matches: []wakeword.Match{
		{}, {}, {Score: 0.92, PhraseID: "hey earshot"},
	}}
	d, err := NewKeyword(spotter, KeywordConfig{ConfidenceThreshold: 0.6})
	if err != nil {
		t.Fatal(err)
	}

	events := feedN(t, d, 0.08, 3)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Strategy != StrategyKeyword {
		t.Errorf("strategy = %s, want keyword", ev.Strategy)
	}
	if ev.PhraseID != "hey earshot" {
		t.Errorf("phrase = %q, want hey earshot", ev.PhraseID)
	}
	if ev.Confidence != 0.92 {
		t.Errorf("confidence = %.2f, want 0.92", ev.Confidence)
	}
	if ev.SustainedMs != 60 {
		t.Errorf("sustained_ms = %d, want 60 (3 loud 20ms frames)", ev.SustainedMs)
	}
}

func TestKeywordIgnoresLowScores(t *testing.T) {
	t.Parallel()
	spotter := &scriptedSpotter{matches: []wakeword.Match{
		{Score: 0.3, PhraseID: "earshot"},
		{Score: 0.59, PhraseID: "earshot"},
	}}
	d, err := NewKeyword(spotter, KeywordConfig{ConfidenceThreshold: 0.6})
	if err != nil {
		t.Fatal(err)
	}
	if events := feedN(t, d, 0.08, 2); len(events) != 0 {
		t.Fatalf("got %d events below confidence threshold, want 0", len(events))
	}
}

func TestKeywordSpotterErrorSurfaces(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("segment too noisy")
	d, err := NewKeyword(&scriptedSpotter{err: wantErr}, KeywordConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.ProcessFrame(frameAt(0.08)); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped %v", err, wantErr)
	}
}

func TestNewKeywordRequiresSpotter(t *testing.T) {
	t.Parallel()
	if _, err := NewKeyword(nil, KeywordConfig{}); err == nil {
		t.Error("expected error for nil spotter")
	}
}
