// Package rules implements a pattern-based [intent.Interpreter]: compiled
// regular expressions with per-pattern confidence scores and slot
// extraction. It needs no network or model and is the default NLU stage.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/earshot-ai/earshot/internal/intent"
)

const defaultConfidenceThreshold = 0.6

var (
	timerRe    = regexp.MustCompile(`(?i)\b(?:set|start|create)\b.*\btimer\b`)
	durationRe = regexp.MustCompile(`(?i)\b(\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten|fifteen|twenty|thirty|forty five|sixty)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?)\b`)
	labelRe    = regexp.MustCompile(`(?i)\btimer\b.*\bfor\s+(?:the\s+)?([a-z][a-z ]*?)$`)

	greetingRe = regexp.MustCompile(`(?i)^(?:hi|hello|hey|good\s+(?:morning|afternoon|evening))\b`)

	weatherRe         = regexp.MustCompile(`(?i)\bweather\b`)
	weatherLocationRe = regexp.MustCompile(`(?i)\bweather\b.*\b(?:in|for|at)\s+([a-z][a-z .'-]*)`)

	systemControlRe = regexp.MustCompile(`(?i)\b(volume\s+up|volume\s+down|turn\s+it\s+up|turn\s+it\s+down|mute|unmute|sleep|shut\s*down|power\s+off|restart|reboot)\b`)

	appLaunchRe = regexp.MustCompile(`(?i)\b(?:open|launch|start)\s+(?:the\s+|up\s+)?([a-z][\w .-]*)`)

	queryRe = regexp.MustCompile(`(?i)^(?:what|who|when|where|why|how|which)\b`)
)

// wordNumbers maps spelled-out quantities accepted in durations.
var wordNumbers = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "fifteen": 15,
	"twenty": 20, "thirty": 30, "forty five": 45, "sixty": 60,
}

// Option configures an [Interpreter].
type Option func(*Interpreter)

// WithConfidenceThreshold sets the minimum pattern confidence; matches below
// it degrade to the unknown intent. Default 0.6.
func WithConfidenceThreshold(t float64) Option {
	return func(i *Interpreter) { i.threshold = t }
}

// Interpreter matches transcripts against the built-in pattern set. It is
// read-only after construction and safe for concurrent use.
type Interpreter struct {
	threshold float64
}

// New creates a rules interpreter.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{threshold: defaultConfidenceThreshold}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Interpret implements [intent.Interpreter]. With a pending slot, the
// transcript is parsed as the slot value; otherwise it is matched against
// the pattern set in priority order.
func (i *Interpreter) Interpret(_ context.Context, transcript string, pending *intent.Pending) (intent.Interpretation, error) {
	text := strings.TrimSpace(transcript)
	if pending != nil {
		return i.fillSlot(text, pending)
	}

	for _, match := range []func(string) *intent.Interpretation{
		i.matchTimer,
		i.matchGreeting,
		i.matchWeather,
		i.matchSystemControl,
		i.matchAppLaunch,
		i.matchQuery,
	} {
		if out := match(text); out != nil {
			if out.Intent != nil && out.Intent.Confidence < i.threshold {
				break
			}
			return *out, nil
		}
	}

	return intent.Interpretation{
		Intent: &intent.Intent{Type: intent.TypeUnknown, Confidence: 0},
	}, nil
}

// fillSlot parses a follow-up utterance as the value of the awaited slot.
// An unparseable answer re-requests the same slot.
func (i *Interpreter) fillSlot(text string, pending *intent.Pending) (intent.Interpretation, error) {
	if pending.Intent == nil {
		return intent.Interpretation{}, fmt.Errorf("rules: pending slot %q has no intent", pending.Slot)
	}
	filled := &intent.Intent{
		Type:       pending.Intent.Type,
		Params:     cloneParams(pending.Intent.Params),
		Confidence: pending.Intent.Confidence,
	}

	switch pending.Slot {
	case "duration":
		seconds, spoken, ok := parseDuration(text)
		if !ok {
			return intent.Interpretation{
				Intent:    filled,
				NeedsSlot: &intent.SlotRequest{Slot: "duration", Prompt: "Sorry, for how long?"},
			}, nil
		}
		filled.Params["duration_seconds"] = strconv.Itoa(seconds)
		filled.Params["duration_spoken"] = spoken
	case "location":
		if text == "" {
			return intent.Interpretation{
				Intent:    filled,
				NeedsSlot: &intent.SlotRequest{Slot: "location", Prompt: "Which location?"},
			}, nil
		}
		filled.Params["location"] = strings.TrimRight(text, ".!?")
	default:
		filled.Params[pending.Slot] = text
	}

	return intent.Interpretation{Intent: filled}, nil
}

func (i *Interpreter) matchTimer(text string) *intent.Interpretation {
	if !timerRe.MatchString(text) {
		return nil
	}
	it := &intent.Intent{Type: intent.TypeTimer, Params: map[string]string{}, Confidence: 0.9}
	if m := labelRe.FindStringSubmatch(text); m != nil {
		label := strings.TrimSpace(m[1])
		// "for five minutes" is a duration, not a label.
		if !durationRe.MatchString("for " + label) {
			it.Params["label"] = label
		}
	}
	seconds, spoken, ok := parseDuration(text)
	if !ok {
		return &intent.Interpretation{
			Intent:    it,
			NeedsSlot: &intent.SlotRequest{Slot: "duration", Prompt: "For how long?"},
		}
	}
	it.Params["duration_seconds"] = strconv.Itoa(seconds)
	it.Params["duration_spoken"] = spoken
	return &intent.Interpretation{Intent: it}
}

func (i *Interpreter) matchGreeting(text string) *intent.Interpretation {
	if !greetingRe.MatchString(text) {
		return nil
	}
	return &intent.Interpretation{
		Intent: &intent.Intent{Type: intent.TypeGreeting, Confidence: 0.95},
	}
}

func (i *Interpreter) matchWeather(text string) *intent.Interpretation {
	if !weatherRe.MatchString(text) {
		return nil
	}
	it := &intent.Intent{Type: intent.TypeWeather, Params: map[string]string{}, Confidence: 0.85}
	if m := weatherLocationRe.FindStringSubmatch(text); m != nil {
		it.Params["location"] = strings.TrimRight(strings.TrimSpace(m[1]), ".!?")
		return &intent.Interpretation{Intent: it}
	}
	return &intent.Interpretation{
		Intent:    it,
		NeedsSlot: &intent.SlotRequest{Slot: "location", Prompt: "Which location?"},
	}
}

func (i *Interpreter) matchSystemControl(text string) *intent.Interpretation {
	m := systemControlRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	action := strings.Join(strings.Fields(strings.ToLower(m[1])), "_")
	switch action {
	case "turn_it_up":
		action = "volume_up"
	case "turn_it_down":
		action = "volume_down"
	case "power_off", "shut_down", "shutdown":
		action = "shutdown"
	case "reboot":
		action = "restart"
	}
	return &intent.Interpretation{
		Intent: &intent.Intent{
			Type:       intent.TypeSystemControl,
			Params:     map[string]string{"action": action},
			Confidence: 0.9,
		},
	}
}

func (i *Interpreter) matchAppLaunch(text string) *intent.Interpretation {
	m := appLaunchRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	app := strings.TrimRight(strings.TrimSpace(m[1]), ".!?")
	if app == "" {
		return nil
	}
	return &intent.Interpretation{
		Intent: &intent.Intent{
			Type:       intent.TypeAppLaunch,
			Params:     map[string]string{"app": strings.ToLower(app)},
			Confidence: 0.8,
		},
	}
}

func (i *Interpreter) matchQuery(text string) *intent.Interpretation {
	if !queryRe.MatchString(text) {
		return nil
	}
	return &intent.Interpretation{
		Intent: &intent.Intent{
			Type:       intent.TypeQuery,
			Params:     map[string]string{"question": text},
			Confidence: 0.7,
		},
	}
}

// parseDuration extracts the first quantity+unit pair from text and returns
// the duration in seconds plus a human phrasing like "5 minutes".
func parseDuration(text string) (seconds int, spoken string, ok bool) {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	qty, err := strconv.Atoi(m[1])
	if err != nil {
		var known bool
		qty, known = wordNumbers[strings.ToLower(strings.Join(strings.Fields(m[1]), " "))]
		if !known {
			return 0, "", false
		}
	}

	unit := strings.ToLower(m[2])
	var mult int
	var unitName string
	switch {
	case strings.HasPrefix(unit, "h"):
		mult, unitName = 3600, "hour"
	case strings.HasPrefix(unit, "m"):
		mult, unitName = 60, "minute"
	default:
		mult, unitName = 1, "second"
	}
	if qty != 1 {
		unitName += "s"
	}
	return qty * mult, fmt.Sprintf("%d %s", qty, unitName), true
}

func cloneParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	return out
}

var _ intent.Interpreter = (*Interpreter)(nil)
