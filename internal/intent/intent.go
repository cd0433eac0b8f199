// Package intent defines the interpretation contract between the session
// manager and the NLU stage: given a final transcript, an Interpreter
// returns either a complete intent ready for execution or a request for the
// slot that is still missing, driving the multi-turn re-prompt loop.
package intent

import "context"

// Well-known intent types produced by the built-in interpreters.
const (
	TypeTimer         = "timer"
	TypeGreeting      = "greeting"
	TypeWeather       = "weather"
	TypeAppLaunch     = "app_launch"
	TypeSystemControl = "system_control"
	TypeQuery         = "query"
	TypeUnknown       = "unknown"
)

// Intent is a recognized user request.
type Intent struct {
	Type       string
	Params     map[string]string
	Confidence float64
}

// Param returns a parameter value, or "" when absent.
func (i *Intent) Param(key string) string {
	if i == nil || i.Params == nil {
		return ""
	}
	return i.Params[key]
}

// SlotRequest names a required slot the transcript did not provide, with the
// question to speak when re-prompting.
type SlotRequest struct {
	Slot   string
	Prompt string
}

// Interpretation is the outcome of interpreting one transcript. When
// NeedsSlot is non-nil the intent is incomplete: Intent carries the partial
// parameters recognized so far and the session re-prompts for the missing
// slot. When NeedsSlot is nil, Intent is complete and ready to execute.
type Interpretation struct {
	Intent    *Intent
	NeedsSlot *SlotRequest
}

// Pending describes the slot the session is currently waiting on. It is
// passed back to the Interpreter on the follow-up turn so a bare utterance
// like "5 minutes" is parsed as the slot value rather than a fresh command.
type Pending struct {
	Intent *Intent
	Slot   string
}

// Interpreter turns a final transcript into an [Interpretation].
//
// Implementations must be safe for concurrent use; the session manager calls
// Interpret from its single driver goroutine, but tests may not.
type Interpreter interface {
	Interpret(ctx context.Context, transcript string, pending *Pending) (Interpretation, error)
}
