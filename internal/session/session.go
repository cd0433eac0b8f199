// Package session drives the conversational state machine: on a wake
// event it opens a Session and sequences it through speech recognition,
// intent understanding, execution, and spoken response, handling stage
// deadlines, cancellation, and multi-turn slot filling.
//
// All state transitions are applied by a single driver goroutine
// ([Manager.Run]); collaborators deliver their results as messages, so a
// late result for a stage the session has already left is a no-op rather
// than a race.
package session

import (
	"time"

	"github.com/earshot-ai/earshot/internal/intent"
	"github.com/earshot-ai/earshot/internal/skill"
)

// State names a position in the session state machine.
type State string

const (
	StateIdle          State = "idle"
	StateListening     State = "listening"
	StateRecognizing   State = "recognizing"
	StateUnderstanding State = "understanding"
	StateExecuting     State = "executing"
	StateResponding    State = "responding"

	// Terminal states. A session in any of these is torn down and the
	// manager returns to idle.
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateTimedOut, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Turn records one transcript-to-response round within a session.
type Turn struct {
	// Partial is the most recent interim transcript.
	Partial string
	// Final is the authoritative transcript that closed the turn's
	// recognition stage.
	Final string
	// Intent is set once understanding produced a result for this turn,
	// complete or partial.
	Intent *intent.Intent
	// Result is set once execution finished.
	Result *skill.Result
	// Spoken is what was (or is being) said back: the execution
	// response, or the re-prompt question on a slot-filling turn.
	Spoken string
}

// Session is one conversational exchange. It is owned exclusively by the
// manager's driver goroutine; observers receive copies via
// [Manager.Snapshot] and [Manager.Last].
type Session struct {
	ID       string
	State    State
	OpenedAt time.Time
	Turns    []Turn

	// Reason explains TimedOut (the stage that expired) and Failed (the
	// stage error).
	Reason string
}

// clone returns a deep copy safe to hand to other goroutines.
func (s *Session) clone() Session {
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	for i, turn := range s.Turns {
		out.Turns[i] = turn
		if turn.Intent != nil {
			it := *turn.Intent
			out.Turns[i].Intent = &it
		}
		if turn.Result != nil {
			res := *turn.Result
			out.Turns[i].Result = &res
		}
	}
	return out
}
