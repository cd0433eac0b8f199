// Package skill defines the execution stage: given a complete intent, an
// Executor performs the action and returns what to speak back. Executors
// are chained so external tool servers can take precedence over the
// built-in skills.
package skill

import (
	"context"
	"errors"
	"fmt"

	"github.com/earshot-ai/earshot/internal/intent"
	"github.com/earshot-ai/earshot/pkg/memory"
)

// ErrExecution wraps stage-local execution failures. The owning session
// transitions to a failed terminal state; the process keeps running.
var ErrExecution = errors.New("skill: execution failed")

// ErrUnsupported signals that an executor has no handler for the intent
// type, letting a [Chain] fall through to the next executor.
var ErrUnsupported = errors.New("skill: intent not supported")

// Result is the outcome of executing one intent.
type Result struct {
	// Success is false for understood-but-failed actions; the spoken text
	// still describes the outcome to the user.
	Success bool

	// Spoken is the response to synthesise.
	Spoken string

	// Remember lists facts the skill explicitly marks persistent. The
	// session driver promotes them to the long-term store; nothing else
	// ever leaves the session.
	Remember []memory.Fact
}

// Executor performs a recognized intent. Execute honours ctx cancellation
// for long-running actions.
//
// Implementations must be safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, it *intent.Intent) (Result, error)
}

// Chain tries each executor in order, falling through on [ErrUnsupported].
type Chain []Executor

// Execute implements [Executor].
func (c Chain) Execute(ctx context.Context, it *intent.Intent) (Result, error) {
	for _, ex := range c {
		res, err := ex.Execute(ctx, it)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		return res, err
	}
	return Result{}, fmt.Errorf("%w: no executor for intent %q", ErrUnsupported, it.Type)
}

var _ Executor = (Chain)(nil)
