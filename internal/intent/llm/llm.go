// Package llm implements an [intent.Interpreter] backed by a chat model via
// github.com/mozilla-ai/any-llm-go. The model is prompted to emit a single
// JSON object describing the interpretation; malformed output degrades to
// the unknown intent rather than failing the session.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/earshot-ai/earshot/internal/intent"
)

const systemPrompt = `You are the intent parser of a voice assistant.
Given the user's utterance, respond with ONLY a JSON object, no prose:
{"type":"timer|greeting|weather|app_launch|system_control|query|unknown",
 "params":{...},"confidence":0.0-1.0,
 "needs_slot":"", "prompt":""}
Set "needs_slot" to the missing required slot name (e.g. "duration") and
"prompt" to a short question to ask the user, or leave both empty when the
intent is complete. For timers put "duration_seconds" and a human
"duration_spoken" (like "5 minutes") into params.`

// completeFunc runs one chat completion. Indirection over the any-llm
// backend keeps the parsing logic testable without a live model.
type completeFunc func(ctx context.Context, system, user string) (string, error)

// Option configures an [Interpreter].
type Option func(*Interpreter)

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(i *Interpreter) { i.log = log }
}

// Interpreter prompts a chat model for interpretations.
type Interpreter struct {
	complete completeFunc
	log      *slog.Logger
}

// New creates an interpreter for the given any-llm provider name
// ("openai", "anthropic", or "ollama") and model. llmOpts are any-llm options
// such as anyllmlib.WithAPIKey or anyllmlib.WithBaseURL.
func New(providerName, model string, llmOpts []anyllmlib.Option, opts ...Option) (*Interpreter, error) {
	if model == "" {
		return nil, fmt.Errorf("llm: model must not be empty")
	}
	var backend anyllmlib.Provider
	var err error
	switch strings.ToLower(providerName) {
	case "openai":
		backend, err = anyllmoai.New(llmOpts...)
	case "anthropic":
		backend, err = anthropic.New(llmOpts...)
	case "ollama":
		backend, err = ollama.New(llmOpts...)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q; supported: openai, anthropic, ollama", providerName)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: create %q backend: %w", providerName, err)
	}

	i := &Interpreter{
		complete: func(ctx context.Context, system, user string) (string, error) {
			resp, err := backend.Completion(ctx, anyllmlib.CompletionParams{
				Model: model,
				Messages: []anyllmlib.Message{
					{Role: anyllmlib.RoleSystem, Content: system},
					{Role: anyllmlib.RoleUser, Content: user},
				},
			})
			if err != nil {
				return "", err
			}
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("empty choices in response")
			}
			return resp.Choices[0].Message.ContentString(), nil
		},
		log: slog.Default(),
	}
	for _, o := range opts {
		o(i)
	}
	return i, nil
}

// newWithComplete is the test seam.
func newWithComplete(complete completeFunc, opts ...Option) *Interpreter {
	i := &Interpreter{complete: complete, log: slog.Default()}
	for _, o := range opts {
		o(i)
	}
	return i
}

// modelOutput is the JSON shape the model is prompted to produce.
type modelOutput struct {
	Type       string            `json:"type"`
	Params     map[string]string `json:"params"`
	Confidence float64           `json:"confidence"`
	NeedsSlot  string            `json:"needs_slot"`
	Prompt     string            `json:"prompt"`
}

// Interpret implements [intent.Interpreter].
func (i *Interpreter) Interpret(ctx context.Context, transcript string, pending *intent.Pending) (intent.Interpretation, error) {
	user := transcript
	if pending != nil {
		user = fmt.Sprintf(
			"The assistant is waiting for the %q slot of a %q intent with params %v. The user answered: %q",
			pending.Slot, pending.Intent.Type, pending.Intent.Params, transcript,
		)
	}

	raw, err := i.complete(ctx, systemPrompt, user)
	if err != nil {
		return intent.Interpretation{}, fmt.Errorf("llm: interpret: %w", err)
	}

	out, ok := parseOutput(raw)
	if !ok {
		i.log.Warn("model produced unparseable interpretation", "output_len", len(raw))
		return intent.Interpretation{
			Intent: &intent.Intent{Type: intent.TypeUnknown, Confidence: 0},
		}, nil
	}

	it := &intent.Intent{
		Type:       out.Type,
		Params:     out.Params,
		Confidence: out.Confidence,
	}
	if it.Type == "" {
		it.Type = intent.TypeUnknown
	}
	if out.NeedsSlot != "" {
		prompt := out.Prompt
		if prompt == "" {
			prompt = fmt.Sprintf("What is the %s?", out.NeedsSlot)
		}
		return intent.Interpretation{
			Intent:    it,
			NeedsSlot: &intent.SlotRequest{Slot: out.NeedsSlot, Prompt: prompt},
		}, nil
	}
	return intent.Interpretation{Intent: it}, nil
}

// parseOutput extracts the first JSON object from the model output,
// tolerating markdown fences and surrounding prose.
func parseOutput(raw string) (modelOutput, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return modelOutput{}, false
	}
	var out modelOutput
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return modelOutput{}, false
	}
	return out, true
}

var _ intent.Interpreter = (*Interpreter)(nil)
