package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/earshot-ai/earshot/internal/intent"
)

func fixedModel(output string) completeFunc {
	return func(context.Context, string, string) (string, error) {
		return output, nil
	}
}

func TestInterpretCompleteIntent(t *testing.T) {
	t.Parallel()
	i := newWithComplete(fixedModel(`{"type":"timer","params":{"duration_seconds":"300","duration_spoken":"5 minutes"},"confidence":0.93}`))

	out, err := i.Interpret(context.Background(), "set a timer for five minutes", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.NeedsSlot != nil {
		t.Fatalf("NeedsSlot = %v, want nil", out.NeedsSlot)
	}
	if out.Intent.Type != intent.TypeTimer {
		t.Errorf("type = %s, want timer", out.Intent.Type)
	}
	if got := out.Intent.Param("duration_seconds"); got != "300" {
		t.Errorf("duration_seconds = %q, want 300", got)
	}
}

func TestInterpretNeedsSlot(t *testing.T) {
	t.Parallel()
	i := newWithComplete(fixedModel(`{"type":"timer","params":{},"confidence":0.9,"needs_slot":"duration","prompt":"For how long?"}`))

	out, err := i.Interpret(context.Background(), "set a timer", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.NeedsSlot == nil || out.NeedsSlot.Slot != "duration" {
		t.Fatalf("NeedsSlot = %v, want duration", out.NeedsSlot)
	}
	if out.NeedsSlot.Prompt != "For how long?" {
		t.Errorf("prompt = %q", out.NeedsSlot.Prompt)
	}
}

func TestInterpretToleratesMarkdownFences(t *testing.T) {
	t.Parallel()
	i := newWithComplete(fixedModel("```json\n{\"type\":\"greeting\",\"confidence\":0.95}\n```"))

	out, err := i.Interpret(context.Background(), "hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Intent.Type != intent.TypeGreeting {
		t.Errorf("type = %s, want greeting", out.Intent.Type)
	}
}

func TestInterpretMalformedOutputDegradesToUnknown(t *testing.T) {
	t.Parallel()
	i := newWithComplete(fixedModel("I think the user wants a timer."))

	out, err := i.Interpret(context.Background(), "set a timer", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Intent.Type != intent.TypeUnknown {
		t.Errorf("type = %s, want unknown for malformed output", out.Intent.Type)
	}
}

func TestInterpretBackendError(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("model unreachable")
	i := newWithComplete(func(context.Context, string, string) (string, error) {
		return "", wantErr
	})
	if _, err := i.Interpret(context.Background(), "hello", nil); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped %v", err, wantErr)
	}
}

func TestPendingSlotShapesThePrompt(t *testing.T) {
	t.Parallel()
	var captured string
	i := newWithComplete(func(_ context.Context, _, user string) (string, error) {
		captured = user
		return `{"type":"timer","params":{"duration_seconds":"300"},"confidence":0.9}`, nil
	})

	pending := &intent.Pending{
		Intent: &intent.Intent{Type: intent.TypeTimer, Params: map[string]string{}},
		Slot:   "duration",
	}
	if _, err := i.Interpret(context.Background(), "5 minutes", pending); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"duration", "timer", "5 minutes"} {
		if !strings.Contains(captured, want) {
			t.Errorf("prompt %q missing %q", captured, want)
		}
	}
}
