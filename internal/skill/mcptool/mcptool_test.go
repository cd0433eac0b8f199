package mcptool

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/earshot-ai/earshot/internal/intent"
	"github.com/earshot-ai/earshot/internal/skill"
)

type fakeSession struct {
	lastParams *mcpsdk.CallToolParams
	result     *mcpsdk.CallToolResult
	err        error
	closed     bool
}

func (f *fakeSession) CallTool(_ context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	f.lastParams = params
	return f.result, f.err
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func newTestExecutor(session toolCaller, toolName string, routes map[string]string) *Executor {
	return &Executor{
		routes:   routes,
		log:      slog.Default(),
		sessions: map[string]toolCaller{"test": session},
		tools:    map[string]string{toolName: "test"},
	}
}

func TestExecuteRoutesIntentToTool(t *testing.T) {
	t.Parallel()
	session := &fakeSession{result: &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "Sunny, 22 degrees."}},
	}}
	e := newTestExecutor(session, "get_weather", map[string]string{
		intent.TypeWeather: "get_weather",
	})

	res, err := e.Execute(context.Background(), &intent.Intent{
		Type:   intent.TypeWeather,
		Params: map[string]string{"location": "berlin"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Spoken != "Sunny, 22 degrees." {
		t.Errorf("result = %+v", res)
	}
	if session.lastParams.Name != "get_weather" {
		t.Errorf("tool name = %q", session.lastParams.Name)
	}
	args, ok := session.lastParams.Arguments.(map[string]any)
	if !ok || args["location"] != "berlin" {
		t.Errorf("arguments = %#v", session.lastParams.Arguments)
	}
}

func TestExecuteUnroutedIntentUnsupported(t *testing.T) {
	t.Parallel()
	e := newTestExecutor(&fakeSession{}, "get_weather", map[string]string{
		intent.TypeWeather: "get_weather",
	})

	_, err := e.Execute(context.Background(), &intent.Intent{Type: intent.TypeGreeting})
	if !errors.Is(err, skill.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestExecuteRouteToUndiscoveredToolUnsupported(t *testing.T) {
	t.Parallel()
	e := newTestExecutor(&fakeSession{}, "get_weather", map[string]string{
		intent.TypeTimer: "set_timer",
	})

	_, err := e.Execute(context.Background(), &intent.Intent{Type: intent.TypeTimer})
	if !errors.Is(err, skill.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestExecuteToolErrorBecomesSpokenFailure(t *testing.T) {
	t.Parallel()
	session := &fakeSession{result: &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "upstream unavailable"}},
	}}
	e := newTestExecutor(session, "get_weather", map[string]string{
		intent.TypeWeather: "get_weather",
	})

	res, err := e.Execute(context.Background(), &intent.Intent{Type: intent.TypeWeather})
	if err != nil {
		t.Fatalf("application error should be spoken, not returned: %v", err)
	}
	if res.Success || res.Spoken != "upstream unavailable" {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteTransportErrorWrapped(t *testing.T) {
	t.Parallel()
	session := &fakeSession{err: errors.New("pipe broken")}
	e := newTestExecutor(session, "get_weather", map[string]string{
		intent.TypeWeather: "get_weather",
	})

	_, err := e.Execute(context.Background(), &intent.Intent{Type: intent.TypeWeather})
	if !errors.Is(err, skill.ErrExecution) {
		t.Errorf("err = %v, want ErrExecution", err)
	}
}

func TestCloseShutsDownSessions(t *testing.T) {
	t.Parallel()
	session := &fakeSession{}
	e := newTestExecutor(session, "get_weather", nil)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if !session.closed {
		t.Error("session not closed")
	}
	if len(e.Tools()) != 0 {
		t.Error("tool registry not cleared")
	}
}
