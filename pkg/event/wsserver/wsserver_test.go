package wsserver

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/earshot-ai/earshot/pkg/event"
)

func newTestServer(t *testing.T) (*event.Bus, *httptest.Server) {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	srv, err := New(Config{Bus: bus})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return bus, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func TestNewRequiresBus(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Error("New accepted a nil bus")
	}
}

func TestClientReceivesPublishedEvents(t *testing.T) {
	t.Parallel()
	bus, ts := newTestServer(t)
	conn := dial(t, ts)

	// The subscription is registered during the upgrade; give the handler a
	// beat before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := event.Event{
		Type:      event.FinalTranscript,
		SessionID: "s-1",
		Text:      "set a timer for five minutes",
	}
	bus.Publish(want)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	kind, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if kind != websocket.MessageText {
		t.Errorf("message type = %v, want text", kind)
	}

	var got event.Event
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Type != want.Type || got.SessionID != want.SessionID || got.Text != want.Text {
		t.Errorf("event = %+v, want %+v", got, want)
	}
}

func TestBusCloseDisconnectsClient(t *testing.T) {
	t.Parallel()
	bus, ts := newTestServer(t)
	conn := dial(t, ts)

	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("Read succeeded after bus close, want close error")
	}
}
