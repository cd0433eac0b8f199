// Package wsserver streams the session event bus to WebSocket clients.
// Each client gets its own bus subscription, so a stalled browser tab sheds
// its own backlog without affecting the session driver or other clients.
package wsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/earshot-ai/earshot/pkg/event"
)

// Config tunes the event stream server.
type Config struct {
	// Bus is the event bus to stream from. Required.
	Bus *event.Bus

	// SubscriberCapacity is the per-client event buffer. Defaults to 64.
	SubscriberCapacity int

	// WriteTimeout bounds each message write; a client that cannot keep up
	// is disconnected. Defaults to 5s.
	WriteTimeout time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Server is an http.Handler that upgrades requests to WebSocket and streams
// JSON-encoded events until the client disconnects.
type Server struct {
	cfg    Config
	nextID atomic.Uint64
}

// New validates the config and returns a ready handler.
func New(cfg Config) (*Server, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("wsserver: Bus is required")
	}
	if cfg.SubscriberCapacity <= 0 {
		cfg.SubscriberCapacity = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg}, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.cfg.Logger.Debug("websocket accept failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	name := fmt.Sprintf("ws-%d", s.nextID.Add(1))
	sub := s.cfg.Bus.Subscribe(name, s.cfg.SubscriberCapacity)
	defer s.cfg.Bus.Unsubscribe(name)

	log := s.cfg.Logger.With("client", name, "remote", r.RemoteAddr)
	log.Info("event stream client connected")
	defer log.Info("event stream client disconnected")

	ctx := r.Context()
	// Drain (and discard) client messages so pings are answered and the
	// read side notices disconnects.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case ev, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "event stream closed")
				return
			}
			if err := s.writeEvent(ctx, conn, ev); err != nil {
				log.Debug("dropping client", "error", err)
				conn.Close(websocket.StatusPolicyViolation, "write timeout")
				return
			}
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
