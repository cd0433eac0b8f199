// Package app assembles and runs the Earshot pipeline: continuous capture
// pumped into the frame bus, wake detection gating the session manager,
// and the HTTP surface (event stream, health, metrics) on top.
//
// [New] wires components from a [config.Config] plus the caller-supplied
// [Providers]; [App.Run] blocks until the context is cancelled or a
// component fails; [App.Shutdown] releases everything in reverse
// construction order.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/earshot-ai/earshot/internal/config"
	"github.com/earshot-ai/earshot/internal/health"
	"github.com/earshot-ai/earshot/internal/intent"
	"github.com/earshot-ai/earshot/internal/observe"
	"github.com/earshot-ai/earshot/internal/session"
	"github.com/earshot-ai/earshot/internal/skill"
	"github.com/earshot-ai/earshot/internal/skill/builtin"
	"github.com/earshot-ai/earshot/internal/skill/mcptool"
	"github.com/earshot-ai/earshot/internal/wake"
	"github.com/earshot-ai/earshot/pkg/audio"
	"github.com/earshot-ai/earshot/pkg/event"
	"github.com/earshot-ai/earshot/pkg/event/wsserver"
	"github.com/earshot-ai/earshot/pkg/memory"
	pgmemory "github.com/earshot-ai/earshot/pkg/memory/postgres"
	"github.com/earshot-ai/earshot/pkg/provider/asr"
	"github.com/earshot-ai/earshot/pkg/provider/tts"
	"github.com/earshot-ai/earshot/pkg/provider/wakeword"
)

// httpShutdownTimeout bounds the graceful drain of in-flight HTTP
// requests once the run context is cancelled.
const httpShutdownTimeout = 5 * time.Second

// Providers holds the externally constructed providers the app cannot
// build itself (they need model files, binaries, or devices resolved by
// the caller). Source, ASR, TTS, and Interpreter are required.
type Providers struct {
	Source      audio.Source
	ASR         asr.Provider
	TTS         tts.Provider
	Interpreter intent.Interpreter

	// Spotter backs the keyword wake strategy. Required only when
	// the configured wake strategy is "keyword".
	Spotter wakeword.Spotter
}

// Option customises an [App] at construction time, mainly so tests can
// substitute in-memory doubles for the heavier defaults.
type Option func(*App)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMemoryStore overrides the fact store selection (Postgres when a DSN
// is configured, in-memory otherwise).
func WithMemoryStore(store memory.Store) Option {
	return func(a *App) { a.store = store }
}

// WithExecutor overrides the skill executor chain.
func WithExecutor(ex skill.Executor) Option {
	return func(a *App) { a.executor = ex }
}

// WithDetector overrides the wake detector selected by configuration.
func WithDetector(d wake.Detector) Option {
	return func(a *App) { a.detector = d }
}

// App is the assembled pipeline. Create with [New].
type App struct {
	cfg       *config.Config
	providers Providers
	log       *slog.Logger
	metrics   *observe.Metrics

	frames *audio.FrameBus
	events *event.Bus

	store    memory.Store
	executor skill.Executor
	detector wake.Detector
	manager  *session.Manager

	wakeSub *audio.Subscription
	asrSub  *audio.Subscription

	closers  []func() error
	stopOnce sync.Once
	stopErr  error
}

// New wires the pipeline. The configuration must already be validated;
// New trusts its values. The context bounds construction-time work such
// as the Postgres pool ping and MCP server handshakes.
func New(ctx context.Context, cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	switch {
	case providers.Source == nil:
		return nil, errors.New("app: Providers.Source is required")
	case providers.ASR == nil:
		return nil, errors.New("app: Providers.ASR is required")
	case providers.TTS == nil:
		return nil, errors.New("app: Providers.TTS is required")
	case providers.Interpreter == nil:
		return nil, errors.New("app: Providers.Interpreter is required")
	}

	a := &App{cfg: cfg, providers: providers, log: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.events = event.NewBus()
	a.frames = audio.NewFrameBus(audio.WithDropHook(func(subscriber string) {
		a.metrics.RecordFrameDrop(context.Background(), subscriber)
	}))

	if err := a.initMemory(ctx); err != nil {
		return nil, err
	}
	if err := a.initExecutor(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initDetector(); err != nil {
		a.closeAll()
		return nil, err
	}

	// The wake subscription doubles as the session gate: pausing it while
	// a session is active is what enforces at most one session at a time.
	a.wakeSub = a.frames.Subscribe("wake", 64)
	a.asrSub = a.frames.Subscribe("asr", 256)

	mgr, err := session.NewManager(session.Config{
		ASR:         providers.ASR,
		Interpreter: providers.Interpreter,
		Executor:    a.executor,
		TTS:         providers.TTS,
		Events:      a.events,
		Memory:      a.store,
		Frames:      a.asrSub,
		Gate:        a.wakeSub,
		Metrics:     a.metrics,
		Stream: asr.StreamConfig{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   1,
			Language:   cfg.Providers.ASR.Language,
		},
		Timeouts: session.Timeouts{
			Listen:     msDuration(cfg.Session.ListenTimeoutMs),
			Recognize:  msDuration(cfg.Session.RecognizeTimeoutMs),
			Understand: msDuration(cfg.Session.UnderstandTimeoutMs),
			Execute:    msDuration(cfg.Session.ExecuteTimeoutMs),
			Respond:    msDuration(cfg.Session.RespondTimeoutMs),
		},
		MaxTurns: cfg.Session.MaxTurns,
		Logger:   a.log,
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: session manager: %w", err)
	}
	a.manager = mgr

	return a, nil
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (a *App) initMemory(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if dsn := a.cfg.Memory.PostgresDSN; dsn != "" {
		store, err := pgmemory.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("app: fact store: %w", err)
		}
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		a.store = store
		return nil
	}
	a.log.Warn("no postgres_dsn configured; remembered facts will not survive restarts")
	a.store = memory.NewMemStore()
	return nil
}

func (a *App) initExecutor(ctx context.Context) error {
	if a.executor != nil {
		return nil
	}

	b := builtin.New(builtin.Config{
		Notify: func(message string) {
			a.events.Publish(event.Event{Type: event.Notification, Text: message})
		},
		Logger: a.log,
	})
	a.closers = append(a.closers, func() error {
		b.Close()
		return nil
	})

	var chain skill.Chain
	if len(a.cfg.MCP.Servers) > 0 {
		servers := make([]mcptool.ServerConfig, 0, len(a.cfg.MCP.Servers))
		for _, s := range a.cfg.MCP.Servers {
			servers = append(servers, mcptool.ServerConfig{
				Name:      s.Name,
				Transport: mcptool.TransportKind(s.Transport),
				Command:   s.Command,
				Env:       s.Env,
				URL:       s.URL,
			})
		}
		mcpExec, err := mcptool.New(ctx, mcptool.Config{
			Servers: servers,
			Routes:  a.cfg.MCP.Routes,
			Logger:  a.log,
		})
		if err != nil {
			return fmt.Errorf("app: mcp executor: %w", err)
		}
		a.closers = append(a.closers, mcpExec.Close)
		chain = append(chain, mcpExec)
	}
	chain = append(chain, b)
	a.executor = chain
	return nil
}

func (a *App) initDetector() error {
	if a.detector != nil {
		return nil
	}
	switch a.cfg.Wake.Strategy {
	case config.WakeEnergy:
		a.detector = wake.NewEnergy(wake.EnergyConfig{
			Threshold:       a.cfg.Wake.EnergyThreshold,
			TriggerDuration: msDuration(a.cfg.Wake.TriggerDurationMs),
		})
		return nil
	case config.WakeKeyword:
		if a.providers.Spotter == nil {
			return errors.New("app: keyword wake strategy requires Providers.Spotter")
		}
		d, err := wake.NewKeyword(a.providers.Spotter, wake.KeywordConfig{
			ConfidenceThreshold: a.cfg.Wake.ConfidenceThreshold,
		})
		if err != nil {
			return fmt.Errorf("app: wake detector: %w", err)
		}
		a.detector = d
		return nil
	default:
		return fmt.Errorf("app: unknown wake strategy %q", a.cfg.Wake.Strategy)
	}
}

// Events returns the event bus, e.g. for additional subscribers.
func (a *App) Events() *event.Bus { return a.events }

// Sessions returns the session manager for snapshots and cancellation.
func (a *App) Sessions() *session.Manager { return a.manager }

// Run starts capture and all pipeline goroutines, blocking until ctx is
// cancelled or a component fails. Call [App.Shutdown] afterwards to
// release resources.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if err := a.providers.Source.Start(ctx); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}

	// Capture pump: the single publisher the frame bus expects.
	g.Go(func() error {
		for frame := range a.providers.Source.Frames() {
			a.frames.Publish(frame)
		}
		if err := a.providers.Source.Err(); err != nil {
			return fmt.Errorf("app: capture stream: %w", err)
		}
		return nil
	})

	rawWakes := make(chan wake.WakeEvent, 8)
	g.Go(func() error {
		wake.Run(ctx, a.wakeSub, a.detector, rawWakes, a.log)
		close(rawWakes)
		return nil
	})

	// Count wake triggers on the way to the session manager.
	wakes := make(chan wake.WakeEvent, 8)
	g.Go(func() error {
		defer close(wakes)
		for ev := range rawWakes {
			a.metrics.RecordWake(ctx, string(ev.Strategy))
			select {
			case wakes <- ev:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	g.Go(func() error {
		err := a.manager.Run(ctx, wakes)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: session manager: %w", err)
		}
		return nil
	})

	metricsSub := a.events.Subscribe("metrics", 128)
	g.Go(func() error {
		defer a.events.Unsubscribe("metrics")
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-metricsSub.C:
				if !ok {
					return nil
				}
				a.recordEvent(ctx, ev)
			}
		}
	})

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		handler, err := a.handler()
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info("http server listening", "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	a.log.Info("earshot pipeline running",
		"wake_strategy", string(a.cfg.Wake.Strategy),
		"sample_rate", a.cfg.Audio.SampleRate,
	)
	return g.Wait()
}

// recordEvent feeds the event counter plus the sessions-by-terminal-state
// counter. A completed session finishes with exactly one TtsFinished
// (re-prompt turns do not emit it), so that event stands in for a
// "session completed" signal. Cancelled sessions emit nothing and are
// intentionally uncounted.
func (a *App) recordEvent(ctx context.Context, ev event.Event) {
	a.metrics.RecordEvent(ctx, string(ev.Type))
	switch ev.Type {
	case event.SessionTimedOut:
		a.metrics.RecordSession(ctx, "timed_out")
	case event.SessionFailed:
		a.metrics.RecordSession(ctx, "failed")
	case event.TtsFinished:
		a.metrics.RecordSession(ctx, "completed")
	}
}

func (a *App) handler() (http.Handler, error) {
	ws, err := wsserver.New(wsserver.Config{Bus: a.events, Logger: a.log})
	if err != nil {
		return nil, fmt.Errorf("app: event stream server: %w", err)
	}

	mux := http.NewServeMux()
	health.New(a.checkers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// The WebSocket upgrade needs the raw ResponseWriter (http.Hijacker),
	// so the event stream mounts outside the latency middleware.
	root := http.NewServeMux()
	root.Handle("GET /events", ws)
	root.Handle("/", observe.Middleware(a.metrics)(mux))
	return root, nil
}

func (a *App) checkers() []health.Checker {
	return []health.Checker{
		{Name: "audio", Check: func(context.Context) error {
			return a.providers.Source.Err()
		}},
		{Name: "memory", Check: func(ctx context.Context) error {
			_, err := a.store.List(ctx)
			return err
		}},
	}
}

// Shutdown stops capture, closes both buses, and runs the component
// closers in reverse construction order. Safe to call more than once;
// subsequent calls return the first result. The context bounds how long
// the closer sequence may take.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		var errs []error
		if err := a.providers.Source.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop capture: %w", err))
		}
		a.frames.Close()
		a.events.Close()
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				errs = append(errs, fmt.Errorf("shutdown interrupted: %w", err))
				break
			}
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		a.stopErr = errors.Join(errs...)
	})
	return a.stopErr
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
