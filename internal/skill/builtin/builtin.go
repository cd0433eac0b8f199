// Package builtin implements the default [skill.Executor]: timers with
// completion notifications, application launching, system control, and
// conversational fallbacks for the remaining intent types.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/earshot-ai/earshot/internal/intent"
	"github.com/earshot-ai/earshot/internal/skill"
	"github.com/earshot-ai/earshot/pkg/memory"
)

// Config wires the executor's side effects. Every field has a working
// default; tests override them to observe behaviour.
type Config struct {
	// Notify delivers out-of-session announcements (a timer firing). The
	// app wires it to the event bus. Defaults to a log line.
	Notify func(message string)

	// Launch starts an application. Defaults to exec via the shell-less
	// CommandContext start.
	Launch func(ctx context.Context, app string) error

	// Control performs a system-control action (volume_up, mute, ...).
	// Defaults to a stub that acknowledges without acting, which keeps the
	// pipeline honest on machines without a mixer interface.
	Control func(ctx context.Context, action string) error

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Executor dispatches on intent type. Safe for concurrent use.
type Executor struct {
	cfg Config

	mu     sync.Mutex
	timers map[string]*time.Timer
	nextID int
}

// New creates the built-in executor with defaults applied.
func New(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notify == nil {
		log := cfg.Logger
		cfg.Notify = func(message string) { log.Info("notification", "message", message) }
	}
	if cfg.Launch == nil {
		cfg.Launch = func(ctx context.Context, app string) error {
			return exec.CommandContext(ctx, app).Start()
		}
	}
	if cfg.Control == nil {
		log := cfg.Logger
		cfg.Control = func(_ context.Context, action string) error {
			log.Info("system control requested", "action", action)
			return nil
		}
	}
	return &Executor{cfg: cfg, timers: make(map[string]*time.Timer)}
}

// Execute implements [skill.Executor].
func (e *Executor) Execute(ctx context.Context, it *intent.Intent) (skill.Result, error) {
	switch it.Type {
	case intent.TypeTimer:
		return e.execTimer(it)
	case intent.TypeGreeting:
		return skill.Result{Success: true, Spoken: "Hello! How can I help?"}, nil
	case intent.TypeWeather:
		return e.execWeather(it)
	case intent.TypeAppLaunch:
		return e.execAppLaunch(ctx, it)
	case intent.TypeSystemControl:
		return e.execSystemControl(ctx, it)
	case intent.TypeQuery:
		return e.execQuery(it)
	case intent.TypeUnknown:
		return skill.Result{Success: false, Spoken: "Sorry, I didn't catch that."}, nil
	default:
		return skill.Result{}, skill.ErrUnsupported
	}
}

func (e *Executor) execTimer(it *intent.Intent) (skill.Result, error) {
	seconds, err := strconv.Atoi(it.Param("duration_seconds"))
	if err != nil || seconds <= 0 {
		return skill.Result{}, fmt.Errorf("%w: timer duration %q", skill.ErrExecution, it.Param("duration_seconds"))
	}
	spoken := it.Param("duration_spoken")
	if spoken == "" {
		spoken = fmt.Sprintf("%d seconds", seconds)
	}
	label := it.Param("label")

	e.mu.Lock()
	e.nextID++
	id := strconv.Itoa(e.nextID)
	notify := e.cfg.Notify
	e.timers[id] = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		e.mu.Lock()
		delete(e.timers, id)
		e.mu.Unlock()
		if label != "" {
			notify(fmt.Sprintf("Your %s timer is done.", label))
			return
		}
		notify(fmt.Sprintf("Your %s timer is done.", spoken))
	})
	e.mu.Unlock()

	response := fmt.Sprintf("Timer set for %s.", spoken)
	if label != "" {
		response = fmt.Sprintf("%s timer set for %s.", capitalize(label), spoken)
	}
	return skill.Result{
		Success: true,
		Spoken:  response,
		Remember: []memory.Fact{
			{Key: "last_timer", Value: spoken},
		},
	}, nil
}

func (e *Executor) execWeather(it *intent.Intent) (skill.Result, error) {
	location := it.Param("location")
	return skill.Result{
		Success: true,
		Spoken:  fmt.Sprintf("I don't have a live weather source yet, but I noted you asked about %s.", location),
		Remember: []memory.Fact{
			{Key: "last_location", Value: location},
		},
	}, nil
}

func (e *Executor) execAppLaunch(ctx context.Context, it *intent.Intent) (skill.Result, error) {
	app := it.Param("app")
	if app == "" {
		return skill.Result{}, fmt.Errorf("%w: app launch without app name", skill.ErrExecution)
	}
	if err := e.cfg.Launch(ctx, app); err != nil {
		return skill.Result{
			Success: false,
			Spoken:  fmt.Sprintf("I couldn't start %s.", app),
		}, nil
	}
	return skill.Result{Success: true, Spoken: fmt.Sprintf("Opening %s.", app)}, nil
}

func (e *Executor) execSystemControl(ctx context.Context, it *intent.Intent) (skill.Result, error) {
	action := it.Param("action")
	if err := e.cfg.Control(ctx, action); err != nil {
		return skill.Result{}, fmt.Errorf("%w: %s: %v", skill.ErrExecution, action, err)
	}
	spoken := map[string]string{
		"volume_up":   "Turning the volume up.",
		"volume_down": "Turning the volume down.",
		"mute":        "Muted.",
		"unmute":      "Unmuted.",
		"sleep":       "Going to sleep.",
		"shutdown":    "Shutting down.",
		"restart":     "Restarting.",
	}[action]
	if spoken == "" {
		spoken = "Done."
	}
	return skill.Result{Success: true, Spoken: spoken}, nil
}

func (e *Executor) execQuery(it *intent.Intent) (skill.Result, error) {
	question := it.Param("question")
	if isTimeQuestion(question) {
		return skill.Result{
			Success: true,
			Spoken:  fmt.Sprintf("It's %s.", time.Now().Format("3:04 PM")),
		}, nil
	}
	return skill.Result{
		Success: false,
		Spoken:  "I can't answer that yet.",
	}, nil
}

// PendingTimers reports how many timers are still scheduled.
func (e *Executor) PendingTimers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// Close cancels all scheduled timers.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, timer := range e.timers {
		timer.Stop()
		delete(e.timers, id)
	}
	return nil
}

func isTimeQuestion(q string) bool {
	lower := strings.ToLower(q)
	return strings.Contains(lower, "time is it") || strings.Contains(lower, "the time")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if 'a' <= s[0] && s[0] <= 'z' {
		return string(s[0]-('a'-'A')) + s[1:]
	}
	return s
}

var _ skill.Executor = (*Executor)(nil)
