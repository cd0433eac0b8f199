package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/earshot-ai/earshot/internal/intent"
	"github.com/earshot-ai/earshot/internal/observe"
	"github.com/earshot-ai/earshot/internal/skill"
	"github.com/earshot-ai/earshot/internal/wake"
	"github.com/earshot-ai/earshot/pkg/audio"
	"github.com/earshot-ai/earshot/pkg/event"
	"github.com/earshot-ai/earshot/pkg/memory"
	"github.com/earshot-ai/earshot/pkg/provider/asr"
	"github.com/earshot-ai/earshot/pkg/provider/tts"
)

// Timeouts holds the per-stage deadlines. A session that does not
// receive the expected collaborator result within the stage's deadline
// transitions to [StateTimedOut].
type Timeouts struct {
	// Listen bounds the wait for the first interim transcript.
	Listen time.Duration
	// Recognize bounds the wait for the final transcript once speech has
	// been observed.
	Recognize time.Duration
	// Understand bounds the interpreter call.
	Understand time.Duration
	// Execute bounds the executor call.
	Execute time.Duration
	// Respond bounds speech synthesis and playback.
	Respond time.Duration
}

func (t *Timeouts) applyDefaults() {
	if t.Listen <= 0 {
		t.Listen = 10 * time.Second
	}
	if t.Recognize <= 0 {
		t.Recognize = 15 * time.Second
	}
	if t.Understand <= 0 {
		t.Understand = 10 * time.Second
	}
	if t.Execute <= 0 {
		t.Execute = 30 * time.Second
	}
	if t.Respond <= 0 {
		t.Respond = 30 * time.Second
	}
}

// Gate pauses a competing audio consumer while a session is active. The
// wake detector's frame subscription satisfies it: pausing the
// subscription disables wake detection until the session reaches a
// terminal state, which is what keeps "at most one active session" true.
type Gate interface {
	Pause()
	Resume()
}

// Config wires the manager's collaborators. ASR, Interpreter, Executor,
// TTS, and Events are required.
type Config struct {
	ASR         asr.Provider
	Interpreter intent.Interpreter
	Executor    skill.Executor
	TTS         tts.Provider
	Events      *event.Bus

	// Memory, when set, receives the facts skills mark for persistence.
	Memory memory.Store

	// Frames, when set, is pumped into the active ASR stream while the
	// session is listening. The manager keeps it paused while idle so a
	// session never opens on buffered pre-wake audio. Tests with a
	// scripted ASR leave it nil.
	Frames *audio.Subscription

	// Metrics, when set, receives stage latencies and the active-session
	// gauge.
	Metrics *observe.Metrics

	// Gate, when set, is paused for the lifetime of each session.
	Gate Gate

	// Stream configures each ASR stream.
	Stream asr.StreamConfig

	Timeouts Timeouts

	// MaxTurns caps slot-filling rounds per session. Default 5.
	MaxTurns int

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Manager owns the session state machine. Create with [NewManager], then
// run [Manager.Run] on its own goroutine.
type Manager struct {
	cfg Config
	log *slog.Logger

	msgs    chan message
	cancels chan chan struct{}
	done    chan struct{}

	mu   sync.Mutex
	cur  *Session
	last *Session
}

// NewManager validates the configuration and returns a manager ready to
// run.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.ASR == nil:
		return nil, errors.New("session: Config.ASR is required")
	case cfg.Interpreter == nil:
		return nil, errors.New("session: Config.Interpreter is required")
	case cfg.Executor == nil:
		return nil, errors.New("session: Config.Executor is required")
	case cfg.TTS == nil:
		return nil, errors.New("session: Config.TTS is required")
	case cfg.Events == nil:
		return nil, errors.New("session: Config.Events is required")
	}
	cfg.Timeouts.applyDefaults()
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	// Frames flow only while a session is listening; otherwise the
	// subscription would buffer seconds of stale audio between wakes.
	if cfg.Frames != nil {
		cfg.Frames.Pause()
	}
	return &Manager{
		cfg:     cfg,
		log:     cfg.Logger,
		msgs:    make(chan message, 64),
		cancels: make(chan chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

type msgKind int

const (
	msgPartial msgKind = iota
	msgFinal
	msgStreamErr
	msgInterp
	msgExec
	msgSpoken
	msgDeadline
)

// message is a collaborator result tagged with the epoch it belongs to.
// The driver drops messages whose epoch no longer matches the active
// session's, which is how "first mutation wins" is enforced.
type message struct {
	epoch uint64
	kind  msgKind

	transcript asr.Transcript
	interp     intent.Interpretation
	result     skill.Result
	err        error
	stage      State
}

// active is the driver's private handle on the in-flight session.
type active struct {
	session *Session
	dialog  *DialogueContext

	// epoch invalidates stale collaborator messages. It advances on
	// every transition that replaces the pending collaborator.
	epoch uint64

	stageCancel context.CancelFunc
	timer       *time.Timer
	handle      asr.SessionHandle

	// stageStart marks entry into the current stage, for the latency
	// histogram.
	stageStart time.Time

	pendingIntent *intent.Intent
	pendingSlot   string
}

// Run is the driver loop. It consumes wake events, advances the state
// machine, and returns when ctx is cancelled. Run must be called exactly
// once.
func (m *Manager) Run(ctx context.Context, wakes <-chan wake.WakeEvent) error {
	defer close(m.done)

	var a *active
	for {
		select {
		case <-ctx.Done():
			if a != nil {
				m.teardown(a, StateCancelled, "")
			}
			return ctx.Err()
		case ev, ok := <-wakes:
			if !ok {
				wakes = nil
				continue
			}
			a = m.handleWake(ctx, a, ev)
		case msg := <-m.msgs:
			a = m.handleMessage(ctx, a, msg)
		case ack := <-m.cancels:
			if a != nil {
				m.teardown(a, StateCancelled, "")
				a = nil
			}
			close(ack)
		}
	}
}

// Cancel aborts the active session, if any, releasing its resources
// before returning. Safe to call from any goroutine.
func (m *Manager) Cancel() {
	ack := make(chan struct{})
	select {
	case m.cancels <- ack:
		<-ack
	case <-m.done:
	}
}

// Snapshot returns a copy of the active session. ok is false when the
// manager is idle.
func (m *Manager) Snapshot() (s Session, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Session{}, false
	}
	return m.cur.clone(), true
}

// Last returns a copy of the most recently terminated session.
func (m *Manager) Last() (s Session, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Session{}, false
	}
	return m.last.clone(), true
}

func (m *Manager) handleWake(ctx context.Context, a *active, ev wake.WakeEvent) *active {
	if a != nil {
		// At most one active session: later wake events are dropped, not
		// queued.
		m.log.Debug("wake event ignored, session active", "session", a.session.ID)
		return a
	}

	s := &Session{ID: uuid.NewString(), State: StateListening, OpenedAt: time.Now()}
	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()

	if m.cfg.Gate != nil {
		m.cfg.Gate.Pause()
	}
	if m.cfg.Frames != nil {
		// Anything buffered belongs to a previous session's tail.
		m.cfg.Frames.Drain()
		m.cfg.Frames.Resume()
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordActiveSessions(ctx, 1)
	}
	a = &active{session: s, dialog: NewDialogueContext()}
	m.log.Info("session opened", "session", s.ID, "strategy", ev.Strategy, "confidence", ev.Confidence)
	m.emit(event.Event{
		Type:      event.WakeDetected,
		SessionID: s.ID,
		Wake: &event.WakeInfo{
			Strategy:    string(ev.Strategy),
			Confidence:  ev.Confidence,
			SustainedMs: ev.SustainedMs,
			PhraseID:    ev.PhraseID,
		},
	})
	return m.startTurn(ctx, a)
}

// startTurn opens an ASR stream for a new turn and moves the session to
// Listening. On stream failure the session fails and nil is returned.
func (m *Manager) startTurn(ctx context.Context, a *active) *active {
	a.epoch++
	epoch := a.epoch

	m.mu.Lock()
	a.session.State = StateListening
	a.session.Turns = append(a.session.Turns, Turn{})
	m.mu.Unlock()
	a.stageStart = time.Now()

	stageCtx, cancel := context.WithCancel(ctx)
	a.stageCancel = cancel

	handle, err := m.cfg.ASR.StartStream(stageCtx, m.cfg.Stream)
	if err != nil {
		m.teardown(a, StateFailed, fmt.Sprintf("recognition: %v", err))
		return nil
	}
	a.handle = handle

	if m.cfg.Frames != nil {
		go pumpAudio(stageCtx, m.cfg.Frames, handle)
	}
	go m.forwardTranscripts(epoch, handle)

	m.armDeadline(a, StateListening, m.cfg.Timeouts.Listen)
	return a
}

// pumpAudio feeds captured frames into the ASR stream until the stage
// ends or the subscription closes.
func pumpAudio(ctx context.Context, sub *audio.Subscription, handle asr.SessionHandle) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.C:
			if !ok {
				return
			}
			if err := handle.SendAudio(frame.Data); err != nil {
				return
			}
		}
	}
}

// forwardTranscripts turns the handle's channel output into driver
// messages. It exits when both channels close, then surfaces the
// stream's terminal error if any.
func (m *Manager) forwardTranscripts(epoch uint64, handle asr.SessionHandle) {
	partials, finals := handle.Partials(), handle.Finals()
	for partials != nil || finals != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			m.msgs <- message{epoch: epoch, kind: msgPartial, transcript: t}
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			m.msgs <- message{epoch: epoch, kind: msgFinal, transcript: t}
		}
	}
	if err := handle.Err(); err != nil {
		m.msgs <- message{epoch: epoch, kind: msgStreamErr, err: err}
	}
}

func (m *Manager) handleMessage(ctx context.Context, a *active, msg message) *active {
	if a == nil || msg.epoch != a.epoch {
		// A collaborator finished for a stage the session already left.
		return a
	}

	switch msg.kind {
	case msgPartial:
		return m.onPartial(a, msg.transcript)
	case msgFinal:
		return m.onFinal(ctx, a, msg.transcript)
	case msgStreamErr:
		m.teardown(a, StateFailed, fmt.Sprintf("recognition: %v", msg.err))
		return nil
	case msgInterp:
		return m.onInterpretation(ctx, a, msg.interp, msg.err)
	case msgExec:
		return m.onExecuted(ctx, a, msg.result, msg.err)
	case msgSpoken:
		return m.onSpoken(a, msg.err)
	case msgDeadline:
		m.log.Warn("stage deadline expired", "session", a.session.ID, "stage", msg.stage)
		m.teardown(a, StateTimedOut, string(msg.stage))
		return nil
	}
	return a
}

func (m *Manager) onPartial(a *active, t asr.Transcript) *active {
	m.mu.Lock()
	turnIndex := len(a.session.Turns) - 1
	a.session.Turns[turnIndex].Partial = t.Text
	// First speech moves Listening to Recognizing: we are now waiting
	// for the final transcript under its own deadline.
	if a.session.State == StateListening {
		a.session.State = StateRecognizing
		m.armDeadline(a, StateRecognizing, m.cfg.Timeouts.Recognize)
		m.recordStage(a, StateListening)
		a.stageStart = time.Now()
	}
	m.mu.Unlock()

	m.emit(event.Event{
		Type:      event.PartialTranscript,
		SessionID: a.session.ID,
		TurnIndex: turnIndex,
		Text:      t.Text,
	})
	return a
}

func (m *Manager) onFinal(ctx context.Context, a *active, t asr.Transcript) *active {
	// The stream has served its purpose; stop the pump and invalidate
	// any transcript still in flight.
	a.stageCancel()
	_ = a.handle.Close()
	a.handle = nil
	a.epoch++
	epoch := a.epoch

	m.mu.Lock()
	turnIndex := len(a.session.Turns) - 1
	a.session.Turns[turnIndex].Final = t.Text
	m.recordStage(a, a.session.State)
	a.session.State = StateUnderstanding
	m.mu.Unlock()
	a.stageStart = time.Now()

	m.emit(event.Event{
		Type:      event.FinalTranscript,
		SessionID: a.session.ID,
		TurnIndex: turnIndex,
		Text:      t.Text,
	})

	var pending *intent.Pending
	if a.pendingIntent != nil {
		pending = &intent.Pending{Intent: a.pendingIntent, Slot: a.pendingSlot}
	}

	stageCtx, cancel := context.WithCancel(ctx)
	a.stageCancel = cancel
	go func() {
		interp, err := m.cfg.Interpreter.Interpret(stageCtx, t.Text, pending)
		m.msgs <- message{epoch: epoch, kind: msgInterp, interp: interp, err: err}
	}()

	m.armDeadline(a, StateUnderstanding, m.cfg.Timeouts.Understand)
	return a
}

func (m *Manager) onInterpretation(ctx context.Context, a *active, interp intent.Interpretation, err error) *active {
	m.recordStage(a, StateUnderstanding)
	if err != nil {
		m.teardown(a, StateFailed, fmt.Sprintf("understanding: %v", err))
		return nil
	}

	m.mu.Lock()
	turnIndex := len(a.session.Turns) - 1
	a.session.Turns[turnIndex].Intent = interp.Intent
	m.mu.Unlock()

	if interp.NeedsSlot != nil {
		return m.reprompt(ctx, a, interp)
	}

	// Intent complete: resolve any outstanding slot in the dialogue
	// context, then execute.
	if a.pendingSlot != "" {
		a.dialog.Fill(a.pendingSlot, interp.Intent.Param(a.pendingSlot))
	}
	a.pendingIntent, a.pendingSlot = nil, ""
	return m.execute(ctx, a, interp.Intent, turnIndex)
}

// reprompt handles an incomplete intent: the missing slot is recorded,
// the question is spoken, and a fresh turn starts listening for the
// answer within the same session.
func (m *Manager) reprompt(ctx context.Context, a *active, interp intent.Interpretation) *active {
	if len(a.session.Turns) >= m.cfg.MaxTurns {
		m.teardown(a, StateFailed, "slot filling exceeded max turns")
		return nil
	}

	a.pendingIntent = interp.Intent
	a.pendingSlot = interp.NeedsSlot.Slot
	a.dialog.Expect(interp.Intent.Type, interp.NeedsSlot.Slot)
	for key, value := range interp.Intent.Params {
		a.dialog.Fill(key, value)
	}

	prompt := interp.NeedsSlot.Prompt
	m.log.Info("re-prompting for slot",
		"session", a.session.ID, "slot", interp.NeedsSlot.Slot, "prompt", prompt)

	// The understanding stage is over; release its context before
	// startTurn installs the next turn's.
	a.stageCancel()

	// Speak the question while the next turn is already listening, so a
	// quick answer is not lost.
	go func() {
		speakCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeouts.Respond)
		defer cancel()
		if err := m.cfg.TTS.Speak(speakCtx, prompt); err != nil {
			m.log.Warn("re-prompt synthesis failed", "session", a.session.ID, "error", err)
		}
	}()

	a = m.startTurn(ctx, a)
	if a != nil {
		m.mu.Lock()
		a.session.Turns[len(a.session.Turns)-1].Spoken = prompt
		m.mu.Unlock()
	}
	return a
}

func (m *Manager) execute(ctx context.Context, a *active, it *intent.Intent, turnIndex int) *active {
	a.stageCancel()
	a.epoch++
	epoch := a.epoch

	m.mu.Lock()
	a.session.State = StateExecuting
	m.mu.Unlock()
	a.stageStart = time.Now()

	m.emit(event.Event{
		Type:      event.IntentRecognized,
		SessionID: a.session.ID,
		TurnIndex: turnIndex,
		Intent: &event.IntentInfo{
			Type:       it.Type,
			Params:     it.Params,
			Confidence: it.Confidence,
		},
	})
	m.emit(event.Event{
		Type:      event.ExecutionStarted,
		SessionID: a.session.ID,
		TurnIndex: turnIndex,
	})

	stageCtx, cancel := context.WithCancel(ctx)
	a.stageCancel = cancel
	sessionID := a.session.ID
	go func() {
		result, err := m.cfg.Executor.Execute(stageCtx, it)
		if err == nil {
			m.persistFacts(stageCtx, sessionID, result)
		}
		m.msgs <- message{epoch: epoch, kind: msgExec, result: result, err: err}
	}()

	m.armDeadline(a, StateExecuting, m.cfg.Timeouts.Execute)
	return a
}

// persistFacts promotes the facts a skill marked for persistence into
// long-term memory. Failures are logged, not fatal to the session.
func (m *Manager) persistFacts(ctx context.Context, sessionID string, result skill.Result) {
	if m.cfg.Memory == nil {
		return
	}
	for _, fact := range result.Remember {
		fact.SessionID = sessionID
		if err := m.cfg.Memory.Remember(ctx, fact); err != nil {
			m.log.Warn("fact not persisted", "session", sessionID, "key", fact.Key, "error", err)
		}
	}
}

func (m *Manager) onExecuted(ctx context.Context, a *active, result skill.Result, err error) *active {
	m.recordStage(a, StateExecuting)
	if err != nil {
		m.teardown(a, StateFailed, fmt.Sprintf("execution: %v", err))
		return nil
	}

	m.mu.Lock()
	turnIndex := len(a.session.Turns) - 1
	res := result
	a.session.Turns[turnIndex].Result = &res
	a.session.Turns[turnIndex].Spoken = result.Spoken
	m.mu.Unlock()

	m.emit(event.Event{
		Type:      event.ExecutionFinished,
		SessionID: a.session.ID,
		TurnIndex: turnIndex,
		Result:    &event.ResultInfo{Success: result.Success, Spoken: result.Spoken},
	})

	if result.Spoken == "" {
		m.teardown(a, StateCompleted, "")
		return nil
	}

	a.stageCancel()
	a.epoch++
	epoch := a.epoch

	m.mu.Lock()
	a.session.State = StateResponding
	m.mu.Unlock()
	a.stageStart = time.Now()

	m.emit(event.Event{
		Type:      event.TtsStarted,
		SessionID: a.session.ID,
		TurnIndex: turnIndex,
		Text:      result.Spoken,
	})

	stageCtx, cancel := context.WithCancel(ctx)
	a.stageCancel = cancel
	go func() {
		err := m.cfg.TTS.Speak(stageCtx, result.Spoken)
		m.msgs <- message{epoch: epoch, kind: msgSpoken, err: err}
	}()

	m.armDeadline(a, StateResponding, m.cfg.Timeouts.Respond)
	return a
}

func (m *Manager) onSpoken(a *active, err error) *active {
	m.recordStage(a, StateResponding)
	if err != nil {
		m.teardown(a, StateFailed, fmt.Sprintf("synthesis: %v", err))
		return nil
	}

	m.emit(event.Event{
		Type:      event.TtsFinished,
		SessionID: a.session.ID,
		TurnIndex: len(a.session.Turns) - 1,
	})
	m.teardown(a, StateCompleted, "")
	return nil
}

// armDeadline (re)arms the stage timer. The fired message carries the
// current epoch, so a deadline that loses the race with a real result is
// dropped as stale.
func (m *Manager) armDeadline(a *active, stage State, d time.Duration) {
	if a.timer != nil {
		a.timer.Stop()
	}
	epoch := a.epoch
	a.timer = time.AfterFunc(d, func() {
		m.msgs <- message{epoch: epoch, kind: msgDeadline, stage: stage}
	})
}

// teardown moves the session to a terminal state and releases every
// resource it holds: the stage context, the ASR stream, the deadline
// timer, the dialogue context, and the wake gate. Bumping the epoch
// suppresses every event still in flight for this session.
func (m *Manager) teardown(a *active, terminal State, reason string) {
	a.epoch++
	if a.timer != nil {
		a.timer.Stop()
	}
	if a.stageCancel != nil {
		a.stageCancel()
	}
	if a.handle != nil {
		_ = a.handle.Close()
	}
	a.dialog.Clear(a.dialog.intentType)

	m.mu.Lock()
	a.session.State = terminal
	a.session.Reason = reason
	m.last = a.session
	m.cur = nil
	m.mu.Unlock()

	switch terminal {
	case StateTimedOut:
		m.emit(event.Event{
			Type:      event.SessionTimedOut,
			SessionID: a.session.ID,
			TurnIndex: len(a.session.Turns) - 1,
			Reason:    reason,
		})
	case StateFailed:
		m.emit(event.Event{
			Type:      event.SessionFailed,
			SessionID: a.session.ID,
			TurnIndex: len(a.session.Turns) - 1,
			Reason:    reason,
		})
	}
	m.log.Info("session closed", "session", a.session.ID, "state", terminal, "reason", reason)

	if m.cfg.Frames != nil {
		m.cfg.Frames.Pause()
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordActiveSessions(context.Background(), -1)
	}
	if m.cfg.Gate != nil {
		m.cfg.Gate.Resume()
	}
}

// recordStage reports the latency of the stage the session is leaving.
func (m *Manager) recordStage(a *active, stage State) {
	if m.cfg.Metrics == nil {
		return
	}
	m.cfg.Metrics.RecordStage(context.Background(), string(stage), time.Since(a.stageStart).Seconds())
}

func (m *Manager) emit(ev event.Event) {
	m.cfg.Events.Publish(ev)
}
