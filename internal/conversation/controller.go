// Package conversation drives user-facing turns end to end.
//
// A turn is one top-level interaction: a chat message, a screen diagnosis,
// a screenshot, a voice capture or a quick fix. At most one turn (including
// any remediation run it triggers) is in flight at a time; entry points are
// rejected while busy.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fixmate-app/fixmate/internal/approval"
	"github.com/fixmate-app/fixmate/internal/domain"
	"github.com/fixmate-app/fixmate/internal/fixer"
	"github.com/fixmate-app/fixmate/internal/quickfix"
	"github.com/fixmate-app/fixmate/internal/session"
	"github.com/fixmate-app/fixmate/internal/sidecar"
	"github.com/fixmate-app/fixmate/internal/transcript"
	"golang.org/x/sync/semaphore"
)

// WelcomeMessage greets the user when a new session opens. It is shown in
// the transcript but never persisted.
const WelcomeMessage = "Hey! I'm FixMate, your AI IT assistant.\n\n" +
	"Tell me what's wrong — in any language.\n" +
	"I'll diagnose it, walk you through each fix step by step, " +
	"and ask your permission before doing anything."

// ErrBusy is returned when a turn is requested while another is in flight.
var ErrBusy = errors.New("another interaction is already in flight")

// ErrUnknownFix is returned for quick-fix IDs absent from the catalog.
var ErrUnknownFix = errors.New("unknown quick fix")

// Brain is the subset of sidecar operations the controller calls directly.
type Brain interface {
	Chat(ctx context.Context, req sidecar.ChatRequest) (*sidecar.ChatResult, error)
	Diagnose(ctx context.Context) (*sidecar.DiagnoseResult, error)
	Screenshot(ctx context.Context) (*sidecar.ScreenshotResult, error)
	Speak(ctx context.Context, text, lang string) error
	Listen(ctx context.Context, lang string) (*sidecar.ListenResult, error)
	StopListen(ctx context.Context) error
}

// Status is the process state reported to the UI.
type Status struct {
	State           string            `json:"state"`
	Label           string            `json:"label"`
	Busy            bool              `json:"busy"`
	PendingApproval *approval.Request `json:"pending_approval,omitempty"`
}

// Controller owns the turn lifecycle for the active session.
type Controller struct {
	sessions     *session.Store
	brain        Brain
	hub          *transcript.Hub
	gate         *approval.Gate
	runner       *fixer.Runner
	historyLimit int

	flight *semaphore.Weighted

	mu     sync.Mutex
	state  string
	label  string
	busy   bool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewController wires a controller. Turns started by it run on an internal
// context cancelled by Close.
func NewController(sessions *session.Store, brain Brain, hub *transcript.Hub, gate *approval.Gate, runner *fixer.Runner, historyLimit int) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		sessions:     sessions,
		brain:        brain,
		hub:          hub,
		gate:         gate,
		runner:       runner,
		historyLimit: historyLimit,
		flight:       semaphore.NewWeighted(1),
		state:        "idle",
		label:        "Ready",
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Close cancels all in-flight turns, releasing any parked approval wait.
func (c *Controller) Close() {
	c.cancel()
}

// Status reports the current process state and any pending approval.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:           c.state,
		Label:           c.label,
		Busy:            c.busy,
		PendingApproval: c.gate.Pending(),
	}
}

// StartChatTurn begins an asynchronous chat turn. Returns ErrBusy when
// another turn is in flight; the rejected turn has no side effects.
func (c *Controller) StartChatTurn(sessionID, text, lang string) error {
	return c.start(func(ctx context.Context) {
		c.chatTurn(ctx, sessionID, text, lang)
	})
}

// StartDiagnose begins an asynchronous screen-diagnosis turn.
func (c *Controller) StartDiagnose(sessionID, lang string) error {
	return c.start(func(ctx context.Context) {
		c.diagnoseTurn(ctx, sessionID, lang)
	})
}

// StartScreenshot begins an asynchronous screenshot capture.
func (c *Controller) StartScreenshot(sessionID string) error {
	return c.start(func(ctx context.Context) {
		c.screenshotTurn(ctx, sessionID)
	})
}

// StartVoiceTurn records from the microphone, then feeds the transcription
// through a normal chat turn.
func (c *Controller) StartVoiceTurn(sessionID, lang string) error {
	return c.start(func(ctx context.Context) {
		c.voiceTurn(ctx, sessionID, lang)
	})
}

// StopListening ends an in-progress voice capture.
func (c *Controller) StopListening(ctx context.Context) error {
	return c.brain.StopListen(ctx)
}

// StartQuickFix runs a canned fix from the platform catalog through the
// approval-gated orchestrator.
func (c *Controller) StartQuickFix(sessionID, fixID, lang string) error {
	fix, ok := quickfix.Lookup(fixID)
	if !ok {
		return ErrUnknownFix
	}
	return c.start(func(ctx context.Context) {
		c.quickFixTurn(ctx, sessionID, fix, lang)
	})
}

// start enforces the single-flight gate and spawns the turn.
func (c *Controller) start(turn func(ctx context.Context)) error {
	if !c.flight.TryAcquire(1) {
		return ErrBusy
	}
	c.setBusy(true)

	go func() {
		defer func() {
			c.setBusy(false)
			c.flight.Release(1)
		}()
		turn(c.ctx)
	}()
	return nil
}

func (c *Controller) chatTurn(ctx context.Context, sessionID, text, lang string) {
	c.setStatus("processing", "Thinking")
	defer c.setStatus("idle", "Ready")

	// History is the prior log; the new message is sent separately.
	history := c.sessions.RecentMessages(sessionID, c.historyLimit)

	c.sessions.Append(ctx, sessionID, domain.RoleUser, text)
	c.hub.Broadcast(transcript.NewMessageItem(domain.RoleUser, text))

	result, err := c.brain.Chat(ctx, sidecar.ChatRequest{
		Text:    text,
		Lang:    lang,
		History: toHistory(history),
	})
	if err != nil {
		slog.Warn("Chat call failed", "session_id", sessionID, "error", err)
		c.announce(fmt.Sprintf("I had trouble connecting: %s", err))
		return
	}

	reply := result.Reply
	if reply == "" {
		reply = "I had trouble processing that."
	}
	c.say(ctx, sessionID, reply)
	c.speak(ctx, reply, lang)

	if len(result.Commands) > 0 {
		c.runner.Run(ctx, c.emitter(sessionID), result.Commands, lang)
	}
}

func (c *Controller) diagnoseTurn(ctx context.Context, sessionID, lang string) {
	c.setStatus("diagnosing", "Diagnosing")
	defer c.setStatus("idle", "Ready")

	c.say(ctx, sessionID, "Scanning your screen...")

	c.setStatus("diagnosing", "Capturing")
	result, err := c.brain.Diagnose(ctx)
	if err != nil {
		slog.Warn("Diagnosis failed", "session_id", sessionID, "error", err)
		c.announce(fmt.Sprintf("Diagnosis failed: %s", err))
		return
	}

	diagnosis := result.Diagnosis
	if diagnosis == "" {
		diagnosis = "Unknown issue"
	}
	c.say(ctx, sessionID, fmt.Sprintf("Diagnosis: %s", diagnosis))
	c.speak(ctx, fmt.Sprintf("I found the issue: %s", diagnosis), lang)

	if len(result.Steps) > 0 {
		c.runner.Run(ctx, c.emitter(sessionID), result.Steps, lang)
	} else {
		c.say(ctx, sessionID, "No automated fix steps available.")
	}
}

func (c *Controller) screenshotTurn(ctx context.Context, sessionID string) {
	c.setStatus("diagnosing", "Capturing")
	defer c.setStatus("idle", "Ready")

	result, err := c.brain.Screenshot(ctx)
	if err != nil {
		slog.Warn("Screenshot failed", "session_id", sessionID, "error", err)
		c.announce(fmt.Sprintf("Screenshot failed: %s", err))
		return
	}
	// The capture belongs to the user's side of the conversation.
	text := fmt.Sprintf("Screenshot saved: %s\nHit Diagnose to analyze it.", result.Path)
	c.sessions.Append(ctx, sessionID, domain.RoleUser, text)
	c.hub.Broadcast(transcript.NewMessageItem(domain.RoleUser, text))
}

func (c *Controller) voiceTurn(ctx context.Context, sessionID, lang string) {
	c.setStatus("listening", "Listening")

	result, err := c.brain.Listen(ctx, lang)
	if err != nil {
		slog.Warn("Voice capture failed", "session_id", sessionID, "error", err)
		c.announce(fmt.Sprintf("Voice input failed: %s", err))
		c.setStatus("idle", "Ready")
		return
	}
	if result.Error != "" {
		c.announce(fmt.Sprintf("Voice input failed: %s", result.Error))
		c.setStatus("idle", "Ready")
		return
	}
	if result.Text == "" {
		c.setStatus("idle", "Ready")
		return
	}

	c.chatTurn(ctx, sessionID, result.Text, lang)
}

func (c *Controller) quickFixTurn(ctx context.Context, sessionID string, fix quickfix.Fix, lang string) {
	c.setStatus("processing", fix.Label)
	defer c.setStatus("idle", "Ready")

	c.say(ctx, sessionID, fmt.Sprintf("Running quick fix: %s", fix.Label))
	c.runner.Run(ctx, c.emitter(sessionID), fix.Steps(), lang)
}

// say persists an assistant message into the session and broadcasts it.
func (c *Controller) say(ctx context.Context, sessionID, text string) {
	c.sessions.Append(ctx, sessionID, domain.RoleAssistant, text)
	c.hub.Broadcast(transcript.NewMessageItem(domain.RoleAssistant, text))
}

// announce broadcasts an assistant-style message without persisting it.
// Used for turn errors, which do not become part of the session log.
func (c *Controller) announce(text string) {
	c.hub.Broadcast(transcript.NewMessageItem(domain.RoleAssistant, text))
}

// speak requests speech synthesis; failures are swallowed.
func (c *Controller) speak(ctx context.Context, text, lang string) {
	if err := c.brain.Speak(ctx, text, lang); err != nil {
		slog.Debug("Speech synthesis failed", "error", err)
	}
}

func (c *Controller) setStatus(state, label string) {
	c.mu.Lock()
	c.state = state
	c.label = label
	c.mu.Unlock()
	c.hub.Broadcast(transcript.NewStatusItem(state, label))
}

func (c *Controller) setBusy(busy bool) {
	c.mu.Lock()
	c.busy = busy
	c.mu.Unlock()
}

// emitter adapts the controller into the orchestrator's output contract
// for one run against one session.
func (c *Controller) emitter(sessionID string) fixer.Emitter {
	return &runEmitter{c: c, sessionID: sessionID}
}

type runEmitter struct {
	c         *Controller
	sessionID string
}

func (e *runEmitter) Message(text string) {
	e.c.say(e.c.ctx, e.sessionID, text)
}

func (e *runEmitter) Step(run domain.StepRun) {
	e.c.hub.Broadcast(transcript.NewStepItem(run))
}

func (e *runEmitter) Status(state fixer.State, label string) {
	e.c.setStatus(state.String(), label)
}

func toHistory(messages []domain.Message) []sidecar.HistoryMessage {
	out := make([]sidecar.HistoryMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, sidecar.HistoryMessage{Role: string(m.Role), Text: m.Text})
	}
	return out
}
