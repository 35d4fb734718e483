package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fixmate-app/fixmate/internal/approval"
	"github.com/fixmate-app/fixmate/internal/conversation"
	"github.com/fixmate-app/fixmate/internal/quickfix"
	"github.com/fixmate-app/fixmate/internal/session"
	"github.com/fixmate-app/fixmate/internal/store"
	"github.com/fixmate-app/fixmate/internal/transcript"
	"github.com/go-chi/chi/v5"
)

// AssistHandler handles session and turn endpoints.
type AssistHandler struct {
	sessions    *session.Store
	ctrl        *conversation.Controller
	gate        *approval.Gate
	hub         *transcript.Hub
	defaultLang string
}

// NewAssistHandler creates the assistant API handler.
func NewAssistHandler(sessions *session.Store, ctrl *conversation.Controller, gate *approval.Gate, hub *transcript.Hub, defaultLang string) *AssistHandler {
	return &AssistHandler{
		sessions:    sessions,
		ctrl:        ctrl,
		gate:        gate,
		hub:         hub,
		defaultLang: defaultLang,
	}
}

// RegisterRoutes registers assistant routes.
func (h *AssistHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions/{sessionID}", h.GetSession)

		r.Post("/chat", h.Chat)
		r.Post("/diagnose", h.Diagnose)
		r.Post("/screenshot", h.Screenshot)
		r.Post("/voice", h.Voice)
		r.Post("/voice/stop", h.VoiceStop)
		r.Post("/quickfix", h.QuickFix)

		r.Post("/approval", h.Approval)
		r.Get("/status", h.Status)
		r.Get("/quickfixes", h.QuickFixes)
	})
}

// ListSessions returns all sessions, newest first.
func (h *AssistHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.sessions.List())
}

// CreateSession opens a new conversation session and greets the client.
func (h *AssistHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Create(r.Context())

	// The greeting is transcript-only; it never enters the session log.
	h.hub.Broadcast(transcript.NewMessageItem("assistant", conversation.WelcomeMessage))

	slog.Info("Session created", "session_id", sess.ID)
	JSON(w, http.StatusCreated, sess)
}

// GetSession returns one session with its full message log.
func (h *AssistHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, sess)
}

type turnRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Lang      string `json:"lang"`
	FixID     string `json:"id"`
}

func (h *AssistHandler) lang(req turnRequest) string {
	if req.Lang == "" {
		return h.defaultLang
	}
	return req.Lang
}

// Chat starts a chat turn for the given session.
func (h *AssistHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.Text == "" {
		Error(w, http.StatusBadRequest, "session_id and text are required")
		return
	}

	h.startTurn(w, h.ctrl.StartChatTurn(req.SessionID, req.Text, h.lang(req)))
}

// Diagnose starts a screen-diagnosis turn.
func (h *AssistHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	h.startTurn(w, h.ctrl.StartDiagnose(req.SessionID, h.lang(req)))
}

// Screenshot captures the screen without analysis.
func (h *AssistHandler) Screenshot(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	h.startTurn(w, h.ctrl.StartScreenshot(req.SessionID))
}

// Voice starts a microphone capture turn.
func (h *AssistHandler) Voice(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	h.startTurn(w, h.ctrl.StartVoiceTurn(req.SessionID, h.lang(req)))
}

// VoiceStop ends an in-progress microphone capture.
func (h *AssistHandler) VoiceStop(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.StopListening(r.Context()); err != nil {
		slog.Warn("Failed to stop voice capture", "error", err)
		Error(w, http.StatusBadGateway, "failed to stop voice capture")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// QuickFix starts a canned fix turn.
func (h *AssistHandler) QuickFix(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.FixID == "" {
		Error(w, http.StatusBadRequest, "session_id and id are required")
		return
	}

	err := h.ctrl.StartQuickFix(req.SessionID, req.FixID, h.lang(req))
	if errors.Is(err, conversation.ErrUnknownFix) {
		Error(w, http.StatusNotFound, "unknown quick fix")
		return
	}
	h.startTurn(w, err)
}

// startTurn maps a turn-start result onto the wire. An accepted turn runs
// in the background; progress arrives over the transcript socket.
func (h *AssistHandler) startTurn(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, conversation.ErrBusy):
		Error(w, http.StatusConflict, "busy")
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

type approvalRequest struct {
	Decision string `json:"decision"`
}

// Approval delivers a human decision to the pending approval request.
// Accepted reports whether a waiter was actually released.
func (h *AssistHandler) Approval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision, err := approval.ParseDecision(req.Decision)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	accepted := h.gate.Resolve(decision)
	if !accepted {
		slog.Debug("Approval decision with no pending request", "decision", decision)
	}
	JSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

// Status returns the current process state.
func (h *AssistHandler) Status(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.ctrl.Status())
}

// QuickFixes returns the fix catalog for this platform.
func (h *AssistHandler) QuickFixes(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, quickfix.Available())
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status": "healthy",
		"checks": map[string]string{"api": "ok"},
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		status["checks"].(map[string]string)["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		status["checks"].(map[string]string)["database"] = "ok"
	}

	JSON(w, statusCode, status)
}
