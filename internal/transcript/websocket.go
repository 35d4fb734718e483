package transcript

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/fixmate-app/fixmate/internal/approval"
)

// WebSocketHandler streams transcript items to the UI and accepts approval
// responses on the same connection.
type WebSocketHandler struct {
	hub           *Hub
	gate          *approval.Gate
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new websocket handler.
func NewWebSocketHandler(hub *Hub, gate *approval.Gate, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		gate:          gate,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// inboundMessage is what the UI may send over the socket.
type inboundMessage struct {
	Type     string `json:"type"`
	Decision string `json:"decision,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Catch the client up before live items start flowing.
	for _, item := range h.hub.Replay() {
		if err := h.writeItem(ctx, ws, item); err != nil {
			slog.Debug("Replay write failed", "error", err)
			return
		}
	}

	// Announce any approval already pending so a reconnecting client can
	// answer it.
	if req := h.gate.Pending(); req != nil {
		if err := h.writeItem(ctx, ws, NewApprovalItem(*req)); err != nil {
			return
		}
	}

	items, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	go h.readLoop(ctx, cancel, ws)

	for {
		select {
		case item, ok := <-items:
			if !ok {
				return
			}
			if err := h.writeItem(ctx, ws, item); err != nil {
				slog.Debug("WebSocket write error", "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *WebSocketHandler) readLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn) {
	defer cancel()
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client")
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Warn("Malformed websocket message", "error", err)
			continue
		}

		switch msg.Type {
		case "approval":
			decision, err := approval.ParseDecision(msg.Decision)
			if err != nil {
				slog.Warn("Rejected approval message", "error", err)
				continue
			}
			if !h.gate.Resolve(decision) {
				slog.Debug("Approval response with no pending request", "decision", msg.Decision)
			}
		case "ping":
			if err := h.writeJSON(ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) writeItem(ctx context.Context, ws *websocket.Conn, item Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func (h *WebSocketHandler) writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
