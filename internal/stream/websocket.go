package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ashureev/codeoracle/internal/identity"
)

// SnapshotSource produces the first event sent to a new connection.
type SnapshotSource interface {
	SnapshotFor(ctx context.Context, userID, sessionID string) (any, error)
}

// SessionKey joins a user and tab session into a hub key.
func SessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// WebSocketHandler serves GET /ws/transcript.
type WebSocketHandler struct {
	hub           *Hub
	snapshots     SnapshotSource
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, snapshots SnapshotSource, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		snapshots:     snapshots,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage is a control message sent by the browser.
type wsMessage struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	slog.Info("Transcript stream request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	key := SessionKey(userID, sessionID)
	c := newPendingClient(ws)
	defer c.close("stream ended")

	// Register before reading the snapshot: anything published from here
	// on is held by the client and delivered after the snapshot. Events
	// already reflected in the snapshot may arrive twice; they are keyed by
	// transcript index.
	h.hub.register(key, c)
	defer h.hub.unregister(key, c)

	snapshot, err := h.snapshots.SnapshotFor(ctx, userID, sessionID)
	if err != nil {
		slog.Error("Failed to load workspace snapshot", "error", err, "user_id", userID)
		_ = ws.Close(websocket.StatusInternalError, "snapshot unavailable")
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal snapshot", "error", err)
		return
	}
	if !c.activate(data) {
		slog.Warn("Dropping transcript stream before first write", "session_key", key)
		return
	}

	go c.writeLoop(ctx)
	h.readLoop(ctx, c, userID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || h.allowedOrigin == "" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, c *client, userID string) {
	for {
		_, message, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Debug("WebSocket read ended", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(map[string]string{"type": "pong"})
			c.enqueue(pong)
		}
	}
}
