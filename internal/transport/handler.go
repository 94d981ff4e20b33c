// ABOUTME: HTTP entry point for the chat WebSocket, token auth on the handshake
// ABOUTME: Read loop translates client frames into registry, hub, and chat calls

package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wanderhub/wanderhub-chat/internal/auth"
	"github.com/wanderhub/wanderhub-chat/internal/broker"
	"github.com/wanderhub/wanderhub-chat/internal/chat"
	"github.com/wanderhub/wanderhub-chat/internal/session"
	"github.com/wanderhub/wanderhub-chat/internal/store"
)

const defaultHistoryLimit = 50

// clientFrame is one inbound client action.
type clientFrame struct {
	Action string `json:"action"`
	RoomID string `json:"roomId,omitempty"`
	Body   string `json:"body,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// serverFrame wraps non-broker responses sent back to the client.
type serverFrame struct {
	Type     string               `json:"type"`
	RoomID   string               `json:"roomId,omitempty"`
	Error    string               `json:"error,omitempty"`
	Messages []*store.ChatMessage `json:"messages,omitempty"`
}

// Handler upgrades authenticated requests into chat sessions.
type Handler struct {
	verifier auth.TokenVerifier
	registry *session.Registry
	hub      *Hub
	chat     *chat.Service
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the WebSocket handler.
func NewHandler(verifier auth.TokenVerifier, registry *session.Registry, hub *Hub, svc *chat.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		verifier: verifier,
		registry: registry,
		hub:      hub,
		chat:     svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "transport"),
	}
}

// ServeHTTP authenticates the handshake, upgrades the connection, and runs
// the session until the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Debug("handshake rejected", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userName := r.URL.Query().Get("name")
	if userName == "" {
		userName = userID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := NewWSSession(conn, userID, userName, h.logger)
	h.registry.AddSession(r.Context(), userID, s)
	go s.Run()

	h.logger.Info("session connected", "user_id", userID, "session_id", s.ID())
	h.readLoop(s)
	h.disconnect(s)
}

// readLoop owns all reads from the connection. Returns when the connection
// drops or sends something unreadable.
func (h *Handler) readLoop(s *WSSession) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("session read failed", "error", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.sendError(s, "", "malformed frame")
			continue
		}
		h.handleFrame(s, frame)
	}
}

func (h *Handler) handleFrame(s *WSSession, frame clientFrame) {
	ctx := context.Background()

	switch frame.Action {
	case "join":
		if frame.RoomID == "" {
			h.sendError(s, "", "join requires roomId")
			return
		}
		h.hub.Join(frame.RoomID, s)
		if err := h.registry.JoinRoom(ctx, s.UserID(), frame.RoomID); err != nil {
			h.logger.Warn("room join bookkeeping failed", "room_id", frame.RoomID, "error", err)
		}
		if err := h.chat.AnnouncePresence(ctx, frame.RoomID, s.UserID(), s.UserName(), broker.RoomEventJoin); err != nil {
			h.logger.Warn("join announcement failed", "room_id", frame.RoomID, "error", err)
		}

	case "leave":
		if frame.RoomID == "" {
			h.sendError(s, "", "leave requires roomId")
			return
		}
		if h.hub.Leave(frame.RoomID, s) {
			if err := h.registry.LeaveRoom(ctx, frame.RoomID); err != nil {
				h.logger.Warn("room leave bookkeeping failed", "room_id", frame.RoomID, "error", err)
			}
		}
		if err := h.chat.AnnouncePresence(ctx, frame.RoomID, s.UserID(), s.UserName(), broker.RoomEventLeave); err != nil {
			h.logger.Warn("leave announcement failed", "room_id", frame.RoomID, "error", err)
		}

	case "message":
		if frame.RoomID == "" || frame.Body == "" {
			h.sendError(s, frame.RoomID, "message requires roomId and body")
			return
		}
		if _, err := h.chat.SendMessage(ctx, frame.RoomID, s.UserID(), s.UserName(), frame.Body); err != nil {
			h.logger.Error("send failed",
				"room_id", frame.RoomID,
				"user_id", s.UserID(),
				"error", err)
			h.sendError(s, frame.RoomID, "message not delivered")
		}

	case "markRead":
		if frame.RoomID == "" {
			h.sendError(s, "", "markRead requires roomId")
			return
		}
		if err := h.chat.MarkRead(ctx, s.UserID(), frame.RoomID); err != nil {
			h.sendError(s, frame.RoomID, "mark read failed")
		}

	case "history":
		if frame.RoomID == "" {
			h.sendError(s, "", "history requires roomId")
			return
		}
		limit := frame.Limit
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		msgs, err := h.chat.History(ctx, frame.RoomID, limit)
		if err != nil {
			h.sendError(s, frame.RoomID, "history unavailable")
			return
		}
		h.sendFrame(s, serverFrame{Type: "history", RoomID: frame.RoomID, Messages: msgs})

	default:
		h.sendError(s, "", "unknown action")
	}
}

// disconnect unwinds everything the session touched: hub membership, room
// interest for rooms it was the last local watcher of, and the registry
// entry itself.
func (h *Handler) disconnect(s *WSSession) {
	s.Close()

	ctx := context.Background()
	for _, roomID := range h.hub.LeaveAll(s) {
		if err := h.registry.LeaveRoom(ctx, roomID); err != nil {
			h.logger.Warn("room release on disconnect failed", "room_id", roomID, "error", err)
		}
	}
	h.registry.RemoveSession(ctx, s.UserID(), s)

	h.logger.Info("session disconnected", "user_id", s.UserID(), "session_id", s.ID())
}

func (h *Handler) sendFrame(s *WSSession, frame serverFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	s.Send(payload)
}

func (h *Handler) sendError(s *WSSession, roomID, msg string) {
	h.sendFrame(s, serverFrame{Type: "error", RoomID: roomID, Error: msg})
}
