// ABOUTME: Local fan-out hub mapping rooms to the sessions watching them
// ABOUTME: Implements the broker's transport forwarder; slow sessions get dropped

package transport

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/wanderhub/wanderhub-chat/internal/session"
)

// Member is what the hub needs from a session. WSSession satisfies it.
type Member interface {
	ID() string
	UserID() string
	Send(payload []byte) error
	Close()
}

// UserSessions answers which local sessions a user currently holds. The
// session registry satisfies this.
type UserSessions interface {
	GetUserSessions(userID string) []session.Session
}

// Hub routes decoded broker traffic to this instance's live sessions. Room
// membership is transport-local state; the broker and registry only know
// interest at room and user granularity.
type Hub struct {
	sessions UserSessions
	logger   *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]Member // roomID -> sessionID -> member
}

// NewHub creates a hub over the given session lookup.
func NewHub(sessions UserSessions, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: sessions,
		logger:   logger.With("component", "hub"),
		rooms:    make(map[string]map[string]Member),
	}
}

// Join adds the session to the room's local watcher set.
func (h *Hub) Join(roomID string, m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.rooms[roomID]
	if !ok {
		set = make(map[string]Member)
		h.rooms[roomID] = set
	}
	set[m.ID()] = m
}

// Leave removes the session from the room's watcher set. Returns true when
// the room has no local watchers left, so the caller can release the
// instance's interest in it.
func (h *Hub) Leave(roomID string, m Member) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	delete(set, m.ID())
	if len(set) == 0 {
		delete(h.rooms, roomID)
		return true
	}
	return false
}

// LeaveAll removes the session from every room and returns the rooms that
// emptied as a result. Called on disconnect.
func (h *Hub) LeaveAll(m Member) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var emptied []string
	for roomID, set := range h.rooms {
		if _, ok := set[m.ID()]; !ok {
			continue
		}
		delete(set, m.ID())
		if len(set) == 0 {
			delete(h.rooms, roomID)
			emptied = append(emptied, roomID)
		}
	}
	return emptied
}

// RoomWatchers returns how many local sessions watch the room.
func (h *Hub) RoomWatchers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// BroadcastToRoom delivers a payload to every local session watching the
// room. A session that cannot keep up is closed; the registry's disconnect
// path then unwinds its bookkeeping.
func (h *Hub) BroadcastToRoom(roomID string, payload []byte) {
	h.mu.RLock()
	targets := make([]Member, 0, len(h.rooms[roomID]))
	for _, m := range h.rooms[roomID] {
		targets = append(targets, m)
	}
	h.mu.RUnlock()

	for _, m := range targets {
		if err := m.Send(payload); err != nil {
			if errors.Is(err, ErrSlowSession) {
				h.logger.Warn("dropping slow session",
					"session_id", m.ID(),
					"user_id", m.UserID(),
					"room_id", roomID)
				m.Close()
			}
		}
	}
}

// SendToUser delivers a payload to every local session the user holds.
func (h *Hub) SendToUser(userID string, payload []byte) {
	for _, s := range h.sessions.GetUserSessions(userID) {
		if err := s.Send(payload); err != nil {
			h.logger.Debug("user delivery failed",
				"user_id", userID,
				"session_id", s.ID(),
				"error", err)
		}
	}
}
