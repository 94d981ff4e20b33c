// ABOUTME: Per-instance registry of user sessions with zero-interest self-cleanup
// ABOUTME: Coordinates broker bookkeeping and the instance's backplane interest keys

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wanderhub/wanderhub-chat/internal/backplane"
	"github.com/wanderhub/wanderhub-chat/internal/broker"
	"github.com/wanderhub/wanderhub-chat/internal/channel"
)

// Session is a live transport-session handle. A user may hold several
// concurrent sessions (multiple tabs, phone plus laptop).
type Session interface {
	ID() string
	Send(payload []byte) error
}

// Broadcaster is the application-level routine the registry's delivery hook
// delegates room traffic to. It is a second processing pass over inbound
// events, distinct from the broker's own transport forwarding.
type Broadcaster interface {
	BroadcastToRoom(roomID string, payload []byte)
}

// Registry tracks this instance's live sessions per user. A user entry
// exists iff its session set is non-empty.
type Registry struct {
	broker     *broker.Broker
	bp         backplane.Backplane
	instanceID string
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]map[string]Session // userID -> sessionID -> session
	total    int
}

// NewRegistry creates a registry for this instance.
func NewRegistry(b *broker.Broker, bp backplane.Backplane, instanceID string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		broker:     b,
		bp:         bp,
		instanceID: instanceID,
		logger:     logger.With("component", "session", "instance_id", instanceID),
		sessions:   make(map[string]map[string]Session),
	}
}

// AttachBroadcaster registers the registry's local-delivery hook with the
// broker: room-channel traffic gets a second pass through the given
// broadcaster. Called once at start-up.
func (r *Registry) AttachBroadcaster(bc Broadcaster) {
	r.broker.RegisterListener(&roomListener{bc: bc})
}

// AddSession adds a session to the user's set, creating the set on the
// user's first session. The first session also flags the user as locally
// interesting and advertises it on the instance's user-interest key.
func (r *Registry) AddSession(ctx context.Context, userID string, s Session) {
	r.mu.Lock()
	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[string]Session)
		r.sessions[userID] = set
	}
	if _, exists := set[s.ID()]; !exists {
		set[s.ID()] = s
		r.total++
	}
	first := !ok
	total := r.total
	r.mu.Unlock()

	if first {
		r.broker.SubscribeUser(userID)
		if err := r.bp.SAdd(ctx, channel.InstanceUsersKey(r.instanceID), userID); err != nil {
			r.logger.Warn("advertising user interest failed",
				"user_id", userID,
				"error", err)
		}
	}

	r.logger.Debug("session added",
		"user_id", userID,
		"session_id", s.ID(),
		"total_sessions", total)
}

// RemoveSession removes a session from the user's set and drops the user
// entry when the set empties. The user's last session also releases the
// broker flag and withdraws the user from the instance's user-interest key,
// mirroring AddSession. When the instance-wide live-session count reaches
// zero, the full local cleanup runs.
//
// The zero check and the cleanup are deliberately not one atomic step: a
// concurrent AddSession can race the cleanup, producing a spurious
// bookkeeping delete followed by a legitimate resubscribe. That race is
// self-healing and tolerated.
func (r *Registry) RemoveSession(ctx context.Context, userID string, s Session) {
	r.mu.Lock()
	set, ok := r.sessions[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, exists := set[s.ID()]; !exists {
		r.mu.Unlock()
		return
	}
	delete(set, s.ID())
	r.total--
	last := len(set) == 0
	if last {
		delete(r.sessions, userID)
	}
	total := r.total
	r.mu.Unlock()

	if last {
		r.broker.UnsubscribeUser(userID)
		if err := r.bp.SRem(ctx, channel.InstanceUsersKey(r.instanceID), userID); err != nil {
			r.logger.Warn("withdrawing user interest failed",
				"user_id", userID,
				"error", err)
		}
	}

	r.logger.Debug("session removed",
		"user_id", userID,
		"session_id", s.ID(),
		"total_sessions", total)

	if total == 0 {
		r.cleanup(ctx)
	}
}

// cleanup releases every bookkeeping subscription this instance holds and
// best-effort deletes its backplane interest keys. Key absence is logged,
// not treated as an error.
func (r *Registry) cleanup(ctx context.Context) {
	rooms := r.broker.TrackedRooms()
	for _, roomID := range rooms {
		r.broker.UnsubscribeRoom(roomID)
	}
	users := r.broker.TrackedUsers()
	for _, userID := range users {
		r.broker.UnsubscribeUser(userID)
	}

	existed, err := r.bp.Del(ctx,
		channel.InstanceRoomsKey(r.instanceID),
		channel.InstanceUsersKey(r.instanceID))
	if err != nil {
		r.logger.Warn("deleting instance bookkeeping keys failed", "error", err)
	} else if existed == 0 {
		r.logger.Debug("instance bookkeeping keys already absent")
	}

	r.logger.Info("zero-session cleanup complete",
		"released_rooms", len(rooms),
		"released_users", len(users))
}

// JoinRoom registers local interest in a room for a user. The first local
// interest registers the broker bookkeeping subscription and advertises
// the room on the instance's room-interest key.
func (r *Registry) JoinRoom(ctx context.Context, userID, roomID string) error {
	if r.broker.SubscribeRoom(roomID) {
		if err := r.bp.SAdd(ctx, channel.InstanceRoomsKey(r.instanceID), roomID); err != nil {
			return err
		}
	}

	r.logger.Debug("user joined room", "user_id", userID, "room_id", roomID)
	return nil
}

// LeaveRoom releases local interest in a room once no local session needs
// it. The transport layer decides when that is.
func (r *Registry) LeaveRoom(ctx context.Context, roomID string) error {
	if r.broker.UnsubscribeRoom(roomID) {
		if err := r.bp.SRem(ctx, channel.InstanceRoomsKey(r.instanceID), roomID); err != nil {
			return err
		}
	}
	return nil
}

// GetUserSessions returns the user's live sessions.
func (r *Registry) GetUserSessions(userID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sessions[userID]
	if !ok {
		return nil
	}
	out := make([]Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// IsUserOnline reports whether the user has at least one live session on
// this instance.
func (r *Registry) IsUserOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sessions[userID]
	return ok
}

// TotalSessions returns the instance-wide live-session count.
func (r *Registry) TotalSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// roomListener is the registry's local-delivery hook: room traffic only,
// delegated to the application broadcaster.
type roomListener struct {
	bc Broadcaster
}

func (l *roomListener) Matches(topic string, payload []byte) bool {
	return channel.IsRoom(topic)
}

func (l *roomListener) Deliver(topic string, payload []byte, messageID string) {
	l.bc.BroadcastToRoom(channel.RoomID(topic), payload)
}
