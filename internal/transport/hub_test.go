// ABOUTME: Tests for the local fan-out hub with fake sessions
// ABOUTME: Membership bookkeeping, broadcast targeting, slow-session drop

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderhub/wanderhub-chat/internal/session"
)

// fakeMember is an in-memory Member for hub tests.
type fakeMember struct {
	id       string
	userID   string
	received [][]byte
	slow     bool
	closed   bool
}

func (f *fakeMember) ID() string     { return f.id }
func (f *fakeMember) UserID() string { return f.userID }
func (f *fakeMember) Close()         { f.closed = true }

func (f *fakeMember) Send(payload []byte) error {
	if f.slow {
		return ErrSlowSession
	}
	f.received = append(f.received, payload)
	return nil
}

// fakeUserSessions satisfies UserSessions with a fixed map.
type fakeUserSessions struct {
	byUser map[string][]session.Session
}

func (f *fakeUserSessions) GetUserSessions(userID string) []session.Session {
	return f.byUser[userID]
}

func newTestHub() *Hub {
	return NewHub(&fakeUserSessions{byUser: make(map[string][]session.Session)}, nil)
}

func TestHub_BroadcastToRoom_OnlyWatchers(t *testing.T) {
	hub := newTestHub()
	inRoom := &fakeMember{id: "s1", userID: "u1"}
	elsewhere := &fakeMember{id: "s2", userID: "u2"}

	hub.Join("room-1", inRoom)
	hub.Join("room-2", elsewhere)

	hub.BroadcastToRoom("room-1", []byte("hello"))

	require.Len(t, inRoom.received, 1)
	assert.Equal(t, "hello", string(inRoom.received[0]))
	assert.Empty(t, elsewhere.received)
}

func TestHub_BroadcastToRoom_AllWatchersGetIt(t *testing.T) {
	hub := newTestHub()
	a := &fakeMember{id: "s1", userID: "u1"}
	b := &fakeMember{id: "s2", userID: "u2"}

	hub.Join("room-1", a)
	hub.Join("room-1", b)

	hub.BroadcastToRoom("room-1", []byte("hello"))

	assert.Len(t, a.received, 1)
	assert.Len(t, b.received, 1)
}

func TestHub_BroadcastToRoom_DropsSlowSession(t *testing.T) {
	hub := newTestHub()
	healthy := &fakeMember{id: "s1", userID: "u1"}
	stuck := &fakeMember{id: "s2", userID: "u2", slow: true}

	hub.Join("room-1", healthy)
	hub.Join("room-1", stuck)

	hub.BroadcastToRoom("room-1", []byte("hello"))

	assert.Len(t, healthy.received, 1)
	assert.True(t, stuck.closed)
	assert.False(t, healthy.closed)
}

func TestHub_Leave_ReportsEmptyRoom(t *testing.T) {
	hub := newTestHub()
	a := &fakeMember{id: "s1", userID: "u1"}
	b := &fakeMember{id: "s2", userID: "u2"}

	hub.Join("room-1", a)
	hub.Join("room-1", b)

	assert.False(t, hub.Leave("room-1", a))
	assert.True(t, hub.Leave("room-1", b))
	assert.Equal(t, 0, hub.RoomWatchers("room-1"))
}

func TestHub_Leave_UnknownRoom(t *testing.T) {
	hub := newTestHub()
	assert.False(t, hub.Leave("room-x", &fakeMember{id: "s1"}))
}

func TestHub_LeaveAll_ReturnsEmptiedRooms(t *testing.T) {
	hub := newTestHub()
	leaving := &fakeMember{id: "s1", userID: "u1"}
	staying := &fakeMember{id: "s2", userID: "u2"}

	hub.Join("room-1", leaving)
	hub.Join("room-2", leaving)
	hub.Join("room-2", staying)

	emptied := hub.LeaveAll(leaving)

	assert.ElementsMatch(t, []string{"room-1"}, emptied)
	assert.Equal(t, 1, hub.RoomWatchers("room-2"))
}

func TestHub_SendToUser_AllUserSessions(t *testing.T) {
	a := &fakeMember{id: "s1", userID: "u1"}
	b := &fakeMember{id: "s2", userID: "u1"}
	lookup := &fakeUserSessions{byUser: map[string][]session.Session{
		"u1": {a, b},
	}}
	hub := NewHub(lookup, nil)

	hub.SendToUser("u1", []byte("ping"))

	assert.Len(t, a.received, 1)
	assert.Len(t, b.received, 1)
}

func TestHub_SendToUser_NoSessions(t *testing.T) {
	hub := newTestHub()
	// No sessions registered for the user; must not panic.
	hub.SendToUser("nobody", []byte("ping"))
}
