// ABOUTME: Tests for broker construction, bookkeeping, and the duplicate-suppressing publish path
// ABOUTME: Validates the idempotence property and subscription state transitions

package broker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderhub/wanderhub-chat/internal/backplane"
)

// recordingForwarder captures transport-delivery callbacks.
type recordingForwarder struct {
	mu        sync.Mutex
	roomCalls []forwardCall
	userCalls []forwardCall
}

type forwardCall struct {
	target  string
	payload []byte
}

func (f *recordingForwarder) BroadcastToRoom(roomID string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomCalls = append(f.roomCalls, forwardCall{target: roomID, payload: payload})
}

func (f *recordingForwarder) SendToUser(userID string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls = append(f.userCalls, forwardCall{target: userID, payload: payload})
}

func (f *recordingForwarder) rooms() []forwardCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]forwardCall, len(f.roomCalls))
	copy(out, f.roomCalls)
	return out
}

func (f *recordingForwarder) users() []forwardCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]forwardCall, len(f.userCalls))
	copy(out, f.userCalls)
	return out
}

func newTestBroker(t *testing.T) (*Broker, *backplane.Mock, *recordingForwarder) {
	t.Helper()

	bp := backplane.NewMock()
	fw := &recordingForwarder{}
	b := New(bp, Options{}, nil)
	b.SetForwarder(fw)
	t.Cleanup(func() { b.Close() })
	return b, bp, fw
}

func TestBroker_Publish(t *testing.T) {
	b, bp, _ := newTestBroker(t)

	err := b.PublishToRoom(context.Background(), "42", RoomMessage{RoomID: "42", Body: "hello"})
	require.NoError(t, err)

	payloads := bp.PublishedTo("chat:room:42")
	require.Len(t, payloads, 1)
	assert.Contains(t, string(payloads[0]), `"hello"`)
}

func TestBroker_Publish_TransportFailureFatal(t *testing.T) {
	b, bp, _ := newTestBroker(t)
	bp.FailPublishes = 1

	err := b.PublishToUser(context.Background(), "alice", DirectMessage{UserID: "alice"})
	assert.Error(t, err)
}

func TestBroker_PublishMessage_Idempotent(t *testing.T) {
	// Publishing identical (topic, content) twice inside the dedup window
	// triggers exactly one underlying send and returns the same id both times.
	b, bp, _ := newTestBroker(t)
	msg := RoomMessage{RoomID: "42", Type: RoomEventMessage, Body: "once"}

	id1, err := b.PublishMessage(context.Background(), "chat:room:42", msg)
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := b.PublishMessage(context.Background(), "chat:room:42", msg)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, bp.PublishAttempts())
}

func TestBroker_PublishMessage_DistinctContent(t *testing.T) {
	b, bp, _ := newTestBroker(t)

	id1, err := b.PublishMessage(context.Background(), "chat:room:42", RoomMessage{Body: "one"})
	require.NoError(t, err)
	id2, err := b.PublishMessage(context.Background(), "chat:room:42", RoomMessage{Body: "two"})
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, bp.PublishAttempts())
}

func TestBroker_PublishMessage_TopicsIndependent(t *testing.T) {
	b, bp, _ := newTestBroker(t)
	msg := RoomMessage{Body: "same"}

	_, err := b.PublishMessage(context.Background(), "chat:room:1", msg)
	require.NoError(t, err)
	_, err = b.PublishMessage(context.Background(), "chat:room:2", msg)
	require.NoError(t, err)

	assert.Equal(t, 2, bp.PublishAttempts())
}

func TestBroker_PublishMessage_TransportFailure(t *testing.T) {
	b, bp, _ := newTestBroker(t)
	bp.FailPublishes = 1

	_, err := b.PublishMessage(context.Background(), "chat:room:42", RoomMessage{Body: "x"})
	require.Error(t, err)

	// The failed attempt must not leave a record behind: the next publish
	// of the same content goes out.
	id, err := b.PublishMessage(context.Background(), "chat:room:42", RoomMessage{Body: "x"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestBroker_SubscribeRoom_Idempotent(t *testing.T) {
	b, _, _ := newTestBroker(t)

	assert.True(t, b.SubscribeRoom("42"))
	assert.False(t, b.SubscribeRoom("42"))
	assert.ElementsMatch(t, []string{"42"}, b.TrackedRooms())

	assert.True(t, b.UnsubscribeRoom("42"))
	assert.False(t, b.UnsubscribeRoom("42"))
	assert.Empty(t, b.TrackedRooms())
}

func TestBroker_SubscribeUser_Idempotent(t *testing.T) {
	b, _, _ := newTestBroker(t)

	assert.True(t, b.SubscribeUser("alice"))
	assert.False(t, b.SubscribeUser("alice"))
	assert.True(t, b.UnsubscribeUser("alice"))
	assert.False(t, b.UnsubscribeUser("alice"))
}

func TestBroker_Stats(t *testing.T) {
	b, _, _ := newTestBroker(t)

	b.SubscribeRoom("1")
	b.SubscribeRoom("2")
	b.SubscribeUser("alice")

	s := b.Stats()
	assert.Equal(t, 2, s.TrackedRooms)
	assert.Equal(t, 1, s.TrackedUsers)
}

func TestBroker_StartClose_Lifecycle(t *testing.T) {
	bp := backplane.NewMock()
	b := New(bp, Options{}, nil)
	b.SetForwarder(&recordingForwarder{})

	require.NoError(t, b.Start(context.Background()))
	b.SubscribeRoom("42")
	b.SubscribeUser("alice")

	require.NoError(t, b.Close())
	assert.Empty(t, b.TrackedRooms())
	assert.Empty(t, b.TrackedUsers())

	// Close is idempotent, and a closed broker refuses to restart.
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Start(context.Background()), ErrClosed)
}

func TestBroker_PublishAfterCommit_NoUnitOfWork(t *testing.T) {
	// With no active unit of work the publish happens immediately.
	b, bp, _ := newTestBroker(t)

	err := b.PublishToRoomAfterCommit(context.Background(), "42", RoomMessage{Body: "now"})
	require.NoError(t, err)
	assert.Equal(t, 1, bp.PublishAttempts())
}
