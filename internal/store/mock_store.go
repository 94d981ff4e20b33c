// ABOUTME: In-memory MessageStore for tests
// ABOUTME: Mirrors the SQLite semantics closely enough for the send-path tests

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/wanderhub/wanderhub-chat/internal/txn"
)

// MockMessageStore is an in-memory MessageStore.
type MockMessageStore struct {
	mu       sync.Mutex
	messages map[string]*ChatMessage
	unread   map[string]int64 // userID+"\x00"+roomID -> count
	tracked  map[string]bool

	// FailSave makes SaveMessage fail when set.
	FailSave error
}

// NewMockMessageStore creates an empty mock store.
func NewMockMessageStore() *MockMessageStore {
	return &MockMessageStore{
		messages: make(map[string]*ChatMessage),
		unread:   make(map[string]int64),
		tracked:  make(map[string]bool),
	}
}

func unreadKey(userID, roomID string) string {
	return userID + "\x00" + roomID
}

// SaveMessage stores the message in memory. The execer is ignored.
func (m *MockMessageStore) SaveMessage(ctx context.Context, ex txn.Execer, msg *ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSave != nil {
		return m.FailSave
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

// GetMessage fetches one message by id.
func (m *MockMessageStore) GetMessage(ctx context.Context, id string) (*ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

// ListRoomMessages returns the room's messages in ascending sequence order.
func (m *MockMessageStore) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]*ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ChatMessage
	for _, msg := range m.messages {
		if msg.RoomID == roomID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// IncrementUnread bumps counts for tracked members except the sender.
func (m *MockMessageStore) IncrementUnread(ctx context.Context, roomID, exceptUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.tracked {
		userID, room := splitUnreadKey(key)
		if room == roomID && userID != exceptUserID {
			m.unread[key]++
		}
	}
	return nil
}

// UnreadCount returns the user's unread count for a room.
func (m *MockMessageStore) UnreadCount(ctx context.Context, userID, roomID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unread[unreadKey(userID, roomID)], nil
}

// MarkRead resets the count and tracks the pair.
func (m *MockMessageStore) MarkRead(ctx context.Context, userID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := unreadKey(userID, roomID)
	m.tracked[key] = true
	m.unread[key] = 0
	return nil
}

// MessageCount returns how many messages were saved.
func (m *MockMessageStore) MessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func splitUnreadKey(key string) (userID, roomID string) {
	for i := 0; i < len(key); i++ {
		if key[i] == 0 {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
