// ABOUTME: MessageStore interface and the chat message entity
// ABOUTME: Writes accept an Execer so they run inside or outside a unit of work

package store

import (
	"context"
	"errors"
	"time"

	"github.com/wanderhub/wanderhub-chat/internal/txn"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ChatMessage is the persisted message entity. It is also serialized into
// history frames, so the tags match the wire casing of the live events.
type ChatMessage struct {
	ID         string    `json:"messageId"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Body       string    `json:"body"`
	BodyHTML   string    `json:"bodyHtml"`
	Sequence   int64     `json:"sequence"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MessageStore is the persistence collaborator the chat subsystem depends
// on. Implementations must be safe for concurrent use.
type MessageStore interface {
	// SaveMessage persists the message using the given execer, which may
	// be a transaction from the enclosing unit of work.
	SaveMessage(ctx context.Context, ex txn.Execer, msg *ChatMessage) error

	// GetMessage fetches one message by id.
	GetMessage(ctx context.Context, id string) (*ChatMessage, error)

	// ListRoomMessages returns the most recent messages for a room in
	// ascending sequence order, capped at limit.
	ListRoomMessages(ctx context.Context, roomID string, limit int) ([]*ChatMessage, error)

	// IncrementUnread bumps the unread count for every tracked member of
	// the room except the sender.
	IncrementUnread(ctx context.Context, roomID, exceptUserID string) error

	// UnreadCount returns the user's unread count for a room.
	UnreadCount(ctx context.Context, userID, roomID string) (int64, error)

	// MarkRead resets the user's unread count for a room and starts
	// tracking the pair if it was unknown.
	MarkRead(ctx context.Context, userID, roomID string) error
}
