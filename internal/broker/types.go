// ABOUTME: Wire shapes carried on the room and user channels
// ABOUTME: JSON payloads shared by every instance and the UI destinations

package broker

import "time"

// Room event types.
const (
	RoomEventMessage = "message" // Chat message posted to the room
	RoomEventJoin    = "join"    // User joined the room
	RoomEventLeave   = "leave"   // User left the room
)

// Direct event kinds.
const (
	DirectEventNotification = "notification" // Private notification for one user
	DirectEventUnread       = "unread"       // Unread-count update for one room
)

// RoomMessage is the event shape carried on room channels and fanned out to
// the room's broadcast destination.
type RoomMessage struct {
	MessageID  string    `json:"messageId"`
	RoomID     string    `json:"roomId"`
	Type       string    `json:"type"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Body       string    `json:"body,omitempty"`
	BodyHTML   string    `json:"bodyHtml,omitempty"`
	Sequence   int64     `json:"sequence,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

// DirectMessage is the event shape carried on user channels and delivered
// to the addressed user's private queue destination.
type DirectMessage struct {
	MessageID   string    `json:"messageId"`
	UserID      string    `json:"userId"`
	Kind        string    `json:"kind"`
	RoomID      string    `json:"roomId,omitempty"`
	Body        string    `json:"body,omitempty"`
	UnreadCount int64     `json:"unreadCount,omitempty"`
	SentAt      time.Time `json:"sentAt"`
}

// Forwarder is the transport-delivery callback: successfully decoded room
// messages go to the room broadcast destination, user messages to the
// addressed user's private queue.
type Forwarder interface {
	BroadcastToRoom(roomID string, payload []byte)
	SendToUser(userID string, payload []byte)
}

// Listener receives a second pass over inbound traffic without subscribing
// to the backplane itself. Deliver is handed a freshly minted message id,
// independent of the producer's id for the same logical event.
type Listener interface {
	Matches(topic string, payload []byte) bool
	Deliver(topic string, payload []byte, messageID string)
}
