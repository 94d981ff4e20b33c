// ABOUTME: Channel and key naming for the shared Redis backplane
// ABOUTME: Every instance must agree on these names bit for bit

package channel

import "strings"

// Channel name prefixes. The per-instance bookkeeping keys reuse the same
// prefixes with an instance id in place of a room/user id, so parsers must
// only be applied to names known to be pub/sub channels.
const (
	roomPrefix     = "chat:room:"
	userPrefix     = "chat:user:"
	sequencePrefix = "chat:sequence:"

	// RoomPattern and UserPattern are the two patterns covered by the
	// single process-wide backplane subscription.
	RoomPattern = "chat:room:*"
	UserPattern = "chat:user:*"
)

// Room returns the pub/sub channel carrying one room's live event stream.
func Room(roomID string) string {
	return roomPrefix + roomID
}

// User returns the pub/sub channel carrying one user's private events.
func User(userID string) string {
	return userPrefix + userID
}

// SequenceKey returns the counter key holding a room's message sequence.
func SequenceKey(roomID string) string {
	return sequencePrefix + roomID
}

// InstanceRoomsKey returns the backplane set key listing the rooms one
// instance currently has local interest in.
func InstanceRoomsKey(instanceID string) string {
	return roomPrefix + instanceID
}

// InstanceUsersKey returns the backplane set key listing the users one
// instance currently has local interest in.
func InstanceUsersKey(instanceID string) string {
	return userPrefix + instanceID
}

// IsRoom reports whether name is a room channel.
func IsRoom(name string) bool {
	return strings.HasPrefix(name, roomPrefix)
}

// IsUser reports whether name is a user channel.
func IsUser(name string) bool {
	return strings.HasPrefix(name, userPrefix)
}

// RoomID extracts the room id from a room channel name. Returns "" if the
// name is not a room channel.
func RoomID(name string) string {
	if !IsRoom(name) {
		return ""
	}
	return strings.TrimPrefix(name, roomPrefix)
}

// UserID extracts the user id from a user channel name. Returns "" if the
// name is not a user channel.
func UserID(name string) string {
	if !IsUser(name) {
		return ""
	}
	return strings.TrimPrefix(name, userPrefix)
}
