// ABOUTME: Inbound dispatch for every message matching the pattern subscription
// ABOUTME: Consumer-side dedup, prefix classification, listener and transport fan-out

package broker

import (
	"encoding/json"
	"time"

	"github.com/wanderhub/wanderhub-chat/internal/channel"
	"github.com/wanderhub/wanderhub-chat/internal/dedupe"
)

// OnMessage handles one inbound backplane push. Failures are isolated per
// message and never propagate past this entry point: one malformed payload
// cannot stall the listener or subsequent messages.
func (b *Broker) OnMessage(topic string, raw []byte) {
	payload := unwrapDoubleEncoded(raw)
	hash := contentHash(topic, payload)

	// Consumer-side dedup: the short window catches rapid republishes, the
	// index catches anything already processed inside its TTL.
	if b.window.Observe(topic, hash) {
		b.logger.Debug("inbound duplicate inside window, discarded", "topic", topic)
		return
	}
	if _, ok := b.index.Lookup(hash); ok {
		b.logger.Debug("inbound duplicate already processed, discarded", "topic", topic)
		return
	}

	// The consumer mints its own id: it never matches the producer's id
	// for the same logical event.
	id := b.mintID()
	b.index.Insert(dedupe.Record{
		ID:          id,
		Topic:       topic,
		Hash:        hash,
		ProcessedAt: time.Now(),
	})

	b.dispatchListeners(topic, payload, id)

	switch {
	case channel.IsRoom(topic):
		b.forwardRoom(topic, payload)
	case channel.IsUser(topic):
		b.forwardUser(topic, payload)
	default:
		b.logger.Debug("inbound message on unclassified topic", "topic", topic)
	}
}

// unwrapDoubleEncoded strips exactly one layer of JSON string quoting from
// payloads that were serialized twice. A singly-encoded payload passes
// through unchanged.
func unwrapDoubleEncoded(raw []byte) []byte {
	if len(raw) == 0 || raw[0] != '"' {
		return raw
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return raw
	}
	return []byte(inner)
}

func (b *Broker) dispatchListeners(topic string, payload []byte, messageID string) {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		if l.Matches(topic, payload) {
			l.Deliver(topic, payload, messageID)
		}
	}
}

// forwardRoom decodes and forwards a room event to the room broadcast
// destination. Decode failure is logged and skipped for this leg only.
func (b *Broker) forwardRoom(topic string, payload []byte) {
	var msg RoomMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("undecodable room message, skipped",
			"topic", topic,
			"error", err)
		return
	}

	roomID := msg.RoomID
	if roomID == "" {
		roomID = channel.RoomID(topic)
	}

	fw := b.currentForwarder()
	if fw != nil {
		fw.BroadcastToRoom(roomID, payload)
	}
}

// forwardUser decodes and forwards a user event to the addressed user's
// private queue destination.
func (b *Broker) forwardUser(topic string, payload []byte) {
	var msg DirectMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("undecodable user message, skipped",
			"topic", topic,
			"error", err)
		return
	}

	userID := msg.UserID
	if userID == "" {
		userID = channel.UserID(topic)
	}

	fw := b.currentForwarder()
	if fw != nil {
		fw.SendToUser(userID, payload)
	}
}

func (b *Broker) currentForwarder() Forwarder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.forwarder
}
