// ABOUTME: Chat send path: markdown render, sequence, persist, after-commit fan-out
// ABOUTME: Also the unread-counter second pass over inbound room traffic

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/wanderhub/wanderhub-chat/internal/broker"
	"github.com/wanderhub/wanderhub-chat/internal/channel"
	"github.com/wanderhub/wanderhub-chat/internal/sequence"
	"github.com/wanderhub/wanderhub-chat/internal/store"
	"github.com/wanderhub/wanderhub-chat/internal/txn"
)

// Service wires the persistence, sequencing, and fan-out collaborators
// behind the transport layer's message actions.
type Service struct {
	store    store.MessageStore
	alloc    *sequence.Allocator
	broker   *broker.Broker
	txnMgr   *txn.Manager
	logger   *slog.Logger
	markdown goldmark.Markdown
}

// NewService creates the chat service. txnMgr may be nil when no
// transactional store is configured; publishes then go out immediately.
func NewService(st store.MessageStore, alloc *sequence.Allocator, b *broker.Broker, txnMgr *txn.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		alloc:    alloc,
		broker:   b,
		txnMgr:   txnMgr,
		logger:   logger.With("component", "chat"),
		markdown: goldmark.New(),
	}
}

// SendMessage persists a message and schedules its room fan-out for after
// the commit, so other instances never see a message that fails to persist.
// Returns the saved entity.
func (s *Service) SendMessage(ctx context.Context, roomID, senderID, senderName, body string) (*store.ChatMessage, error) {
	bodyHTML, err := s.renderBody(body)
	if err != nil {
		return nil, fmt.Errorf("rendering message body: %w", err)
	}

	seq, err := s.alloc.Next(ctx, roomID)
	if err != nil {
		return nil, err
	}

	msg := &store.ChatMessage{
		ID:         uuid.New().String(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Body:       body,
		BodyHTML:   bodyHTML,
		Sequence:   seq,
		CreatedAt:  time.Now().UTC(),
	}

	event := broker.RoomMessage{
		MessageID:  msg.ID,
		RoomID:     roomID,
		Type:       broker.RoomEventMessage,
		SenderID:   senderID,
		SenderName: senderName,
		Body:       body,
		BodyHTML:   bodyHTML,
		Sequence:   seq,
		SentAt:     msg.CreatedAt,
	}

	if s.txnMgr == nil {
		if err := s.store.SaveMessage(ctx, nil, msg); err != nil {
			return nil, err
		}
		if err := s.broker.PublishToRoom(ctx, roomID, event); err != nil {
			return nil, err
		}
		return msg, nil
	}

	uow, err := s.txnMgr.Begin(ctx)
	if err != nil {
		return nil, err
	}
	ctx = txn.WithContext(ctx, uow)

	if err := s.store.SaveMessage(ctx, uow.Tx(), msg); err != nil {
		uow.Rollback()
		return nil, err
	}
	if err := s.broker.PublishToRoomAfterCommit(ctx, roomID, event); err != nil {
		uow.Rollback()
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// AnnouncePresence publishes a join or leave event for the room. Presence
// is ephemeral, so it skips persistence and goes out immediately.
func (s *Service) AnnouncePresence(ctx context.Context, roomID, userID, userName, eventType string) error {
	return s.broker.PublishToRoom(ctx, roomID, broker.RoomMessage{
		MessageID:  uuid.New().String(),
		RoomID:     roomID,
		Type:       eventType,
		SenderID:   userID,
		SenderName: userName,
		SentAt:     time.Now().UTC(),
	})
}

// NotifyUnread pushes the user's current unread count for a room to their
// private queue, retrying transient failures.
func (s *Service) NotifyUnread(ctx context.Context, userID, roomID string) error {
	count, err := s.store.UnreadCount(ctx, userID, roomID)
	if err != nil {
		return err
	}
	return s.broker.PublishWithRetry(ctx, channel.User(userID), broker.DirectMessage{
		MessageID:   uuid.New().String(),
		UserID:      userID,
		Kind:        broker.DirectEventUnread,
		RoomID:      roomID,
		UnreadCount: count,
		SentAt:      time.Now().UTC(),
	}, broker.DefaultRetryPolicy())
}

// MarkRead resets the user's unread counter for a room.
func (s *Service) MarkRead(ctx context.Context, userID, roomID string) error {
	return s.store.MarkRead(ctx, userID, roomID)
}

// History returns the most recent messages for a room in sequence order.
func (s *Service) History(ctx context.Context, roomID string, limit int) ([]*store.ChatMessage, error) {
	return s.store.ListRoomMessages(ctx, roomID, limit)
}

// BroadcastToRoom is the application-level second pass over inbound room
// traffic, registered with the broker through the session registry. Chat
// messages bump unread counters for the room's tracked members; other
// event types need no bookkeeping.
func (s *Service) BroadcastToRoom(roomID string, payload []byte) {
	var msg broker.RoomMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("undecodable room event in second pass",
			"room_id", roomID,
			"error", err)
		return
	}
	if msg.Type != broker.RoomEventMessage {
		return
	}

	if err := s.store.IncrementUnread(context.Background(), roomID, msg.SenderID); err != nil {
		s.logger.Warn("unread counter update failed",
			"room_id", roomID,
			"error", err)
	}
}

func (s *Service) renderBody(body string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
