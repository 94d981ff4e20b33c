// ABOUTME: Producer-side publish paths: plain, duplicate-suppressing, after-commit
// ABOUTME: Serialization or transport failure on the plain path is fatal to the caller

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wanderhub/wanderhub-chat/internal/channel"
	"github.com/wanderhub/wanderhub-chat/internal/dedupe"
	"github.com/wanderhub/wanderhub-chat/internal/txn"
)

// Publish serializes v and sends it on the given channel. Fire-and-forget:
// any failure is returned to the caller, who decides whether to fail the
// triggering request.
func (b *Broker) Publish(ctx context.Context, ch string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serializing payload for %s: %w", ch, err)
	}
	if err := b.bp.Publish(ctx, ch, payload); err != nil {
		return err
	}
	return nil
}

// PublishToRoom publishes v on the room's channel.
func (b *Broker) PublishToRoom(ctx context.Context, roomID string, v any) error {
	return b.Publish(ctx, channel.Room(roomID), v)
}

// PublishToUser publishes v on the user's channel.
func (b *Broker) PublishToUser(ctx context.Context, userID string, v any) error {
	return b.Publish(ctx, channel.User(userID), v)
}

// PublishMessage is the duplicate-suppressing publish path. The whole
// check/publish/record sequence runs under one lock: if an unexpired record
// for the same (topic, content) hash exists, the previously assigned id is
// returned and nothing is sent; otherwise the payload is published, a new
// composite id is minted, and the result is recorded.
func (b *Broker) PublishMessage(ctx context.Context, topic string, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serializing payload for %s: %w", topic, err)
	}
	hash := contentHash(topic, payload)

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	if rec, ok := b.index.Lookup(hash); ok {
		b.logger.Debug("duplicate publish suppressed",
			"topic", topic,
			"message_id", rec.ID)
		return rec.ID, nil
	}

	if err := b.bp.Publish(ctx, topic, payload); err != nil {
		return "", err
	}

	id := b.mintID()
	b.index.Insert(dedupe.Record{
		ID:          id,
		Topic:       topic,
		Hash:        hash,
		ProcessedAt: time.Now(),
	})
	b.window.Observe(topic, hash)
	return id, nil
}

// PublishAfterCommit defers the publish until the unit of work carried by
// ctx commits; with no active unit of work it publishes immediately. The
// deferred publish retries with the default policy and its failure is
// logged, never propagated: the original request already committed.
//
// This is a commit hook, not a durable outbox. A crash between the commit
// and the deferred publish loses the event.
func (b *Broker) PublishAfterCommit(ctx context.Context, ch string, v any) error {
	uow := txn.FromContext(ctx)
	if uow == nil || !uow.Active() {
		return b.Publish(ctx, ch, v)
	}

	uow.AfterCommit(func() {
		// The request context may be done by the time the hook runs.
		if err := b.PublishWithRetry(context.Background(), ch, v, b.afterCommitRetry); err != nil {
			b.logger.Error("after-commit publish failed",
				"channel", ch,
				"error", err)
		}
	})
	return nil
}

// PublishToRoomAfterCommit defers a room publish to the enclosing commit.
func (b *Broker) PublishToRoomAfterCommit(ctx context.Context, roomID string, v any) error {
	return b.PublishAfterCommit(ctx, channel.Room(roomID), v)
}

// PublishToUserAfterCommit defers a user publish to the enclosing commit.
func (b *Broker) PublishToUserAfterCommit(ctx context.Context, userID string, v any) error {
	return b.PublishAfterCommit(ctx, channel.User(userID), v)
}
