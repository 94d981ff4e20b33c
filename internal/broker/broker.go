// ABOUTME: Broker core: construction, lifecycle, bookkeeping subscriptions, listeners
// ABOUTME: One explicitly constructed instance per process, no package singletons

package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wanderhub/wanderhub-chat/internal/backplane"
	"github.com/wanderhub/wanderhub-chat/internal/channel"
	"github.com/wanderhub/wanderhub-chat/internal/dedupe"
)

// ErrClosed is returned when publishing through a closed broker.
var ErrClosed = errors.New("broker closed")

// Options tunes the broker's dedup state and retry behavior. Zero values
// select defaults.
type Options struct {
	DedupTTL         time.Duration // processed-record TTL, default 30m
	IndexSize        int           // content-hash index bound, default 10,000
	WindowSpan       time.Duration // topic/content window, default 5s
	AfterCommitRetry RetryPolicy   // policy for deferred publishes, default DefaultRetryPolicy
}

// Broker is the publish/subscribe façade over the backplane. It owns the
// single process-wide pattern subscription; room and user "subscriptions"
// are local bookkeeping only and never touch the backplane subscription.
type Broker struct {
	bp     backplane.Backplane
	logger *slog.Logger

	// publishMu guards the whole check/publish/record sequence of
	// PublishMessage. The invariant spans the three steps together, not any
	// individual map operation.
	publishMu sync.Mutex
	index     *dedupe.Index
	window    *dedupe.Window
	idCounter atomic.Uint64

	afterCommitRetry RetryPolicy

	mu        sync.RWMutex
	rooms     map[string]struct{}
	users     map[string]struct{}
	listeners []Listener
	forwarder Forwarder

	lifecycle sync.Mutex
	sub       io.Closer
	done      chan struct{}
	wg        sync.WaitGroup
	started   bool
	closed    bool
}

// New creates a broker over the given backplane. The forwarder must be set
// with SetForwarder before Start.
func New(bp backplane.Backplane, opts Options, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DedupTTL == 0 {
		opts.DedupTTL = dedupe.DefaultTTL
	}
	if opts.IndexSize == 0 {
		opts.IndexSize = dedupe.DefaultMaxSize
	}
	if opts.WindowSpan == 0 {
		opts.WindowSpan = dedupe.DefaultWindow
	}
	if opts.AfterCommitRetry.MaxAttempts == 0 {
		opts.AfterCommitRetry = DefaultRetryPolicy()
	}

	return &Broker{
		bp:               bp,
		logger:           logger.With("component", "broker"),
		index:            dedupe.NewIndex(opts.DedupTTL, opts.IndexSize),
		window:           dedupe.NewWindow(opts.WindowSpan),
		afterCommitRetry: opts.AfterCommitRetry,
		rooms:            make(map[string]struct{}),
		users:            make(map[string]struct{}),
		done:             make(chan struct{}),
	}
}

// SetForwarder wires the transport-delivery callback. Must be called before
// Start.
func (b *Broker) SetForwarder(fw Forwarder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwarder = fw
}

// Start registers the process-wide pattern subscription over both channel
// prefixes and launches the maintenance goroutine.
func (b *Broker) Start(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}

	sub, err := b.bp.PSubscribe(ctx, b.OnMessage, channel.RoomPattern, channel.UserPattern)
	if err != nil {
		return fmt.Errorf("starting broker: %w", err)
	}
	b.sub = sub

	b.wg.Add(1)
	go b.maintain()

	b.started = true
	b.logger.Info("broker started")
	return nil
}

// Close stops maintenance, tears down the pattern subscription, releases
// all tracked bookkeeping subscriptions, and clears the dedup state. Safe
// to call repeatedly.
func (b *Broker) Close() error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	b.wg.Wait()

	if b.sub != nil {
		if err := b.sub.Close(); err != nil {
			b.logger.Warn("closing pattern subscription", "error", err)
		}
	}

	b.mu.Lock()
	rooms := len(b.rooms)
	users := len(b.users)
	b.rooms = make(map[string]struct{})
	b.users = make(map[string]struct{})
	b.listeners = nil
	b.mu.Unlock()

	b.logger.Info("broker closed", "released_rooms", rooms, "released_users", users)
	return nil
}

// SubscribeRoom flags the room as locally interesting. Returns whether the
// state actually changed. Pure bookkeeping: the backplane subscription is
// untouched.
func (b *Broker) SubscribeRoom(roomID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.rooms[roomID]; ok {
		return false
	}
	b.rooms[roomID] = struct{}{}
	return true
}

// UnsubscribeRoom clears the room's local-interest flag. Unsubscribing an
// untracked room is not an error.
func (b *Broker) UnsubscribeRoom(roomID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.rooms[roomID]; !ok {
		b.logger.Debug("unsubscribe of untracked room", "room_id", roomID)
		return false
	}
	delete(b.rooms, roomID)
	return true
}

// SubscribeUser flags the user as locally interesting.
func (b *Broker) SubscribeUser(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[userID]; ok {
		return false
	}
	b.users[userID] = struct{}{}
	return true
}

// UnsubscribeUser clears the user's local-interest flag.
func (b *Broker) UnsubscribeUser(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[userID]; !ok {
		b.logger.Debug("unsubscribe of untracked user", "user_id", userID)
		return false
	}
	delete(b.users, userID)
	return true
}

// TrackedRooms returns a snapshot of the rooms flagged as locally
// interesting.
func (b *Broker) TrackedRooms() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.rooms))
	for roomID := range b.rooms {
		out = append(out, roomID)
	}
	return out
}

// TrackedUsers returns a snapshot of the users flagged as locally
// interesting.
func (b *Broker) TrackedUsers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.users))
	for userID := range b.users {
		out = append(out, userID)
	}
	return out
}

// RegisterListener adds a delivery listener. Listeners accumulate; there is
// no replacement or removal, matching their process-lifetime registration
// at start-up.
func (b *Broker) RegisterListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Stats is a point-in-time snapshot of the broker's tracked state. Counts
// are read without a global lock and may be mutually inconsistent.
type Stats struct {
	TrackedRooms  int
	TrackedUsers  int
	IndexEntries  int
	WindowEntries int
}

// Stats returns the current bookkeeping counts.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	rooms := len(b.rooms)
	users := len(b.users)
	b.mu.RUnlock()

	return Stats{
		TrackedRooms:  rooms,
		TrackedUsers:  users,
		IndexEntries:  b.index.Len(),
		WindowEntries: b.window.Len(),
	}
}

// mintID builds a time-based composite message id. Unique within the
// process, monotonic-ish, not gap-free.
func (b *Broker) mintID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixMilli(), b.idCounter.Add(1))
}

// contentHash fingerprints a (topic, serialized payload) pair.
func contentHash(topic string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(topic))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
