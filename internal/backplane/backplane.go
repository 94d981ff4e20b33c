// ABOUTME: Backplane interface over the shared pub/sub and counter infrastructure
// ABOUTME: One long-lived client per process; the pattern listener is registered once

package backplane

import (
	"context"
	"errors"
	"io"
)

// ErrClosed is returned when an operation is attempted on a closed backplane.
var ErrClosed = errors.New("backplane closed")

// MessageHandler receives every message matching a pattern subscription.
// It is invoked from the subscription's own goroutine; implementations must
// not block for long.
type MessageHandler func(channel string, payload []byte)

// Backplane is the narrow surface the chat subsystem needs from the shared
// infrastructure. Implementations must be safe for concurrent use.
type Backplane interface {
	// Publish sends payload on the given channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Incr atomically increments the counter at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from the set at key.
	SRem(ctx context.Context, key string, members ...string) error

	// Del removes the given keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// PSubscribe registers a pattern subscription and starts delivering
	// matching messages to handler. The returned closer tears down the
	// subscription and its delivery goroutine.
	PSubscribe(ctx context.Context, handler MessageHandler, patterns ...string) (io.Closer, error)
}
