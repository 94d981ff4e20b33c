// ABOUTME: Per-room monotonic sequence numbers from the shared atomic counter
// ABOUTME: Single INCR round trip, safe under unbounded concurrency

package sequence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wanderhub/wanderhub-chat/internal/backplane"
	"github.com/wanderhub/wanderhub-chat/internal/channel"
)

// Allocator hands out strictly increasing sequence numbers per room. The
// increment primitive itself is atomic, so no transaction is needed and
// concurrent callers for the same room always see distinct values.
//
// The numbers order persisted history only. They do not order real-time
// fan-out: two quick publishes may still be observed in different relative
// order on different instances, and consumers needing strict order must
// re-sequence on read.
type Allocator struct {
	bp     backplane.Backplane
	logger *slog.Logger
}

// NewAllocator creates an allocator over the given backplane.
func NewAllocator(bp backplane.Backplane, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		bp:     bp,
		logger: logger.With("component", "sequence"),
	}
}

// Next returns the next sequence number for the room. A zero result from
// the counter means the room was never sequenced, and 1 is returned as a
// fail-safe floor. Backplane errors are returned to the caller rather than
// collapsed into the floor, so a transient outage cannot silently restart
// a room's numbering.
func (a *Allocator) Next(ctx context.Context, roomID string) (int64, error) {
	n, err := a.bp.Incr(ctx, channel.SequenceKey(roomID))
	if err != nil {
		return 0, fmt.Errorf("allocating sequence for room %s: %w", roomID, err)
	}
	if n <= 0 {
		a.logger.Warn("sequence counter returned non-positive value, using floor",
			"room_id", roomID,
			"value", n)
		return 1, nil
	}
	return n, nil
}
