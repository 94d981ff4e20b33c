// ABOUTME: Synchronous retry-with-backoff around the plain publish path
// ABOUTME: Blocks the caller through every backoff sleep, bounded by the policy alone

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RetryPolicy bounds PublishWithRetry. The loop runs to completion or
// exhaustion; there is no external cancellation hook beyond the backplane
// client's own network timeouts.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns the standard policy: 3 attempts, 1s initial
// backoff, doubling, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		Multiplier:     2,
		MaxBackoff:     10 * time.Second,
	}
}

// PublishWithRetry publishes v on ch, retrying transient transport failures
// per the policy and sleeping the current backoff between attempts.
// Serialization failure is fatal immediately; exhausting the attempts
// returns the last transport error wrapped as fatal. Latency-sensitive call
// sites should run this from a background worker, not inline with a
// user-facing request.
func (b *Broker) PublishWithRetry(ctx context.Context, ch string, v any, policy RetryPolicy) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serializing payload for %s: %w", ch, err)
	}

	backoff := policy.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = b.bp.Publish(ctx, ch, payload)
		if lastErr == nil {
			if attempt > 1 {
				b.logger.Info("publish succeeded after retry",
					"channel", ch,
					"attempt", attempt)
			}
			return nil
		}

		if attempt < policy.MaxAttempts {
			b.logger.Warn("publish failed, backing off",
				"channel", ch,
				"attempt", attempt,
				"backoff", backoff,
				"error", lastErr)
			time.Sleep(backoff)

			backoff = time.Duration(float64(backoff) * policy.Multiplier)
			if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
				backoff = policy.MaxBackoff
			}
		}
	}

	return fmt.Errorf("publish to %s failed after %d attempts: %w", ch, policy.MaxAttempts, lastErr)
}
