// ABOUTME: Redis implementation of the Backplane interface using go-redis
// ABOUTME: Owns the process-wide pattern subscription delivery goroutine

package backplane

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Redis implements Backplane over a shared go-redis client.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
	closed atomic.Bool
}

// NewRedis creates a backplane over the given Redis address. The connection
// is verified with a PING before returning.
func NewRedis(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}

	return &Redis{
		client: client,
		logger: logger.With("component", "backplane"),
	}, nil
}

// Publish sends payload on the given channel.
func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// Incr atomically increments the counter at key.
func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	return n, nil
}

// SAdd adds members to the set at key.
func (r *Redis) SAdd(ctx context.Context, key string, members ...string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := r.client.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("adding to set %s: %w", key, err)
	}
	return nil
}

// SRem removes members from the set at key.
func (r *Redis) SRem(ctx context.Context, key string, members ...string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := r.client.SRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("removing from set %s: %w", key, err)
	}
	return nil
}

// Del removes the given keys and returns how many existed.
func (r *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("deleting keys: %w", err)
	}
	return n, nil
}

// PSubscribe starts a pattern subscription. Messages are delivered on a
// dedicated goroutine until the returned closer is closed.
func (r *Redis) PSubscribe(ctx context.Context, handler MessageHandler, patterns ...string) (io.Closer, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	pubsub := r.client.PSubscribe(ctx, patterns...)

	// Force the subscription to be established before returning so callers
	// cannot publish into a window where nothing is listening.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("establishing pattern subscription: %w", err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		for msg := range pubsub.Channel() {
			handler(msg.Channel, []byte(msg.Payload))
		}
	}()

	r.logger.Info("pattern subscription established", "patterns", patterns)
	return sub, nil
}

// Close releases the underlying Redis client. Operations after Close
// return ErrClosed instead of reaching the dead client.
func (r *Redis) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.client.Close()
}

// redisSubscription ties a pubsub handle to its delivery goroutine.
type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	done   chan struct{}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}
