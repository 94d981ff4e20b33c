// ABOUTME: Tests for the Redis backplane's closed-state guard
// ABOUTME: A go-redis client only dials on first command, so no server is needed

package backplane

import (
	"context"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedRedis(t *testing.T) *Redis {
	t.Helper()

	r := &Redis{
		client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}),
		logger: slog.Default(),
	}
	require.NoError(t, r.Close())
	return r
}

func TestRedis_OperationsAfterClose(t *testing.T) {
	r := closedRedis(t)
	ctx := context.Background()

	assert.ErrorIs(t, r.Publish(ctx, "chat:room:42", []byte("x")), ErrClosed)
	assert.ErrorIs(t, r.SAdd(ctx, "chat:room:inst-1", "42"), ErrClosed)
	assert.ErrorIs(t, r.SRem(ctx, "chat:room:inst-1", "42"), ErrClosed)

	_, err := r.Incr(ctx, "chat:sequence:42")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = r.Del(ctx, "chat:room:inst-1")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = r.PSubscribe(ctx, func(string, []byte) {}, "chat:room:*")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRedis_CloseIdempotent(t *testing.T) {
	r := closedRedis(t)
	assert.NoError(t, r.Close())
}
