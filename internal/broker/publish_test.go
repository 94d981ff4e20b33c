// ABOUTME: Tests for the after-commit publish path against a real unit of work
// ABOUTME: Publishes must wait for the commit and vanish on rollback

package broker

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/wanderhub/wanderhub-chat/internal/backplane"
	"github.com/wanderhub/wanderhub-chat/internal/txn"
)

func testTxnManager(t *testing.T) *txn.Manager {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return txn.NewManager(db, nil)
}

func TestPublishAfterCommit_DeferredUntilCommit(t *testing.T) {
	b, bp, _ := newTestBroker(t)
	m := testTxnManager(t)

	uow, err := m.Begin(context.Background())
	require.NoError(t, err)
	ctx := txn.WithContext(context.Background(), uow)

	require.NoError(t, b.PublishToRoomAfterCommit(ctx, "42", RoomMessage{Body: "later"}))
	assert.Equal(t, 0, bp.PublishAttempts(), "nothing sent before commit")

	require.NoError(t, uow.Commit())
	assert.Equal(t, 1, bp.PublishAttempts())
	assert.Len(t, bp.PublishedTo("chat:room:42"), 1)
}

func TestPublishAfterCommit_RollbackDiscards(t *testing.T) {
	b, bp, _ := newTestBroker(t)
	m := testTxnManager(t)

	uow, err := m.Begin(context.Background())
	require.NoError(t, err)
	ctx := txn.WithContext(context.Background(), uow)

	require.NoError(t, b.PublishToUserAfterCommit(ctx, "alice", DirectMessage{UserID: "alice"}))
	require.NoError(t, uow.Rollback())

	assert.Equal(t, 0, bp.PublishAttempts())
}

func TestPublishAfterCommit_FailureDoesNotFailRequest(t *testing.T) {
	// A deferred publish that exhausts its retries only logs; the commit
	// already succeeded and the original request must not fail.
	bp := backplane.NewMock()
	b := New(bp, Options{AfterCommitRetry: fastPolicy(3)}, nil)
	defer b.Close()
	m := testTxnManager(t)
	bp.FailPublishes = 100

	uow, err := m.Begin(context.Background())
	require.NoError(t, err)
	ctx := txn.WithContext(context.Background(), uow)

	require.NoError(t, b.PublishToRoomAfterCommit(ctx, "42", RoomMessage{Body: "doomed"}))
	require.NoError(t, uow.Commit())

	assert.Equal(t, 3, bp.PublishAttempts())
}
