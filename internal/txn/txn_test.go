// ABOUTME: Tests for the unit of work and its after-commit hooks
// ABOUTME: Uses an in-memory SQLite database as the transactional backend

package txn

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func testManager(t *testing.T) *Manager {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	return NewManager(db, nil)
}

func TestUnitOfWork_Commit_RunsHooksInOrder(t *testing.T) {
	m := testManager(t)

	uow, err := m.Begin(context.Background())
	require.NoError(t, err)

	var order []int
	uow.AfterCommit(func() { order = append(order, 1) })
	uow.AfterCommit(func() { order = append(order, 2) })
	uow.AfterCommit(func() { order = append(order, 3) })

	require.NoError(t, uow.Commit())
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestUnitOfWork_Rollback_DiscardsHooks(t *testing.T) {
	m := testManager(t)

	uow, err := m.Begin(context.Background())
	require.NoError(t, err)

	ran := false
	uow.AfterCommit(func() { ran = true })

	require.NoError(t, uow.Rollback())
	assert.False(t, ran)
	assert.False(t, uow.Active())
}

func TestUnitOfWork_Commit_PersistsWrites(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	uow, err := m.Begin(ctx)
	require.NoError(t, err)

	_, err = uow.Tx().ExecContext(ctx, "INSERT INTO items (name) VALUES (?)", "boat tour")
	require.NoError(t, err)
	require.NoError(t, uow.Commit())

	var count int
	require.NoError(t, m.db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUnitOfWork_DoubleCommit(t *testing.T) {
	m := testManager(t)

	uow, err := m.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, uow.Commit())
	assert.ErrorIs(t, uow.Commit(), ErrNotActive)
}

func TestUnitOfWork_HookPanicIsolated(t *testing.T) {
	m := testManager(t)

	uow, err := m.Begin(context.Background())
	require.NoError(t, err)

	ran := false
	uow.AfterCommit(func() { panic("boom") })
	uow.AfterCommit(func() { ran = true })

	require.NoError(t, uow.Commit())
	assert.True(t, ran, "hooks after a panicking hook must still run")
}

func TestUnitOfWork_AfterCommit_OnFinished(t *testing.T) {
	m := testManager(t)

	uow, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, uow.Commit())

	ran := false
	uow.AfterCommit(func() { ran = true })
	assert.False(t, ran, "hook on a finished unit of work is dropped")
}

func TestContext_RoundTrip(t *testing.T) {
	m := testManager(t)

	uow, err := m.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Rollback()

	ctx := WithContext(context.Background(), uow)
	assert.Same(t, uow, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
