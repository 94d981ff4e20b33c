// ABOUTME: Unit of work over database/sql with ordered after-commit hooks
// ABOUTME: Hooks run only after a successful commit; rollback discards them

package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNotActive is returned when committing or rolling back a finished unit
// of work.
var ErrNotActive = errors.New("unit of work not active")

// Execer is the subset of database/sql used by persistence code, satisfied
// by both *sql.DB and *sql.Tx so stores work inside and outside a unit of
// work.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Manager begins units of work over a shared database handle.
type Manager struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewManager creates a unit-of-work manager.
func NewManager(db *sql.DB, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		db:     db,
		logger: logger.With("component", "txn"),
	}
}

// Begin starts a unit of work.
func (m *Manager) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning unit of work: %w", err)
	}
	return &UnitOfWork{
		tx:     tx,
		active: true,
		logger: m.logger,
	}, nil
}

// UnitOfWork wraps one database transaction and the side effects deferred
// to its commit. Not safe for concurrent use; a unit of work belongs to the
// request that began it.
type UnitOfWork struct {
	mu     sync.Mutex
	tx     *sql.Tx
	active bool
	hooks  []func()
	logger *slog.Logger
}

// Tx exposes the underlying transaction for persistence calls.
func (u *UnitOfWork) Tx() *sql.Tx {
	return u.tx
}

// Active reports whether the unit of work can still accept writes and hooks.
func (u *UnitOfWork) Active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active
}

// AfterCommit registers fn to run after a successful commit, in
// registration order. If the unit of work is no longer active the hook is
// dropped with a warning rather than run against uncommitted state.
func (u *UnitOfWork) AfterCommit(fn func()) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.active {
		u.logger.Warn("after-commit hook registered on finished unit of work, dropping")
		return
	}
	u.hooks = append(u.hooks, fn)
}

// Commit commits the transaction and then runs the after-commit hooks in
// order. A hook panic is recovered and logged so the remaining hooks still
// run; the commit itself has already succeeded at that point.
func (u *UnitOfWork) Commit() error {
	u.mu.Lock()
	if !u.active {
		u.mu.Unlock()
		return ErrNotActive
	}
	u.active = false
	hooks := u.hooks
	u.hooks = nil
	u.mu.Unlock()

	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("committing unit of work: %w", err)
	}

	for _, hook := range hooks {
		u.runHook(hook)
	}
	return nil
}

func (u *UnitOfWork) runHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("after-commit hook panicked", "panic", r)
		}
	}()
	fn()
}

// Rollback aborts the transaction and discards all registered hooks.
func (u *UnitOfWork) Rollback() error {
	u.mu.Lock()
	if !u.active {
		u.mu.Unlock()
		return ErrNotActive
	}
	u.active = false
	u.hooks = nil
	u.mu.Unlock()

	if err := u.tx.Rollback(); err != nil {
		return fmt.Errorf("rolling back unit of work: %w", err)
	}
	return nil
}

type contextKey struct{}

// WithContext returns a context carrying the unit of work.
func WithContext(ctx context.Context, u *UnitOfWork) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the unit of work carried by ctx, or nil.
func FromContext(ctx context.Context) *UnitOfWork {
	u, _ := ctx.Value(contextKey{}).(*UnitOfWork)
	return u
}
