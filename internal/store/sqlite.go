// ABOUTME: SQLite implementation of MessageStore using modernc.org/sqlite
// ABOUTME: Creates the schema on open; WAL mode for concurrent readers

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/wanderhub/wanderhub-chat/internal/txn"
)

// SQLiteStore implements MessageStore over a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path. Parent
// directories are created as needed. Use ":memory:" for tests.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id          TEXT PRIMARY KEY,
		room_id     TEXT NOT NULL,
		sender_id   TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		body        TEXT NOT NULL,
		body_html   TEXT NOT NULL DEFAULT '',
		sequence    INTEGER NOT NULL,
		created_at  TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_room_seq
		ON chat_messages(room_id, sequence);

	CREATE TABLE IF NOT EXISTS room_unread (
		user_id TEXT NOT NULL,
		room_id TEXT NOT NULL,
		count   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, room_id)
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// DB exposes the handle for the unit-of-work manager.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveMessage persists the message through the given execer.
func (s *SQLiteStore) SaveMessage(ctx context.Context, ex txn.Execer, msg *ChatMessage) error {
	if ex == nil {
		ex = s.db
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO chat_messages (id, room_id, sender_id, sender_name, body, body_html, sequence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Body, msg.BodyHTML, msg.Sequence, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving message %s: %w", msg.ID, err)
	}
	return nil
}

// GetMessage fetches one message by id.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*ChatMessage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, room_id, sender_id, sender_name, body, body_html, sequence, created_at
		FROM chat_messages WHERE id = ?`, id)

	var msg ChatMessage
	err := row.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName,
		&msg.Body, &msg.BodyHTML, &msg.Sequence, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}
	return &msg, nil
}

// ListRoomMessages returns up to limit recent messages in ascending
// sequence order.
func (s *SQLiteStore) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]*ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, sender_name, body, body_html, sequence, created_at
		FROM (
			SELECT * FROM chat_messages WHERE room_id = ?
			ORDER BY sequence DESC LIMIT ?
		) ORDER BY sequence ASC`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages for room %s: %w", roomID, err)
	}
	defer rows.Close()

	var out []*ChatMessage
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName,
			&msg.Body, &msg.BodyHTML, &msg.Sequence, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

// IncrementUnread bumps the unread count for every tracked member of the
// room except the sender. Only (user, room) pairs that have ever read the
// room are tracked; untracked users simply fetch history on open.
func (s *SQLiteStore) IncrementUnread(ctx context.Context, roomID, exceptUserID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE room_unread SET count = count + 1
		WHERE room_id = ? AND user_id <> ?`, roomID, exceptUserID)
	if err != nil {
		return fmt.Errorf("incrementing unread for room %s: %w", roomID, err)
	}
	return nil
}

// UnreadCount returns the user's unread count for a room.
func (s *SQLiteStore) UnreadCount(ctx context.Context, userID, roomID string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT count FROM room_unread WHERE user_id = ? AND room_id = ?`, userID, roomID)

	var count int64
	err := row.Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading unread count: %w", err)
	}
	return count, nil
}

// MarkRead resets the user's unread count and starts tracking the pair.
func (s *SQLiteStore) MarkRead(ctx context.Context, userID, roomID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_unread (user_id, room_id, count) VALUES (?, ?, 0)
		ON CONFLICT (user_id, room_id) DO UPDATE SET count = 0`, userID, roomID)
	if err != nil {
		return fmt.Errorf("marking room %s read for %s: %w", roomID, userID, err)
	}
	return nil
}
