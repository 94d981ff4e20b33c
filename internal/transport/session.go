// ABOUTME: One WebSocket connection as a session with a buffered outbound queue
// ABOUTME: Write pump owns the conn for writes; slow sessions fail Send instead of blocking

package transport

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// ErrSlowSession is returned by Send when the session's outbound queue is
// full. The caller drops the session rather than blocking fan-out on it.
var ErrSlowSession = errors.New("session send queue full")

// WSSession is one live WebSocket connection for one user.
type WSSession struct {
	id        string
	userID    string
	userName  string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewWSSession wraps an upgraded connection. Start the write pump with Run.
func NewWSSession(conn *websocket.Conn, userID, userName string, logger *slog.Logger) *WSSession {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &WSSession{
		id:       id,
		userID:   userID,
		userName: userName,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		logger:   logger.With("component", "transport", "session_id", id, "user_id", userID),
	}
}

// ID returns the session's unique id.
func (s *WSSession) ID() string { return s.id }

// UserID returns the authenticated user this session belongs to.
func (s *WSSession) UserID() string { return s.userID }

// UserName returns the display name presented at connect time.
func (s *WSSession) UserName() string { return s.userName }

// Send queues a payload for delivery. It never blocks: a full queue means
// the client is not keeping up and the session should be dropped.
func (s *WSSession) Send(payload []byte) error {
	select {
	case <-s.done:
		return errors.New("session closed")
	default:
	}

	select {
	case s.send <- payload:
		return nil
	default:
		return ErrSlowSession
	}
}

// Close tears the session down. Safe to call more than once.
func (s *WSSession) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Run is the write pump. It owns all writes to the connection, draining the
// send queue and keeping the connection alive with pings. Returns when the
// session closes or a write fails.
func (s *WSSession) Run() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug("session write failed", "error", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
