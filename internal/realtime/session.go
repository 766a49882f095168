// Package realtime owns live WebSocket sessions: the per-user connection
// registry, the presence router that writes frames to live sessions, and the
// protocol handler that runs one read loop per connection.
package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-dm-backend/internal/protocol"
)

// CloseSessionReplaced is sent to a session displaced by a newer connect of
// the same user.
const CloseSessionReplaced = 4000

// ErrSessionClosed is returned by writes on a session that is no longer alive.
var ErrSessionClosed = errors.New("session closed")

// Conn is the subset of *websocket.Conn a Session needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session is one live connection of one user. Data writes are serialized by
// a mutex; control frames go through WriteControl, which gorilla/websocket
// allows concurrently with other writes.
type Session struct {
	ID     string
	UserID string

	conn         Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	alive     atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	log zerolog.Logger
}

// NewSession wraps conn for userID.
func NewSession(userID string, conn Conn, writeTimeout time.Duration) *Session {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	s := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		conn:         conn,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	s.alive.Store(true)
	s.log = log.With().Str("user_id", userID).Str("session_id", s.ID).Logger()
	return s
}

// Alive reports whether the session still accepts writes.
func (s *Session) Alive() bool { return s.alive.Load() }

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Logger returns the session-scoped logger.
func (s *Session) Logger() *zerolog.Logger { return &s.log }

// Send encodes f and writes it as a text frame.
func (s *Session) Send(f protocol.Outbound) error {
	b, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	return s.WriteRaw(b)
}

// WriteRaw writes an already encoded frame. A failed write marks the session
// dead; later writes fail fast with ErrSessionClosed.
func (s *Session) WriteRaw(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive.Load() {
		return ErrSessionClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		s.alive.Store(false)
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.alive.Store(false)
		return err
	}
	return nil
}

// Ping sends a ping control frame.
func (s *Session) Ping() error {
	if !s.alive.Load() {
		return ErrSessionClosed
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

// Close sends a close frame with code and reason, then closes the
// connection. Only the first call has any effect.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.alive.Store(false)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
		_ = s.conn.Close()
		close(s.done)
		s.log.Debug().Int("code", code).Str("reason", reason).Msg("session closed")
	})
}
