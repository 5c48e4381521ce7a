package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/metrics"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 5 * time.Second

	// pongWait is how long a connection may stay silent before the read
	// deadline kills it. Pings go out at pingPeriod to keep healthy
	// connections inside that window.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// maxMessageSize caps inbound frames at 64 KiB.
	maxMessageSize = 64 * 1024

	// sendBuffer is the per-session outbound queue. A full queue drops the
	// event rather than blocking the fanout path.
	sendBuffer = 256
)

// wsConnection is the slice of *websocket.Conn the pumps need. Tests
// substitute a scripted implementation.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Session is one live duplex connection. A user may hold any number of
// sessions; all per-connection state lives here, all domain state lives in
// the engines. Session implements types.SessionHandle.
type Session struct {
	id   types.SessionID
	user *types.User

	conn   wsConnection
	router Router
	send   chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewSession wires a connection to a router. Call Run to start the pumps.
func NewSession(id types.SessionID, conn wsConnection, router Router, user *types.User) *Session {
	ctx := context.WithValue(context.Background(), logging.SessionIDKey, string(id))
	ctx = context.WithValue(ctx, logging.UserIDKey, string(user.ID))
	ctx, cancel := context.WithCancel(ctx)

	return &Session{
		id:     id,
		user:   user,
		conn:   conn,
		router: router,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID returns the session identifier minted at handshake time.
func (s *Session) ID() types.SessionID {
	return s.id
}

// User returns the descriptor attached during authentication.
func (s *Session) User() *types.User {
	return s.user
}

// Context is canceled when the session disconnects. Handlers derive
// per-operation deadlines from it.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Run starts the read and write pumps and returns immediately.
func (s *Session) Run() {
	metrics.IncConnection()
	go s.writePump()
	go s.readPump()
}

// SendEvent marshals payload and queues it on this session.
func (s *Session) SendEvent(event string, payload any) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		logging.Error(s.ctx, "failed to encode event payload", zap.String("event", event), zap.Error(err))
		return
	}
	data, err := env.Encode()
	if err != nil {
		logging.Error(s.ctx, "failed to encode event envelope", zap.String("event", event), zap.Error(err))
		return
	}
	s.enqueue(event, data)
}

// SendPrepared queues an already-encoded envelope. Fanout paths encode once
// and hand the same bytes to every subscriber.
func (s *Session) SendPrepared(event string, data []byte) {
	s.enqueue(event, data)
}

// SendError queues an error event.
func (s *Session) SendError(wireErr *types.Error) {
	s.SendEvent("error", wireErr)
}

// Close tears the session down. Safe to call from any goroutine, any number
// of times. The write pump drains the queue, sends a close frame, and closes
// the connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		close(s.send)
	})
}

func (s *Session) enqueue(event string, data []byte) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	// Close can win the race after the check above; sending on the closed
	// channel panics and the recover turns it into a dropped event.
	defer func() {
		if r := recover(); r != nil {
			logging.GetLogger().Debug("dropped event for closing session",
				zap.String("event", event), zap.String("sessionId", string(s.id)))
		}
	}()

	select {
	case s.send <- data:
	default:
		metrics.FanoutDrops.WithLabelValues(event).Inc()
		logging.Warn(s.ctx, "session send buffer full, dropping event",
			zap.String("event", event), zap.String("sessionId", string(s.id)))
	}
}

func (s *Session) readPump() {
	defer func() {
		s.router.HandleDisconnect(s)
		s.Close()
		_ = s.conn.Close()
		metrics.DecConnection()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.GetLogger().Debug("session read ended", zap.String("sessionId", string(s.id)), zap.Error(err))
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.SendError(types.NewError(types.CodeValidationError, "malformed event frame"))
			continue
		}
		if env.Event == "" {
			s.SendError(types.NewError(types.CodeValidationError, "event name is required"))
			continue
		}

		s.router.Route(s.ctx, s, env)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.GetLogger().Debug("session write failed", zap.String("sessionId", string(s.id)), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
