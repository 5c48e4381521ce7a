package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/huddlekit/huddle-server/internal/v1/types"
)

type readFrame struct {
	messageType int
	data        []byte
}

type writtenFrame struct {
	MessageType int
	Data        []byte
}

// mockConn implements wsConnection with scripted reads and recorded writes.
type mockConn struct {
	reads  chan readFrame
	writes chan writtenFrame

	mu        sync.Mutex
	readLimit int64
	closeOnce sync.Once
	closeCh   chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		reads:   make(chan readFrame, 16),
		writes:  make(chan writtenFrame, 64),
		closeCh: make(chan struct{}),
	}
}

// push queues an inbound frame for the read pump.
func (m *mockConn) push(messageType int, data []byte) {
	m.reads <- readFrame{messageType: messageType, data: data}
}

// nextWrite blocks until the write pump emits a frame.
func (m *mockConn) nextWrite(t *testing.T) writtenFrame {
	t.Helper()
	select {
	case f := <-m.writes:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a written frame")
		return writtenFrame{}
	}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-m.reads:
		return f.messageType, f.data, nil
	case <-m.closeCh:
		return 0, nil, errors.New("mock connection closed")
	}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.writes <- writtenFrame{MessageType: messageType, Data: cp}
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func (m *mockConn) SetReadLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readLimit = limit
}

func (m *mockConn) ReadLimit() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLimit
}

func (m *mockConn) SetReadDeadline(time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }
func (m *mockConn) SetPongHandler(func(string) error) {}

// mockRouter records connects, routed envelopes, and disconnects.
type mockRouter struct {
	mu          sync.Mutex
	connects    int
	routed      []Envelope
	disconnects int

	routedCh     chan Envelope
	disconnectCh chan types.SessionHandle

	// onRoute, when set, runs inside Route with the live session.
	onRoute func(ctx context.Context, sess types.SessionHandle, env Envelope)
}

func newMockRouter() *mockRouter {
	return &mockRouter{
		routedCh:     make(chan Envelope, 16),
		disconnectCh: make(chan types.SessionHandle, 16),
	}
}

func (m *mockRouter) HandleConnect(types.SessionHandle) {
	m.mu.Lock()
	m.connects++
	m.mu.Unlock()
}

func (m *mockRouter) Route(ctx context.Context, sess types.SessionHandle, env Envelope) {
	m.mu.Lock()
	m.routed = append(m.routed, env)
	m.mu.Unlock()

	if m.onRoute != nil {
		m.onRoute(ctx, sess, env)
	}
	m.routedCh <- env
}

func (m *mockRouter) HandleDisconnect(sess types.SessionHandle) {
	m.mu.Lock()
	m.disconnects++
	m.mu.Unlock()
	m.disconnectCh <- sess
}

func (m *mockRouter) routedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.routed)
}

func (m *mockRouter) connectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

func (m *mockRouter) disconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

func (m *mockRouter) nextRouted(t *testing.T) Envelope {
	t.Helper()
	select {
	case env := <-m.routedCh:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a routed envelope")
		return Envelope{}
	}
}

func (m *mockRouter) awaitDisconnect(t *testing.T) types.SessionHandle {
	t.Helper()
	select {
	case sess := <-m.disconnectCh:
		return sess
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a disconnect")
		return nil
	}
}
