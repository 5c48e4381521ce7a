package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/store/badgerstore"
	"github.com/huddlekit/huddle-server/internal/v1/transport"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

func newTestStore(t *testing.T) *badgerstore.Store {
	t.Helper()
	st, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(newTestStore(t), nil)
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(newTestService(t))
}

// seedProfile writes an identity-owned profile through the concrete store
// type; the repository contract itself is read-only.
func seedProfile(t *testing.T, st store.Store, profile *store.UserProfile) {
	t.Helper()
	seeder, ok := st.Users().(interface {
		Put(ctx context.Context, profile *store.UserProfile) error
	})
	require.True(t, ok, "store users repository does not support seeding")
	require.NoError(t, seeder.Put(context.Background(), profile))
}

// sentEvent is one frame queued on a fake session.
type sentEvent struct {
	Event   string
	Payload json.RawMessage
}

// fakeSession implements types.SessionHandle and records everything sent to
// it. Route runs handlers inline, so recordings are synchronous.
type fakeSession struct {
	id   types.SessionID
	user *types.User
	ctx  context.Context

	mu     sync.Mutex
	events []sentEvent
	closed bool
}

func newFakeSession(id types.SessionID, user *types.User) *fakeSession {
	return &fakeSession{id: id, user: user, ctx: context.Background()}
}

func (f *fakeSession) ID() types.SessionID      { return f.id }
func (f *fakeSession) User() *types.User        { return f.user }
func (f *fakeSession) Context() context.Context { return f.ctx }

func (f *fakeSession) SendEvent(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	f.record(sentEvent{Event: event, Payload: data})
}

func (f *fakeSession) SendPrepared(event string, data []byte) {
	var env transport.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		panic(err)
	}
	f.record(sentEvent{Event: event, Payload: env.Payload})
}

func (f *fakeSession) SendError(e *types.Error) {
	f.SendEvent("error", e)
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSession) record(ev sentEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// eventsNamed returns every recorded frame with the given event name.
func (f *fakeSession) eventsNamed(event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, ev := range f.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

// lastEvent decodes the most recent frame with the given name into out and
// fails the test when none was sent.
func (f *fakeSession) lastEvent(t *testing.T, event string, out any) {
	t.Helper()
	evs := f.eventsNamed(event)
	require.NotEmpty(t, evs, "no %s event was sent to session %s", event, f.id)
	require.NoError(t, json.Unmarshal(evs[len(evs)-1].Payload, out))
}

// errorCodes returns the codes of every error event sent to the session.
func (f *fakeSession) errorCodes(t *testing.T) []types.Code {
	t.Helper()
	var out []types.Code
	for _, ev := range f.eventsNamed("error") {
		var we types.Error
		require.NoError(t, json.Unmarshal(ev.Payload, &we))
		out = append(out, we.Code)
	}
	return out
}

func (f *fakeSession) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

// route wraps an event payload into an envelope and dispatches it.
func route(t *testing.T, h *Hub, sess *fakeSession, event string, payload any) {
	t.Helper()
	env, err := transport.NewEnvelope(event, payload)
	require.NoError(t, err)
	h.Route(sess.Context(), sess, env)
}

// --- repository overrides for degraded-store paths ---

// indexlessRooms fails ordered listings the way a backend without composite
// indexes does.
type indexlessRooms struct {
	store.ChatRooms
}

func (indexlessRooms) ListPublic(context.Context) ([]*store.ChatRoom, error) {
	return nil, store.ErrIndexMissing
}

func (indexlessRooms) ListPrivateByParticipant(context.Context, types.UserID) ([]*store.ChatRoom, error) {
	return nil, store.ErrIndexMissing
}

// indexlessMessages fails the ordered history query.
type indexlessMessages struct {
	store.Messages
}

func (indexlessMessages) ListByRoom(context.Context, types.RoomID, int, *store.MessageCursor) ([]*store.ChatMessage, error) {
	return nil, store.ErrIndexMissing
}

// collidingRooms reports every code as taken, starving the generator.
type collidingRooms struct {
	store.ChatRooms
}

func (collidingRooms) GetByCode(_ context.Context, code types.RoomCode) (*store.ChatRoom, error) {
	return &store.ChatRoom{ID: "occupied", Code: code}, nil
}
