package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/metrics"
	"github.com/huddlekit/huddle-server/internal/v1/transport"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// Hub owns the chat engine's live state: the session registry, the presence
// map, and the room subscription sets. All durable state goes through the
// Service.
//
// The lock is held only across in-memory bookkeeping. Broadcasts snapshot
// their targets under the lock and send outside it; store calls never run
// with the lock held.
type Hub struct {
	service *Service

	mu          sync.RWMutex
	sessions    map[types.SessionID]types.SessionHandle
	presence    map[types.UserID]set.Set[types.SessionID]
	roomSubs    map[types.RoomID]set.Set[types.SessionID]
	sessionSubs map[types.SessionID]set.Set[types.RoomID]
}

// NewHub builds an empty hub over the given service.
func NewHub(service *Service) *Hub {
	return &Hub{
		service:     service,
		sessions:    make(map[types.SessionID]types.SessionHandle),
		presence:    make(map[types.UserID]set.Set[types.SessionID]),
		roomSubs:    make(map[types.RoomID]set.Set[types.SessionID]),
		sessionSubs: make(map[types.SessionID]set.Set[types.RoomID]),
	}
}

// HandleConnect registers the session, attaches presence, and queues the
// initial room list. The transport calls this before the pumps start, so the
// client sees rooms:list before anything else.
func (h *Hub) HandleConnect(sess types.SessionHandle) {
	user := sess.User()

	h.mu.Lock()
	h.sessions[sess.ID()] = sess
	userSessions, known := h.presence[user.ID]
	if !known {
		userSessions = set.New[types.SessionID]()
		h.presence[user.ID] = userSessions
	}
	userSessions.Insert(sess.ID())

	var others []types.SessionHandle
	if !known {
		others = h.sessionsSnapshotLocked(sess.ID())
	}
	h.mu.Unlock()

	logging.Info(sess.Context(), "chat session connected",
		zap.String("displayName", user.DisplayName))

	// Only the user's first session flips them online.
	if !known {
		h.fanout(others, EventUserOnline, Presence{UserID: user.ID})
	}

	rooms, werr := h.service.ListVisibleRooms(sess.Context(), user.ID)
	if werr != nil {
		logging.Warn(sess.Context(), "failed to list rooms on connect", zap.String("code", string(werr.Code)))
		sess.SendError(werr)
		return
	}
	sess.SendEvent(EventRoomsList, RoomsList{Rooms: rooms})
}

// HandleDisconnect reverses HandleConnect: drop the session from every
// subscription and, when this was the user's last session, flip them
// offline. Room membership is durable and survives the disconnect, so no
// room:user-left is emitted here.
func (h *Hub) HandleDisconnect(sess types.SessionHandle) {
	user := sess.User()
	sid := sess.ID()

	h.mu.Lock()
	delete(h.sessions, sid)

	last := false
	if userSessions, ok := h.presence[user.ID]; ok {
		userSessions.Delete(sid)
		if userSessions.Len() == 0 {
			delete(h.presence, user.ID)
			last = true
		}
	}

	if roomIDs, ok := h.sessionSubs[sid]; ok {
		for roomID := range roomIDs {
			h.dropSubscriberLocked(sid, roomID)
		}
		delete(h.sessionSubs, sid)
	}

	var others []types.SessionHandle
	if last {
		others = h.sessionsSnapshotLocked(sid)
	}
	h.mu.Unlock()

	logging.Info(sess.Context(), "chat session disconnected", zap.Bool("lastSession", last))

	if last {
		h.fanout(others, EventUserOffline, Presence{UserID: user.ID})
	}
}

// Route dispatches one decoded envelope. It runs on the session's read loop,
// so per-session handling is serial; cross-session work is what the lock is
// for.
func (h *Hub) Route(ctx context.Context, sess types.SessionHandle, env transport.Envelope) {
	start := time.Now()

	var werr *types.Error
	switch env.Event {
	case EventRoomCreate:
		werr = h.handleCreateRoom(ctx, sess, env)
	case EventRoomJoin:
		werr = h.handleJoinRoom(ctx, sess, env)
	case EventRoomJoinByCode:
		werr = h.handleJoinByCode(ctx, sess, env)
	case EventRoomLeave:
		werr = h.handleLeaveRoom(ctx, sess, env)
	case EventRoomGet:
		werr = h.handleGetRoom(ctx, sess, env)
	case EventMessageSend:
		werr = h.handleSendMessage(ctx, sess, env)
	case EventMessagesGet:
		werr = h.handleGetMessages(ctx, sess, env)
	default:
		logging.Warn(ctx, "unknown chat event", zap.String("event", env.Event))
		werr = types.Errorf(types.CodeValidationError, "unknown event %q", env.Event)
	}

	status := "ok"
	if werr != nil {
		status = "error"
		sess.SendError(werr)
	}
	metrics.Events.WithLabelValues(env.Event, status).Inc()
	metrics.EventProcessingDuration.WithLabelValues(env.Event).Observe(time.Since(start).Seconds())
}

// Shutdown closes every live session. Safe to call once during service
// teardown; in-flight handlers see their session contexts cancel.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	sessions := make([]types.SessionHandle, 0, len(h.sessions))
	for _, sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	h.sessions = make(map[types.SessionID]types.SessionHandle)
	h.presence = make(map[types.UserID]set.Set[types.SessionID])
	h.roomSubs = make(map[types.RoomID]set.Set[types.SessionID])
	h.sessionSubs = make(map[types.SessionID]set.Set[types.RoomID])
	h.mu.Unlock()

	logging.Info(ctx, "chat hub shutting down", zap.Int("sessions", len(sessions)))
	for _, sess := range sessions {
		sess.Close()
	}
}

// subscribe attaches the session to a room's fan-out. Reports whether the
// subscription is new; re-subscribing is a no-op.
func (h *Hub) subscribe(sid types.SessionID, roomID types.RoomID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.roomSubs[roomID]
	if !ok {
		subs = set.New[types.SessionID]()
		h.roomSubs[roomID] = subs
		metrics.ActiveRooms.Inc()
	}
	if subs.Has(sid) {
		return false
	}
	subs.Insert(sid)
	metrics.RoomSubscribers.WithLabelValues(string(roomID)).Set(float64(subs.Len()))

	mine, ok := h.sessionSubs[sid]
	if !ok {
		mine = set.New[types.RoomID]()
		h.sessionSubs[sid] = mine
	}
	mine.Insert(roomID)
	return true
}

// unsubscribe detaches the session from a room's fan-out. Reports whether it
// was subscribed.
func (h *Hub) unsubscribe(sid types.SessionID, roomID types.RoomID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if mine, ok := h.sessionSubs[sid]; ok {
		mine.Delete(roomID)
		if mine.Len() == 0 {
			delete(h.sessionSubs, sid)
		}
	}
	return h.dropSubscriberLocked(sid, roomID)
}

// dropSubscriberLocked removes the session from the room's subscriber set
// and retires the set when it empties. Caller holds h.mu. It does not touch
// sessionSubs; callers own that side.
func (h *Hub) dropSubscriberLocked(sid types.SessionID, roomID types.RoomID) bool {
	subs, ok := h.roomSubs[roomID]
	if !ok || !subs.Has(sid) {
		return false
	}
	subs.Delete(sid)
	if subs.Len() == 0 {
		delete(h.roomSubs, roomID)
		metrics.ActiveRooms.Dec()
		metrics.RoomSubscribers.DeleteLabelValues(string(roomID))
	} else {
		metrics.RoomSubscribers.WithLabelValues(string(roomID)).Set(float64(subs.Len()))
	}
	return true
}

// isSubscribed reports whether the session is attached to the room.
func (h *Hub) isSubscribed(sid types.SessionID, roomID types.RoomID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs, ok := h.roomSubs[roomID]
	return ok && subs.Has(sid)
}

// sessionsSnapshot returns every live session except the given one.
func (h *Hub) sessionsSnapshot(except types.SessionID) []types.SessionHandle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessionsSnapshotLocked(except)
}

func (h *Hub) sessionsSnapshotLocked(except types.SessionID) []types.SessionHandle {
	out := make([]types.SessionHandle, 0, len(h.sessions))
	for sid, sess := range h.sessions {
		if sid == except {
			continue
		}
		out = append(out, sess)
	}
	return out
}

// roomSessions returns the sessions subscribed to a room, minus the given
// one. Pass an empty id to include everyone.
func (h *Hub) roomSessions(roomID types.RoomID, except types.SessionID) []types.SessionHandle {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.roomSubs[roomID]
	if !ok {
		return nil
	}
	out := make([]types.SessionHandle, 0, subs.Len())
	for sid := range subs {
		if sid == except {
			continue
		}
		if sess, live := h.sessions[sid]; live {
			out = append(out, sess)
		}
	}
	return out
}

// fanout encodes the event once and queues it on every target. Sends are
// non-blocking; a slow consumer drops frames instead of stalling the rest.
func (h *Hub) fanout(targets []types.SessionHandle, event string, payload any) {
	if len(targets) == 0 {
		return
	}
	env, err := transport.NewEnvelope(event, payload)
	if err != nil {
		logging.Error(context.Background(), "failed to encode fanout payload",
			zap.String("event", event), zap.Error(err))
		return
	}
	data, err := env.Encode()
	if err != nil {
		logging.Error(context.Background(), "failed to encode fanout envelope",
			zap.String("event", event), zap.Error(err))
		return
	}
	for _, sess := range targets {
		sess.SendPrepared(event, data)
	}
}
