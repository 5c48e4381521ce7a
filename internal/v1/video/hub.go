package video

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

// Hub owns the video engine's live state: the session registry and the room
// subscription sets. Durable room and participant state goes through the
// Service; the hub decides who hears what.
//
// The lock is held only across in-memory bookkeeping. Broadcasts snapshot
// their targets under the lock and send outside it; store calls never run
// with the lock held.
type Hub struct {
	service *Service
	dedupe  *signalDedupe

	mu           sync.RWMutex
	sessions     map[types.SessionID]types.SessionHandle
	roomSubs     map[types.RoomID]set.Set[types.SessionID]
	sessionRooms map[types.SessionID]set.Set[types.RoomID]
}

// NewHub builds an empty hub over the given service. dedupeSignals turns on
// the optional duplicate-signal suppression profile.
func NewHub(service *Service, dedupeSignals bool) *Hub {
	h := &Hub{
		service:      service,
		sessions:     make(map[types.SessionID]types.SessionHandle),
		roomSubs:     make(map[types.RoomID]set.Set[types.SessionID]),
		sessionRooms: make(map[types.SessionID]set.Set[types.RoomID]),
	}
	if dedupeSignals {
		h.dedupe = newSignalDedupe(signalDedupeWindow)
	}
	return h
}

// HandleConnect registers the session. Video sessions start with no room
// attachments; everything begins with an explicit create or join.
func (h *Hub) HandleConnect(sess types.SessionHandle) {
	h.mu.Lock()
	h.sessions[sess.ID()] = sess
	h.mu.Unlock()

	user := sess.User()
	logging.Info(sess.Context(), "video session connected",
		zap.String("displayName", user.DisplayName),
		zap.Bool("anonymous", user.Anonymous()))
}

// HandleDisconnect releases every conference seat the session held. A dead
// socket must not occupy one of the room's few slots, so the leave flow
// runs for each attached room and the remaining peers hear user:left.
func (h *Hub) HandleDisconnect(sess types.SessionHandle) {
	sid := sess.ID()
	user := sess.User()

	h.mu.Lock()
	delete(h.sessions, sid)
	var rooms []types.RoomID
	if mine, ok := h.sessionRooms[sid]; ok {
		for roomID := range mine {
			rooms = append(rooms, roomID)
			h.dropSubscriberLocked(sid, roomID)
		}
		delete(h.sessionRooms, sid)
	}
	h.mu.Unlock()

	logging.Info(sess.Context(), "video session disconnected", zap.Int("rooms", len(rooms)))

	for _, roomID := range rooms {
		if werr := h.service.LeaveRoom(sess.Context(), user.ID, roomID); werr != nil {
			logging.Warn(sess.Context(), "failed to release seat on disconnect",
				zap.String("roomId", string(roomID)), zap.String("code", string(werr.Code)))
		}
		h.fanout(h.roomSessions(roomID, sid), EventUserLeft, UserLeft{RoomID: roomID, UserID: user.ID})
	}
}

// Route dispatches one decoded envelope. It runs on the session's read
// loop, so per-session handling is serial; that serialism is what keeps
// signals from one sender ordered.
func (h *Hub) Route(ctx context.Context, sess types.SessionHandle, env transport.Envelope) {
	start := time.Now()

	var werr *types.Error
	switch env.Event {
	case EventRoomCreate:
		werr = h.handleCreateRoom(ctx, sess, env)
	case EventRoomJoin:
		werr = h.handleJoinRoom(ctx, sess, env)
	case EventRoomLeave:
		werr = h.handleLeaveRoom(ctx, sess, env)
	case EventRoomEnd:
		werr = h.handleEndRoom(ctx, sess, env)
	case EventSignal:
		werr = h.handleSignal(ctx, sess, env)
	case EventToggleAudio:
		werr = h.handleToggleAudio(ctx, sess, env)
	case EventToggleVideo:
		werr = h.handleToggleVideo(ctx, sess, env)
	case EventToggleScreen:
		werr = h.handleToggleScreen(ctx, sess, env)
	case EventScreenStart:
		werr = h.handleScreenState(ctx, sess, env, true)
	case EventScreenStop:
		werr = h.handleScreenState(ctx, sess, env, false)
	case EventStreamReady:
		werr = h.handleStreamReady(ctx, sess, env)
	default:
		logging.Warn(ctx, "unknown video event", zap.String("event", env.Event))
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

// Shutdown closes every live session during service teardown.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	sessions := make([]types.SessionHandle, 0, len(h.sessions))
	for _, sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	h.sessions = make(map[types.SessionID]types.SessionHandle)
	h.roomSubs = make(map[types.RoomID]set.Set[types.SessionID])
	h.sessionRooms = make(map[types.SessionID]set.Set[types.RoomID])
	h.mu.Unlock()

	logging.Info(ctx, "video hub shutting down", zap.Int("sessions", len(sessions)))
	for _, sess := range sessions {
		sess.Close()
	}
}

// subscribe attaches the session to a room's fan-out. Reports whether the
// subscription is new.
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

	mine, ok := h.sessionRooms[sid]
	if !ok {
		mine = set.New[types.RoomID]()
		h.sessionRooms[sid] = mine
	}
	mine.Insert(roomID)
	return true
}

// unsubscribe detaches the session from a room's fan-out. Reports whether
// it was subscribed.
func (h *Hub) unsubscribe(sid types.SessionID, roomID types.RoomID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if mine, ok := h.sessionRooms[sid]; ok {
		mine.Delete(roomID)
		if mine.Len() == 0 {
			delete(h.sessionRooms, sid)
		}
	}
	return h.dropSubscriberLocked(sid, roomID)
}

// releaseRoom detaches every subscriber of a room at once (room end) and
// returns the sessions that were attached, the host included.
func (h *Hub) releaseRoom(roomID types.RoomID) []types.SessionHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.roomSubs[roomID]
	if !ok {
		return nil
	}
	out := make([]types.SessionHandle, 0, subs.Len())
	for sid := range subs {
		if sess, live := h.sessions[sid]; live {
			out = append(out, sess)
		}
		if mine, ok := h.sessionRooms[sid]; ok {
			mine.Delete(roomID)
			if mine.Len() == 0 {
				delete(h.sessionRooms, sid)
			}
		}
	}
	delete(h.roomSubs, roomID)
	metrics.ActiveRooms.Dec()
	metrics.RoomSubscribers.DeleteLabelValues(string(roomID))
	return out
}

// dropSubscriberLocked removes the session from the room's subscriber set
// and retires the set when it empties. Caller holds h.mu and owns the
// sessionRooms side.
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

// sessionByID returns the live session with the given id.
func (h *Hub) sessionByID(sid types.SessionID) (types.SessionHandle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[sid]
	return sess, ok
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
