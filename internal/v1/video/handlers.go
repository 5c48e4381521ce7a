package video

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/metrics"
	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/transport"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// Handlers return the wire error to send, or nil when the reply has already
// been queued. Route owns the error delivery and the metrics.

func (h *Hub) handleCreateRoom(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req CreateRoomRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid video:room:create payload")
	}

	room, participant, werr := h.service.CreateRoom(ctx, sess.User(), sess.ID(), req)
	if werr != nil {
		return werr
	}

	ctx = context.WithValue(ctx, logging.RoomIDKey, string(room.ID))
	logging.Info(ctx, "video room created",
		zap.String("code", string(room.Code)),
		zap.Bool("withChat", room.ChatRoomID != ""))

	h.subscribe(sess.ID(), room.ID)
	sess.SendEvent(EventRoomCreated, RoomCreated{Room: room, Participant: participant})
	return nil
}

func (h *Hub) handleJoinRoom(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req JoinRoomRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid video:room:join payload")
	}

	room, participant, werr := h.service.JoinRoom(ctx, sess.User(), sess.ID(), req)
	if werr != nil {
		return werr
	}

	if h.subscribe(sess.ID(), room.ID) {
		ctx = context.WithValue(ctx, logging.RoomIDKey, string(room.ID))
		logging.Info(ctx, "video room joined")

		h.fanout(h.roomSessions(room.ID, sess.ID()), EventUserJoined, UserJoined{
			RoomID:      room.ID,
			Participant: participant,
		})
	}

	// The joiner's reply carries the full roster, themselves included.
	participants, werr := h.service.Participants(ctx, room.ID)
	if werr != nil {
		return werr
	}
	sess.SendEvent(EventRoomJoined, RoomJoined{Room: room, Participants: participants})
	return nil
}

func (h *Hub) handleLeaveRoom(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req RoomRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid video:room:leave payload")
	}
	if req.RoomID == "" {
		return types.NewError(types.CodeValidationError, "roomId is required")
	}

	if werr := h.service.LeaveRoom(ctx, sess.User().ID, req.RoomID); werr != nil {
		return werr
	}

	// Announce only when the session actually held a subscription; a
	// repeated leave stays an ack-only no-op.
	if h.unsubscribe(sess.ID(), req.RoomID) {
		h.fanout(h.roomSessions(req.RoomID, sess.ID()), EventUserLeft, UserLeft{
			RoomID: req.RoomID,
			UserID: sess.User().ID,
		})
	}
	sess.SendEvent(EventRoomLeft, RoomLeft{RoomID: req.RoomID})
	return nil
}

func (h *Hub) handleEndRoom(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req RoomRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid video:room:end payload")
	}
	if req.RoomID == "" {
		return types.NewError(types.CodeValidationError, "roomId is required")
	}

	room, werr := h.service.EndRoom(ctx, sess.User().ID, req.RoomID)
	if werr != nil {
		return werr
	}

	// Everyone attached hears room:ended, the host included; that event is
	// also the host's ack.
	targets := h.releaseRoom(room.ID)
	h.fanout(targets, EventRoomEnded, RoomEnded{RoomID: room.ID})
	return nil
}

func (h *Hub) handleSignal(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req SignalRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid video:signal payload")
	}
	if werr := validateSignal(&req); werr != nil {
		return werr
	}

	user := sess.User()
	_, sender, werr := h.service.SenderState(ctx, req.RoomID, user.ID)
	if werr != nil {
		return werr
	}

	kind := req.SignalKind()
	if h.dedupe.shouldDrop(req.RoomID, kind, user.ID, req.TargetUserID, req.Payload) {
		metrics.SignalsRelayed.WithLabelValues(kind, "deduped").Inc()
		return nil
	}

	out := SignalOut{
		Kind:         kind,
		RoomID:       req.RoomID,
		FromUserID:   user.ID,
		TargetUserID: req.TargetUserID,
		Payload:      req.Payload,
		Metadata:     enrichMetadata(req.Metadata, sender),
	}

	if req.TargetUserID != "" {
		target, werr := h.service.TargetParticipant(ctx, req.RoomID, req.TargetUserID)
		if werr != nil {
			return werr
		}
		tsess, live := h.sessionByID(target.SocketID)
		if !live {
			// Seat record without a live socket: the target is mid-reconnect.
			// Dropping is safe; the pair renegotiates once it returns.
			logging.Warn(ctx, "signal target has no live session",
				zap.String("roomId", string(req.RoomID)),
				zap.String("targetUserId", string(req.TargetUserID)))
			metrics.SignalsRelayed.WithLabelValues(kind, "dropped").Inc()
			return nil
		}
		h.fanout([]types.SessionHandle{tsess}, EventSignal, out)
		metrics.SignalsRelayed.WithLabelValues(kind, "targeted").Inc()
		return nil
	}

	h.fanout(h.roomSessions(req.RoomID, sess.ID()), EventSignal, out)
	metrics.SignalsRelayed.WithLabelValues(kind, "broadcast").Inc()
	return nil
}

// toggleFlag binds a toggle request, flips the flag on the caller's record,
// and broadcasts the toggled event to the whole room, the caller included —
// the echo doubles as the ack.
func (h *Hub) toggleFlag(ctx context.Context, sess types.SessionHandle, env transport.Envelope, outEvent string, apply func(*store.VideoParticipant, bool)) (ToggleRequest, *types.Error) {
	var req ToggleRequest
	if err := env.Bind(&req); err != nil {
		return req, types.NewError(types.CodeValidationError, "invalid toggle payload")
	}
	if req.RoomID == "" {
		return req, types.NewError(types.CodeValidationError, "roomId is required")
	}

	if _, werr := h.service.UpdateMediaState(ctx, req.RoomID, sess.User().ID, func(p *store.VideoParticipant) {
		apply(p, req.Enabled)
	}); werr != nil {
		return req, werr
	}

	h.fanout(h.roomSessions(req.RoomID, ""), outEvent, Toggled{
		RoomID:  req.RoomID,
		UserID:  sess.User().ID,
		Enabled: req.Enabled,
	})
	return req, nil
}

func (h *Hub) handleToggleAudio(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	_, werr := h.toggleFlag(ctx, sess, env, EventAudioToggled, func(p *store.VideoParticipant, on bool) {
		p.AudioEnabled = on
	})
	return werr
}

func (h *Hub) handleToggleVideo(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	_, werr := h.toggleFlag(ctx, sess, env, EventVideoToggled, func(p *store.VideoParticipant, on bool) {
		p.VideoEnabled = on
	})
	return werr
}

func (h *Hub) handleToggleScreen(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	req, werr := h.toggleFlag(ctx, sess, env, EventScreenToggled, func(p *store.VideoParticipant, on bool) {
		p.ScreenSharing = on
	})
	if werr != nil {
		return werr
	}
	if req.Enabled {
		// Peers open a second connection for the screen track, so they need
		// a renegotiation nudge; the sharer drives its own.
		h.fanout(h.roomSessions(req.RoomID, sess.ID()), EventNegotiationNeeded, NegotiationNeeded{
			RoomID: req.RoomID,
			UserID: sess.User().ID,
		})
	}
	return nil
}

// handleScreenState serves the start/stop variant of screen sharing: same
// durable flag as the toggle, separate announcement events.
func (h *Hub) handleScreenState(ctx context.Context, sess types.SessionHandle, env transport.Envelope, enabled bool) *types.Error {
	var req RoomRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid screen share payload")
	}
	if req.RoomID == "" {
		return types.NewError(types.CodeValidationError, "roomId is required")
	}

	if _, werr := h.service.UpdateMediaState(ctx, req.RoomID, sess.User().ID, func(p *store.VideoParticipant) {
		p.ScreenSharing = enabled
	}); werr != nil {
		return werr
	}

	event := EventScreenStopped
	if enabled {
		event = EventScreenStarted
	}
	h.fanout(h.roomSessions(req.RoomID, ""), event, ScreenState{
		RoomID: req.RoomID,
		UserID: sess.User().ID,
	})
	if enabled {
		h.fanout(h.roomSessions(req.RoomID, sess.ID()), EventNegotiationNeeded, NegotiationNeeded{
			RoomID: req.RoomID,
			UserID: sess.User().ID,
		})
	}
	return nil
}

func (h *Hub) handleStreamReady(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req StreamReadyRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid video:stream:ready payload")
	}
	if req.RoomID == "" {
		return types.NewError(types.CodeValidationError, "roomId is required")
	}

	user := sess.User()
	var participant *store.VideoParticipant
	var werr *types.Error
	if req.ScreenSharing != nil {
		participant, werr = h.service.UpdateMediaState(ctx, req.RoomID, user.ID, func(p *store.VideoParticipant) {
			p.ScreenSharing = *req.ScreenSharing
		})
	} else {
		_, participant, werr = h.service.SenderState(ctx, req.RoomID, user.ID)
	}
	if werr != nil {
		return werr
	}

	streamID := req.StreamID
	if streamID == "" {
		streamID = uuid.NewString()
	}
	streamType := req.StreamType
	if streamType == "" {
		streamType = StreamTypeCamera
		if participant.ScreenSharing {
			streamType = StreamTypeScreen
		}
	}

	h.fanout(h.roomSessions(req.RoomID, ""), EventStreamReady, StreamReady{
		RoomID:     req.RoomID,
		UserID:     user.ID,
		StreamID:   streamID,
		StreamType: streamType,
	})
	return nil
}
