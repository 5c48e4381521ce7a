package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/transport"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// Handlers return the wire error to send, or nil when the reply has already
// been queued. Route owns the error delivery and the metrics.

func (h *Hub) handleCreateRoom(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req CreateRoomRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid room:create payload")
	}

	room, werr := h.service.CreateRoom(ctx, sess.User(), req)
	if werr != nil {
		return werr
	}

	ctx = context.WithValue(ctx, logging.RoomIDKey, string(room.ID))
	logging.Info(ctx, "chat room created",
		zap.String("kind", string(room.Kind)),
		zap.String("visibility", string(room.Visibility)))

	// The creator is a participant from the first moment, so subscribe
	// before replying: anything sent to the room next reaches them.
	h.subscribe(sess.ID(), room.ID)
	sess.SendEvent(EventRoomCreated, room)

	// Public rooms are announced to everyone else with the code stripped
	// (public rooms carry none, but redaction keeps that a non-fact here).
	if room.Visibility == store.VisibilityPublic {
		h.fanout(h.sessionsSnapshot(sess.ID()), EventRoomCreated, room.Redacted())
	}
	return nil
}

func (h *Hub) handleJoinRoom(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req JoinRoomRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid room:join payload")
	}
	if req.RoomID == "" {
		return types.NewError(types.CodeValidationError, "roomId is required")
	}

	room, werr := h.service.JoinRoom(ctx, sess.User(), req.RoomID, req.Code)
	if werr != nil {
		return werr
	}
	h.announceJoin(ctx, sess, room)
	return nil
}

func (h *Hub) handleJoinByCode(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req JoinByCodeRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid room:join-by-code payload")
	}

	room, werr := h.service.JoinByCode(ctx, sess.User(), req.Code)
	if werr != nil {
		return werr
	}
	h.announceJoin(ctx, sess, room)
	return nil
}

// announceJoin subscribes the session and emits the join events: user-joined
// to the room only when this session was not already attached, then a fresh
// room:joined to the joiner either way.
func (h *Hub) announceJoin(ctx context.Context, sess types.SessionHandle, room *store.ChatRoom) {
	user := sess.User()

	if h.subscribe(sess.ID(), room.ID) {
		ctx = context.WithValue(ctx, logging.RoomIDKey, string(room.ID))
		logging.Info(ctx, "chat room joined", zap.String("visibility", string(room.Visibility)))

		h.fanout(h.roomSessions(room.ID, sess.ID()), EventRoomUserJoined, UserJoined{
			RoomID:      room.ID,
			UserID:      user.ID,
			DisplayName: user.DisplayName,
		})
	}
	sess.SendEvent(EventRoomJoined, room)
}

func (h *Hub) handleLeaveRoom(_ context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req RoomRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid room:leave payload")
	}
	if req.RoomID == "" {
		return types.NewError(types.CodeValidationError, "roomId is required")
	}

	// Leaving detaches the session only; durable membership stays, so a
	// later room:join needs no code.
	if h.unsubscribe(sess.ID(), req.RoomID) {
		h.fanout(h.roomSessions(req.RoomID, sess.ID()), EventRoomUserLeft, UserLeft{
			RoomID: req.RoomID,
			UserID: sess.User().ID,
		})
	}
	sess.SendEvent(EventRoomLeft, RoomLeft{RoomID: req.RoomID})
	return nil
}

func (h *Hub) handleGetRoom(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req RoomRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid room:get payload")
	}
	if req.RoomID == "" {
		return types.NewError(types.CodeValidationError, "roomId is required")
	}

	room, werr := h.service.GetRoom(ctx, sess.User(), req.RoomID)
	if werr != nil {
		return werr
	}
	sess.SendEvent(EventRoomDetails, room)
	return nil
}

func (h *Hub) handleSendMessage(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req SendMessageRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid message:send payload")
	}

	msg, werr := h.service.SendMessage(ctx, sess.User(), req)
	if werr != nil {
		return werr
	}

	// Every subscribed session hears the message, the sender included: the
	// sender's copy doubles as the durability acknowledgement. A sender
	// posting without a live subscription still gets that ack.
	targets := h.roomSessions(msg.RoomID, "")
	if !h.isSubscribed(sess.ID(), msg.RoomID) {
		targets = append(targets, sess)
	}
	h.fanout(targets, EventMessageNew, msg)
	return nil
}

func (h *Hub) handleGetMessages(ctx context.Context, sess types.SessionHandle, env transport.Envelope) *types.Error {
	var req GetMessagesRequest
	if err := env.Bind(&req); err != nil {
		return types.NewError(types.CodeValidationError, "invalid messages:get payload")
	}

	list, werr := h.service.ListMessages(ctx, sess.User(), req)
	if werr != nil {
		return werr
	}
	sess.SendEvent(EventMessagesList, list)
	return nil
}
