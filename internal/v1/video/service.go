// Package video is the realtime conferencing engine: room lifecycle,
// per-participant media state, and the WebRTC signaling relay over the
// shared duplex transport. The engine never touches media; it moves session
// descriptions and candidates between peers.
package video

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/codes"
	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

const (
	maxRoomNameLength = 100

	// roomCapacity is forced on every room created through the public
	// path.
	roomCapacity = 8
)

// Service implements the durable video operations. Live fan-out state is
// the Hub's.
type Service struct {
	rooms        store.VideoRooms
	participants store.VideoParticipants
	chatRooms    store.ChatRooms
}

// NewService wires the video operations over the shared store.
func NewService(st store.Store) *Service {
	return &Service{
		rooms:        st.VideoRooms(),
		participants: st.VideoParticipants(),
		chatRooms:    st.ChatRooms(),
	}
}

// CreateRoom persists a new conference room with the creator as host and
// first participant, and returns the host's own participant record. When
// asked, a companion private chat room is created best-effort and linked
// both ways.
func (s *Service) CreateRoom(ctx context.Context, host *types.User, socketID types.SessionID, req CreateRoomRequest) (*store.VideoRoom, *store.VideoParticipant, *types.Error) {
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		return nil, nil, types.NewError(types.CodeValidationError, "room name is required")
	case len(name) > maxRoomNameLength:
		return nil, nil, types.NewError(types.CodeValidationError, "room name is too long")
	}

	code, err := codes.Generate(ctx, s.codeExists)
	if err != nil {
		if we, ok := types.AsError(err); ok {
			return nil, nil, we
		}
		return nil, nil, store.AsWireError(err)
	}

	room := &store.VideoRoom{
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		HostID:          host.ID,
		Participants:    []types.UserID{host.ID},
		MaxParticipants: roomCapacity,
		Visibility:      store.VisibilityPublic,
		Code:            code,
	}
	if err := store.DoErr(ctx, "videoRooms", "create", func(ctx context.Context) error {
		return s.rooms.Create(ctx, room)
	}); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, types.NewError(types.CodeGenerationFailed, "could not generate a unique room code")
		}
		return nil, nil, store.AsWireError(err)
	}

	participant, werr := s.writeParticipant(ctx, room.ID, host, socketID)
	if werr != nil {
		return nil, nil, werr
	}

	if req.WithChatRoom {
		s.createLinkedChatRoom(ctx, room, host)
	}

	return room, participant, nil
}

// createLinkedChatRoom builds the companion private chat room. Every failure
// is logged and swallowed: the conference stands on its own.
func (s *Service) createLinkedChatRoom(ctx context.Context, room *store.VideoRoom, host *types.User) {
	chatCode, err := codes.Generate(ctx, s.chatCodeExists)
	if err != nil {
		logging.Warn(ctx, "failed to generate code for linked chat room", zap.Error(err))
		return
	}

	chatRoom := &store.ChatRoom{
		Name:         room.Name,
		Kind:         store.RoomKindGroup,
		Visibility:   store.VisibilityPrivate,
		Code:         chatCode,
		Participants: []types.UserID{host.ID},
		CreatedBy:    host.ID,
		VideoRoomID:  room.ID,
	}
	if err := store.DoErr(ctx, "rooms", "create", func(ctx context.Context) error {
		return s.chatRooms.Create(ctx, chatRoom)
	}); err != nil {
		logging.Warn(ctx, "failed to create linked chat room", zap.Error(err))
		return
	}

	if err := store.DoErr(ctx, "videoRooms", "linkChatRoom", func(ctx context.Context) error {
		return s.rooms.LinkChatRoom(ctx, room.ID, chatRoom.ID, chatRoom.Code)
	}); err != nil {
		logging.Warn(ctx, "failed to link chat room to video room",
			zap.String("chatRoomId", string(chatRoom.ID)), zap.Error(err))
		return
	}
	room.ChatRoomID = chatRoom.ID
	room.ChatRoomCode = chatRoom.Code
}

// JoinRoom admits a user: resolve by code first, then by id, enforce
// capacity, write the participant record, and union into any linked chat
// room. Rejoining refreshes the participant record with the new socket.
func (s *Service) JoinRoom(ctx context.Context, user *types.User, socketID types.SessionID, req JoinRoomRequest) (*store.VideoRoom, *store.VideoParticipant, *types.Error) {
	if req.Code == "" && req.RoomID == "" {
		return nil, nil, types.NewError(types.CodeValidationError, "a room id or code is required")
	}

	room, werr := s.resolveRoom(ctx, req)
	if werr != nil {
		return nil, nil, werr
	}

	updated, err := store.Do(ctx, "videoRooms", "addParticipant", func(ctx context.Context) (*store.VideoRoom, error) {
		return s.rooms.AddParticipant(ctx, room.ID, user.ID)
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCapacity):
			return nil, nil, types.NewError(types.CodeRoomFull, "the room is full")
		case errors.Is(err, store.ErrNotFound):
			return nil, nil, types.NewError(types.CodeRoomNotFound, "room not found")
		}
		return nil, nil, store.AsWireError(err)
	}

	participant, werr := s.writeParticipant(ctx, updated.ID, user, socketID)
	if werr != nil {
		return nil, nil, werr
	}

	// Membership in the companion chat room is a courtesy, never a gate.
	if updated.ChatRoomID != "" {
		if err := store.DoErr(ctx, "rooms", "addParticipant", func(ctx context.Context) error {
			_, err := s.chatRooms.AddParticipant(ctx, updated.ChatRoomID, user.ID)
			return err
		}); err != nil {
			logging.Warn(ctx, "failed to add user to linked chat room",
				zap.String("chatRoomId", string(updated.ChatRoomID)), zap.Error(err))
		}
	}

	return updated, participant, nil
}

// resolveRoom finds the join target: the code wins when it resolves, the id
// is the fallback.
func (s *Service) resolveRoom(ctx context.Context, req JoinRoomRequest) (*store.VideoRoom, *types.Error) {
	if req.Code != "" {
		code := codes.Normalize(req.Code)
		room, err := store.Do(ctx, "videoRooms", "getByCode", func(ctx context.Context) (*store.VideoRoom, error) {
			return s.rooms.GetByCode(ctx, code)
		})
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, store.AsWireError(err)
		}
		// Fall through to the id.
	}
	if req.RoomID == "" {
		return nil, types.NewError(types.CodeRoomNotFound, "room not found")
	}

	room, err := store.Do(ctx, "videoRooms", "get", func(ctx context.Context) (*store.VideoRoom, error) {
		return s.rooms.Get(ctx, req.RoomID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.CodeRoomNotFound, "room not found")
		}
		return nil, store.AsWireError(err)
	}
	return room, nil
}

// writeParticipant stores the fresh media-state record for a (room, user):
// audio and video on, screen off, current socket.
func (s *Service) writeParticipant(ctx context.Context, roomID types.RoomID, user *types.User, socketID types.SessionID) (*store.VideoParticipant, *types.Error) {
	participant := &store.VideoParticipant{
		RoomID:       roomID,
		UserID:       user.ID,
		SocketID:     socketID,
		DisplayName:  user.DisplayName,
		Email:        user.Email,
		AudioEnabled: true,
		VideoEnabled: true,
	}
	if err := store.DoErr(ctx, "videoParticipants", "put", func(ctx context.Context) error {
		return s.participants.Put(ctx, participant)
	}); err != nil {
		return nil, store.AsWireError(err)
	}
	return participant, nil
}

// LeaveRoom removes the user's participant record and their seat. Leaving a
// room the user is not in, or one that no longer exists, succeeds silently.
func (s *Service) LeaveRoom(ctx context.Context, userID types.UserID, roomID types.RoomID) *types.Error {
	if err := store.DoErr(ctx, "videoParticipants", "delete", func(ctx context.Context) error {
		return s.participants.Delete(ctx, roomID, userID)
	}); err != nil {
		return store.AsWireError(err)
	}

	if _, err := store.Do(ctx, "videoRooms", "removeParticipant", func(ctx context.Context) (*store.VideoRoom, error) {
		return s.rooms.RemoveParticipant(ctx, roomID, userID)
	}); err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.AsWireError(err)
	}
	return nil
}

// EndRoom tears the room down. Only the host may end a room; a second end
// finds nothing and reports ROOM_NOT_FOUND.
func (s *Service) EndRoom(ctx context.Context, userID types.UserID, roomID types.RoomID) (*store.VideoRoom, *types.Error) {
	room, err := store.Do(ctx, "videoRooms", "get", func(ctx context.Context) (*store.VideoRoom, error) {
		return s.rooms.Get(ctx, roomID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.CodeRoomNotFound, "room not found")
		}
		return nil, store.AsWireError(err)
	}
	if room.HostID != userID {
		return nil, types.NewError(types.CodeUnauthorized, "only the host can end the room")
	}

	removed, err := store.Do(ctx, "videoParticipants", "deleteByRoom", func(ctx context.Context) (int, error) {
		return s.participants.DeleteByRoom(ctx, roomID)
	})
	if err != nil {
		return nil, store.AsWireError(err)
	}

	if err := store.DoErr(ctx, "videoRooms", "delete", func(ctx context.Context) error {
		return s.rooms.Delete(ctx, roomID)
	}); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, store.AsWireError(err)
	}

	logging.Info(ctx, "video room ended",
		zap.String("roomId", string(roomID)), zap.Int("participants", removed))
	return room, nil
}

// GetRoom returns the room document.
func (s *Service) GetRoom(ctx context.Context, roomID types.RoomID) (*store.VideoRoom, *types.Error) {
	room, err := store.Do(ctx, "videoRooms", "get", func(ctx context.Context) (*store.VideoRoom, error) {
		return s.rooms.Get(ctx, roomID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.CodeRoomNotFound, "room not found")
		}
		return nil, store.AsWireError(err)
	}
	return room, nil
}

// Participants returns every current participant record of a room.
func (s *Service) Participants(ctx context.Context, roomID types.RoomID) ([]*store.VideoParticipant, *types.Error) {
	participants, err := store.Do(ctx, "videoParticipants", "listByRoom", func(ctx context.Context) ([]*store.VideoParticipant, error) {
		return s.participants.ListByRoom(ctx, roomID)
	})
	if err != nil {
		return nil, store.AsWireError(err)
	}
	return participants, nil
}

// Snapshot returns the room and every current participant record.
func (s *Service) Snapshot(ctx context.Context, roomID types.RoomID) (*store.VideoRoom, []*store.VideoParticipant, *types.Error) {
	room, werr := s.GetRoom(ctx, roomID)
	if werr != nil {
		return nil, nil, werr
	}
	participants, werr := s.Participants(ctx, roomID)
	if werr != nil {
		return nil, nil, werr
	}
	return room, participants, nil
}

// SenderState authorizes a signaling or media-state operation: the room must
// exist and the sender must hold a seat with a live participant record.
func (s *Service) SenderState(ctx context.Context, roomID types.RoomID, userID types.UserID) (*store.VideoRoom, *store.VideoParticipant, *types.Error) {
	room, werr := s.GetRoom(ctx, roomID)
	if werr != nil {
		return nil, nil, werr
	}
	if !room.HasParticipant(userID) {
		return nil, nil, types.NewError(types.CodeNotInRoom, "you are not in this room")
	}

	participant, err := store.Do(ctx, "videoParticipants", "get", func(ctx context.Context) (*store.VideoParticipant, error) {
		return s.participants.Get(ctx, roomID, userID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, types.NewError(types.CodeNotInRoom, "you are not in this room")
		}
		return nil, nil, store.AsWireError(err)
	}
	return room, participant, nil
}

// TargetParticipant resolves the delivery record of a targeted signal.
func (s *Service) TargetParticipant(ctx context.Context, roomID types.RoomID, userID types.UserID) (*store.VideoParticipant, *types.Error) {
	participant, err := store.Do(ctx, "videoParticipants", "get", func(ctx context.Context) (*store.VideoParticipant, error) {
		return s.participants.Get(ctx, roomID, userID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.CodeTargetUserNotFound, "target user is not in the room")
		}
		return nil, store.AsWireError(err)
	}
	return participant, nil
}

// UpdateMediaState applies mutate to the caller's participant record.
func (s *Service) UpdateMediaState(ctx context.Context, roomID types.RoomID, userID types.UserID, mutate func(*store.VideoParticipant)) (*store.VideoParticipant, *types.Error) {
	participant, err := store.Do(ctx, "videoParticipants", "update", func(ctx context.Context) (*store.VideoParticipant, error) {
		return s.participants.Update(ctx, roomID, userID, mutate)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.CodeNotInRoom, "you are not in this room")
		}
		return nil, store.AsWireError(err)
	}
	return participant, nil
}

// codeExists is the uniqueness probe for conference codes.
func (s *Service) codeExists(ctx context.Context, code types.RoomCode) (bool, error) {
	_, err := store.Do(ctx, "videoRooms", "getByCode", func(ctx context.Context) (*store.VideoRoom, error) {
		return s.rooms.GetByCode(ctx, code)
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// chatCodeExists probes the chat code space for the linked room's code.
func (s *Service) chatCodeExists(ctx context.Context, code types.RoomCode) (bool, error) {
	_, err := store.Do(ctx, "rooms", "getByCode", func(ctx context.Context) (*store.ChatRoom, error) {
		return s.chatRooms.GetByCode(ctx, code)
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}
