// Package chat is the realtime chat engine: durable rooms and messages,
// presence, and room-scoped fan-out over the shared duplex transport.
package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/cache"
	"github.com/huddlekit/huddle-server/internal/v1/codes"
	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

const (
	// maxRoomNameLength bounds room names and descriptions.
	maxRoomNameLength = 100

	// maxContentLength bounds a single message body.
	maxContentLength = 8192

	// defaultMessageLimit is the messages:get page size when the client
	// sends none; maxMessageLimit silently caps oversized requests.
	defaultMessageLimit = 50
	maxMessageLimit     = 100
)

// Service implements the chat operations against the store and the
// best-effort cache. It holds no session state; the Hub does.
type Service struct {
	rooms    store.ChatRooms
	messages store.Messages
	users    store.Users
	cache    *cache.Cache
}

// NewService wires the chat operations. c may be nil (single-instance mode,
// no Redis).
func NewService(st store.Store, c *cache.Cache) *Service {
	return &Service{
		rooms:    st.ChatRooms(),
		messages: st.Messages(),
		users:    st.Users(),
		cache:    c,
	}
}

// CreateRoom validates and persists a new room. The creator is always a
// participant; private rooms get a unique join code.
func (s *Service) CreateRoom(ctx context.Context, creator *types.User, req CreateRoomRequest) (*store.ChatRoom, *types.Error) {
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		return nil, types.NewError(types.CodeValidationError, "room name is required")
	case len(name) > maxRoomNameLength:
		return nil, types.NewError(types.CodeValidationError, "room name is too long")
	case !req.Kind.Valid():
		return nil, types.Errorf(types.CodeValidationError, "invalid room kind %q", string(req.Kind))
	case !req.Visibility.Valid():
		return nil, types.Errorf(types.CodeValidationError, "invalid room visibility %q", string(req.Visibility))
	}

	var code types.RoomCode
	if req.Visibility == store.VisibilityPrivate {
		generated, err := codes.Generate(ctx, s.codeExists)
		if err != nil {
			if we, ok := types.AsError(err); ok {
				return nil, we
			}
			return nil, store.AsWireError(err)
		}
		code = generated
	}

	room := &store.ChatRoom{
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		Kind:         req.Kind,
		Visibility:   req.Visibility,
		Code:         code,
		Participants: participantUnion(creator.ID, req.Participants),
		CreatedBy:    creator.ID,
	}

	if err := store.DoErr(ctx, "rooms", "create", func(ctx context.Context) error {
		return s.rooms.Create(ctx, room)
	}); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// The generated code lost a race with a concurrent create.
			return nil, types.NewError(types.CodeGenerationFailed, "could not generate a unique room code")
		}
		return nil, store.AsWireError(err)
	}

	if room.Visibility == store.VisibilityPublic {
		s.cache.ClearPublicList(ctx)
	}
	s.cache.SetRoom(ctx, room)

	return room, nil
}

// JoinRoom admits a user into a room by id, enforcing the code gate for
// private rooms the user is not yet a member of. Joining a room the user
// already belongs to succeeds without touching the document.
func (s *Service) JoinRoom(ctx context.Context, user *types.User, roomID types.RoomID, code string) (*store.ChatRoom, *types.Error) {
	room, err := store.Do(ctx, "rooms", "get", func(ctx context.Context) (*store.ChatRoom, error) {
		return s.rooms.Get(ctx, roomID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.CodeRoomNotFound, "room not found")
		}
		return nil, store.AsWireError(err)
	}

	wasMember := room.HasParticipant(user.ID)
	if room.Visibility == store.VisibilityPrivate && !wasMember {
		if strings.TrimSpace(code) == "" {
			return nil, types.NewError(types.CodeCodeRequired, "a join code is required for this room")
		}
		if !codes.Matches(code, room.Code) {
			return nil, types.NewError(types.CodeInvalidCode, "incorrect join code")
		}
	}

	return s.admit(ctx, user.ID, room.ID, wasMember)
}

// JoinByCode admits a user into the private room owning the supplied code.
func (s *Service) JoinByCode(ctx context.Context, user *types.User, rawCode string) (*store.ChatRoom, *types.Error) {
	code := codes.Normalize(rawCode)
	if !codes.Validate(code) {
		return nil, types.NewError(types.CodeInvalidCodeFormat, "join codes are 6-8 letters and digits")
	}

	room, err := store.Do(ctx, "rooms", "getByCode", func(ctx context.Context) (*store.ChatRoom, error) {
		return s.rooms.GetByCode(ctx, code)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.CodeRoomNotFound, "no room with that code")
		}
		return nil, store.AsWireError(err)
	}
	if room.Visibility != store.VisibilityPrivate {
		return nil, types.NewError(types.CodeNotPrivateRoom, "that code does not belong to a private room")
	}

	return s.admit(ctx, user.ID, room.ID, room.HasParticipant(user.ID))
}

// admit unions the user into the participants set and keeps the cache
// coherent. AddParticipant is idempotent, so racing admits converge on the
// same document.
func (s *Service) admit(ctx context.Context, userID types.UserID, roomID types.RoomID, wasMember bool) (*store.ChatRoom, *types.Error) {
	room, err := store.Do(ctx, "rooms", "addParticipant", func(ctx context.Context) (*store.ChatRoom, error) {
		return s.rooms.AddParticipant(ctx, roomID, userID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.CodeRoomNotFound, "room not found")
		}
		return nil, store.AsWireError(err)
	}

	if !wasMember {
		s.cache.InvalidateRoom(ctx, room.ID)
	}
	return room, nil
}

// GetRoom returns the room as the caller is entitled to see it: full for
// participants, code-redacted for public rooms, refused for private rooms.
func (s *Service) GetRoom(ctx context.Context, user *types.User, roomID types.RoomID) (*store.ChatRoom, *types.Error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.CodeRoomNotFound, "room not found")
		}
		return nil, store.AsWireError(err)
	}

	if room.HasParticipant(user.ID) {
		return room, nil
	}
	if room.Visibility == store.VisibilityPublic {
		return room.Redacted(), nil
	}
	return nil, types.NewError(types.CodeNotParticipant, "you are not a participant of this room")
}

// ListVisibleRooms composes the user's room list: every public room plus the
// private rooms they belong to, deduplicated and ordered by recency. The
// public portion is served through the shared cache.
func (s *Service) ListVisibleRooms(ctx context.Context, userID types.UserID) ([]*store.ChatRoom, *types.Error) {
	public, err := s.listPublic(ctx)
	if err != nil {
		return nil, store.AsWireError(err)
	}

	private, err := store.Do(ctx, "rooms", "listPrivate", func(ctx context.Context) ([]*store.ChatRoom, error) {
		rooms, err := s.rooms.ListPrivateByParticipant(ctx, userID)
		if errors.Is(err, store.ErrIndexMissing) {
			rooms, err = s.rooms.ListPrivateByParticipantUnordered(ctx, userID)
			store.SortRoomsByRecency(rooms)
		}
		return rooms, err
	})
	if err != nil {
		return nil, store.AsWireError(err)
	}

	seen := make(map[types.RoomID]bool, len(public)+len(private))
	merged := make([]*store.ChatRoom, 0, len(public)+len(private))
	for _, room := range append(public, private...) {
		if seen[room.ID] {
			continue
		}
		seen[room.ID] = true
		merged = append(merged, room)
	}
	store.SortRoomsByRecency(merged)

	return merged, nil
}

func (s *Service) listPublic(ctx context.Context) ([]*store.ChatRoom, error) {
	if rooms, ok := s.cache.GetPublicRooms(ctx); ok {
		return rooms, nil
	}

	rooms, err := store.Do(ctx, "rooms", "listPublic", func(ctx context.Context) ([]*store.ChatRoom, error) {
		rooms, err := s.rooms.ListPublic(ctx)
		if errors.Is(err, store.ErrIndexMissing) {
			rooms, err = s.rooms.ListPublicUnordered(ctx)
			store.SortRoomsByRecency(rooms)
		}
		return rooms, err
	})
	if err != nil {
		return nil, err
	}

	s.cache.SetPublicRooms(ctx, rooms)
	return rooms, nil
}

// SendMessage persists a message on behalf of a participant and bumps the
// room's recency. The returned message carries the server-assigned id and
// timestamp; fan-out happens after it is durable.
func (s *Service) SendMessage(ctx context.Context, user *types.User, req SendMessageRequest) (*store.ChatMessage, *types.Error) {
	content := strings.TrimSpace(req.Content)
	switch {
	case req.RoomID == "":
		return nil, types.NewError(types.CodeValidationError, "roomId is required")
	case content == "":
		return nil, types.NewError(types.CodeValidationError, "message content is required")
	case len(content) > maxContentLength:
		return nil, types.NewError(types.CodeValidationError, "message content is too long")
	}

	kind := req.Kind
	if kind == "" {
		kind = store.MessageKindText
	}
	if !kind.Valid() {
		return nil, types.Errorf(types.CodeValidationError, "invalid message kind %q", string(kind))
	}

	room, err := s.getRoom(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.CodeRoomNotFound, "room not found")
		}
		return nil, store.AsWireError(err)
	}
	if !room.HasParticipant(user.ID) {
		return nil, types.NewError(types.CodeNotParticipant, "you are not a participant of this room")
	}

	msg := &store.ChatMessage{
		RoomID:   room.ID,
		SenderID: user.ID,
		Content:  content,
		Kind:     kind,
		Metadata: req.Metadata,
	}
	s.stampSender(ctx, user, msg)

	if err := store.DoErr(ctx, "messages", "append", func(ctx context.Context) error {
		return s.messages.Append(ctx, msg)
	}); err != nil {
		return nil, store.AsWireError(err)
	}

	// The message is durable; a failed recency bump only delays list
	// ordering, so it must not fail the send.
	if err := store.DoErr(ctx, "rooms", "touch", func(ctx context.Context) error {
		return s.rooms.Touch(ctx, room.ID)
	}); err != nil {
		logging.Warn(ctx, "failed to bump room recency",
			zap.String("roomId", string(room.ID)), zap.Error(err))
	}
	s.cache.InvalidateRoom(ctx, room.ID)

	return msg, nil
}

// stampSender denormalizes the sender's display fields onto the message,
// falling back to the identity profile when the session descriptor is bare.
func (s *Service) stampSender(ctx context.Context, user *types.User, msg *store.ChatMessage) {
	msg.SenderName = user.DisplayName
	msg.SenderAvatar = user.AvatarURL

	if msg.SenderName != "" && msg.SenderAvatar != "" {
		return
	}
	profile, err := store.Do(ctx, "users", "get", func(ctx context.Context) (*store.UserProfile, error) {
		return s.users.Get(ctx, user.ID)
	})
	if err != nil {
		// Enrichment only; a missing profile never blocks the send.
		return
	}
	if msg.SenderName == "" {
		msg.SenderName = profile.DisplayName
	}
	if msg.SenderAvatar == "" {
		msg.SenderAvatar = profile.AvatarURL
	}
}

// ListMessages returns a chronological page of room history for a
// participant. The cursor pages backwards; an empty NextCursor means the
// start of history was reached.
func (s *Service) ListMessages(ctx context.Context, user *types.User, req GetMessagesRequest) (*MessagesList, *types.Error) {
	if req.RoomID == "" {
		return nil, types.NewError(types.CodeValidationError, "roomId is required")
	}

	limit := defaultMessageLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	switch {
	case limit < 0:
		return nil, types.NewError(types.CodeValidationError, "limit must not be negative")
	case limit > maxMessageLimit:
		limit = maxMessageLimit
	}

	room, err := s.getRoom(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.CodeRoomNotFound, "room not found")
		}
		return nil, store.AsWireError(err)
	}
	if !room.HasParticipant(user.ID) {
		return nil, types.NewError(types.CodeNotParticipant, "you are not a participant of this room")
	}

	if limit == 0 {
		return &MessagesList{RoomID: room.ID, Messages: []*store.ChatMessage{}}, nil
	}

	cursor, _ := store.DecodeCursor(req.Cursor)

	page, err := store.Do(ctx, "messages", "list", func(ctx context.Context) ([]*store.ChatMessage, error) {
		msgs, err := s.messages.ListByRoom(ctx, room.ID, limit, cursor)
		if errors.Is(err, store.ErrIndexMissing) {
			msgs, err = s.listMessagesFallback(ctx, room.ID, limit, cursor)
		}
		return msgs, err
	})
	if err != nil {
		return nil, store.AsWireError(err)
	}

	var nextCursor string
	if len(page) == limit {
		nextCursor = store.CursorFor(page[len(page)-1])
	}

	// The repository returns newest-first; the wire contract is
	// chronological.
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}

	return &MessagesList{RoomID: room.ID, Messages: page, NextCursor: nextCursor}, nil
}

// listMessagesFallback serves a page without the ordered index: fetch all,
// filter by cursor, sort, truncate.
func (s *Service) listMessagesFallback(ctx context.Context, roomID types.RoomID, limit int, cursor *store.MessageCursor) ([]*store.ChatMessage, error) {
	all, err := s.messages.ListByRoomUnordered(ctx, roomID)
	if err != nil {
		return nil, err
	}

	kept := all[:0]
	for _, msg := range all {
		if cursor == nil || cursor.Admits(msg) {
			kept = append(kept, msg)
		}
	}
	store.SortMessagesDescending(kept)
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept, nil
}

func (s *Service) getRoom(ctx context.Context, id types.RoomID) (*store.ChatRoom, error) {
	if room, ok := s.cache.GetRoom(ctx, id); ok {
		return room, nil
	}
	room, err := store.Do(ctx, "rooms", "get", func(ctx context.Context) (*store.ChatRoom, error) {
		return s.rooms.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	s.cache.SetRoom(ctx, room)
	return room, nil
}

// codeExists is the uniqueness probe handed to the code generator.
func (s *Service) codeExists(ctx context.Context, code types.RoomCode) (bool, error) {
	_, err := store.Do(ctx, "rooms", "getByCode", func(ctx context.Context) (*store.ChatRoom, error) {
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

func participantUnion(creator types.UserID, provided []types.UserID) []types.UserID {
	out := []types.UserID{creator}
	seen := map[types.UserID]bool{creator: true}
	for _, id := range provided {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
