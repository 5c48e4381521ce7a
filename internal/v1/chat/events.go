package chat

import (
	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// Client → server events.
const (
	EventRoomCreate     = "room:create"
	EventRoomJoin       = "room:join"
	EventRoomJoinByCode = "room:join-by-code"
	EventRoomLeave      = "room:leave"
	EventRoomGet        = "room:get"
	EventMessageSend    = "message:send"
	EventMessagesGet    = "messages:get"
)

// Server → client events.
const (
	EventRoomsList      = "rooms:list"
	EventRoomCreated    = "room:created"
	EventRoomJoined     = "room:joined"
	EventRoomLeft       = "room:left"
	EventRoomDetails    = "room:details"
	EventRoomUserJoined = "room:user-joined"
	EventRoomUserLeft   = "room:user-left"
	EventMessageNew     = "message:new"
	EventMessagesList   = "messages:list"
	EventUserOnline     = "user:online"
	EventUserOffline    = "user:offline"
)

// CreateRoomRequest is the room:create payload.
type CreateRoomRequest struct {
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Kind         store.RoomKind   `json:"kind"`
	Visibility   store.Visibility `json:"visibility"`
	Participants []types.UserID   `json:"participants,omitempty"`
}

// JoinRoomRequest is the room:join payload. Code is required for private
// rooms the user is not yet a member of.
type JoinRoomRequest struct {
	RoomID types.RoomID `json:"roomId"`
	Code   string       `json:"code,omitempty"`
}

// JoinByCodeRequest is the room:join-by-code payload.
type JoinByCodeRequest struct {
	Code string `json:"code"`
}

// RoomRequest addresses a single room (room:leave, room:get).
type RoomRequest struct {
	RoomID types.RoomID `json:"roomId"`
}

// SendMessageRequest is the message:send payload. Kind defaults to text.
type SendMessageRequest struct {
	RoomID   types.RoomID      `json:"roomId"`
	Content  string            `json:"content"`
	Kind     store.MessageKind `json:"kind,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// GetMessagesRequest is the messages:get payload. A nil limit means the
// default page size; zero means an intentionally empty page.
type GetMessagesRequest struct {
	RoomID types.RoomID `json:"roomId"`
	Limit  *int         `json:"limit,omitempty"`
	Cursor string       `json:"cursor,omitempty"`
}

// RoomsList is the rooms:list payload: everything visible to the user,
// newest activity first.
type RoomsList struct {
	Rooms []*store.ChatRoom `json:"rooms"`
}

// MessagesList is the messages:list payload. Messages are in chronological
// order; NextCursor pages further into the past and is empty at the end of
// history.
type MessagesList struct {
	RoomID     types.RoomID         `json:"roomId"`
	Messages   []*store.ChatMessage `json:"messages"`
	NextCursor string               `json:"nextCursor,omitempty"`
}

// UserJoined is the room:user-joined payload sent to existing subscribers.
type UserJoined struct {
	RoomID      types.RoomID `json:"roomId"`
	UserID      types.UserID `json:"userId"`
	DisplayName string       `json:"displayName,omitempty"`
}

// UserLeft is the room:user-left payload.
type UserLeft struct {
	RoomID types.RoomID `json:"roomId"`
	UserID types.UserID `json:"userId"`
}

// RoomLeft acknowledges room:leave to the leaver.
type RoomLeft struct {
	RoomID types.RoomID `json:"roomId"`
}

// Presence is the user:online / user:offline payload.
type Presence struct {
	UserID types.UserID `json:"userId"`
}
