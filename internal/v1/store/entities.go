// Package store defines the durable entities of the platform and the
// repository contracts the engines depend on. Implementations live in
// subpackages; the engines never see a concrete database type.
package store

import (
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// RoomKind discriminates chat room shapes.
type RoomKind string

const (
	RoomKindDirect  RoomKind = "direct"
	RoomKindGroup   RoomKind = "group"
	RoomKindChannel RoomKind = "channel"
)

func (k RoomKind) Valid() bool {
	switch k {
	case RoomKindDirect, RoomKindGroup, RoomKindChannel:
		return true
	}
	return false
}

// Visibility controls discovery and join policy.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// MessageKind discriminates chat message payloads.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindImage  MessageKind = "image"
	MessageKindFile   MessageKind = "file"
	MessageKindSystem MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindFile, MessageKindSystem:
		return true
	}
	return false
}

// ChatRoom is a persisted conversation. Private rooms carry a join code;
// public rooms never do.
type ChatRoom struct {
	ID           types.RoomID   `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Kind         RoomKind       `json:"kind"`
	Visibility   Visibility     `json:"visibility"`
	Code         types.RoomCode `json:"code,omitempty"`
	Participants []types.UserID `json:"participants"`
	CreatedBy    types.UserID   `json:"createdBy"`
	VideoRoomID  types.RoomID   `json:"videoRoomId,omitempty"`
	CreatedAt    Timestamp      `json:"createdAt"`
	UpdatedAt    Timestamp      `json:"updatedAt"`
}

// HasParticipant reports membership of a user in the room.
func (r *ChatRoom) HasParticipant(userID types.UserID) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe for non-participant eyes: the join code is
// stripped.
func (r *ChatRoom) Redacted() *ChatRoom {
	cp := *r
	cp.Code = ""
	cp.Participants = append([]types.UserID(nil), r.Participants...)
	return &cp
}

// Clone returns a deep copy of the room.
func (r *ChatRoom) Clone() *ChatRoom {
	cp := *r
	cp.Participants = append([]types.UserID(nil), r.Participants...)
	return &cp
}

// ChatMessage is a persisted message within a room. Sender name and avatar
// are denormalized snapshots taken at send time.
type ChatMessage struct {
	ID           string         `json:"id"`
	RoomID       types.RoomID   `json:"roomId"`
	SenderID     types.UserID   `json:"senderId"`
	SenderName   string         `json:"senderName,omitempty"`
	SenderAvatar string         `json:"senderAvatar,omitempty"`
	Content      string         `json:"content"`
	Kind         MessageKind    `json:"kind"`
	Timestamp    Timestamp      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// VideoRoom is a persisted conference room. All video rooms are public and
// joinable by code in the current model.
type VideoRoom struct {
	ID              types.RoomID   `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	HostID          types.UserID   `json:"hostId"`
	Participants    []types.UserID `json:"participants"`
	MaxParticipants int            `json:"maxParticipants"`
	Visibility      Visibility     `json:"visibility"`
	Code            types.RoomCode `json:"code"`
	ChatRoomID      types.RoomID   `json:"chatRoomId,omitempty"`
	ChatRoomCode    types.RoomCode `json:"chatRoomCode,omitempty"`
	CreatedAt       Timestamp      `json:"createdAt"`
	UpdatedAt       Timestamp      `json:"updatedAt"`
}

// HasParticipant reports membership of a user in the room.
func (r *VideoRoom) HasParticipant(userID types.UserID) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the room.
func (r *VideoRoom) Clone() *VideoRoom {
	cp := *r
	cp.Participants = append([]types.UserID(nil), r.Participants...)
	return &cp
}

// VideoParticipant is the per-(room, user) media state record. It exists
// exactly while the user is in the room's participants set.
type VideoParticipant struct {
	RoomID        types.RoomID    `json:"roomId"`
	UserID        types.UserID    `json:"userId"`
	SocketID      types.SessionID `json:"socketId"`
	DisplayName   string          `json:"displayName,omitempty"`
	Email         string          `json:"email,omitempty"`
	AudioEnabled  bool            `json:"audioEnabled"`
	VideoEnabled  bool            `json:"videoEnabled"`
	ScreenSharing bool            `json:"screenSharing"`
	JoinedAt      Timestamp       `json:"joinedAt"`
}

// ParticipantKey is the storage key of a VideoParticipant record.
func ParticipantKey(roomID types.RoomID, userID types.UserID) string {
	return string(roomID) + "_" + string(userID)
}

// UserProfile is the identity-owned profile document. The core reads these
// for display enrichment but never writes them.
type UserProfile struct {
	ID          types.UserID `json:"id"`
	DisplayName string       `json:"displayName,omitempty"`
	Email       string       `json:"email,omitempty"`
	AvatarURL   string       `json:"avatarUrl,omitempty"`
}
