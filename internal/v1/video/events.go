package video

import (
	"encoding/json"

	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// Client → server events.
const (
	EventRoomCreate   = "video:room:create"
	EventRoomJoin     = "video:room:join"
	EventRoomLeave    = "video:room:leave"
	EventRoomEnd      = "video:room:end"
	EventSignal       = "video:signal"
	EventToggleAudio  = "video:toggle-audio"
	EventToggleVideo  = "video:toggle-video"
	EventToggleScreen = "video:toggle-screen"
	EventScreenStart  = "video:screen:start"
	EventScreenStop   = "video:screen:stop"
	EventStreamReady  = "video:stream:ready"
)

// Server → client events. EventSignal and EventStreamReady are reused in
// both directions.
const (
	EventRoomCreated       = "video:room:created"
	EventRoomJoined        = "video:room:joined"
	EventRoomLeft          = "video:room:left"
	EventRoomEnded         = "video:room:ended"
	EventUserJoined        = "video:user:joined"
	EventUserLeft          = "video:user:left"
	EventAudioToggled      = "video:audio:toggled"
	EventVideoToggled      = "video:video:toggled"
	EventScreenToggled     = "video:screen:toggled"
	EventScreenStarted     = "video:screen:started"
	EventScreenStopped     = "video:screen:stopped"
	EventNegotiationNeeded = "video:screen:negotiation:needed"
)

// Signal kinds accepted on the relay.
const (
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
)

// CreateRoomRequest is the video:room:create payload. WithChatRoom asks for
// a companion private chat room linked to the conference.
type CreateRoomRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	WithChatRoom bool   `json:"withChatRoom,omitempty"`
}

// JoinRoomRequest is the video:room:join payload. The code takes precedence
// when both are supplied.
type JoinRoomRequest struct {
	RoomID types.RoomID `json:"roomId,omitempty"`
	Code   string       `json:"code,omitempty"`
}

// RoomRequest addresses a single room (video:room:leave, video:room:end).
type RoomRequest struct {
	RoomID types.RoomID `json:"roomId"`
}

// SignalRequest is the video:signal payload. LegacyKind accepts the older
// client field name; Kind wins when both are set.
type SignalRequest struct {
	Kind         string          `json:"signalKind"`
	LegacyKind   string          `json:"kind,omitempty"`
	RoomID       types.RoomID    `json:"roomId"`
	TargetUserID types.UserID    `json:"targetUserId,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// SignalKind returns the effective signal kind.
func (r *SignalRequest) SignalKind() string {
	if r.Kind != "" {
		return r.Kind
	}
	return r.LegacyKind
}

// ToggleRequest is the payload of the three media toggles.
type ToggleRequest struct {
	RoomID  types.RoomID `json:"roomId"`
	Enabled bool         `json:"enabled"`
}

// StreamReadyRequest is the video:stream:ready payload. StreamID is
// client-supplied when present, server-assigned otherwise. ScreenSharing,
// when given, updates the participant record before the announcement.
type StreamReadyRequest struct {
	RoomID        types.RoomID `json:"roomId"`
	StreamID      string       `json:"streamId,omitempty"`
	StreamType    string       `json:"streamType,omitempty"`
	ScreenSharing *bool        `json:"screenSharing,omitempty"`
}

// RoomCreated is the video:room:created payload: the room plus the host's
// own participant record.
type RoomCreated struct {
	Room        *store.VideoRoom        `json:"room"`
	Participant *store.VideoParticipant `json:"participant"`
}

// RoomJoined is the video:room:joined payload. Participants is the full
// current snapshot, the joiner included; it is what lets the joiner start
// peer connections.
type RoomJoined struct {
	Room         *store.VideoRoom          `json:"room"`
	Participants []*store.VideoParticipant `json:"participants"`
}

// UserJoined is the video:user:joined payload sent to existing subscribers.
type UserJoined struct {
	RoomID      types.RoomID            `json:"roomId"`
	Participant *store.VideoParticipant `json:"participant"`
}

// UserLeft is the video:user:left payload.
type UserLeft struct {
	RoomID types.RoomID `json:"roomId"`
	UserID types.UserID `json:"userId"`
}

// RoomLeft acknowledges video:room:leave to the leaver.
type RoomLeft struct {
	RoomID types.RoomID `json:"roomId"`
}

// RoomEnded is the video:room:ended payload, sent to every subscriber.
type RoomEnded struct {
	RoomID types.RoomID `json:"roomId"`
}

// SignalOut is the relayed video:signal payload. Metadata always carries the
// sender's media flags and the derived streamType.
type SignalOut struct {
	Kind         string          `json:"signalKind"`
	RoomID       types.RoomID    `json:"roomId"`
	FromUserID   types.UserID    `json:"fromUserId"`
	TargetUserID types.UserID    `json:"targetUserId,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	Metadata     map[string]any  `json:"metadata"`
}

// Toggled is the payload of the three *:toggled broadcasts.
type Toggled struct {
	RoomID  types.RoomID `json:"roomId"`
	UserID  types.UserID `json:"userId"`
	Enabled bool         `json:"enabled"`
}

// ScreenState is the video:screen:started / video:screen:stopped payload.
type ScreenState struct {
	RoomID types.RoomID `json:"roomId"`
	UserID types.UserID `json:"userId"`
}

// NegotiationNeeded tells peers to open a connection for a new screen
// stream.
type NegotiationNeeded struct {
	RoomID types.RoomID `json:"roomId"`
	UserID types.UserID `json:"userId"`
}

// StreamReady is the broadcast form of video:stream:ready.
type StreamReady struct {
	RoomID     types.RoomID `json:"roomId"`
	UserID     types.UserID `json:"userId"`
	StreamID   string       `json:"streamId"`
	StreamType string       `json:"streamType"`
}
