package types

import (
	"context"
	"errors"
	"fmt"
)

// --- Core Domain Types ---

// UserID is the opaque identity of a user as minted by the identity service.
type UserID string

// SessionID uniquely identifies one open duplex connection. A user may hold
// several sessions at once.
type SessionID string

// RoomID identifies a chat room or a video room in the durable store.
type RoomID string

// RoomCode is the short human-shareable handle used to join a room.
type RoomCode string

// User is the transient descriptor attached to an authenticated session.
// It is derived from token verification and never persisted by the core.
type User struct {
	ID          UserID `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Anonymous reports whether the descriptor was synthesized for an
// unauthenticated video session.
func (u User) Anonymous() bool {
	return len(u.ID) > len(AnonymousPrefix) && string(u.ID[:len(AnonymousPrefix)]) == AnonymousPrefix
}

// AnonymousPrefix marks synthetic user ids issued to guest video sessions.
const AnonymousPrefix = "anonymous_"

// --- Shared Interfaces ---

// TokenVerifier validates a bearer credential and resolves the user it
// belongs to. Implementations live in the auth package; engines receive the
// interface so tests can substitute fakes.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// SessionHandle is the behavior the engines need from a live duplex session.
// It lets the chat and video packages fan out events without depending on the
// transport package; tests substitute scripted implementations.
type SessionHandle interface {
	ID() SessionID
	User() *User

	// Context is canceled when the session disconnects; handlers derive
	// per-operation deadlines from it.
	Context() context.Context

	SendEvent(event string, payload any)
	SendPrepared(event string, data []byte)
	SendError(e *Error)

	// Close tears the session down. Safe from any goroutine.
	Close()
}

// --- Wire Errors ---

// Code is a stable machine-readable error condition. Codes are part of the
// public contract; prose messages are informational only.
type Code string

const (
	// Auth
	CodeAuthRequired Code = "AUTH_REQUIRED"
	CodeAuthFailed   Code = "AUTH_FAILED"
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Input
	CodeValidationError        Code = "VALIDATION_ERROR"
	CodeInvalidCodeFormat      Code = "INVALID_CODE_FORMAT"
	CodeInvalidSignalType      Code = "INVALID_SIGNAL_TYPE"
	CodeInvalidSignalStructure Code = "INVALID_SIGNAL_STRUCTURE"
	CodeMissingSignalData      Code = "MISSING_SIGNAL_DATA"
	CodeMustIncludeTarget      Code = "MUST_INCLUDE_TARGET"

	// Resource
	CodeRoomNotFound       Code = "ROOM_NOT_FOUND"
	CodeTargetUserNotFound Code = "TARGET_USER_NOT_FOUND"

	// Policy
	CodeCodeRequired   Code = "CODE_REQUIRED"
	CodeInvalidCode    Code = "INVALID_CODE"
	CodeNotPrivateRoom Code = "NOT_PRIVATE_ROOM"
	CodeNotParticipant Code = "NOT_PARTICIPANT"
	CodeNotInRoom      Code = "NOT_IN_ROOM"
	CodeRoomFull       Code = "ROOM_FULL"

	// Transient / infra
	CodeStoreTimeout       Code = "STORE_TIMEOUT"
	CodeStoreUnavailable   Code = "STORE_UNAVAILABLE"
	CodeGenerationFailed   Code = "CODE_GENERATION_FAILED"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeRateLimited        Code = "RATE_LIMITED"
)

// Error is the failure form shared by the HTTP and event surfaces. It is
// returned by engine operations instead of being thrown through the stack.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a wire error with the given stable code.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf builds a wire error with a formatted message.
func Errorf(code Code, format string, a ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, a...)}
}

// AsError unwraps err into a wire error if one is present in its chain.
func AsError(err error) (*Error, bool) {
	var we *Error
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// WireError coerces any error into a wire error. Non-wire errors are
// reported as STORE_UNAVAILABLE so internal details never leak to clients.
func WireError(err error) *Error {
	if we, ok := AsError(err); ok {
		return we
	}
	return NewError(CodeStoreUnavailable, "operation failed")
}
