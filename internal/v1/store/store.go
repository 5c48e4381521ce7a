package store

import (
	"context"
	"errors"

	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// Sentinel errors every implementation maps its native failures onto.
// Engines branch on these; they never see driver errors directly.
var (
	// ErrNotFound: the requested document does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict: an atomic read-modify-write lost a race and may be retried.
	ErrConflict = errors.New("store: write conflict")

	// ErrIndexMissing: the backend cannot satisfy an ordered query; callers
	// fall back to the unordered variant and sort in memory.
	ErrIndexMissing = errors.New("store: index missing")

	// ErrCapacity: a guarded array add would exceed the document's limit.
	ErrCapacity = errors.New("store: room at capacity")

	// ErrUnavailable: the backend is unreachable or refused the operation.
	ErrUnavailable = errors.New("store: unavailable")

	// ErrTimeout: the per-operation deadline elapsed.
	ErrTimeout = errors.New("store: timeout")
)

// IsTransient reports whether an error is worth one internal retry.
// Timeouts are not retried; they already consumed the operation budget.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}

// AsWireError maps an exhausted store error onto the client-visible
// taxonomy: deadline expiry becomes STORE_TIMEOUT, everything else
// STORE_UNAVAILABLE. Not-found conditions must be mapped by the caller
// before reaching here.
func AsWireError(err error) *types.Error {
	if we, ok := types.AsError(err); ok {
		return we
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.CodeStoreTimeout, "store operation timed out")
	}
	return types.NewError(types.CodeStoreUnavailable, "store operation failed")
}

// ChatRooms is the chat room repository. Create assigns the id and both
// timestamps in place. Ordered list methods may fail with ErrIndexMissing,
// in which case the unordered variants always succeed and the caller sorts.
type ChatRooms interface {
	Create(ctx context.Context, room *ChatRoom) error
	Get(ctx context.Context, id types.RoomID) (*ChatRoom, error)
	GetByCode(ctx context.Context, code types.RoomCode) (*ChatRoom, error)

	// ListPublic returns public rooms ordered by updatedAt descending.
	ListPublic(ctx context.Context) ([]*ChatRoom, error)
	ListPublicUnordered(ctx context.Context) ([]*ChatRoom, error)

	// ListPrivateByParticipant returns private rooms containing the user,
	// ordered by updatedAt descending.
	ListPrivateByParticipant(ctx context.Context, userID types.UserID) ([]*ChatRoom, error)
	ListPrivateByParticipantUnordered(ctx context.Context, userID types.UserID) ([]*ChatRoom, error)

	// AddParticipant atomically unions the user into the participants set
	// and bumps updatedAt. Adding an existing participant is a no-op that
	// still returns the current document.
	AddParticipant(ctx context.Context, id types.RoomID, userID types.UserID) (*ChatRoom, error)

	// Touch bumps updatedAt, moving the room up in recency-ordered lists.
	Touch(ctx context.Context, id types.RoomID) error
}

// Messages is the chat message repository. Append assigns the id and
// timestamp in place.
type Messages interface {
	Append(ctx context.Context, msg *ChatMessage) error

	// ListByRoom returns up to limit messages newest-first, strictly older
	// than the cursor when one is given. May fail with ErrIndexMissing.
	ListByRoom(ctx context.Context, roomID types.RoomID, limit int, before *MessageCursor) ([]*ChatMessage, error)

	// ListByRoomUnordered returns all messages of a room in no particular
	// order; the caller filters and sorts.
	ListByRoomUnordered(ctx context.Context, roomID types.RoomID) ([]*ChatMessage, error)
}

// Users reads identity-owned profile documents. The core never writes them.
type Users interface {
	Get(ctx context.Context, id types.UserID) (*UserProfile, error)
}

// VideoRooms is the video room repository.
type VideoRooms interface {
	Create(ctx context.Context, room *VideoRoom) error
	Get(ctx context.Context, id types.RoomID) (*VideoRoom, error)
	GetByCode(ctx context.Context, code types.RoomCode) (*VideoRoom, error)

	// AddParticipant atomically unions the user into the participants set,
	// enforcing maxParticipants with a compare-and-set. Returns ErrCapacity
	// when the room is full; adding an existing participant never fails on
	// capacity.
	AddParticipant(ctx context.Context, id types.RoomID, userID types.UserID) (*VideoRoom, error)

	// RemoveParticipant atomically removes the user. Removing an absent
	// participant is a no-op.
	RemoveParticipant(ctx context.Context, id types.RoomID, userID types.UserID) (*VideoRoom, error)

	// LinkChatRoom records the auto-created companion chat room.
	LinkChatRoom(ctx context.Context, id types.RoomID, chatRoomID types.RoomID, chatRoomCode types.RoomCode) error

	// Delete removes the room document and its code index entry.
	Delete(ctx context.Context, id types.RoomID) error
}

// VideoParticipants is the per-(room, user) media state repository.
type VideoParticipants interface {
	// Put upserts the record, assigning joinedAt when unset.
	Put(ctx context.Context, p *VideoParticipant) error
	Get(ctx context.Context, roomID types.RoomID, userID types.UserID) (*VideoParticipant, error)
	ListByRoom(ctx context.Context, roomID types.RoomID) ([]*VideoParticipant, error)

	// Update applies mutate atomically and returns the updated record.
	Update(ctx context.Context, roomID types.RoomID, userID types.UserID, mutate func(*VideoParticipant)) (*VideoParticipant, error)

	// Delete removes the record; deleting an absent record is a no-op.
	Delete(ctx context.Context, roomID types.RoomID, userID types.UserID) error

	// DeleteByRoom removes every record of the room, returning the count.
	DeleteByRoom(ctx context.Context, roomID types.RoomID) (int, error)
}

// Store aggregates the repositories behind one handle plus liveness probing.
type Store interface {
	ChatRooms() ChatRooms
	Messages() Messages
	Users() Users
	VideoRooms() VideoRooms
	VideoParticipants() VideoParticipants

	Ping(ctx context.Context) error
	Close() error
}
