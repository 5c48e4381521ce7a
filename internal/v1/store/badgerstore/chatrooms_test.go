package badgerstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

func createChatRoom(t *testing.T, s *Store, room *store.ChatRoom) *store.ChatRoom {
	t.Helper()
	require.NoError(t, s.ChatRooms().Create(context.Background(), room))
	// Keep updatedAt millis distinct so recency ordering is deterministic.
	time.Sleep(2 * time.Millisecond)
	return room
}

func TestChatRooms_CreateAssignsIdentityAndTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room := &store.ChatRoom{
		Name:         "design reviews",
		Kind:         store.RoomKindGroup,
		Visibility:   store.VisibilityPrivate,
		Code:         "ABCDEF",
		Participants: []types.UserID{"user-1"},
		CreatedBy:    "user-1",
	}
	require.NoError(t, s.ChatRooms().Create(ctx, room))

	assert.NotEmpty(t, room.ID)
	assert.False(t, room.CreatedAt.IsZero())
	assert.Equal(t, room.CreatedAt, room.UpdatedAt)

	got, err := s.ChatRooms().Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.Name, got.Name)
	assert.Equal(t, []types.UserID{"user-1"}, got.Participants)

	byCode, err := s.ChatRooms().GetByCode(ctx, "ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, room.ID, byCode.ID)
}

func TestChatRooms_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ChatRooms().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.ChatRooms().GetByCode(context.Background(), "ZZZZZZ")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChatRooms_CodeIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &store.ChatRoom{Name: "a", Kind: store.RoomKindGroup, Visibility: store.VisibilityPrivate, Code: "SAMECD"}
	require.NoError(t, s.ChatRooms().Create(ctx, first))

	dup := &store.ChatRoom{Name: "b", Kind: store.RoomKindGroup, Visibility: store.VisibilityPrivate, Code: "SAMECD"}
	err := s.ChatRooms().Create(ctx, dup)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestChatRooms_ListPublicNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	oldest := createChatRoom(t, s, &store.ChatRoom{Name: "oldest", Kind: store.RoomKindChannel, Visibility: store.VisibilityPublic})
	middle := createChatRoom(t, s, &store.ChatRoom{Name: "middle", Kind: store.RoomKindChannel, Visibility: store.VisibilityPublic})
	newest := createChatRoom(t, s, &store.ChatRoom{Name: "newest", Kind: store.RoomKindChannel, Visibility: store.VisibilityPublic})
	createChatRoom(t, s, &store.ChatRoom{Name: "hidden", Kind: store.RoomKindGroup, Visibility: store.VisibilityPrivate, Code: "HIDDEN"})

	rooms, err := s.ChatRooms().ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, newest.ID, rooms[0].ID)
	assert.Equal(t, middle.ID, rooms[1].ID)
	assert.Equal(t, oldest.ID, rooms[2].ID)

	// Touch moves the room to the front of the list.
	require.NoError(t, s.ChatRooms().Touch(ctx, oldest.ID))
	rooms, err = s.ChatRooms().ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, oldest.ID, rooms[0].ID)
	assert.Equal(t, newest.ID, rooms[1].ID)
}

func TestChatRooms_ListPublicUnordered(t *testing.T) {
	s := newTestStore(t)

	createChatRoom(t, s, &store.ChatRoom{Name: "pub", Kind: store.RoomKindChannel, Visibility: store.VisibilityPublic})
	createChatRoom(t, s, &store.ChatRoom{Name: "priv", Kind: store.RoomKindGroup, Visibility: store.VisibilityPrivate, Code: "PRIVAT"})

	rooms, err := s.ChatRooms().ListPublicUnordered(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "pub", rooms[0].Name)
}

func TestChatRooms_ListPrivateByParticipant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := createChatRoom(t, s, &store.ChatRoom{
		Name: "ours-old", Kind: store.RoomKindGroup, Visibility: store.VisibilityPrivate,
		Code: "CODEAA", Participants: []types.UserID{"me", "peer"},
	})
	newer := createChatRoom(t, s, &store.ChatRoom{
		Name: "ours-new", Kind: store.RoomKindGroup, Visibility: store.VisibilityPrivate,
		Code: "CODEBB", Participants: []types.UserID{"me"},
	})
	createChatRoom(t, s, &store.ChatRoom{
		Name: "theirs", Kind: store.RoomKindGroup, Visibility: store.VisibilityPrivate,
		Code: "CODECC", Participants: []types.UserID{"peer"},
	})
	createChatRoom(t, s, &store.ChatRoom{
		Name: "public", Kind: store.RoomKindChannel, Visibility: store.VisibilityPublic,
		Participants: []types.UserID{"me"},
	})

	rooms, err := s.ChatRooms().ListPrivateByParticipant(ctx, "me")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, newer.ID, rooms[0].ID)
	assert.Equal(t, older.ID, rooms[1].ID)

	unordered, err := s.ChatRooms().ListPrivateByParticipantUnordered(ctx, "me")
	require.NoError(t, err)
	assert.Len(t, unordered, 2)
}

func TestChatRooms_AddParticipant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room := createChatRoom(t, s, &store.ChatRoom{
		Name: "standup", Kind: store.RoomKindGroup, Visibility: store.VisibilityPrivate,
		Code: "STANDU", Participants: []types.UserID{"creator"},
	})

	updated, err := s.ChatRooms().AddParticipant(ctx, room.ID, "joiner")
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.UserID{"creator", "joiner"}, updated.Participants)
	assert.True(t, updated.UpdatedAt.After(room.UpdatedAt.Time))

	// Re-adding an existing participant neither duplicates nor bumps recency.
	again, err := s.ChatRooms().AddParticipant(ctx, room.ID, "joiner")
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.UserID{"creator", "joiner"}, again.Participants)
	assert.True(t, again.UpdatedAt.Equal(updated.UpdatedAt.Time))
}

func TestChatRooms_AddParticipantMovesRecencyIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := createChatRoom(t, s, &store.ChatRoom{Name: "first", Kind: store.RoomKindChannel, Visibility: store.VisibilityPublic})
	second := createChatRoom(t, s, &store.ChatRoom{Name: "second", Kind: store.RoomKindChannel, Visibility: store.VisibilityPublic})

	_, err := s.ChatRooms().AddParticipant(ctx, first.ID, "late-joiner")
	require.NoError(t, err)

	rooms, err := s.ChatRooms().ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, first.ID, rooms[0].ID)
	assert.Equal(t, second.ID, rooms[1].ID)
}

func TestChatRooms_AddParticipantMissingRoom(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ChatRooms().AddParticipant(context.Background(), "ghost", "joiner")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
