package badgerstore

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

type chatRooms struct {
	db *badger.DB
}

func (r *chatRooms) Create(_ context.Context, room *store.ChatRoom) error {
	room.ID = types.RoomID(uuid.NewString())
	now := store.Now()
	room.CreatedAt = now
	room.UpdatedAt = now
	if room.Participants == nil {
		room.Participants = []types.UserID{}
	}

	return mapErr(r.db.Update(func(txn *badger.Txn) error {
		if room.Code != "" {
			// Unique code index; a hit here means the generator raced.
			switch _, err := txn.Get(chatRoomCodeKey(room.Code)); {
			case err == nil:
				return store.ErrConflict
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if err := txn.Set(chatRoomCodeKey(room.Code), []byte(room.ID)); err != nil {
				return err
			}
		}
		if room.Visibility == store.VisibilityPublic {
			if err := txn.Set(chatRoomPubKey(room.UpdatedAt.Time, room.ID), []byte(room.ID)); err != nil {
				return err
			}
		}
		return setJSON(txn, chatRoomKey(room.ID), room)
	}))
}

func (r *chatRooms) Get(_ context.Context, id types.RoomID) (*store.ChatRoom, error) {
	var room *store.ChatRoom
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getJSON[store.ChatRoom](txn, chatRoomKey(id))
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return room, nil
}

func (r *chatRooms) GetByCode(_ context.Context, code types.RoomCode) (*store.ChatRoom, error) {
	var room *store.ChatRoom
	err := r.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, chatRoomCodeKey(code))
		if err != nil {
			return err
		}
		room, err = getJSON[store.ChatRoom](txn, chatRoomKey(types.RoomID(id)))
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return room, nil
}

// ListPublic walks the recency index, newest first. Index entries are moved
// in the same transaction as every updatedAt change, so the walk needs no
// dedup beyond a defensive seen-set.
func (r *chatRooms) ListPublic(_ context.Context) ([]*store.ChatRoom, error) {
	var rooms []*store.ChatRoom
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixChatRoomPub)
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := map[types.RoomID]bool{}
		for it.Rewind(); it.Valid(); it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			roomID := types.RoomID(id)
			if seen[roomID] {
				continue
			}
			seen[roomID] = true

			room, err := getJSON[store.ChatRoom](txn, chatRoomKey(roomID))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return rooms, nil
}

func (r *chatRooms) ListPublicUnordered(_ context.Context) ([]*store.ChatRoom, error) {
	return r.scan(func(room *store.ChatRoom) bool {
		return room.Visibility == store.VisibilityPublic
	})
}

func (r *chatRooms) ListPrivateByParticipant(_ context.Context, userID types.UserID) ([]*store.ChatRoom, error) {
	rooms, err := r.scan(func(room *store.ChatRoom) bool {
		return room.Visibility == store.VisibilityPrivate && room.HasParticipant(userID)
	})
	if err != nil {
		return nil, err
	}
	store.SortRoomsByRecency(rooms)
	return rooms, nil
}

func (r *chatRooms) ListPrivateByParticipantUnordered(_ context.Context, userID types.UserID) ([]*store.ChatRoom, error) {
	return r.scan(func(room *store.ChatRoom) bool {
		return room.Visibility == store.VisibilityPrivate && room.HasParticipant(userID)
	})
}

func (r *chatRooms) AddParticipant(_ context.Context, id types.RoomID, userID types.UserID) (*store.ChatRoom, error) {
	var updated *store.ChatRoom
	err := r.db.Update(func(txn *badger.Txn) error {
		room, err := getJSON[store.ChatRoom](txn, chatRoomKey(id))
		if err != nil {
			return err
		}
		if room.HasParticipant(userID) {
			updated = room
			return nil
		}

		room.Participants = append(room.Participants, userID)
		if err := bumpRecency(txn, room); err != nil {
			return err
		}
		updated = room
		return setJSON(txn, chatRoomKey(id), room)
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return updated, nil
}

func (r *chatRooms) Touch(_ context.Context, id types.RoomID) error {
	return mapErr(r.db.Update(func(txn *badger.Txn) error {
		room, err := getJSON[store.ChatRoom](txn, chatRoomKey(id))
		if err != nil {
			return err
		}
		if err := bumpRecency(txn, room); err != nil {
			return err
		}
		return setJSON(txn, chatRoomKey(id), room)
	}))
}

// bumpRecency advances updatedAt and moves the public recency index entry.
func bumpRecency(txn *badger.Txn, room *store.ChatRoom) error {
	oldKey := chatRoomPubKey(room.UpdatedAt.Time, room.ID)
	room.UpdatedAt = store.Now()
	if room.Visibility != store.VisibilityPublic {
		return nil
	}
	if err := txn.Delete(oldKey); err != nil {
		return err
	}
	return txn.Set(chatRoomPubKey(room.UpdatedAt.Time, room.ID), []byte(room.ID))
}

func (r *chatRooms) scan(keep func(*store.ChatRoom) bool) ([]*store.ChatRoom, error) {
	var rooms []*store.ChatRoom
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixChatRoom)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var room store.ChatRoom
			if err := it.Item().Value(func(val []byte) error {
				return decodeJSON(val, &room)
			}); err != nil {
				return err
			}
			if keep(&room) {
				cp := room
				rooms = append(rooms, &cp)
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return rooms, nil
}
