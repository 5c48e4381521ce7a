package badgerstore

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

type videoRooms struct {
	db *badger.DB
}

func (r *videoRooms) Create(_ context.Context, room *store.VideoRoom) error {
	room.ID = types.RoomID(uuid.NewString())
	now := store.Now()
	room.CreatedAt = now
	room.UpdatedAt = now
	if room.Participants == nil {
		room.Participants = []types.UserID{}
	}

	return mapErr(r.db.Update(func(txn *badger.Txn) error {
		if room.Code != "" {
			switch _, err := txn.Get(videoRoomCodeKey(room.Code)); {
			case err == nil:
				return store.ErrConflict
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if err := txn.Set(videoRoomCodeKey(room.Code), []byte(room.ID)); err != nil {
				return err
			}
		}
		return setJSON(txn, videoRoomKey(room.ID), room)
	}))
}

func (r *videoRooms) Get(_ context.Context, id types.RoomID) (*store.VideoRoom, error) {
	var room *store.VideoRoom
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getJSON[store.VideoRoom](txn, videoRoomKey(id))
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return room, nil
}

func (r *videoRooms) GetByCode(_ context.Context, code types.RoomCode) (*store.VideoRoom, error) {
	var room *store.VideoRoom
	err := r.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, videoRoomCodeKey(code))
		if err != nil {
			return err
		}
		room, err = getJSON[store.VideoRoom](txn, videoRoomKey(types.RoomID(id)))
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return room, nil
}

// AddParticipant runs the capacity check and the membership write in one
// transaction. Two racing joins for the last seat serialize on the
// transactional conflict: the loser retries and sees a full room.
func (r *videoRooms) AddParticipant(_ context.Context, id types.RoomID, userID types.UserID) (*store.VideoRoom, error) {
	var updated *store.VideoRoom
	err := r.db.Update(func(txn *badger.Txn) error {
		room, err := getJSON[store.VideoRoom](txn, videoRoomKey(id))
		if err != nil {
			return err
		}
		if room.HasParticipant(userID) {
			updated = room
			return nil
		}
		if room.MaxParticipants > 0 && len(room.Participants) >= room.MaxParticipants {
			return store.ErrCapacity
		}

		room.Participants = append(room.Participants, userID)
		room.UpdatedAt = store.Now()
		updated = room
		return setJSON(txn, videoRoomKey(id), room)
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return updated, nil
}

func (r *videoRooms) RemoveParticipant(_ context.Context, id types.RoomID, userID types.UserID) (*store.VideoRoom, error) {
	var updated *store.VideoRoom
	err := r.db.Update(func(txn *badger.Txn) error {
		room, err := getJSON[store.VideoRoom](txn, videoRoomKey(id))
		if err != nil {
			return err
		}
		if !room.HasParticipant(userID) {
			updated = room
			return nil
		}

		kept := room.Participants[:0]
		for _, p := range room.Participants {
			if p != userID {
				kept = append(kept, p)
			}
		}
		room.Participants = kept
		room.UpdatedAt = store.Now()
		updated = room
		return setJSON(txn, videoRoomKey(id), room)
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return updated, nil
}

func (r *videoRooms) LinkChatRoom(_ context.Context, id types.RoomID, chatRoomID types.RoomID, chatRoomCode types.RoomCode) error {
	return mapErr(r.db.Update(func(txn *badger.Txn) error {
		room, err := getJSON[store.VideoRoom](txn, videoRoomKey(id))
		if err != nil {
			return err
		}
		room.ChatRoomID = chatRoomID
		room.ChatRoomCode = chatRoomCode
		room.UpdatedAt = store.Now()
		return setJSON(txn, videoRoomKey(id), room)
	}))
}

func (r *videoRooms) Delete(_ context.Context, id types.RoomID) error {
	return mapErr(r.db.Update(func(txn *badger.Txn) error {
		room, err := getJSON[store.VideoRoom](txn, videoRoomKey(id))
		if err != nil {
			return err
		}
		if room.Code != "" {
			if err := txn.Delete(videoRoomCodeKey(room.Code)); err != nil {
				return err
			}
		}
		return txn.Delete(videoRoomKey(id))
	}))
}
