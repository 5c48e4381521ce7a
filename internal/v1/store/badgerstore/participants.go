package badgerstore

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

type videoParticipants struct {
	db *badger.DB
}

func (r *videoParticipants) Put(_ context.Context, p *store.VideoParticipant) error {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = store.Now()
	}
	return mapErr(r.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, videoPartKey(p.RoomID, p.UserID), p)
	}))
}

func (r *videoParticipants) Get(_ context.Context, roomID types.RoomID, userID types.UserID) (*store.VideoParticipant, error) {
	var p *store.VideoParticipant
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = getJSON[store.VideoParticipant](txn, videoPartKey(roomID, userID))
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (r *videoParticipants) ListByRoom(_ context.Context, roomID types.RoomID) ([]*store.VideoParticipant, error) {
	var parts []*store.VideoParticipant
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = videoPartPrefix(roomID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var p store.VideoParticipant
			if err := it.Item().Value(func(val []byte) error {
				return decodeJSON(val, &p)
			}); err != nil {
				return err
			}
			cp := p
			parts = append(parts, &cp)
		}
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return parts, nil
}

func (r *videoParticipants) Update(_ context.Context, roomID types.RoomID, userID types.UserID, mutate func(*store.VideoParticipant)) (*store.VideoParticipant, error) {
	var updated *store.VideoParticipant
	err := r.db.Update(func(txn *badger.Txn) error {
		p, err := getJSON[store.VideoParticipant](txn, videoPartKey(roomID, userID))
		if err != nil {
			return err
		}
		mutate(p)
		// Identity fields are not mutable through Update.
		p.RoomID = roomID
		p.UserID = userID
		updated = p
		return setJSON(txn, videoPartKey(roomID, userID), p)
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return updated, nil
}

func (r *videoParticipants) Delete(_ context.Context, roomID types.RoomID, userID types.UserID) error {
	return mapErr(r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(videoPartKey(roomID, userID))
	}))
}

func (r *videoParticipants) DeleteByRoom(_ context.Context, roomID types.RoomID) (int, error) {
	deleted := 0
	err := r.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = videoPartPrefix(roomID)
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, mapErr(err)
	}
	return deleted, nil
}
