package badgerstore

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

type messages struct {
	db *badger.DB
}

func (m *messages) Append(_ context.Context, msg *store.ChatMessage) error {
	msg.ID = uuid.NewString()
	msg.Timestamp = store.Now()

	return mapErr(m.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, chatMsgKey(msg.RoomID, msg.Timestamp.Time, msg.ID), msg)
	}))
}

// ListByRoom walks the time-keyed index in reverse, newest first, skipping
// entries the cursor has already served, until limit messages are collected.
func (m *messages) ListByRoom(_ context.Context, roomID types.RoomID, limit int, before *store.MessageCursor) ([]*store.ChatMessage, error) {
	if limit <= 0 {
		return []*store.ChatMessage{}, nil
	}

	msgs := make([]*store.ChatMessage, 0, limit)
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := chatMsgPrefix(roomID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the highest key under the prefix.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			var msg store.ChatMessage
			if err := it.Item().Value(func(val []byte) error {
				return decodeJSON(val, &msg)
			}); err != nil {
				return err
			}
			if before != nil && !before.Admits(&msg) {
				continue
			}
			cp := msg
			msgs = append(msgs, &cp)
			if len(msgs) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return msgs, nil
}

func (m *messages) ListByRoomUnordered(_ context.Context, roomID types.RoomID) ([]*store.ChatMessage, error) {
	var msgs []*store.ChatMessage
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chatMsgPrefix(roomID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var msg store.ChatMessage
			if err := it.Item().Value(func(val []byte) error {
				return decodeJSON(val, &msg)
			}); err != nil {
				return err
			}
			cp := msg
			msgs = append(msgs, &cp)
		}
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return msgs, nil
}
