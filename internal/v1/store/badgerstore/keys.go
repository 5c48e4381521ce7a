package badgerstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// Key layout. Every document lives under a typed prefix; indexes are plain
// keys whose value is the document id, written in the same transaction as
// the document.
//
//	chat:room:<id>                         ChatRoom JSON
//	chat:roomcode:<CODE>                   room id (unique code index)
//	chat:roompub:<invMillis>:<id>          room id (public recency index)
//	chat:msg:<roomId>:<millis>:<msgId>     ChatMessage JSON (time-ordered)
//	users:<id>                             UserProfile JSON
//	video:room:<id>                        VideoRoom JSON
//	video:roomcode:<CODE>                  room id (unique code index)
//	video:part:<roomId>_<userId>           VideoParticipant JSON
const (
	prefixChatRoom     = "chat:room:"
	prefixChatRoomCode = "chat:roomcode:"
	prefixChatRoomPub  = "chat:roompub:"
	prefixChatMsg      = "chat:msg:"
	prefixUser         = "users:"
	prefixVideoRoom    = "video:room:"
	prefixVideoCode    = "video:roomcode:"
	prefixVideoPart    = "video:part:"
)

// maxEpochMillis bounds the 13-digit zero-padded millisecond space
// (exhausted in the year 2286). The public recency index inverts against it
// so that forward key iteration yields newest-first.
const maxEpochMillis = int64(9_999_999_999_999)

func chatRoomKey(id types.RoomID) []byte {
	return []byte(prefixChatRoom + string(id))
}

func chatRoomCodeKey(code types.RoomCode) []byte {
	return []byte(prefixChatRoomCode + string(code))
}

func chatRoomPubKey(updatedAt time.Time, id types.RoomID) []byte {
	return []byte(fmt.Sprintf("%s%013d:%s", prefixChatRoomPub, maxEpochMillis-updatedAt.UnixMilli(), id))
}

func chatMsgPrefix(roomID types.RoomID) []byte {
	return []byte(prefixChatMsg + string(roomID) + ":")
}

func chatMsgKey(roomID types.RoomID, ts time.Time, msgID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%013d:%s", prefixChatMsg, roomID, ts.UnixMilli(), msgID))
}

func userKey(id types.UserID) []byte {
	return []byte(prefixUser + string(id))
}

func videoRoomKey(id types.RoomID) []byte {
	return []byte(prefixVideoRoom + string(id))
}

func videoRoomCodeKey(code types.RoomCode) []byte {
	return []byte(prefixVideoCode + string(code))
}

func videoPartKey(roomID types.RoomID, userID types.UserID) []byte {
	return []byte(prefixVideoPart + store.ParticipantKey(roomID, userID))
}

func videoPartPrefix(roomID types.RoomID) []byte {
	return []byte(prefixVideoPart + string(roomID) + "_")
}

// getJSON reads and decodes one document inside a transaction.
func getJSON[T any](txn *badger.Txn, key []byte) (*T, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, mapErr(err)
	}
	var out T
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &out)
	}); err != nil {
		return nil, fmt.Errorf("badgerstore: decode %s: %w", key, err)
	}
	return &out, nil
}

// setJSON encodes and writes one document inside a transaction.
func setJSON(txn *badger.Txn, key []byte, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("badgerstore: encode %s: %w", key, err)
	}
	return mapErr(txn.Set(key, data))
}

// decodeJSON decodes a value owned by a live iterator item.
func decodeJSON(val []byte, out any) error {
	if err := json.Unmarshal(val, out); err != nil {
		return fmt.Errorf("badgerstore: decode: %w", err)
	}
	return nil
}

// getString reads an index value inside a transaction.
func getString(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if err != nil {
		return "", mapErr(err)
	}
	var out string
	err = item.Value(func(val []byte) error {
		out = string(val)
		return nil
	})
	return out, mapErr(err)
}
