package store

import "sort"

// SortRoomsByRecency orders rooms newest-updated first. Ties break on id so
// repeated calls over the same data are stable.
func SortRoomsByRecency(rooms []*ChatRoom) {
	sort.SliceStable(rooms, func(i, j int) bool {
		if !rooms[i].UpdatedAt.Equal(rooms[j].UpdatedAt.Time) {
			return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt.Time)
		}
		return rooms[i].ID < rooms[j].ID
	})
}

// SortMessagesDescending orders messages newest first, mirroring the order
// of a reverse walk over the time-keyed message index: timestamp descending,
// then id descending.
func SortMessagesDescending(msgs []*ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp.Time) {
			return msgs[i].Timestamp.After(msgs[j].Timestamp.Time)
		}
		return msgs[i].ID > msgs[j].ID
	})
}
