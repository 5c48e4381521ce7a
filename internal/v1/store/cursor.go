package store

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// MessageCursor marks a position in a room's message history for backward
// pagination: "everything strictly older than this message".
type MessageCursor struct {
	Timestamp time.Time
	MessageID string
}

// cursorSep joins the millisecond timestamp and message id inside the token.
const cursorSep = "~"

// EncodeCursor produces the opaque pagination token for a message.
func EncodeCursor(ts time.Time, messageID string) string {
	raw := strconv.FormatInt(ts.UnixMilli(), 10) + cursorSep + messageID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// CursorFor is a convenience for building the next-page token from the
// oldest message of the current page.
func CursorFor(msg *ChatMessage) string {
	return EncodeCursor(msg.Timestamp.Time, msg.ID)
}

// DecodeCursor parses a pagination token. Malformed tokens report ok=false;
// callers treat that as "no cursor" rather than an error.
func DecodeCursor(token string) (*MessageCursor, bool) {
	if token == "" {
		return nil, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, false
	}
	parts := strings.SplitN(string(raw), cursorSep, 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, false
	}
	millis, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, false
	}
	return &MessageCursor{
		Timestamp: time.UnixMilli(millis).UTC(),
		MessageID: parts[1],
	}, true
}

// Admits reports whether a message lies strictly before the cursor position
// (older timestamp, with the id as tiebreaker for identical timestamps) and
// so belongs to the page the cursor opens.
func (c *MessageCursor) Admits(msg *ChatMessage) bool {
	if msg.Timestamp.Time.Before(c.Timestamp) {
		return true
	}
	if msg.Timestamp.Time.Equal(c.Timestamp) {
		return msg.ID < c.MessageID
	}
	return false
}
