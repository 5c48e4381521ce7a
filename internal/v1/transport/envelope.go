// Package transport owns the WebSocket lifecycle shared by the chat and
// video engines: handshake admission, the read/write pumps, and the JSON
// event envelope. Engines plug in as Routers; the transport never looks
// inside a payload.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Payload: data}, nil
}

// Encode renders the envelope to its wire bytes.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Bind decodes the payload into out.
func (e Envelope) Bind(out any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Event)
	}
	return json.Unmarshal(e.Payload, out)
}

// Router dispatches decoded envelopes to an engine. Route runs on the
// session's read loop, one envelope at a time per session. Sessions are
// passed as types.SessionHandle so engine tests can route against fakes.
//
// HandleConnect runs before the pumps start: anything it queues on the
// session is flushed to the client ahead of any other traffic.
type Router interface {
	HandleConnect(sess types.SessionHandle)
	Route(ctx context.Context, sess types.SessionHandle, env Envelope)
	HandleDisconnect(sess types.SessionHandle)
}
