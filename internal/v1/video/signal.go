package video

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

// Stream roles attached to relayed signals and stream announcements.
const (
	StreamTypeCamera = "camera"
	StreamTypeScreen = "screen"
)

const (
	// signalDedupeWindow is how long an identical signal is suppressed
	// when the dedupe profile is on.
	signalDedupeWindow = 5 * time.Second

	// signalFingerprintBytes of the payload participate in the dedupe key.
	signalFingerprintBytes = 64
)

// validateSignal enforces the structural contract of a relay request. The
// checks are ordered: missing payload, unknown kind, malformed shape,
// missing target. Validation is structural only; sdp content is opaque.
func validateSignal(req *SignalRequest) *types.Error {
	if req.RoomID == "" {
		return types.NewError(types.CodeValidationError, "roomId is required")
	}
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		return types.NewError(types.CodeMissingSignalData, "signal payload is required")
	}

	kind := req.SignalKind()
	switch kind {
	case SignalOffer, SignalAnswer, SignalICECandidate:
	default:
		return types.Errorf(types.CodeInvalidSignalType, "unsupported signal kind %q", kind)
	}

	var body map[string]any
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		return types.NewError(types.CodeInvalidSignalStructure, "signal payload must be an object")
	}

	switch kind {
	case SignalOffer, SignalAnswer:
		if sdp, ok := body["sdp"].(string); !ok || sdp == "" {
			return types.NewError(types.CodeInvalidSignalStructure, "offer and answer payloads need a non-empty sdp")
		}
		// Offers and answers address exactly one peer; broadcasting them
		// would cross-wire every peer connection in the room.
		if req.TargetUserID == "" {
			return types.NewError(types.CodeMustIncludeTarget, "offer and answer signals must name a targetUserId")
		}
	case SignalICECandidate:
		if cand, ok := body["candidate"].(string); !ok || cand == "" {
			return types.NewError(types.CodeInvalidSignalStructure, "ice-candidate payloads need a non-empty candidate")
		}
		if raw, present := body["sdpMLineIndex"]; present && raw != nil {
			idx, ok := raw.(float64)
			if !ok || idx != math.Trunc(idx) {
				return types.NewError(types.CodeInvalidSignalStructure, "sdpMLineIndex must be an integer")
			}
		}
		if raw, present := body["sdpMid"]; present && raw != nil {
			if _, ok := raw.(string); !ok {
				return types.NewError(types.CodeInvalidSignalStructure, "sdpMid must be a string")
			}
		}
	}
	return nil
}

// enrichMetadata overlays the sender's live media flags and the derived
// stream role onto the signal metadata, so receivers can bind an incoming
// stream to its semantic role without a round-trip.
func enrichMetadata(meta map[string]any, sender *store.VideoParticipant) map[string]any {
	if meta == nil {
		meta = make(map[string]any, 4)
	}
	meta["audioEnabled"] = sender.AudioEnabled
	meta["videoEnabled"] = sender.VideoEnabled
	meta["screenSharing"] = sender.ScreenSharing
	if sender.ScreenSharing {
		meta["streamType"] = StreamTypeScreen
	} else {
		meta["streamType"] = StreamTypeCamera
	}
	return meta
}

// signalDedupe suppresses identical signals within a rolling window. Peers
// re-emit candidates on flaky networks; the suppression keeps the fan-out
// quiet without affecting correctness, since candidates are idempotent. A
// nil *signalDedupe is the disabled profile.
type signalDedupe struct {
	window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

func newSignalDedupe(window time.Duration) *signalDedupe {
	return &signalDedupe{window: window, seen: make(map[string]time.Time)}
}

// shouldDrop records the signal and reports whether an identical one passed
// within the window. Expired entries are swept on the way through.
func (d *signalDedupe) shouldDrop(roomID types.RoomID, kind string, sender, target types.UserID, payload []byte) bool {
	if d == nil {
		return false
	}

	prefix := payload
	if len(prefix) > signalFingerprintBytes {
		prefix = prefix[:signalFingerprintBytes]
	}
	key := string(roomID) + "|" + kind + "|" + string(sender) + "|" + string(target) + "|" + string(prefix)

	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, at := range d.seen {
		if now.Sub(at) > d.window {
			delete(d.seen, k)
		}
	}
	if _, dup := d.seen[key]; dup {
		return true
	}
	d.seen[key] = now
	return false
}
