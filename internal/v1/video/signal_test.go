package video

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestValidateSignal(t *testing.T) {
	offerBody := map[string]any{"type": "offer", "sdp": "v=0..."}
	candidateBody := map[string]any{"candidate": "candidate:1 1 udp 2122252543 10.0.0.1 50000 typ host"}

	tests := []struct {
		name string
		req  SignalRequest
		want types.Code // empty means valid
	}{
		{
			name: "missing room id",
			req:  SignalRequest{Kind: SignalOffer, TargetUserID: "bob"},
			want: types.CodeValidationError,
		},
		{
			name: "missing payload",
			req:  SignalRequest{Kind: SignalOffer, RoomID: "r1", TargetUserID: "bob"},
			want: types.CodeMissingSignalData,
		},
		{
			name: "null payload",
			req:  SignalRequest{Kind: SignalOffer, RoomID: "r1", TargetUserID: "bob", Payload: json.RawMessage("null")},
			want: types.CodeMissingSignalData,
		},
		{
			name: "unknown kind",
			req:  SignalRequest{Kind: "renegotiate", RoomID: "r1", Payload: json.RawMessage(`{}`)},
			want: types.CodeInvalidSignalType,
		},
		{
			name: "payload not an object",
			req:  SignalRequest{Kind: SignalOffer, RoomID: "r1", TargetUserID: "bob", Payload: json.RawMessage(`"sdp"`)},
			want: types.CodeInvalidSignalStructure,
		},
		{
			name: "offer without sdp",
			req:  SignalRequest{Kind: SignalOffer, RoomID: "r1", TargetUserID: "bob", Payload: json.RawMessage(`{"type":"offer"}`)},
			want: types.CodeInvalidSignalStructure,
		},
		{
			name: "offer with empty sdp",
			req:  SignalRequest{Kind: SignalOffer, RoomID: "r1", TargetUserID: "bob", Payload: json.RawMessage(`{"sdp":""}`)},
			want: types.CodeInvalidSignalStructure,
		},
		{
			name: "offer without target",
			req:  SignalRequest{Kind: SignalOffer, RoomID: "r1", Payload: json.RawMessage(`{"sdp":"v=0"}`)},
			want: types.CodeMustIncludeTarget,
		},
		{
			name: "answer without target",
			req:  SignalRequest{Kind: SignalAnswer, RoomID: "r1", Payload: json.RawMessage(`{"sdp":"v=0"}`)},
			want: types.CodeMustIncludeTarget,
		},
		{
			name: "ice without candidate",
			req:  SignalRequest{Kind: SignalICECandidate, RoomID: "r1", Payload: json.RawMessage(`{}`)},
			want: types.CodeInvalidSignalStructure,
		},
		{
			name: "ice with fractional line index",
			req: SignalRequest{Kind: SignalICECandidate, RoomID: "r1", Payload: json.RawMessage(
				`{"candidate":"candidate:1","sdpMLineIndex":0.5}`)},
			want: types.CodeInvalidSignalStructure,
		},
		{
			name: "ice with string line index",
			req: SignalRequest{Kind: SignalICECandidate, RoomID: "r1", Payload: json.RawMessage(
				`{"candidate":"candidate:1","sdpMLineIndex":"0"}`)},
			want: types.CodeInvalidSignalStructure,
		},
		{
			name: "ice with numeric mid",
			req: SignalRequest{Kind: SignalICECandidate, RoomID: "r1", Payload: json.RawMessage(
				`{"candidate":"candidate:1","sdpMid":3}`)},
			want: types.CodeInvalidSignalStructure,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			werr := validateSignal(&tc.req)
			require.NotNil(t, werr)
			assert.Equal(t, tc.want, werr.Code)
		})
	}

	valid := []struct {
		name string
		req  SignalRequest
	}{
		{
			name: "targeted offer",
			req:  SignalRequest{Kind: SignalOffer, RoomID: "r1", TargetUserID: "bob", Payload: mustJSON(t, offerBody)},
		},
		{
			name: "targeted answer",
			req:  SignalRequest{Kind: SignalAnswer, RoomID: "r1", TargetUserID: "alice", Payload: json.RawMessage(`{"sdp":"v=0"}`)},
		},
		{
			name: "broadcast candidate",
			req:  SignalRequest{Kind: SignalICECandidate, RoomID: "r1", Payload: mustJSON(t, candidateBody)},
		},
		{
			name: "targeted candidate with mid and index",
			req: SignalRequest{Kind: SignalICECandidate, RoomID: "r1", TargetUserID: "bob", Payload: json.RawMessage(
				`{"candidate":"candidate:1","sdpMLineIndex":0,"sdpMid":"0"}`)},
		},
		{
			name: "candidate with null mid and index",
			req: SignalRequest{Kind: SignalICECandidate, RoomID: "r1", Payload: json.RawMessage(
				`{"candidate":"candidate:1","sdpMLineIndex":null,"sdpMid":null}`)},
		},
		{
			name: "legacy kind field",
			req:  SignalRequest{LegacyKind: SignalOffer, RoomID: "r1", TargetUserID: "bob", Payload: json.RawMessage(`{"sdp":"v=0"}`)},
		},
	}
	for _, tc := range valid {
		t.Run(tc.name, func(t *testing.T) {
			assert.Nil(t, validateSignal(&tc.req))
		})
	}
}

func TestSignalKindPrecedence(t *testing.T) {
	assert.Equal(t, "answer", (&SignalRequest{Kind: "answer", LegacyKind: "offer"}).SignalKind())
	assert.Equal(t, "offer", (&SignalRequest{LegacyKind: "offer"}).SignalKind())
	assert.Equal(t, "", (&SignalRequest{}).SignalKind())
}

func TestEnrichMetadata(t *testing.T) {
	t.Run("camera sender fills nil metadata", func(t *testing.T) {
		sender := &store.VideoParticipant{AudioEnabled: true, VideoEnabled: true}
		meta := enrichMetadata(nil, sender)
		assert.Equal(t, true, meta["audioEnabled"])
		assert.Equal(t, true, meta["videoEnabled"])
		assert.Equal(t, false, meta["screenSharing"])
		assert.Equal(t, StreamTypeCamera, meta["streamType"])
	})

	t.Run("screen sender overrides stream type", func(t *testing.T) {
		sender := &store.VideoParticipant{AudioEnabled: true, VideoEnabled: false, ScreenSharing: true}
		meta := enrichMetadata(map[string]any{"streamType": "camera", "trace": "t-1"}, sender)
		assert.Equal(t, StreamTypeScreen, meta["streamType"])
		assert.Equal(t, false, meta["videoEnabled"])
		// Caller-supplied keys the engine does not own survive.
		assert.Equal(t, "t-1", meta["trace"])
	})
}

func TestSignalDedupe(t *testing.T) {
	payload := []byte(`{"candidate":"candidate:1 1 udp 2122252543 10.0.0.1 50000 typ host"}`)

	t.Run("disabled profile never drops", func(t *testing.T) {
		var d *signalDedupe
		assert.False(t, d.shouldDrop("r1", SignalICECandidate, "alice", "", payload))
		assert.False(t, d.shouldDrop("r1", SignalICECandidate, "alice", "", payload))
	})

	t.Run("identical signal inside the window drops", func(t *testing.T) {
		d := newSignalDedupe(time.Minute)
		assert.False(t, d.shouldDrop("r1", SignalICECandidate, "alice", "", payload))
		assert.True(t, d.shouldDrop("r1", SignalICECandidate, "alice", "", payload))
	})

	t.Run("sender and target participate in the key", func(t *testing.T) {
		d := newSignalDedupe(time.Minute)
		assert.False(t, d.shouldDrop("r1", SignalICECandidate, "alice", "", payload))
		assert.False(t, d.shouldDrop("r1", SignalICECandidate, "bob", "", payload))
		assert.False(t, d.shouldDrop("r1", SignalICECandidate, "alice", "carol", payload))
		assert.False(t, d.shouldDrop("r2", SignalICECandidate, "alice", "", payload))
	})

	t.Run("fingerprint covers only the payload head", func(t *testing.T) {
		d := newSignalDedupe(time.Minute)
		head := strings.Repeat("a", signalFingerprintBytes)
		assert.False(t, d.shouldDrop("r1", SignalOffer, "alice", "bob", []byte(head+"tail-one")))
		assert.True(t, d.shouldDrop("r1", SignalOffer, "alice", "bob", []byte(head+"tail-two")))
	})

	t.Run("window expiry readmits", func(t *testing.T) {
		d := newSignalDedupe(10 * time.Millisecond)
		assert.False(t, d.shouldDrop("r1", SignalICECandidate, "alice", "", payload))
		time.Sleep(25 * time.Millisecond)
		assert.False(t, d.shouldDrop("r1", SignalICECandidate, "alice", "", payload))
	})
}
