package codes

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huddlekit/huddle-server/internal/v1/types"
)

func neverExists(_ context.Context, _ types.RoomCode) (bool, error) {
	return false, nil
}

func TestGenerate_ShapeAndUniquenessCheck(t *testing.T) {
	code, err := Generate(context.Background(), neverExists)
	require.NoError(t, err)

	assert.Len(t, string(code), Length)
	for _, c := range code {
		assert.True(t, strings.ContainsRune(Alphabet, c), "unexpected character %q", c)
	}
}

func TestGenerate_RetriesOnCollision(t *testing.T) {
	calls := 0
	exists := func(_ context.Context, _ types.RoomCode) (bool, error) {
		calls++
		// First three candidates are taken.
		return calls <= 3, nil
	}

	code, err := Generate(context.Background(), exists)
	require.NoError(t, err)
	assert.NotEmpty(t, code)
	assert.Equal(t, 4, calls)
}

func TestGenerate_FailsAfterTenCollisions(t *testing.T) {
	calls := 0
	alwaysTaken := func(_ context.Context, _ types.RoomCode) (bool, error) {
		calls++
		return true, nil
	}

	_, err := Generate(context.Background(), alwaysTaken)
	require.Error(t, err)
	assert.Equal(t, 10, calls)

	wireErr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.CodeGenerationFailed, wireErr.Code)
}

func TestGenerate_PropagatesLookupError(t *testing.T) {
	boom := errors.New("store down")
	exists := func(_ context.Context, _ types.RoomCode) (bool, error) {
		return false, boom
	}

	_, err := Generate(context.Background(), exists)
	assert.ErrorIs(t, err, boom)
}

// Bytes at or above the rejection limit must be discarded, not folded back
// onto the start of the alphabet: folding would skew codes toward A-D.
func TestRandomFrom_RejectsBiasedBytes(t *testing.T) {
	// Four rejectable bytes (252-255), then 0..5, which map to "ABCDEF".
	r := bytes.NewReader([]byte{252, 253, 254, 255, 0, 1, 2, 3, 4, 5, 0, 0})

	code, err := randomFrom(r)
	require.NoError(t, err)
	assert.Equal(t, types.RoomCode("ABCDEF"), code)
}

func TestRandomFrom_ExhaustedSource(t *testing.T) {
	_, err := randomFrom(bytes.NewReader([]byte{0, 1}))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, types.RoomCode("ABC123"), Normalize("  abc123 "))
	assert.Equal(t, types.RoomCode("XYZXYZ"), Normalize("xyzXYZ"))
	assert.Equal(t, types.RoomCode(""), Normalize("   "))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"generated length", "ABC123", true},
		{"eight chars accepted", "ABCD1234", true},
		{"too short", "ABC12", false},
		{"too long", "ABCD12345", false},
		{"lowercase rejected post-normalize guard", "abc123", false},
		{"punctuation rejected", "ABC-12", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, Validate(types.RoomCode(tt.code)))
		})
	}
}

func TestMatches_CaseInsensitive(t *testing.T) {
	assert.True(t, Matches("abc123", "ABC123"))
	assert.True(t, Matches(" ABC123 ", "ABC123"))
	assert.False(t, Matches("ABC124", "ABC123"))
}
