// Package codes generates and validates the short join codes attached to
// private chat rooms and video rooms.
package codes

import (
	"context"
	"crypto/rand"
	"io"
	"strings"

	"github.com/huddlekit/huddle-server/internal/v1/types"
)

const (
	// Alphabet is the set of characters a generated code draws from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// Length is the length of every generated code.
	Length = 6

	// MaxInputLength is the longest user-supplied code accepted before
	// normalization rejects it. Clients are allowed some slack over the
	// generated length.
	MaxInputLength = 8

	// maxGenerateAttempts bounds collision retries before giving up.
	maxGenerateAttempts = 10
)

// ExistsFunc reports whether a code is already claimed. Generate uses it to
// guarantee uniqueness within one collection.
type ExistsFunc func(ctx context.Context, code types.RoomCode) (bool, error)

// Generate mints a unique uppercase code, retrying on collisions up to ten
// times before failing with CODE_GENERATION_FAILED.
func Generate(ctx context.Context, exists ExistsFunc) (types.RoomCode, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := random()
		if err != nil {
			return "", types.NewError(types.CodeGenerationFailed, "could not generate a room code")
		}

		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", types.NewError(types.CodeGenerationFailed, "could not generate a unique room code")
}

func random() (types.RoomCode, error) {
	return randomFrom(rand.Reader)
}

// randomFrom draws Length characters uniformly from Alphabet. Bytes at or
// above the largest multiple of the alphabet size are rejected instead of
// folded: 256 is not a multiple of 36, so a plain modulo would favor the
// first few characters.
func randomFrom(r io.Reader) (types.RoomCode, error) {
	const limit = byte(256 - 256%len(Alphabet))

	out := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(out) < Length {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return types.RoomCode(out), nil
}

// Normalize trims and uppercases a user-supplied code. Comparison against
// stored codes is always done on normalized forms.
func Normalize(raw string) types.RoomCode {
	return types.RoomCode(strings.ToUpper(strings.TrimSpace(raw)))
}

// Validate checks a normalized code for acceptable shape: 6 to 8 characters,
// all from the code alphabet.
func Validate(code types.RoomCode) bool {
	if len(code) < Length || len(code) > MaxInputLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(Alphabet, c) {
			return false
		}
	}
	return true
}

// Matches compares a user-supplied code against a stored one,
// case-insensitively.
func Matches(supplied string, stored types.RoomCode) bool {
	return Normalize(supplied) == Normalize(string(stored))
}
