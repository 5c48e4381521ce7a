package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huddlekit/huddle-server/internal/v1/types"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), "rooms", "get", func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientOnce(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), "rooms", "get", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", fmt.Errorf("write: %w", ErrConflict)
		}
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, 2, calls)
}

func TestDo_SurfacesAfterTwoAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "rooms", "get", func(ctx context.Context) (string, error) {
		calls++
		return "", ErrUnavailable
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, calls, "two attempts total, never more")
}

func TestDo_NoRetryOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "rooms", "get", func(ctx context.Context) (string, error) {
		calls++
		return "", ErrNotFound
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestDo_DeadlineBecomesTimeout(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "rooms", "get", func(ctx context.Context) (string, error) {
		calls++
		return "", context.DeadlineExceeded
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, calls, "timeouts are not retried")
}

func TestDo_CallerCancellationPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, "rooms", "get", func(ctx context.Context) (string, error) {
		return "", ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestDoErr(t *testing.T) {
	calls := 0
	err := DoErr(context.Background(), "rooms", "touch", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return ErrUnavailable
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrConflict))
	assert.True(t, IsTransient(ErrUnavailable))
	assert.True(t, IsTransient(fmt.Errorf("outer: %w", ErrConflict)))
	assert.False(t, IsTransient(ErrNotFound))
	assert.False(t, IsTransient(ErrTimeout))
	assert.False(t, IsTransient(errors.New("misc")))
}

func TestAsWireError(t *testing.T) {
	assert.Equal(t, types.CodeStoreTimeout, AsWireError(ErrTimeout).Code)
	assert.Equal(t, types.CodeStoreTimeout, AsWireError(context.DeadlineExceeded).Code)
	assert.Equal(t, types.CodeStoreUnavailable, AsWireError(ErrUnavailable).Code)
	assert.Equal(t, types.CodeStoreUnavailable, AsWireError(errors.New("misc")).Code)

	// An existing wire error in the chain is preserved.
	wrapped := fmt.Errorf("handler: %w", types.NewError(types.CodeRoomFull, "room is full"))
	assert.Equal(t, types.CodeRoomFull, AsWireError(wrapped).Code)
}
