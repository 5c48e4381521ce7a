package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/metrics"
)

// OpTimeout is the per-attempt deadline for a store operation.
const OpTimeout = 5 * time.Second

// maxAttempts caps total tries at two: the initial attempt plus one retry.
const maxAttempts = 2

// retryBackoff is the wait schedule before each retry attempt.
var retryBackoff = []time.Duration{50 * time.Millisecond, 200 * time.Millisecond}

// Do runs a store operation with the standard deadline and transient-error
// retry policy. Each attempt gets a fresh OpTimeout deadline; deadline
// expiry surfaces as ErrTimeout without a retry, transient errors are
// retried once, everything else passes through untouched.
//
// collection and op label the latency and retry metrics.
func Do[T any](ctx context.Context, collection, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		start := time.Now()
		opCtx, cancel := context.WithTimeout(ctx, OpTimeout)
		v, err := fn(opCtx)
		cancel()
		metrics.StoreOpDuration.WithLabelValues(collection, op).Observe(time.Since(start).Seconds())

		if err == nil {
			return v, nil
		}

		if errors.Is(err, context.DeadlineExceeded) {
			// Distinguish our per-attempt deadline from caller cancellation.
			if ctx.Err() == nil {
				return zero, fmt.Errorf("%s.%s: %w", collection, op, ErrTimeout)
			}
			return zero, ctx.Err()
		}

		if attempt >= maxAttempts || !IsTransient(err) {
			return zero, err
		}

		metrics.StoreRetries.WithLabelValues(collection + "." + op).Inc()
		logging.Warn(ctx, "store operation retrying",
			zap.String("collection", collection),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-time.After(retryBackoff[attempt-1]):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// DoErr is Do for operations without a return value.
func DoErr(ctx context.Context, collection, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, collection, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
