package db

import (
	"context"
	"time"

	"estateflow/fault"
)

// DefaultAttempts bounds how many times an atomic unit is retried after a
// transient storage failure (deadlock, lock timeout, serialization failure).
const DefaultAttempts = 3

// WithRetry runs fn, retrying the whole unit on fault.TransientStoreError
// with linear backoff. fn must contain the full check-then-write sequence;
// retrying only the write half after a failed check is never safe.
func WithRetry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !fault.IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 50 * time.Millisecond):
		}
	}
	return err
}
