// Package retry runs calls to flaky collaborators with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn up to attempts times, doubling the delay after each failure
// starting at baseDelay. It stops early on success, on a Permanent error, or
// when ctx is done.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, op string, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	backoff := baseDelay
	var lastErr error

	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var p *permanentError
		if errors.As(err, &p) {
			return p.err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}

		slog.Warn("Call failed, will retry.",
			"op", op,
			"attempt", i+1,
			"maxAttempts", attempts,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
