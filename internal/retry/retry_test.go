package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), 5, 0, "flaky", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("fn called %d times, want 3", attempts)
	}
}

func TestDoAllFail(t *testing.T) {
	attempts := 0
	sentinel := errors.New("persistent error")
	err := Do(context.Background(), 3, 0, "broken", func(context.Context) error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Do error = %v, want wrapped sentinel", err)
	}
	if attempts != 3 {
		t.Errorf("fn called %d times, want 3", attempts)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	attempts := 0
	sentinel := errors.New("bad request")
	err := Do(context.Background(), 5, 0, "rejected", func(context.Context) error {
		attempts++
		return Permanent(sentinel)
	})
	if err != sentinel {
		t.Fatalf("Do error = %v, want the unwrapped permanent error", err)
	}
	if attempts != 1 {
		t.Errorf("fn called %d times, want 1", attempts)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, 5, time.Hour, "slow", func(context.Context) error {
		attempts++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("fn called %d times, want 1", attempts)
	}
}

func TestIsPermanent(t *testing.T) {
	if IsPermanent(errors.New("x")) {
		t.Error("plain error reported as permanent")
	}
	if !IsPermanent(Permanent(errors.New("x"))) {
		t.Error("Permanent error not detected")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
