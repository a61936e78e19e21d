package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestRetrier_Do_SucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	r := New(&Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2, RetryIf: DefaultRetryIf})

	attempts := 0
	result := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})

	if result.Err != nil {
		t.Fatalf("expected no error, got: %v", result.Err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got: %d", attempts)
	}
	if result.Attempts != 1 {
		t.Errorf("expected result.Attempts == 1, got: %d", result.Attempts)
	}
}

func TestRetrier_Do_RetriesUntilMaxAttemptsThenReturnsLastError(t *testing.T) {
	r := New(&Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1, RetryIf: DefaultRetryIf})

	attempts := 0
	result := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errBoom
	})

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got: %d", attempts)
	}
	if !errors.Is(result.Err, errBoom) {
		t.Errorf("expected final error to be errBoom, got: %v", result.Err)
	}
}

func TestRetrier_Do_StopsEarlyOnPermanentError(t *testing.T) {
	r := New(&Config{MaxAttempts: 5, InitialDelay: time.Millisecond, RetryIf: DefaultRetryIf})

	attempts := 0
	result := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return &PermanentError{Err: errBoom}
	})

	if attempts != 1 {
		t.Errorf("expected a permanent error to stop retries after 1 attempt, got: %d", attempts)
	}
	if result.Err == nil {
		t.Error("expected an error to be returned")
	}
}

func TestRetrier_Do_RetriesTemporaryError(t *testing.T) {
	r := New(&Config{MaxAttempts: 2, InitialDelay: time.Millisecond, RetryIf: DefaultRetryIf})

	attempts := 0
	result := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return &TemporaryError{Err: errBoom}
	})

	if attempts != 2 {
		t.Errorf("expected both attempts to run for a temporary error, got: %d", attempts)
	}
	if result.Err == nil {
		t.Error("expected an error after exhausting attempts")
	}
}

func TestRetrier_Do_AbortsOnContextCancellation(t *testing.T) {
	r := New(&Config{MaxAttempts: 0, InitialDelay: time.Millisecond, RetryIf: DefaultRetryIf})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := r.Do(ctx, func(ctx context.Context) error {
		return errBoom
	})

	if result.Err == nil {
		t.Error("expected an error when context is already cancelled")
	}
	if result.Attempts != 1 {
		t.Errorf("expected exactly 1 attempt before the cancellation check aborts, got: %d", result.Attempts)
	}
}

func TestRetrier_NextDelay_CapsAtMaxDelay(t *testing.T) {
	r := New(&Config{MaxDelay: 500 * time.Millisecond, Multiplier: 10})
	next := r.nextDelay(100 * time.Millisecond)
	if next != 500*time.Millisecond {
		t.Errorf("expected delay capped at MaxDelay, got: %v", next)
	}
}

func TestDefaultRetryIf_NilErrorIsNotRetryable(t *testing.T) {
	if DefaultRetryIf(nil) {
		t.Error("expected nil error to not be retryable")
	}
}

func TestDefaultRetryIf_PermanentErrorIsNotRetryable(t *testing.T) {
	if DefaultRetryIf(&PermanentError{Err: errBoom}) {
		t.Error("expected PermanentError to not be retryable")
	}
}

func TestDefaultRetryIf_UnknownErrorIsRetryableByDefault(t *testing.T) {
	if !DefaultRetryIf(errBoom) {
		t.Error("expected an unclassified error to be retryable by default")
	}
}

func TestExponentialBackoffStrategy_CapsAtMax(t *testing.T) {
	s := &ExponentialBackoffStrategy{Multiplier: 3, Max: 100 * time.Millisecond}
	if got := s.Next(50 * time.Millisecond); got != 100*time.Millisecond {
		t.Errorf("expected capped delay, got: %v", got)
	}
}
