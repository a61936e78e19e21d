package storage

import (
	"context"
	"fmt"
	"time"

	"conhub-ingest/internal/retry"
	"conhub-ingest/pkg/types"
)

// RetryableVectorStore wraps a VectorStore with retry logic for transient
// failures (network hiccups, 5xx, timeouts) per the Transient error kind.
type RetryableVectorStore struct {
	store   VectorStore
	retrier *retry.Retrier
}

// NewRetryableVectorStore wraps store with retry.
func NewRetryableVectorStore(store VectorStore, config *retry.Config) VectorStore {
	if config == nil {
		config = defaultRetryConfig()
	}
	return &RetryableVectorStore{store: store, retrier: retry.New(config)}
}

func defaultRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:     3,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         isRetryableStorageError,
	}
}

func isRetryableStorageError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many requests",
		"service unavailable",
		"internal server error",
		"bad gateway",
		"gateway timeout",
	}
	for _, pattern := range transientPatterns {
		if containsIgnoreCase(errStr, pattern) {
			return true
		}
	}
	type temporary interface{ Temporary() bool }
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}
	return false
}

func containsIgnoreCase(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	if len(s) < len(substr) {
		return false
	}
	for i := 0; i <= len(s)-len(substr); i++ {
		if equalsFoldRange(s[i:i+len(substr)], substr) {
			return true
		}
	}
	return false
}

func equalsFoldRange(s, t string) bool {
	if len(s) != len(t) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if toLower(s[i]) != toLower(t[i]) {
			return false
		}
	}
	return true
}

func toLower(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// EnsureCollection with retries.
func (r *RetryableVectorStore) EnsureCollection(ctx context.Context, dim int) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.EnsureCollection(ctx, dim)
	})
	if result.Err != nil {
		return fmt.Errorf("ensure collection after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

// Upsert with retries.
func (r *RetryableVectorStore) Upsert(ctx context.Context, records []types.VectorRecord) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.Upsert(ctx, records)
	})
	if result.Err != nil {
		return fmt.Errorf("upsert after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

// Search with retries.
func (r *RetryableVectorStore) Search(ctx context.Context, vector []float32, k int, filter *Filter) ([]ScoredRecord, error) {
	var out []ScoredRecord
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.Search(ctx, vector, k, filter)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("search after %d attempts: %w", result.Attempts, result.Err)
	}
	return out, nil
}

// DeleteByID with retries.
func (r *RetryableVectorStore) DeleteByID(ctx context.Context, chunkID string) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.DeleteByID(ctx, chunkID)
	})
	if result.Err != nil {
		return fmt.Errorf("delete by id after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

// DeleteByFilter with retries.
func (r *RetryableVectorStore) DeleteByFilter(ctx context.Context, filter *Filter) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.DeleteByFilter(ctx, filter)
	})
	if result.Err != nil {
		return fmt.Errorf("delete by filter after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

// HealthCheck is not retried; callers want to know the dependency state now.
func (r *RetryableVectorStore) HealthCheck(ctx context.Context) error {
	return r.store.HealthCheck(ctx)
}

// Close is not retried.
func (r *RetryableVectorStore) Close() error {
	return r.store.Close()
}
