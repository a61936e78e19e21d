package embeddings

import (
	"context"
	"fmt"
	"time"

	"conhub-ingest/internal/retry"
)

// RetryableClient wraps a Client with exponential-backoff retry, so
// transient embedding-service failures (timeouts, 5xx, 429) are retried
// before surfacing to the caller.
type RetryableClient struct {
	client  Client
	retrier *retry.Retrier
}

// NewRetryableClient wraps client with retry logic. A nil config uses
// defaultEmbeddingRetryConfig.
func NewRetryableClient(client Client, config *retry.Config) *RetryableClient {
	if config == nil {
		config = defaultEmbeddingRetryConfig()
	}
	return &RetryableClient{client: client, retrier: retry.New(config)}
}

// defaultEmbeddingRetryConfig retries idempotent embed/rerank requests with
// jittered exponential backoff, skipping permanent (4xx, non-429) failures.
func defaultEmbeddingRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.2,
		RetryIf:         isRetryableEmbeddingError,
	}
}

// isRetryableEmbeddingError retries network failures and 429/5xx statuses,
// never 4xx (bad request, unauthorized, payload too large).
func isRetryableEmbeddingError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if ok := asStatusError(err, &statusErr); ok {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}

	type temporary interface {
		Temporary() bool
	}
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}

	// Anything else (context deadline, connection refused, DNS failure) is
	// a transport-level problem worth one more try.
	return true
}

func asStatusError(err error, target **StatusError) bool {
	for err != nil {
		if se, ok := err.(*StatusError); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Embed generates embeddings with retry logic.
func (r *RetryableClient) Embed(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	var embeddings [][]float32
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		embeddings, err = r.client.Embed(ctx, texts, normalize)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("embed failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return embeddings, nil
}

// Rerank reranks documents with retry logic.
func (r *RetryableClient) Rerank(ctx context.Context, query string, documents []RerankDocument, topK int) ([]RerankResult, error) {
	var results []RerankResult
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		results, err = r.client.Rerank(ctx, query, documents, topK)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("rerank failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return results, nil
}

// Dimension bypasses retry; it is a static property, not a call.
func (r *RetryableClient) Dimension() int {
	return r.client.Dimension()
}

// HealthCheck performs a health check with retry logic.
func (r *RetryableClient) HealthCheck(ctx context.Context) error {
	healthConfig := &retry.Config{
		MaxAttempts:     5,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		Multiplier:      1.5,
		RandomizeFactor: 0.1,
		RetryIf:         isRetryableEmbeddingError,
	}
	healthRetrier := retry.New(healthConfig)
	result := healthRetrier.Do(ctx, func(ctx context.Context) error {
		return r.client.HealthCheck(ctx)
	})
	if result.Err != nil {
		return fmt.Errorf("health check failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}
