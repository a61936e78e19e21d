package embeddings

import (
	"context"
	"fmt"
	"time"

	"conhub-ingest/internal/circuitbreaker"
	"conhub-ingest/internal/logging"
)

// CircuitBreakerClient wraps a Client with circuit breaker protection so a
// struggling embedding service degrades the retriever (RRF-only ordering,
// see C9) instead of hanging every caller.
type CircuitBreakerClient struct {
	client Client
	cb     *circuitbreaker.CircuitBreaker
}

// NewCircuitBreakerClient wraps client with a circuit breaker.
func NewCircuitBreakerClient(client Client, config *circuitbreaker.Config) *CircuitBreakerClient {
	if config == nil {
		config = &circuitbreaker.Config{
			FailureThreshold:      3,
			SuccessThreshold:      2,
			Timeout:               20 * time.Second,
			MaxConcurrentRequests: 5,
			OnStateChange: func(from, to circuitbreaker.State) {
				logging.Warn("embedding client circuit breaker state change", "from", from.String(), "to", to.String())
			},
		}
	}
	return &CircuitBreakerClient{client: client, cb: circuitbreaker.New(config)}
}

// Embed goes through the breaker; there is no meaningful fallback for a
// missing vector, so a breaker trip surfaces as an error.
func (c *CircuitBreakerClient) Embed(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	var result [][]float32
	err := c.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = c.client.Embed(ctx, texts, normalize)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embedding client unavailable: %w", err)
	}
	return result, nil
}

// Rerank falls back to an empty result set, with no error, when the breaker
// is open or the rerank call fails; callers (C9) treat an empty result the
// same as "reranker unavailable" and keep RRF ordering.
func (c *CircuitBreakerClient) Rerank(ctx context.Context, query string, documents []RerankDocument, topK int) ([]RerankResult, error) {
	var result []RerankResult
	err := c.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = c.client.Rerank(ctx, query, documents, topK)
			return err
		},
		func(_ context.Context, _ error) error {
			result = nil
			return nil
		},
	)
	return result, err
}

// Dimension bypasses the breaker; it is a static property, not a call.
func (c *CircuitBreakerClient) Dimension() int {
	return c.client.Dimension()
}

// HealthCheck goes through the breaker.
func (c *CircuitBreakerClient) HealthCheck(ctx context.Context) error {
	return c.cb.Execute(ctx, func(ctx context.Context) error {
		return c.client.HealthCheck(ctx)
	})
}

// Stats exposes the underlying breaker's counters for observability.
func (c *CircuitBreakerClient) Stats() circuitbreaker.Stats {
	return c.cb.GetStats()
}
