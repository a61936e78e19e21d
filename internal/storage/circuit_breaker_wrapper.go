package storage

import (
	"context"
	"time"

	"conhub-ingest/internal/circuitbreaker"
	"conhub-ingest/internal/logging"
	"conhub-ingest/pkg/types"
)

// CircuitBreakerVectorStore wraps a VectorStore with circuit breaker
// protection so a struggling Qdrant deployment degrades the retriever
// (keyword-only, see C9) instead of hanging every caller.
type CircuitBreakerVectorStore struct {
	store VectorStore
	cb    *circuitbreaker.CircuitBreaker
}

// NewCircuitBreakerVectorStore wraps store with a circuit breaker.
func NewCircuitBreakerVectorStore(store VectorStore, config *circuitbreaker.Config) *CircuitBreakerVectorStore {
	if config == nil {
		config = &circuitbreaker.Config{
			FailureThreshold:      5,
			SuccessThreshold:      2,
			Timeout:               30 * time.Second,
			MaxConcurrentRequests: 3,
			OnStateChange: func(from, to circuitbreaker.State) {
				logging.Warn("vector store circuit breaker state change", "from", from.String(), "to", to.String())
			},
		}
	}
	return &CircuitBreakerVectorStore{store: store, cb: circuitbreaker.New(config)}
}

// EnsureCollection is not breaker-protected; it only runs at startup.
func (s *CircuitBreakerVectorStore) EnsureCollection(ctx context.Context, dim int) error {
	return s.store.EnsureCollection(ctx, dim)
}

// Upsert goes through the breaker.
func (s *CircuitBreakerVectorStore) Upsert(ctx context.Context, records []types.VectorRecord) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Upsert(ctx, records)
	})
}

// Search falls back to an empty result set, with no error, when the breaker
// is open or the search fails. The retriever then sees zero vector hits
// rather than a failed vector leg: it answers from keyword hits alone
// (keyword_only) without raising the vector_unavailable flag.
func (s *CircuitBreakerVectorStore) Search(ctx context.Context, vector []float32, k int, filter *Filter) ([]ScoredRecord, error) {
	var out []ScoredRecord
	err := s.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			out, err = s.store.Search(ctx, vector, k, filter)
			return err
		},
		func(_ context.Context, _ error) error {
			out = nil
			return nil
		},
	)
	return out, err
}

// DeleteByID goes through the breaker.
func (s *CircuitBreakerVectorStore) DeleteByID(ctx context.Context, chunkID string) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.DeleteByID(ctx, chunkID)
	})
}

// DeleteByFilter goes through the breaker.
func (s *CircuitBreakerVectorStore) DeleteByFilter(ctx context.Context, filter *Filter) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.DeleteByFilter(ctx, filter)
	})
}

// HealthCheck goes through the breaker.
func (s *CircuitBreakerVectorStore) HealthCheck(ctx context.Context) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.HealthCheck(ctx)
	})
}

// Close bypasses the breaker.
func (s *CircuitBreakerVectorStore) Close() error {
	return s.store.Close()
}

// Stats exposes the underlying breaker's counters for observability.
func (s *CircuitBreakerVectorStore) Stats() circuitbreaker.Stats {
	return s.cb.GetStats()
}
