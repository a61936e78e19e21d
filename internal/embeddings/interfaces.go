// Package embeddings implements the C10 embedding client: a stateless HTTP
// client over an embedding/rerank service, wrapped with caching, retries and
// a circuit breaker.
package embeddings

import (
	"context"
)

// Client is the surface C3 (chunking, for query-time similarity) and C9
// (hybrid retrieval) depend on. Implementations must L2-normalise vectors
// when normalize is true, matching the cosine-via-dot-product contract the
// vector store assumes.
type Client interface {
	// Embed returns one vector per text, in the same order as texts.
	Embed(ctx context.Context, texts []string, normalize bool) ([][]float32, error)

	// Rerank scores documents against query, returning results ordered by
	// descending score. topK truncates the result; 0 means "no limit".
	Rerank(ctx context.Context, query string, documents []RerankDocument, topK int) ([]RerankResult, error)

	// Dimension reports the vector width this client's model produces.
	Dimension() int

	// HealthCheck verifies the remote embedding service is reachable.
	HealthCheck(ctx context.Context) error
}

// RerankDocument is one candidate passed to Rerank.
type RerankDocument struct {
	ID   string
	Text string
}

// RerankResult is one scored candidate returned by Rerank.
type RerankResult struct {
	ID    string
	Score float64
}

// embedRequest mirrors the embedding service's POST /embed body.
type embedRequest struct {
	Text      []string `json:"text"`
	Normalize bool     `json:"normalize"`
}

// embedResponse mirrors the embedding service's POST /embed response.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimension  int         `json:"dimension"`
	Model      string      `json:"model"`
	Count      int         `json:"count"`
}

// rerankRequest mirrors the embedding service's POST /rerank body.
type rerankRequest struct {
	Query     string           `json:"query"`
	Documents []rerankDocument `json:"documents"`
	TopK      int              `json:"top_k,omitempty"`
}

type rerankDocument struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// rerankResponse mirrors the embedding service's POST /rerank response.
type rerankResponse struct {
	Results []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"results"`
}
