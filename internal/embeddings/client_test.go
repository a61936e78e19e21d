package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conhub-ingest/internal/retry"
)

func newTestServer(t *testing.T, dimension int, embedCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		if embedCalls != nil {
			atomic.AddInt32(embedCalls, 1)
		}
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vectors := make([][]float32, len(req.Text))
		for i := range req.Text {
			vec := make([]float32, dimension)
			for j := range vec {
				vec[j] = float32(i+1) / float32(dimension)
			}
			vectors[i] = vec
		}
		_ = json.NewEncoder(w).Encode(embedResponse{
			Embeddings: vectors,
			Dimension:  dimension,
			Model:      "test-model",
			Count:      len(vectors),
		})
	})
	mux.HandleFunc("/rerank", func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := rerankResponse{}
		for i, d := range req.Documents {
			resp.Results = append(resp.Results, struct {
				ID    string  `json:"id"`
				Score float64 `json:"score"`
			}{ID: d.ID, Score: 1.0 / float64(i+1)})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return httptest.NewServer(mux)
}

func TestHTTPClient_Embed_ReturnsVectorsInOrder(t *testing.T) {
	srv := newTestServer(t, 4, nil)
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Dimension: 4}, nil)
	require.NoError(t, err)

	vecs, err := client.Embed(context.Background(), []string{"a", "b"}, true)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 4)
	assert.Len(t, vecs[1], 4)
}

func TestHTTPClient_Embed_CachesRepeatedText(t *testing.T) {
	var calls int32
	srv := newTestServer(t, 4, &calls)
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Dimension: 4}, nil)
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), []string{"same text"}, true)
	require.NoError(t, err)
	_, err = client.Embed(context.Background(), []string{"same text"}, true)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPClient_Embed_BatchesLargeInput(t *testing.T) {
	var calls int32
	srv := newTestServer(t, 4, &calls)
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Dimension: 4, MaxBatchSize: 2}, nil)
	require.NoError(t, err)

	texts := []string{"1", "2", "3", "4", "5"}
	vecs, err := client.Embed(context.Background(), texts, true)
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPClient_Embed_DimensionMismatchErrors(t *testing.T) {
	srv := newTestServer(t, 8, nil)
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Dimension: 4}, nil)
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), []string{"a"}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestHTTPClient_Rerank_ReturnsScoredResults(t *testing.T) {
	srv := newTestServer(t, 4, nil)
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Dimension: 4}, nil)
	require.NoError(t, err)

	results, err := client.Rerank(context.Background(), "query", []RerankDocument{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
	}, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
}

func TestHTTPClient_Rerank_TruncatesToTopK(t *testing.T) {
	srv := newTestServer(t, 4, nil)
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Dimension: 4}, nil)
	require.NoError(t, err)

	results, err := client.Rerank(context.Background(), "query", []RerankDocument{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
		{ID: "c", Text: "third"},
	}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestHTTPClient_PropagatesStatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, Dimension: 4}, nil)
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), []string{"a"}, true)
	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, asStatusError(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestNewHTTPClient_RequiresBaseURLAndDimension(t *testing.T) {
	_, err := NewHTTPClient(HTTPClientConfig{Dimension: 4}, nil)
	require.Error(t, err)

	_, err = NewHTTPClient(HTTPClientConfig{BaseURL: "http://x"}, nil)
	require.Error(t, err)
}

type stubClient struct {
	embedFn func(ctx context.Context, texts []string, normalize bool) ([][]float32, error)
	calls   int32
}

func (s *stubClient) Embed(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.embedFn(ctx, texts, normalize)
}

func (s *stubClient) Rerank(ctx context.Context, query string, documents []RerankDocument, topK int) ([]RerankResult, error) {
	return nil, nil
}

func (s *stubClient) Dimension() int { return 4 }

func (s *stubClient) HealthCheck(ctx context.Context) error { return nil }

func TestRetryableClient_RetriesOn429(t *testing.T) {
	attempts := 0
	stub := &stubClient{
		embedFn: func(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
			attempts++
			if attempts < 3 {
				return nil, &StatusError{StatusCode: 429}
			}
			return [][]float32{{0.1}}, nil
		},
	}

	retryable := NewRetryableClient(stub, fastRetryConfig())
	vecs, err := retryable.Embed(context.Background(), []string{"a"}, true)
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 3, attempts)
}

func TestRetryableClient_DoesNotRetryOn400(t *testing.T) {
	attempts := 0
	stub := &stubClient{
		embedFn: func(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
			attempts++
			return nil, &StatusError{StatusCode: 400}
		},
	}

	retryable := NewRetryableClient(stub, fastRetryConfig())
	_, err := retryable.Embed(context.Background(), []string{"a"}, true)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func fastRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:     5,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		Multiplier:      2.0,
		RandomizeFactor: 0,
		RetryIf:         isRetryableEmbeddingError,
	}
}
