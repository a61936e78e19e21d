package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPClient talks to an embedding/rerank service over plain HTTP, per the
// POST /embed and POST /rerank contract. It caches single-text embed results
// by sha256(text) so repeated chunks (common across re-ingestion and query
// expansion) skip the network round trip.
type HTTPClient struct {
	baseURL    string
	model      string
	dimension  int
	maxBatch   int
	httpClient *http.Client
	logger     *slog.Logger
	cache      *EmbeddingCache
}

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	BaseURL        string
	Model          string
	Dimension      int
	RequestTimeout time.Duration
	MaxBatchSize   int
	CacheSize      int
	CacheTTL       time.Duration
}

// NewHTTPClient builds a Client against cfg.BaseURL. logger may be nil, in
// which case slog.Default() is used.
func NewHTTPClient(cfg HTTPClientConfig, logger *slog.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base url is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 96
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		maxBatch:  maxBatch,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
		cache:  NewEmbeddingCache(cfg.CacheSize, cfg.CacheTTL),
	}, nil
}

// Dimension reports the configured vector width.
func (c *HTTPClient) Dimension() int {
	return c.dimension
}

// Embed returns one normalised vector per text, batching calls to the
// embedding service at c.maxBatch texts per request and serving cache hits
// without a round trip.
func (c *HTTPClient) Embed(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var uncachedTexts []string
	var uncachedIndices []int

	for i, text := range texts {
		if cached, found := c.cache.Get(cacheKey(text, normalize)); found {
			results[i] = float64sToFloat32s(cached)
			continue
		}
		uncachedTexts = append(uncachedTexts, text)
		uncachedIndices = append(uncachedIndices, i)
	}

	for start := 0; start < len(uncachedTexts); start += c.maxBatch {
		end := start + c.maxBatch
		if end > len(uncachedTexts) {
			end = len(uncachedTexts)
		}
		batch := uncachedTexts[start:end]

		embeddings, err := c.embedBatch(ctx, batch, normalize)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(embeddings), len(batch))
		}

		for j, vec := range embeddings {
			idx := uncachedIndices[start+j]
			results[idx] = vec
			c.cache.Set(cacheKey(batch[j], normalize), float32sToFloat64s(vec))
		}
	}

	return results, nil
}

func (c *HTTPClient) embedBatch(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	reqBody := embedRequest{Text: texts, Normalize: normalize}
	var resp embedResponse
	if err := c.post(ctx, "/embed", reqBody, &resp); err != nil {
		return nil, err
	}
	if resp.Dimension != 0 && resp.Dimension != c.dimension {
		return nil, fmt.Errorf("embedding service dimension %d does not match configured dimension %d", resp.Dimension, c.dimension)
	}
	return resp.Embeddings, nil
}

// Rerank scores documents against query via POST /rerank, truncating to
// topK. A topK of 0 returns every scored document.
func (c *HTTPClient) Rerank(ctx context.Context, query string, documents []RerankDocument, topK int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	docs := make([]rerankDocument, len(documents))
	for i, d := range documents {
		docs[i] = rerankDocument{ID: d.ID, Text: d.Text}
	}

	reqBody := rerankRequest{Query: query, Documents: docs, TopK: topK}
	var resp rerankResponse
	if err := c.post(ctx, "/rerank", reqBody, &resp); err != nil {
		return nil, err
	}

	results := make([]RerankResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = RerankResult{ID: r.ID, Score: r.Score}
	}
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// HealthCheck verifies the embedding service answers a trivial embed call.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	_, err := c.embedBatch(ctx, []string{"health check"}, true)
	return err
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("embedding service returned non-200", "path", path, "status", resp.StatusCode)
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response %s: %w", path, err)
	}
	return nil
}

// StatusError carries the HTTP status of a failed embedding service call so
// retry predicates can distinguish retryable (5xx, 429) from permanent
// (4xx) failures without string matching on the body.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding service %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

func cacheKey(text string, normalize bool) string {
	return strconv.FormatBool(normalize) + ":" + text
}

func float64sToFloat32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func float32sToFloat64s(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
