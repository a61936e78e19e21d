// Package retrieval implements C9, the hybrid retriever: cache check,
// parallel keyword/vector fan-out, RRF fusion, optional graph expansion
// and rerank (§4.9).
package retrieval

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"conhub-ingest/internal/cache"
	"conhub-ingest/internal/deployment"
	"conhub-ingest/internal/embeddings"
	"conhub-ingest/internal/logging"
	"conhub-ingest/internal/storage"
	"conhub-ingest/pkg/types"
)

const (
	// rrfK is the RRF smoothing constant (§4.9 step 4).
	rrfK = 60.0
	// n1 is how many candidates each of the keyword/vector legs requests.
	n1 = 100
	// n2 is the fused list's truncation point before rerank.
	n2 = 100
	// defaultTopK is the result count returned to the caller absent an
	// explicit top_k in the query.
	defaultTopK = 20
	// defaultGraphExpansionTopN is how many of the fused results are
	// expanded via C7's entity-neighbourhood lookup (step 5).
	defaultGraphExpansionTopN = 5
	// defaultCacheTTLSeconds is how long a query result is cached.
	defaultCacheTTLSeconds = 300
)

// Degradation flag names surfaced in SearchResponse.DegradationFlags.
const (
	DegradationKeywordOnly        = "keyword_only"
	DegradationVectorOnly         = "vector_only"
	DegradationEmptyResult        = "empty_result"
	DegradationNoRerank           = "no_rerank"
	DegradationKeywordUnavailable = "keyword_unavailable"
	DegradationVectorUnavailable  = "vector_unavailable"
)

// Query is a single hybrid-search request.
type Query struct {
	Text        string
	Filter      *storage.Filter
	Profile     string
	TopK        int
	ExpandGraph bool
}

// Retriever implements C9 over the store and client adapters.
type Retriever struct {
	vectorStore storage.VectorStore
	graphStore  storage.GraphStore
	embeddings  embeddings.Client
	cache       *cache.Cache
	logger      logging.Logger

	graphExpansionTopN int
	cacheTTLSeconds    int
}

// New builds a Retriever. cache may be nil to disable the cache-check step.
func New(vectorStore storage.VectorStore, graphStore storage.GraphStore, embedClient embeddings.Client, queryCache *cache.Cache, logger logging.Logger) *Retriever {
	if logger == nil {
		logger = logging.WithComponent("hybrid_retriever")
	}
	return &Retriever{
		vectorStore:        vectorStore,
		graphStore:         graphStore,
		embeddings:         embedClient,
		cache:              queryCache,
		logger:             logger,
		graphExpansionTopN: defaultGraphExpansionTopN,
		cacheTTLSeconds:    defaultCacheTTLSeconds,
	}
}

// Search runs the full 7-step pipeline for q.
func (r *Retriever) Search(ctx context.Context, q Query) (types.SearchResponse, error) {
	start := time.Now()
	topK := q.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	filterRepr := ""
	if q.Filter != nil {
		filterRepr = q.Filter.CanonicalString()
	}
	cacheKey := cache.QueryKey(q.Text, filterRepr, q.Profile)

	if r.cache != nil {
		if entry, ok := r.cache.Get(ctx, cacheKey); ok {
			data := entry.Data
			if entry.Compressed {
				if zr, err := gzip.NewReader(bytes.NewReader(data)); err == nil {
					data, _ = io.ReadAll(zr)
				}
			}
			var cached types.SearchResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				cached.LatencyMS = time.Since(start).Milliseconds()
				return cached, nil
			}
		}
	}

	vectors, embedErr := r.embeddings.Embed(ctx, []string{q.Text}, true)
	var queryVector []float32
	if embedErr == nil && len(vectors) == 1 {
		queryVector = vectors[0]
	}

	keywordHits, vectorHits, flags := r.fanOut(ctx, q.Text, queryVector, q.Filter)

	fused := fuseRRF(keywordHits, vectorHits)
	if len(fused) > n2 {
		fused = fused[:n2]
	}

	if q.ExpandGraph && len(fused) > 0 {
		fused = r.expandGraph(ctx, fused)
	}

	results, rerankFlags := r.rerank(ctx, q.Text, fused)
	flags = append(flags, rerankFlags...)

	for _, f := range rerankFlags {
		deployment.Metrics().IncrementCounter("retrieval.degradation." + f)
	}
	if len(results) == 0 {
		flags = append(flags, DegradationEmptyResult)
		deployment.Metrics().IncrementCounter("retrieval.degradation." + DegradationEmptyResult)
	}
	if len(results) > topK {
		results = results[:topK]
	}

	response := types.SearchResponse{
		Results:          results,
		DegradationFlags: dedupFlags(flags),
		LatencyMS:        time.Since(start).Milliseconds(),
	}

	if r.cache != nil && ctx.Err() == nil {
		if data, err := json.Marshal(response); err == nil {
			r.cache.Set(ctx, cacheKey, data, r.cacheTTLSeconds)
		}
	}

	return response, nil
}

// fuseCandidate is one document as it travels through fanOut, RRF fusion
// and rerank.
type fuseCandidate struct {
	chunkID string
	score   float64
	payload types.VectorPayload
	source  string
}

// fanOut runs the keyword and vector legs concurrently via a hand-rolled
// WaitGroup + buffered error channel, matching the teacher's structured
// concurrency idiom rather than a third-party errgroup.
func (r *Retriever) fanOut(ctx context.Context, query string, queryVector []float32, filter *storage.Filter) (keyword, vector []fuseCandidate, flags []string) {
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	var keywordHits []storage.KeywordHit
	var vectorHits []storage.ScoredRecord
	var keywordErr, vectorErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		repository := ""
		if filter != nil {
			repository = filter.Repository()
		}
		hits, err := r.graphStore.SearchKeyword(ctx, query, n1, repository)
		if err != nil {
			keywordErr = err
			errs <- err
			return
		}
		keywordHits = hits
	}()
	go func() {
		defer wg.Done()
		if queryVector == nil {
			vectorErr = errVectorUnavailable
			errs <- vectorErr
			return
		}
		hits, err := r.vectorStore.Search(ctx, queryVector, n1, filter)
		if err != nil {
			vectorErr = err
			errs <- err
			return
		}
		vectorHits = hits
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		r.logger.Warn("retrieval leg degraded", "error", err)
	}

	if keywordErr == nil {
		keyword = make([]fuseCandidate, len(keywordHits))
		for i, h := range keywordHits {
			keyword[i] = fuseCandidate{chunkID: h.ChunkID, score: h.Score, source: "keyword"}
		}
	}
	if vectorErr == nil {
		vector = make([]fuseCandidate, len(vectorHits))
		for i, h := range vectorHits {
			vector[i] = fuseCandidate{chunkID: h.Record.ChunkID, score: h.Score, payload: h.Record.Payload, source: "vector"}
		}
	}

	switch {
	case keywordErr != nil && vectorErr != nil:
		flags = append(flags, DegradationEmptyResult)
	case vectorErr != nil:
		// §4.9 names the fallback mode ("keyword_only" results); §8
		// scenario 2 names the backend that's actually down. Surface both.
		flags = append(flags, DegradationKeywordOnly, DegradationVectorUnavailable)
	case keywordErr != nil:
		flags = append(flags, DegradationVectorOnly, DegradationKeywordUnavailable)
	case len(keywordHits) == 0 && len(vectorHits) > 0:
		flags = append(flags, DegradationVectorOnly)
	case len(vectorHits) == 0 && len(keywordHits) > 0:
		flags = append(flags, DegradationKeywordOnly)
	}
	for _, f := range flags {
		deployment.Metrics().IncrementCounter("retrieval.degradation." + f)
	}
	return keyword, vector, flags
}

var errVectorUnavailable = errNoEmbedding{}

type errNoEmbedding struct{}

func (errNoEmbedding) Error() string { return "query embedding unavailable" }

// fuseRRF combines two ranked lists with Reciprocal Rank Fusion, k=60.
// Equal scores tie-break on lexical chunk_id ascending (§5 ordering
// guarantee), so fusion output is deterministic regardless of goroutine
// scheduling order upstream.
func fuseRRF(lists ...[]fuseCandidate) []fuseCandidate {
	scores := make(map[string]float64)
	meta := make(map[string]fuseCandidate)
	for _, list := range lists {
		for rank, c := range list {
			scores[c.chunkID] += 1.0 / (rrfK + float64(rank+1))
			if existing, ok := meta[c.chunkID]; ok {
				if existing.source != c.source {
					existing.source = "both"
				}
				if (existing.payload == types.VectorPayload{}) {
					existing.payload = c.payload
				}
				meta[c.chunkID] = existing
			} else {
				meta[c.chunkID] = c
			}
		}
	}
	fused := make([]fuseCandidate, 0, len(scores))
	for id, score := range scores {
		c := meta[id]
		c.score = score
		fused = append(fused, c)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].chunkID < fused[j].chunkID
	})
	return fused
}

// expandGraph pulls entity-neighbourhood chunks for the top-N fused
// results and folds them back into the ranked list via a second RRF pass
// against the original fused order (§4.9 step 5).
func (r *Retriever) expandGraph(ctx context.Context, fused []fuseCandidate) []fuseCandidate {
	topN := r.graphExpansionTopN
	if topN > len(fused) {
		topN = len(fused)
	}

	var neighbourList []fuseCandidate
	for i := 0; i < topN; i++ {
		neighbourIDs, err := r.graphStore.NeighbourChunksViaEntity(ctx, fused[i].chunkID, 1, n1)
		if err != nil {
			r.logger.Warn("graph expansion failed, skipping", "chunk_id", fused[i].chunkID, "error", err)
			continue
		}
		for rank, id := range neighbourIDs {
			neighbourList = append(neighbourList, fuseCandidate{chunkID: id, score: 1.0 / (rrfK + float64(rank+1)), source: "graph"})
		}
	}
	if len(neighbourList) == 0 {
		return fused
	}

	refused := fuseRRF(fused, neighbourList)
	if len(refused) > n2 {
		refused = refused[:n2]
	}
	return refused
}

// rerank scores the fused candidates with C10's cross-encoder. On
// failure, timeout, or an empty candidate set it falls back to RRF
// ordering (§4.9 step 6).
func (r *Retriever) rerank(ctx context.Context, query string, fused []fuseCandidate) ([]types.SearchResult, []string) {
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]string, len(fused))
	for i, c := range fused {
		ids[i] = c.chunkID
	}
	content, err := r.graphStore.ChunksContent(ctx, ids)
	if err != nil {
		r.logger.Warn("chunk content lookup failed, using RRF ordering", "error", err)
		return r.toResults(fused, nil), []string{DegradationNoRerank}
	}

	docs := make([]embeddings.RerankDocument, 0, len(fused))
	for _, id := range ids {
		if text, ok := content[id]; ok {
			docs = append(docs, embeddings.RerankDocument{ID: id, Text: text})
		}
	}
	if len(docs) == 0 {
		return r.toResults(fused, content), []string{DegradationNoRerank}
	}

	reranked, err := r.embeddings.Rerank(ctx, query, docs, 0)
	if err != nil || len(reranked) == 0 {
		r.logger.Warn("rerank failed or returned no results, using RRF ordering", "error", err)
		return r.toResults(fused, content), []string{DegradationNoRerank}
	}

	byID := make(map[string]fuseCandidate, len(fused))
	for _, c := range fused {
		byID[c.chunkID] = c
	}
	ordered := make([]fuseCandidate, len(reranked))
	for i, rr := range reranked {
		c := byID[rr.ID]
		c.chunkID = rr.ID
		c.score = rr.Score
		ordered[i] = c
	}
	return r.toResults(ordered, content), nil
}

func (r *Retriever) toResults(candidates []fuseCandidate, content map[string]string) []types.SearchResult {
	results := make([]types.SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = types.SearchResult{
			ChunkID: c.chunkID,
			Score:   c.score,
			Payload: c.payload,
			Source:  c.source,
			Snippet: snippet(content[c.chunkID]),
		}
	}
	return results
}

const snippetMaxLen = 240

func snippet(content string) string {
	if len(content) <= snippetMaxLen {
		return content
	}
	return content[:snippetMaxLen]
}

func dedupFlags(flags []string) []string {
	if len(flags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(flags))
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
