package retrieval

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conhub-ingest/internal/embeddings"
	"conhub-ingest/internal/logging"
	"conhub-ingest/internal/storage"
	"conhub-ingest/pkg/types"
)

// --- fakeVectorStore ---------------------------------------------------

type fakeVectorStore struct {
	hits []storage.ScoredRecord
	err  error
}

func (f *fakeVectorStore) EnsureCollection(context.Context, int) error  { return nil }
func (f *fakeVectorStore) Upsert(context.Context, []types.VectorRecord) error { return nil }
func (f *fakeVectorStore) Search(context.Context, []float32, int, *storage.Filter) ([]storage.ScoredRecord, error) {
	return f.hits, f.err
}
func (f *fakeVectorStore) DeleteByID(context.Context, string) error         { return nil }
func (f *fakeVectorStore) DeleteByFilter(context.Context, *storage.Filter) error { return nil }
func (f *fakeVectorStore) HealthCheck(context.Context) error                { return nil }
func (f *fakeVectorStore) Close() error                                     { return nil }

// --- fakeGraphStore ------------------------------------------------------

type fakeGraphStore struct {
	keywordHits []storage.KeywordHit
	keywordErr  error
	content     map[string]string
	neighbours  map[string][]string
}

func (f *fakeGraphStore) EnsureSchema(context.Context) error { return nil }
func (f *fakeGraphStore) UpsertChunkRow(context.Context, *sql.Tx, types.Chunk, string) error {
	return nil
}
func (f *fakeGraphStore) DeleteChunkRow(context.Context, string) error    { return nil }
func (f *fakeGraphStore) ChunkRowExists(context.Context, string) (bool, error) { return false, nil }
func (f *fakeGraphStore) BeginBatch(context.Context) (*sql.Tx, error)     { return nil, nil }
func (f *fakeGraphStore) UpsertEntity(context.Context, *sql.Tx, types.Entity) (types.Entity, error) {
	return types.Entity{}, nil
}
func (f *fakeGraphStore) UpsertChunkEntityEdge(context.Context, *sql.Tx, types.ChunkEntityEdge) error {
	return nil
}
func (f *fakeGraphStore) EntitiesForChunk(context.Context, string) ([]types.Entity, error) {
	return nil, nil
}
func (f *fakeGraphStore) UpsertCanonicalEntity(context.Context, *sql.Tx, types.CanonicalEntity) error {
	return nil
}
func (f *fakeGraphStore) CanonicalEntityForEntity(context.Context, string) (*types.CanonicalEntity, error) {
	return nil, nil
}
func (f *fakeGraphStore) UpsertChunkRelation(context.Context, *sql.Tx, types.ChunkRelation) error {
	return nil
}
func (f *fakeGraphStore) NeighbourChunksViaEntity(_ context.Context, chunkID string, _ int, _ int) ([]string, error) {
	return f.neighbours[chunkID], nil
}
func (f *fakeGraphStore) LinkSimilarChunks(context.Context, string, []storage.ScoredRecord, float64) error {
	return nil
}
func (f *fakeGraphStore) SearchKeyword(context.Context, string, int, string) ([]storage.KeywordHit, error) {
	return f.keywordHits, f.keywordErr
}
func (f *fakeGraphStore) ChunksContent(_ context.Context, chunkIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(chunkIDs))
	for _, id := range chunkIDs {
		if text, ok := f.content[id]; ok {
			out[id] = text
		}
	}
	return out, nil
}
func (f *fakeGraphStore) ChunkIDsByRepository(context.Context, string) ([]string, error) {
	return nil, nil
}
func (f *fakeGraphStore) Close() error { return nil }

// --- fakeEmbeddingClient --------------------------------------------------

type fakeEmbeddingClient struct {
	vector      []float32
	embedErr    error
	rerankFunc  func(query string, docs []embeddings.RerankDocument) ([]embeddings.RerankResult, error)
}

func (f *fakeEmbeddingClient) Embed(_ context.Context, texts []string, _ bool) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbeddingClient) Rerank(_ context.Context, query string, docs []embeddings.RerankDocument, _ int) ([]embeddings.RerankResult, error) {
	if f.rerankFunc != nil {
		return f.rerankFunc(query, docs)
	}
	results := make([]embeddings.RerankResult, len(docs))
	for i, d := range docs {
		results[i] = embeddings.RerankResult{ID: d.ID, Score: float64(len(docs) - i)}
	}
	return results, nil
}

func (f *fakeEmbeddingClient) Dimension() int                      { return 4 }
func (f *fakeEmbeddingClient) HealthCheck(context.Context) error { return nil }

// --- tests -----------------------------------------------------------

func TestFuseRRF_CommutativeForDisjointIDSets(t *testing.T) {
	keyword := []fuseCandidate{{chunkID: "a"}, {chunkID: "b"}, {chunkID: "c"}}
	vector := []fuseCandidate{{chunkID: "x"}, {chunkID: "y"}}

	forward := fuseRRF(keyword, vector)
	backward := fuseRRF(vector, keyword)

	require.Len(t, forward, len(backward))
	for i := range forward {
		assert.Equal(t, forward[i].chunkID, backward[i].chunkID)
		assert.InDelta(t, forward[i].score, backward[i].score, 1e-12)
	}
}

func TestFuseRRF_OverlappingIDsSumScores(t *testing.T) {
	keyword := []fuseCandidate{{chunkID: "a"}, {chunkID: "b"}}
	vector := []fuseCandidate{{chunkID: "a"}, {chunkID: "c"}}

	fused := fuseRRF(keyword, vector)
	var scoreA, scoreB float64
	for _, c := range fused {
		if c.chunkID == "a" {
			scoreA = c.score
		}
		if c.chunkID == "b" {
			scoreB = c.score
		}
	}
	// "a" appears at rank 1 in both lists; "b" only in keyword at rank 2.
	assert.InDelta(t, 2.0/(rrfK+1), scoreA, 1e-12)
	assert.InDelta(t, 1.0/(rrfK+2), scoreB, 1e-12)
}

func TestFuseRRF_TiesBreakOnLexicalID(t *testing.T) {
	// Both "b" and "a" appear only once, at the same rank in disjoint lists,
	// so they tie on score and must order lexically.
	fused := fuseRRF([]fuseCandidate{{chunkID: "b"}}, []fuseCandidate{{chunkID: "a"}})
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].chunkID)
	assert.Equal(t, "b", fused[1].chunkID)
}

func TestFuseRRF_MergesPayloadAndMarksBothSources(t *testing.T) {
	payload := types.VectorPayload{Repository: "repo"}
	keyword := []fuseCandidate{{chunkID: "a", source: "keyword"}}
	vector := []fuseCandidate{{chunkID: "a", source: "vector", payload: payload}}

	fused := fuseRRF(keyword, vector)
	require.Len(t, fused, 1)
	assert.Equal(t, "both", fused[0].source)
	assert.Equal(t, payload, fused[0].payload)
}

func TestSearch_VectorUnavailableDegradesToKeywordOnly(t *testing.T) {
	vs := &fakeVectorStore{err: assertErr("vector backend down")}
	gs := &fakeGraphStore{
		keywordHits: []storage.KeywordHit{{ChunkID: "chunk-1", Score: 1}},
		content:     map[string]string{"chunk-1": "hello world"},
	}
	client := &fakeEmbeddingClient{vector: []float32{0.1, 0.2, 0.3, 0.4}}

	r := New(vs, gs, client, nil, logging.NewNoOpLogger())
	resp, err := r.Search(context.Background(), Query{Text: "hello"})
	require.NoError(t, err)
	assert.Contains(t, resp.DegradationFlags, DegradationKeywordOnly)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "chunk-1", resp.Results[0].ChunkID)
}

func TestSearch_KeywordEmptyDegradesToVectorOnly(t *testing.T) {
	vs := &fakeVectorStore{hits: []storage.ScoredRecord{
		{Record: types.VectorRecord{ChunkID: "chunk-2"}, Score: 0.9},
	}}
	gs := &fakeGraphStore{content: map[string]string{"chunk-2": "vector hit content"}}
	client := &fakeEmbeddingClient{vector: []float32{0.1, 0.2, 0.3, 0.4}}

	r := New(vs, gs, client, nil, logging.NewNoOpLogger())
	resp, err := r.Search(context.Background(), Query{Text: "hello"})
	require.NoError(t, err)
	assert.Contains(t, resp.DegradationFlags, DegradationVectorOnly)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "chunk-2", resp.Results[0].ChunkID)
}

func TestSearch_BothBackendsEmptyReturnsOKWithEmptyResult(t *testing.T) {
	vs := &fakeVectorStore{}
	gs := &fakeGraphStore{}
	client := &fakeEmbeddingClient{vector: []float32{0.1, 0.2, 0.3, 0.4}}

	r := New(vs, gs, client, nil, logging.NewNoOpLogger())
	resp, err := r.Search(context.Background(), Query{Text: "hello"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Contains(t, resp.DegradationFlags, DegradationEmptyResult)
}

func TestSearch_RerankFailureFallsBackToRRFOrdering(t *testing.T) {
	vs := &fakeVectorStore{hits: []storage.ScoredRecord{
		{Record: types.VectorRecord{ChunkID: "chunk-1"}, Score: 0.9},
		{Record: types.VectorRecord{ChunkID: "chunk-2"}, Score: 0.8},
	}}
	gs := &fakeGraphStore{content: map[string]string{
		"chunk-1": "first",
		"chunk-2": "second",
	}}
	client := &fakeEmbeddingClient{
		vector: []float32{0.1, 0.2, 0.3, 0.4},
		rerankFunc: func(string, []embeddings.RerankDocument) ([]embeddings.RerankResult, error) {
			return nil, assertErr("rerank service unavailable")
		},
	}

	r := New(vs, gs, client, nil, logging.NewNoOpLogger())
	resp, err := r.Search(context.Background(), Query{Text: "hello"})
	require.NoError(t, err)
	assert.Contains(t, resp.DegradationFlags, DegradationNoRerank)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "chunk-1", resp.Results[0].ChunkID)
}

func TestDedupFlags_RemovesDuplicatesPreservingOrder(t *testing.T) {
	out := dedupFlags([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, out)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
