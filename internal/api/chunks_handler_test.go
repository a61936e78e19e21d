package api

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conhub-ingest/internal/logging"
	"conhub-ingest/internal/storage"
	"conhub-ingest/pkg/types"
)

// fakeVectorStore is a no-op storage.VectorStore that records the last
// filter it was asked to delete by.
type fakeVectorStore struct {
	deleteByFilterCalls int
	lastFilter          *storage.Filter
	deleteErr           error
}

func (f *fakeVectorStore) EnsureCollection(context.Context, int) error { return nil }
func (f *fakeVectorStore) Upsert(context.Context, []types.VectorRecord) error { return nil }
func (f *fakeVectorStore) Search(context.Context, []float32, int, *storage.Filter) ([]storage.ScoredRecord, error) {
	return nil, nil
}
func (f *fakeVectorStore) DeleteByID(context.Context, string) error { return nil }
func (f *fakeVectorStore) DeleteByFilter(_ context.Context, filter *storage.Filter) error {
	f.deleteByFilterCalls++
	f.lastFilter = filter
	return f.deleteErr
}
func (f *fakeVectorStore) HealthCheck(context.Context) error { return nil }
func (f *fakeVectorStore) Close() error                      { return nil }

// fakeGraphStore is a minimal storage.GraphStore fake exercising only what
// ChunksHandler.Delete calls: ChunkIDsByRepository and DeleteChunkRow.
type fakeGraphStore struct {
	chunkIDs       []string
	lookupErr      error
	deleteRowErrOn map[string]error
	deletedRows    []string
}

func (f *fakeGraphStore) EnsureSchema(context.Context) error { return nil }
func (f *fakeGraphStore) UpsertChunkRow(context.Context, *sql.Tx, types.Chunk, string) error {
	return nil
}
func (f *fakeGraphStore) DeleteChunkRow(_ context.Context, chunkID string) error {
	f.deletedRows = append(f.deletedRows, chunkID)
	if f.deleteRowErrOn != nil {
		return f.deleteRowErrOn[chunkID]
	}
	return nil
}
func (f *fakeGraphStore) ChunkRowExists(context.Context, string) (bool, error) { return false, nil }
func (f *fakeGraphStore) BeginBatch(context.Context) (*sql.Tx, error)          { return nil, nil }
func (f *fakeGraphStore) UpsertEntity(context.Context, *sql.Tx, types.Entity) (types.Entity, error) {
	return types.Entity{}, nil
}
func (f *fakeGraphStore) UpsertChunkEntityEdge(context.Context, *sql.Tx, types.ChunkEntityEdge) error {
	return nil
}
func (f *fakeGraphStore) EntitiesForChunk(context.Context, string) ([]types.Entity, error) {
	return nil, nil
}
func (f *fakeGraphStore) EntitiesByType(context.Context, types.EntityType) ([]types.Entity, error) {
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
func (f *fakeGraphStore) NeighbourChunksViaEntity(context.Context, string, int, int) ([]string, error) {
	return nil, nil
}
func (f *fakeGraphStore) LinkSimilarChunks(context.Context, string, []storage.ScoredRecord, float64) error {
	return nil
}
func (f *fakeGraphStore) SearchKeyword(context.Context, string, int, string) ([]storage.KeywordHit, error) {
	return nil, nil
}
func (f *fakeGraphStore) ChunksContent(context.Context, []string) (map[string]string, error) {
	return nil, nil
}
func (f *fakeGraphStore) ChunkIDsByRepository(context.Context, string) ([]string, error) {
	return f.chunkIDs, f.lookupErr
}
func (f *fakeGraphStore) Close() error { return nil }

func TestChunksHandler_Delete_RequiresFilter(t *testing.T) {
	h := NewChunksHandler(&fakeVectorStore{}, &fakeGraphStore{}, logging.NewNoOpLogger())

	req := httptest.NewRequest(http.MethodDelete, "/chunks", http.NoBody)
	w := httptest.NewRecorder()
	h.Delete(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChunksHandler_Delete_CascadesToGraphStore(t *testing.T) {
	vs := &fakeVectorStore{}
	gs := &fakeGraphStore{chunkIDs: []string{"chunk-1", "chunk-2"}}
	h := NewChunksHandler(vs, gs, logging.NewNoOpLogger())

	req := httptest.NewRequest(http.MethodDelete, "/chunks?filter=repository:conhub-ingest", http.NoBody)
	w := httptest.NewRecorder()
	h.Delete(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, vs.deleteByFilterCalls)
	require.NotNil(t, vs.lastFilter)
	assert.Equal(t, "conhub-ingest", vs.lastFilter.Repository())
	assert.ElementsMatch(t, []string{"chunk-1", "chunk-2"}, gs.deletedRows)
}

func TestChunksHandler_Delete_RejectsMalformedFilter(t *testing.T) {
	h := NewChunksHandler(&fakeVectorStore{}, &fakeGraphStore{}, logging.NewNoOpLogger())

	req := httptest.NewRequest(http.MethodDelete, "/chunks?filter=not-a-pair", http.NoBody)
	w := httptest.NewRecorder()
	h.Delete(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChunksHandler_Delete_ReportsCascadeErrorsWithoutFailingRequest(t *testing.T) {
	vs := &fakeVectorStore{}
	gs := &fakeGraphStore{
		chunkIDs:       []string{"chunk-1", "chunk-2"},
		deleteRowErrOn: map[string]error{"chunk-2": assert.AnError},
	}
	h := NewChunksHandler(vs, gs, logging.NewNoOpLogger())

	req := httptest.NewRequest(http.MethodDelete, "/chunks?filter=repository:conhub-ingest", http.NoBody)
	w := httptest.NewRecorder()
	h.Delete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"graph_cascade_errors":1`)
}
