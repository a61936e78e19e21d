package entities

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conhub-ingest/pkg/types"
)

// fakeCanonicalStore is an in-memory CanonicalStore used to exercise Merger
// without a live graph store connection.
type fakeCanonicalStore struct {
	byEntity map[string]types.CanonicalEntity
	byID     map[string]types.CanonicalEntity
}

func newFakeCanonicalStore() *fakeCanonicalStore {
	return &fakeCanonicalStore{
		byEntity: make(map[string]types.CanonicalEntity),
		byID:     make(map[string]types.CanonicalEntity),
	}
}

func (f *fakeCanonicalStore) UpsertCanonicalEntity(_ context.Context, _ *sql.Tx, ce types.CanonicalEntity) error {
	f.byID[ce.ID] = ce
	for _, id := range ce.SourceEntities {
		f.byEntity[id] = ce
	}
	return nil
}

func (f *fakeCanonicalStore) CanonicalEntityForEntity(_ context.Context, entityID string) (*types.CanonicalEntity, error) {
	ce, ok := f.byEntity[entityID]
	if !ok {
		return nil, nil
	}
	return &ce, nil
}

func turingEntity(id, canonicalName, normalizedName string) types.Entity {
	return types.Entity{
		ID:             id,
		EntityType:     types.EntityTypeService,
		CanonicalName:  canonicalName,
		NormalizedName: normalizedName,
		ServiceName:    "git",
		Language:       "",
	}
}

func TestMerger_Score_DifferentEntityTypesNeverMatch(t *testing.T) {
	m := NewMerger(newFakeCanonicalStore(), DefaultResolutionConfig())
	a := turingEntity("a", "Alan Turing", "alan turing")
	b := a
	b.EntityType = types.EntityTypeFeature
	assert.Zero(t, m.Score(a, b))
}

func TestMerger_Score_ExactNormalizedNameMatchIsHighConfidence(t *testing.T) {
	m := NewMerger(newFakeCanonicalStore(), DefaultResolutionConfig())
	a := turingEntity("a", "Alan Turing", "alan turing")
	b := turingEntity("b", "Alan Turing", "alan turing")
	score := m.Score(a, b)
	assert.GreaterOrEqual(t, score, m.config.MinConfidenceThreshold)
}

func TestMerger_Score_FuzzyNameAndSharedContextScoresAboveZero(t *testing.T) {
	// "A. Turing" and "Alan Turing" attributed to commits in the same
	// service: different normalized names, but close canonical-name bigram
	// similarity plus a shared service disambiguator.
	m := NewMerger(newFakeCanonicalStore(), DefaultResolutionConfig())
	a := turingEntity("a", "A. Turing", "a. turing")
	b := turingEntity("b", "Alan Turing", "alan turing")
	score := m.Score(a, b)
	assert.Greater(t, score, 0.0)
}

func TestMerger_MergeIfMatch_BelowThresholdDoesNotMerge(t *testing.T) {
	store := newFakeCanonicalStore()
	m := NewMerger(store, DefaultResolutionConfig())
	a := turingEntity("a", "Alan Turing", "alan turing")
	b := turingEntity("b", "Grace Hopper", "grace hopper")
	b.ServiceName = ""

	score, merged, err := m.MergeIfMatch(context.Background(), nil, a, b)
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Less(t, score, m.config.MinConfidenceThreshold)
}

func TestMerger_MergeIfMatch_ExactMatchMergesBothEntitiesUnderOneCanonicalID(t *testing.T) {
	store := newFakeCanonicalStore()
	m := NewMerger(store, DefaultResolutionConfig())
	a := turingEntity("a", "Alan Turing", "alan turing")
	b := turingEntity("b", "Alan Turing", "alan turing")

	score, merged, err := m.MergeIfMatch(context.Background(), nil, a, b)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.GreaterOrEqual(t, score, m.config.MinConfidenceThreshold)

	ceA, err := store.CanonicalEntityForEntity(context.Background(), "a")
	require.NoError(t, err)
	ceB, err := store.CanonicalEntityForEntity(context.Background(), "b")
	require.NoError(t, err)
	require.NotNil(t, ceA)
	require.NotNil(t, ceB)
	assert.Equal(t, ceA.ID, ceB.ID, "both entities must carry the same canonical_id")
	assert.ElementsMatch(t, []string{"a", "b"}, ceA.SourceEntities)
}

func TestMerger_MergeIfMatch_UnionsIntoExistingCanonicalGroup(t *testing.T) {
	store := newFakeCanonicalStore()
	m := NewMerger(store, DefaultResolutionConfig())
	a := turingEntity("a", "Alan Turing", "alan turing")
	b := turingEntity("b", "Alan Turing", "alan turing")
	_, merged, err := m.MergeIfMatch(context.Background(), nil, a, b)
	require.NoError(t, err)
	require.True(t, merged)

	c := turingEntity("c", "Alan Turing", "alan turing")
	_, merged, err = m.MergeIfMatch(context.Background(), nil, a, c)
	require.NoError(t, err)
	require.True(t, merged)

	ceA, _ := store.CanonicalEntityForEntity(context.Background(), "a")
	ceC, _ := store.CanonicalEntityForEntity(context.Background(), "c")
	require.NotNil(t, ceA)
	require.NotNil(t, ceC)
	assert.Equal(t, ceA.ID, ceC.ID)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ceA.SourceEntities)
}

func TestNameSimilarity_IdenticalStringsScoreOne(t *testing.T) {
	assert.Equal(t, 1.0, nameSimilarity("Alan Turing", "alan turing"))
}

func TestNameSimilarity_DisjointStringsScoreZero(t *testing.T) {
	assert.Zero(t, nameSimilarity("ab", "xy"))
}
