package entities

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"conhub-ingest/pkg/types"
)

// CanonicalStore is the subset of internal/storage.GraphStore the merger
// needs beyond GraphStore: reading and writing canonical entity membership.
type CanonicalStore interface {
	UpsertCanonicalEntity(ctx context.Context, tx *sql.Tx, ce types.CanonicalEntity) error
	CanonicalEntityForEntity(ctx context.Context, entityID string) (*types.CanonicalEntity, error)
}

// ResolutionConfig weights the signals the Merger combines into a single
// confidence score. Adapted from the cross-source person-identity scoring
// model (email/name/username/graph-connection weights) to the fields this
// entity model actually carries: exact normalized-name match stands in for
// "email exact", canonical-name string similarity for "fuzzy full name",
// and shared service/language context for "shared-connection graph
// similarity" (no chat/channel graph exists on these entities).
type ResolutionConfig struct {
	ExactNameWeight        float64
	NameSimilarityWeight   float64
	ContextWeight          float64
	MinConfidenceThreshold float64
}

// DefaultResolutionConfig mirrors the original weighting's relative
// proportions (0.9 exact-identifier match outranking 0.5 fuzzy name and 0.7
// context match) scaled to this model's three signals.
func DefaultResolutionConfig() ResolutionConfig {
	return ResolutionConfig{
		ExactNameWeight:        0.9,
		NameSimilarityWeight:   0.5,
		ContextWeight:          0.7,
		MinConfidenceThreshold: 0.75,
	}
}

// Merger merges Entity rows judged to be the same underlying thing into a
// CanonicalEntity, forming a union-find forest over entity ids.
type Merger struct {
	store  CanonicalStore
	config ResolutionConfig
}

// NewMerger builds a Merger with the given store and config.
func NewMerger(store CanonicalStore, config ResolutionConfig) *Merger {
	return &Merger{store: store, config: config}
}

// Score computes the weighted confidence that a and b refer to the same
// underlying thing. Entities of different EntityType never match.
func (m *Merger) Score(a, b types.Entity) float64 {
	if a.EntityType != b.EntityType {
		return 0
	}

	var totalScore, totalWeight float64

	if a.NormalizedName == b.NormalizedName {
		totalScore += 1.0 * m.config.ExactNameWeight
	}
	totalWeight += m.config.ExactNameWeight

	totalScore += nameSimilarity(a.CanonicalName, b.CanonicalName) * m.config.NameSimilarityWeight
	totalWeight += m.config.NameSimilarityWeight

	totalScore += contextScore(a, b) * m.config.ContextWeight
	totalWeight += m.config.ContextWeight

	if totalWeight == 0 {
		return 0
	}
	return totalScore / totalWeight
}

// MergeIfMatch scores a against b and, if the score clears
// MinConfidenceThreshold, unions them under a CanonicalEntity, fanning the
// canonical id back out to any prior members of either entity's existing
// canonical group. Returns the resulting score and whether a merge happened.
func (m *Merger) MergeIfMatch(ctx context.Context, tx *sql.Tx, a, b types.Entity) (float64, bool, error) {
	score := m.Score(a, b)
	if score < m.config.MinConfidenceThreshold {
		return score, false, nil
	}

	existingA, err := m.store.CanonicalEntityForEntity(ctx, a.ID)
	if err != nil {
		return score, false, fmt.Errorf("lookup canonical for %s: %w", a.ID, err)
	}
	existingB, err := m.store.CanonicalEntityForEntity(ctx, b.ID)
	if err != nil {
		return score, false, fmt.Errorf("lookup canonical for %s: %w", b.ID, err)
	}

	members := map[string]struct{}{a.ID: {}, b.ID: {}}
	canonicalID := ""
	existingConfidence := score

	switch {
	case existingA != nil && existingB != nil:
		canonicalID = existingA.ID
		for _, id := range existingA.SourceEntities {
			members[id] = struct{}{}
		}
		for _, id := range existingB.SourceEntities {
			members[id] = struct{}{}
		}
		if existingA.ConfidenceScore > existingConfidence {
			existingConfidence = existingA.ConfidenceScore
		}
	case existingA != nil:
		canonicalID = existingA.ID
		for _, id := range existingA.SourceEntities {
			members[id] = struct{}{}
		}
		if existingA.ConfidenceScore > existingConfidence {
			existingConfidence = existingA.ConfidenceScore
		}
	case existingB != nil:
		canonicalID = existingB.ID
		for _, id := range existingB.SourceEntities {
			members[id] = struct{}{}
		}
		if existingB.ConfidenceScore > existingConfidence {
			existingConfidence = existingB.ConfidenceScore
		}
	default:
		canonicalID = uuid.New().String()
	}

	sourceEntities := make([]string, 0, len(members))
	for id := range members {
		sourceEntities = append(sourceEntities, id)
	}

	ce := types.CanonicalEntity{
		ID:              canonicalID,
		SourceEntities:  sourceEntities,
		ConfidenceScore: existingConfidence,
	}
	if err := ce.Validate(); err != nil {
		return score, false, fmt.Errorf("invalid canonical entity merge: %w", err)
	}
	if err := m.store.UpsertCanonicalEntity(ctx, tx, ce); err != nil {
		return score, false, fmt.Errorf("upsert canonical entity: %w", err)
	}
	return score, true, nil
}

// nameSimilarity returns a Dice/Sørensen bigram coefficient in [0, 1]; 1
// means identical, 0 means no shared bigrams (or either string too short to
// have one).
func nameSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	bigramsA := bigramSet(a)
	bigramsB := bigramSet(b)
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		return 0
	}

	shared := 0
	for bg, count := range bigramsA {
		if other, ok := bigramsB[bg]; ok {
			if count < other {
				shared += count
			} else {
				shared += other
			}
		}
	}
	return 2 * float64(shared) / float64(totalCount(bigramsA)+totalCount(bigramsB))
}

func bigramSet(s string) map[string]int {
	runes := []rune(s)
	out := make(map[string]int)
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])]++
	}
	return out
}

func totalCount(m map[string]int) int {
	total := 0
	for _, c := range m {
		total += c
	}
	return total
}

// contextScore rewards entities sharing a service or language disambiguator
// as a cheap stand-in for the original's shared-connection graph
// similarity: entities seen in the same service/language context are more
// likely the same underlying thing.
func contextScore(a, b types.Entity) float64 {
	score := 0.0
	if a.ServiceName != "" && a.ServiceName == b.ServiceName {
		score += 0.5
	}
	if a.Language != "" && a.Language == b.Language {
		score += 0.5
	}
	return score
}
