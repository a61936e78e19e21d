package entities

import (
	"context"
	"database/sql"
	"fmt"

	"conhub-ingest/internal/logging"
	"conhub-ingest/pkg/types"
)

// GraphStore is the subset of internal/storage.GraphStore the resolver
// needs: writing entities and chunk-entity edges inside the batch
// transaction the ingestion coordinator already holds open, plus the
// canonical-entity reads/writes the merger needs to union-find matches.
type GraphStore interface {
	BeginBatch(ctx context.Context) (*sql.Tx, error)
	UpsertEntity(ctx context.Context, tx *sql.Tx, entity types.Entity) (types.Entity, error)
	UpsertChunkEntityEdge(ctx context.Context, tx *sql.Tx, edge types.ChunkEntityEdge) error
	EntitiesByType(ctx context.Context, entityType types.EntityType) ([]types.Entity, error)
	CanonicalStore
}

// Resolver extracts entities from chunks and upserts them (plus their
// chunk-entity edges) against a GraphStore, then scores each newly-touched
// entity against its same-type peers for cross-source canonicalisation
// (§4.5).
type Resolver struct {
	store  GraphStore
	merger *Merger
}

// NewResolver builds a Resolver over the given store, with the default
// canonicalisation weights.
func NewResolver(store GraphStore) *Resolver {
	return &Resolver{store: store, merger: NewMerger(store, DefaultResolutionConfig())}
}

// ResolveChunk extracts entities from chunk's content and upserts each one
// plus its edge within tx. A per-entity failure is logged and skipped
// rather than aborting the whole chunk — per spec, C5 failures are isolated
// and never fail the ingestion batch.
func (r *Resolver) ResolveChunk(ctx context.Context, tx *sql.Tx, chunk *types.Chunk) ([]types.Entity, error) {
	extracted := Extract(chunk)
	if len(extracted) == 0 {
		return nil, nil
	}

	resolved := make([]types.Entity, 0, len(extracted))
	for _, ex := range extracted {
		entity := types.Entity{
			EntityType:     ex.Type,
			CanonicalName:  ex.CanonicalName,
			NormalizedName: ex.NormalizedName,
			Language:       chunk.Language,
		}
		if err := entity.Validate(); err != nil {
			logging.Warn("skip invalid extracted entity", "chunk_id", chunk.ChunkID, "error", err)
			continue
		}

		stored, err := r.store.UpsertEntity(ctx, tx, entity)
		if err != nil {
			logging.Warn("upsert entity failed, skipping", "chunk_id", chunk.ChunkID, "entity", ex.NormalizedName, "error", err)
			continue
		}

		edge := types.ChunkEntityEdge{
			ChunkID:        chunk.ChunkID,
			EntityID:       stored.ID,
			Relation:       ex.Relation,
			Confidence:     ex.Confidence,
			ContextSnippet: ex.ContextSnippet,
			StartPosition:  ex.StartPosition,
			EndPosition:    ex.EndPosition,
		}
		if err := r.store.UpsertChunkEntityEdge(ctx, tx, edge); err != nil {
			logging.Warn("upsert chunk entity edge failed, skipping", "chunk_id", chunk.ChunkID, "entity_id", stored.ID, "error", err)
			continue
		}

		r.canonicalize(ctx, tx, stored)
		resolved = append(resolved, stored)
	}
	return resolved, nil
}

// canonicalize scores entity against its live same-type peers and unions
// the best match above threshold into a CanonicalEntity. Failures here are
// logged and swallowed: canonicalisation is best-effort bookkeeping on top
// of an already-persisted entity, never a reason to fail extraction.
func (r *Resolver) canonicalize(ctx context.Context, tx *sql.Tx, entity types.Entity) {
	// EntitiesByType reads committed rows, not tx's own pending writes: a
	// peer entity upserted earlier in this same batch transaction is
	// invisible here until the batch commits. Fine for cross-job
	// canonicalisation (§8 scenario 5 ingests the two attributions as
	// separate jobs/transactions); same-batch peers wait for the next
	// chunk's resolution pass or a later re-extraction to merge.
	peers, err := r.store.EntitiesByType(ctx, entity.EntityType)
	if err != nil {
		logging.Warn("canonicalisation peer lookup failed", "entity_id", entity.ID, "error", err)
		return
	}
	for _, peer := range peers {
		if peer.ID == entity.ID {
			continue
		}
		if _, merged, err := r.merger.MergeIfMatch(ctx, tx, entity, peer); err != nil {
			logging.Warn("canonicalisation merge failed", "entity_id", entity.ID, "peer_id", peer.ID, "error", err)
		} else if merged {
			return
		}
	}
}

// ResolveChunkInOwnBatch is a convenience wrapper for callers that don't
// already hold a transaction open (e.g. re-extraction jobs run outside the
// main ingestion batch). It opens, commits and closes its own transaction.
func (r *Resolver) ResolveChunkInOwnBatch(ctx context.Context, chunk *types.Chunk) ([]types.Entity, error) {
	tx, err := r.store.BeginBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin entity resolution batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	resolved, err := r.ResolveChunk(ctx, tx, chunk)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit entity resolution batch: %w", err)
	}
	return resolved, nil
}
