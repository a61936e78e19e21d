// Package types provides the core data structures of the ingestion-and-retrieval
// pipeline: source items, chunks, entities and their canonical forms, the edges
// that tie them together, and the ingestion job that tracks a source through the
// pipeline.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// chunkNamespace is the fixed UUID v5 namespace chunk ids are derived from.
// Using a fixed namespace (rather than a random one) is what makes chunk_id
// deterministic across re-chunking runs: the same (source_item_id, strategy,
// index) triple always hashes to the same id.
var chunkNamespace = uuid.MustParse("6f9a1e3c-6e2b-4f2e-9f1a-2c6a7e6b9a10")

// NewChunkID derives the deterministic v5 chunk id for a given source item,
// chunking strategy and ordinal index within that item.
func NewChunkID(sourceItemID string, strategy ChunkingStrategy, index int) string {
	name := fmt.Sprintf("%s-%s-%d", sourceItemID, strategy, index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// SourceKind enumerates the origin of a SourceItem.
type SourceKind string

const (
	SourceKindCodeRepo  SourceKind = "code_repo"
	SourceKindDocument  SourceKind = "document"
	SourceKindChat      SourceKind = "chat"
	SourceKindTicketing SourceKind = "ticketing"
	SourceKindWiki      SourceKind = "wiki"
	SourceKindEmail     SourceKind = "email"
	SourceKindOther     SourceKind = "other"
)

// Valid returns true if the source kind is one of the recognized values.
func (sk SourceKind) Valid() bool {
	switch sk {
	case SourceKindCodeRepo, SourceKindDocument, SourceKindChat, SourceKindTicketing, SourceKindWiki, SourceKindEmail, SourceKindOther:
		return true
	}
	return false
}

// MarshalJSON implements json.Marshaler for SourceKind.
func (sk SourceKind) MarshalJSON() ([]byte, error) { return json.Marshal(string(sk)) }

// UnmarshalJSON implements json.Unmarshaler for SourceKind.
func (sk *SourceKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*sk = SourceKind(s)
	return nil
}

// BlockType enumerates the kind of content a Chunk holds.
type BlockType string

const (
	BlockTypeCode           BlockType = "code"
	BlockTypeText           BlockType = "text"
	BlockTypeMarkdown       BlockType = "markdown"
	BlockTypeChatTurn       BlockType = "chat_turn"
	BlockTypeTicket         BlockType = "ticket"
	BlockTypeHeadingSection BlockType = "heading_section"
)

// Valid returns true if the block type is one of the recognized values.
func (bt BlockType) Valid() bool {
	switch bt {
	case BlockTypeCode, BlockTypeText, BlockTypeMarkdown, BlockTypeChatTurn, BlockTypeTicket, BlockTypeHeadingSection:
		return true
	}
	return false
}

// MarshalJSON implements json.Marshaler for BlockType.
func (bt BlockType) MarshalJSON() ([]byte, error) { return json.Marshal(string(bt)) }

// UnmarshalJSON implements json.Unmarshaler for BlockType.
func (bt *BlockType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*bt = BlockType(s)
	return nil
}

// ChunkingStrategy enumerates the strategies the chunker can apply to a
// source item. The zero value is not a valid strategy.
type ChunkingStrategy string

const (
	StrategyText     ChunkingStrategy = "text"
	StrategyMarkdown ChunkingStrategy = "markdown"
	StrategyAstCode  ChunkingStrategy = "ast_code"
	StrategyCode     ChunkingStrategy = "code"
	StrategyChat     ChunkingStrategy = "chat"
	StrategyTicket   ChunkingStrategy = "ticketing"
	StrategyHTML     ChunkingStrategy = "html"
)

// Valid returns true if the strategy is one of the recognized values.
func (s ChunkingStrategy) Valid() bool {
	switch s {
	case StrategyText, StrategyMarkdown, StrategyAstCode, StrategyCode, StrategyChat, StrategyTicket, StrategyHTML:
		return true
	}
	return false
}

// EntityType enumerates the kinds of first-class references the entity
// extractor surfaces from chunk content.
type EntityType string

const (
	EntityTypeCodeSymbol  EntityType = "code_symbol"
	EntityTypeAPIEndpoint EntityType = "api_endpoint"
	EntityTypeFile        EntityType = "file"
	EntityTypeTicket      EntityType = "ticket"
	EntityTypePullRequest EntityType = "pull_request"
	EntityTypeFeature     EntityType = "feature"
	EntityTypeService     EntityType = "service"
)

// Valid returns true if the entity type is one of the recognized values.
func (et EntityType) Valid() bool {
	switch et {
	case EntityTypeCodeSymbol, EntityTypeAPIEndpoint, EntityTypeFile, EntityTypeTicket, EntityTypePullRequest, EntityTypeFeature, EntityTypeService:
		return true
	}
	return false
}

// MarshalJSON implements json.Marshaler for EntityType.
func (et EntityType) MarshalJSON() ([]byte, error) { return json.Marshal(string(et)) }

// UnmarshalJSON implements json.Unmarshaler for EntityType.
func (et *EntityType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*et = EntityType(s)
	return nil
}

// RelationType enumerates the relation carried by a ChunkEntityEdge or a
// ChunkRelation. The two tables share the type since both describe typed
// edges in the graph store, but only a subset of values is meaningful on
// each edge kind (see ChunkEntityEdge and ChunkRelation doc comments).
type RelationType string

const (
	RelationMentions             RelationType = "mentions"
	RelationModifies             RelationType = "modifies"
	RelationReferences           RelationType = "references"
	RelationSemanticSimilar      RelationType = "semantic_similar"
	RelationStructurallyAdjacent RelationType = "structurally_adjacent"
)

// Valid returns true if the relation type is one of the recognized values.
func (rt RelationType) Valid() bool {
	switch rt {
	case RelationMentions, RelationModifies, RelationReferences, RelationSemanticSimilar, RelationStructurallyAdjacent:
		return true
	}
	return false
}

// JobStatus enumerates the lifecycle states of an IngestionJob.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid returns true if the job status is one of the recognized values.
func (js JobStatus) Valid() bool {
	switch js {
	case JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal returns true once the job has reached an append-only end state.
func (js JobStatus) Terminal() bool {
	return js == JobStatusCompleted || js == JobStatusFailed
}

// SourceItem is the opaque unit entering the pipeline. It is immutable once
// submitted by a connector.
type SourceItem struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	SourceKind  SourceKind     `json:"source_kind"`
	Content     string         `json:"content"`
	ContentType string         `json:"content_type"`
	Language    string         `json:"language,omitempty"`
	ContentHash string         `json:"content_hash"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Validate checks the source item's invariants.
func (si *SourceItem) Validate() error {
	if si.ID == "" {
		return errors.New("source item id cannot be empty")
	}
	if !si.SourceKind.Valid() {
		return fmt.Errorf("invalid source kind: %s", si.SourceKind)
	}
	if si.Content == "" {
		return errors.New("source item content cannot be empty")
	}
	if si.ContentType == "" {
		return errors.New("source item content type cannot be empty")
	}
	return nil
}

// Chunk is a bounded, semantically cohesive slice of a SourceItem produced
// by the chunker. ChunkID is a deterministic function of
// (SourceItemID, Strategy, Index) — see NewChunkID.
type Chunk struct {
	ChunkID      string           `json:"chunk_id"`
	SourceItemID string           `json:"source_item_id"`
	Index        int              `json:"index"`
	Strategy     ChunkingStrategy `json:"strategy"`
	Content      string           `json:"content"`
	TokenCount   int              `json:"token_count"`
	BlockType    BlockType        `json:"block_type"`
	Language     string           `json:"language,omitempty"`
	StartOffset  *int             `json:"start_offset,omitempty"`
	EndOffset    *int             `json:"end_offset,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
}

// Validate checks the chunk's invariants and recomputes nothing — callers
// that change SourceItemID, Strategy or Index must regenerate ChunkID
// themselves via NewChunkID to preserve determinism (I1).
func (c *Chunk) Validate() error {
	if c.ChunkID == "" {
		return errors.New("chunk id cannot be empty")
	}
	if c.SourceItemID == "" {
		return errors.New("chunk source item id cannot be empty")
	}
	if !c.Strategy.Valid() {
		return fmt.Errorf("invalid chunking strategy: %s", c.Strategy)
	}
	if !c.BlockType.Valid() {
		return fmt.Errorf("invalid block type: %s", c.BlockType)
	}
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}
	if c.TokenCount < 0 {
		return errors.New("chunk token count cannot be negative")
	}
	return nil
}

// HeadingPath returns the " > "-joined heading trail stashed in metadata by
// the Markdown strategy, or the empty string when absent.
func (c *Chunk) HeadingPath() string {
	if c.Metadata == nil {
		return ""
	}
	if hp, ok := c.Metadata["heading_path"].(string); ok {
		return hp
	}
	return ""
}

// Entity is a first-class reference surfaced in chunk content. Uniqueness
// is (EntityType, NormalizedName, ServiceName, Language) — see I3.
type Entity struct {
	ID              string     `json:"id"`
	EntityType      EntityType `json:"entity_type"`
	CanonicalName   string     `json:"canonical_name"`
	NormalizedName  string     `json:"normalized_name"`
	ServiceName     string     `json:"service_name,omitempty"`
	Language        string     `json:"language,omitempty"`
	OccurrenceCount int        `json:"occurrence_count"`
	FirstSeenAt     time.Time  `json:"first_seen_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	CanonicalID     *string    `json:"canonical_id,omitempty"`
	Retired         bool       `json:"retired"`
}

// Validate checks the entity's invariants.
func (e *Entity) Validate() error {
	if !e.EntityType.Valid() {
		return fmt.Errorf("invalid entity type: %s", e.EntityType)
	}
	if e.NormalizedName == "" {
		return errors.New("entity normalized name cannot be empty")
	}
	if e.OccurrenceCount < 0 {
		return errors.New("entity occurrence count cannot be negative")
	}
	return nil
}

// IdentityKey returns the tuple that must be unique across live entities.
func (e *Entity) IdentityKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", e.EntityType, e.NormalizedName, e.ServiceName, e.Language)
}

// CanonicalEntity is the union-find representative of a set of Entities
// judged to refer to the same underlying thing.
type CanonicalEntity struct {
	ID               string         `json:"id"`
	MergedProperties map[string]any `json:"merged_properties,omitempty"`
	SourceEntities   []string       `json:"source_entities"`
	ConfidenceScore  float64        `json:"confidence_score"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Validate checks the canonical entity's invariants.
func (ce *CanonicalEntity) Validate() error {
	if len(ce.SourceEntities) == 0 {
		return errors.New("canonical entity must cover at least one source entity")
	}
	if ce.ConfidenceScore < 0 || ce.ConfidenceScore > 1 {
		return errors.New("canonical entity confidence score must be between 0 and 1")
	}
	return nil
}

// ChunkEntityEdge links a Chunk to an Entity it mentions or otherwise
// relates to. Uniqueness is (ChunkID, EntityID, Relation); re-extraction
// raises Confidence monotonically via max, never lowers it.
type ChunkEntityEdge struct {
	ChunkID        string       `json:"chunk_id"`
	EntityID       string       `json:"entity_id"`
	Relation       RelationType `json:"relation_type"`
	Confidence     float64      `json:"confidence"`
	ContextSnippet string       `json:"context_snippet,omitempty"`
	StartPosition  int          `json:"start_position"`
	EndPosition    int          `json:"end_position"`
}

// Validate checks the edge's invariants.
func (e *ChunkEntityEdge) Validate() error {
	if e.ChunkID == "" || e.EntityID == "" {
		return errors.New("chunk entity edge requires both chunk id and entity id")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return errors.New("chunk entity edge confidence must be between 0 and 1")
	}
	return nil
}

// ChunkRelation links two chunks directly, independent of any shared
// entity: semantic similarity from the vector store, structural adjacency
// from the chunker, or an explicit reference detected during extraction.
type ChunkRelation struct {
	FromChunk string       `json:"from_chunk"`
	ToChunk   string       `json:"to_chunk"`
	Relation  RelationType `json:"relation_type"`
	Weight    float64      `json:"weight"`
}

// Validate checks the relation's invariants.
func (r *ChunkRelation) Validate() error {
	if r.FromChunk == "" || r.ToChunk == "" {
		return errors.New("chunk relation requires both endpoints")
	}
	switch r.Relation {
	case RelationSemanticSimilar, RelationStructurallyAdjacent, RelationReferences:
	default:
		return fmt.Errorf("invalid chunk relation type: %s", r.Relation)
	}
	return nil
}

// VectorPayload is the structured metadata attached to a vector record,
// used both for display at query time and as the universe the typed
// filter builder in internal/storage composes predicates over.
type VectorPayload struct {
	Repository    string `json:"repository,omitempty"`
	Branch        string `json:"branch,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	ChunkNumber   int    `json:"chunk_number"`
	URL           string `json:"url,omitempty"`
	ConnectorType string `json:"connector_type,omitempty"`
	SourceKind    string `json:"source_kind,omitempty"`
	Language      string `json:"language,omitempty"`
	HeadingPath   string `json:"heading_path,omitempty"`
}

// VectorRecord is the unit stored in the vector index, keyed by ChunkID.
type VectorRecord struct {
	ChunkID string        `json:"chunk_id"`
	Vector  []float32     `json:"vector"`
	Payload VectorPayload `json:"payload"`
}

// IngestionJob tracks a single source through Pending -> InProgress ->
// {Completed|Failed}. Terminal states are append-only.
type IngestionJob struct {
	JobID       string     `json:"job_id"`
	SourceRef   string     `json:"source_ref"`
	Status      JobStatus  `json:"status"`
	Progress    float64    `json:"progress"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewIngestionJob creates a job in the Pending state.
func NewIngestionJob(sourceRef string) *IngestionJob {
	return &IngestionJob{
		JobID:     uuid.New().String(),
		SourceRef: sourceRef,
		Status:    JobStatusPending,
		Progress:  0,
		StartedAt: time.Now().UTC(),
	}
}

// Transition moves the job to a new status, enforcing the state machine's
// legal edges and the append-only nature of terminal states.
func (j *IngestionJob) Transition(to JobStatus) error {
	if j.Status.Terminal() {
		return fmt.Errorf("ingestion job %s is terminal (%s), cannot transition to %s", j.JobID, j.Status, to)
	}
	switch {
	case j.Status == JobStatusPending && to == JobStatusInProgress:
	case j.Status == JobStatusInProgress && (to == JobStatusCompleted || to == JobStatusFailed):
	default:
		return fmt.Errorf("illegal ingestion job transition %s -> %s", j.Status, to)
	}
	j.Status = to
	if to.Terminal() {
		now := time.Now().UTC()
		j.CompletedAt = &now
	}
	return nil
}

// SearchResult pairs a chunk id with its fused/reranked score and the
// degradation-aware payload the hybrid retriever surfaces to callers.
type SearchResult struct {
	ChunkID string        `json:"chunk_id"`
	Score   float64       `json:"score"`
	Payload VectorPayload `json:"payload"`
	Source  string        `json:"source"`
	Snippet string        `json:"snippet"`
}

// SearchResponse is the full envelope returned by the hybrid retriever.
type SearchResponse struct {
	Results          []SearchResult `json:"results"`
	DegradationFlags []string       `json:"degradation_flags"`
	LatencyMS        int64          `json:"latency_ms"`
}
