// Package ingestion implements C8, the coordinator that drives a
// SourceItem through chunking, cost-routing, embedding and dual-index
// writes under the Pending -> InProgress -> {Completed|Failed} state
// machine (§4.8).
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"conhub-ingest/internal/chunking"
	"conhub-ingest/internal/costpolicy"
	"conhub-ingest/internal/embeddings"
	"conhub-ingest/internal/entities"
	"conhub-ingest/internal/errors"
	"conhub-ingest/internal/logging"
	"conhub-ingest/internal/ratelimit"
	"conhub-ingest/internal/storage"
	"conhub-ingest/pkg/types"
)

// Config tunes the coordinator's batching and failure-tolerance behavior.
type Config struct {
	BatchSize              int
	EmbeddingMaxBatch      int
	LinkSimilarThreshold   float64
	LinkSimilarTopK        int
	MaxConsecutiveFailures int
	BatchConcurrency       int
}

// DefaultConfig returns sane defaults grounded on the embedding service's
// typical batch ceiling and the spec's "default 3 consecutive batches"
// hard-failure threshold.
func DefaultConfig() Config {
	return Config{
		BatchSize:              50,
		EmbeddingMaxBatch:      96,
		LinkSimilarThreshold:   0.85,
		LinkSimilarTopK:        10,
		MaxConsecutiveFailures: 3,
		BatchConcurrency:       4,
	}
}

// Coordinator orchestrates C3 (chunking), C4 (cost policy), C10
// (embeddings), C6/C7 (dual index) and C5 (entity resolution) for a single
// SourceItem, tracking progress on an IngestionJob.
type Coordinator struct {
	cfg Config

	chunker     *chunking.Engine
	costPolicy  *costpolicy.Manager
	embeddings  embeddings.Client
	vectorStore storage.VectorStore
	graphStore  storage.GraphStore
	resolver    *entities.Resolver
	limiter     *ratelimit.Limiter
	logger      logging.Logger

	mu   sync.RWMutex
	jobs map[string]*types.IngestionJob
}

// New builds a Coordinator. logger may be nil, in which case the package
// logger is used.
func New(cfg Config, chunker *chunking.Engine, costPolicy *costpolicy.Manager, embedClient embeddings.Client,
	vectorStore storage.VectorStore, graphStore storage.GraphStore, resolver *entities.Resolver,
	limiter *ratelimit.Limiter, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.WithComponent("ingestion_coordinator")
	}
	return &Coordinator{
		cfg:         cfg,
		chunker:     chunker,
		costPolicy:  costPolicy,
		embeddings:  embedClient,
		vectorStore: vectorStore,
		graphStore:  graphStore,
		resolver:    resolver,
		limiter:     limiter,
		logger:      logger,
		jobs:        make(map[string]*types.IngestionJob),
	}
}

// Submit validates item, creates a Pending job, and dispatches ingestion on
// its own goroutine (§5 "each ingestion job runs on its own goroutine").
// The returned job is already registered and retrievable via Job.
func (c *Coordinator) Submit(ctx context.Context, item *types.SourceItem, profileName string) (*types.IngestionJob, error) {
	if err := item.Validate(); err != nil {
		return nil, errors.NewValidationError("source_item", err.Error(), nil)
	}

	job := types.NewIngestionJob(item.ID)
	c.mu.Lock()
	c.jobs[job.JobID] = job
	c.mu.Unlock()

	// Ingestion outlives the HTTP request that triggered it; it gets its
	// own background context rather than inheriting the caller's deadline.
	go c.run(context.Background(), job, item, profileName)

	return job, nil
}

// Job retrieves a previously submitted job by id.
func (c *Coordinator) Job(jobID string) (*types.IngestionJob, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	j, ok := c.jobs[jobID]
	return j, ok
}

func (c *Coordinator) setFailed(job *types.IngestionJob, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job.Error = reason
	_ = job.Transition(types.JobStatusFailed)
}

func (c *Coordinator) setProgress(job *types.IngestionJob, progress float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job.Progress = progress
}

func (c *Coordinator) run(ctx context.Context, job *types.IngestionJob, item *types.SourceItem, profileName string) {
	c.mu.Lock()
	if err := job.Transition(types.JobStatusInProgress); err != nil {
		c.mu.Unlock()
		c.logger.Error("illegal job transition", "job_id", job.JobID, "error", err)
		return
	}
	c.mu.Unlock()

	chunks, err := c.chunker.Chunk(item, profileName)
	if err != nil {
		c.setFailed(job, fmt.Sprintf("chunking failed: %v", err))
		return
	}
	if len(chunks) == 0 {
		c.setProgress(job, 1)
		c.mu.Lock()
		_ = job.Transition(types.JobStatusCompleted)
		c.mu.Unlock()
		return
	}

	batches := batchChunks(chunks, c.cfg.BatchSize)
	c.runBatches(ctx, job, item, batches)
}

// runBatches fans batches out across a per-job semaphore-bounded
// concurrency cap (§5: "chunk batches within a job are processed
// concurrently up to a per-job concurrency cap"). It is a structured
// concurrency scope: every batch goroutine is joined (wg.Wait) before
// runBatches returns, and crossing the consecutive-failure threshold
// cancels batchCtx so in-flight siblings abandon their external calls
// instead of racing to finish work for a job already decided Failed.
func (c *Coordinator) runBatches(ctx context.Context, job *types.IngestionJob, item *types.SourceItem, batches [][]types.Chunk) {
	concurrency := c.cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(batches) {
		concurrency = len(batches)
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu                  sync.Mutex
		consecutiveFailures int
		completed           int
		failed              bool
		failureReason       string
	)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, batch := range batches {
		mu.Lock()
		stop := failed
		mu.Unlock()
		if stop {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, batch []types.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.awaitRateLimit(batchCtx, string(item.SourceKind), item.ID); err != nil {
				c.logger.Warn("rate limiter wait aborted", "job_id", job.JobID, "error", err)
			}

			batchErr := c.processBatch(batchCtx, item, batch)

			mu.Lock()
			defer mu.Unlock()
			if failed {
				return
			}
			if batchErr != nil {
				consecutiveFailures++
				c.logger.Error("ingestion batch failed", "job_id", job.JobID, "batch", i, "error", batchErr)
				if consecutiveFailures >= c.cfg.MaxConsecutiveFailures {
					failed = true
					failureReason = fmt.Sprintf("ingestion stopped after %d consecutive failed batches: %v", consecutiveFailures, batchErr)
					cancel()
				}
				return
			}
			consecutiveFailures = 0
			completed++
			c.setProgress(job, float64(completed)/float64(len(batches)))
		}(i, batch)
	}
	wg.Wait()

	if failed {
		c.setFailed(job, failureReason)
		return
	}

	c.mu.Lock()
	_ = job.Transition(types.JobStatusCompleted)
	c.mu.Unlock()
}

// awaitRateLimit consults C1 before the batch's external-facing work (the
// embedding and store round-trips this batch is about to make). A
// RateLimitExceeded or InBackoff pauses and retries once the window
// reports it will have cleared, per §4.8's "pauses the batch and
// reschedules after available_in".
func (c *Coordinator) awaitRateLimit(ctx context.Context, sourceType, sourceID string) error {
	if c.limiter == nil {
		return nil
	}
	for {
		err := c.limiter.Check(sourceType, sourceID)
		if err == nil {
			return nil
		}
		var wait time.Duration
		switch e := err.(type) {
		case *ratelimit.RateLimitExceeded:
			wait = e.AvailableIn
		case *ratelimit.InBackoff:
			wait = e.Remaining
		default:
			return err
		}
		if wait <= 0 {
			wait = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// processBatch implements §4.8 steps 1-6 for a single batch of chunks
// belonging to item.
func (c *Coordinator) processBatch(ctx context.Context, item *types.SourceItem, chunks []types.Chunk) error {
	routed := make([]routedChunk, 0, len(chunks))
	var vectorCount, graphCount, droppedCount int
	for _, chunk := range chunks {
		targets := c.costPolicy.Evaluate(item.SourceKind, item.ContentType, chunk.Language, chunk.TokenCount)
		if !targets.EnableVector && !targets.EnableGraph {
			droppedCount++
			continue
		}
		if targets.EnableVector {
			vectorCount++
		}
		if targets.EnableGraph {
			graphCount++
		}
		routed = append(routed, routedChunk{chunk: chunk, targets: targets})
	}
	c.logger.Info("batch routed", "source_item_id", item.ID, "vector", vectorCount, "graph", graphCount, "dropped", droppedCount)
	if len(routed) == 0 {
		return nil
	}

	vectors, err := c.embedVectorBound(ctx, routed)
	if err != nil {
		return fmt.Errorf("embed vector-bound chunks: %w", err)
	}

	written, err := c.writeDualIndex(ctx, item, routed, vectors)
	if err != nil {
		return fmt.Errorf("dual index write: %w", err)
	}

	c.resolveEntities(ctx, written)
	c.linkSimilarChunks(ctx, written, vectors)

	return nil
}

type routedChunk struct {
	chunk   types.Chunk
	targets costpolicy.Targets
}

// embedVectorBound requests embeddings for every vector-bound chunk in
// micro-batches sized to the configured maximum, keyed by chunk id so
// callers can look a vector up regardless of batch boundaries.
func (c *Coordinator) embedVectorBound(ctx context.Context, routed []routedChunk) (map[string][]float32, error) {
	var texts []string
	var ids []string
	for _, rc := range routed {
		if !rc.targets.EnableVector {
			continue
		}
		texts = append(texts, rc.chunk.Content)
		ids = append(ids, rc.chunk.ChunkID)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	maxBatch := c.cfg.EmbeddingMaxBatch
	if maxBatch <= 0 {
		maxBatch = len(texts)
	}

	vectors := make(map[string][]float32, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		embedded, err := c.embeddings.Embed(ctx, texts[start:end], true)
		if err != nil {
			return nil, err
		}
		if len(embedded) != end-start {
			return nil, fmt.Errorf("embedding client returned %d vectors for %d inputs", len(embedded), end-start)
		}
		for i, v := range embedded {
			vectors[ids[start+i]] = v
		}
	}
	return vectors, nil
}

// writeDualIndex writes graph-bound chunks to C7 inside the batch
// transaction, then vector-bound chunks to C6, and commits the graph batch
// only after the vector upsert succeeds; the two writes run one after the
// other, not concurrently. Both sides must succeed for a
// chunk to count as ingested: a vector failure rolls the graph batch back,
// and a failed graph commit issues compensating vector deletes so I2 holds.
func (c *Coordinator) writeDualIndex(ctx context.Context, item *types.SourceItem, routed []routedChunk, vectors map[string][]float32) ([]types.Chunk, error) {
	tx, err := c.graphStore.BeginBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin graph batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var graphWritten []string
	for _, rc := range routed {
		if !rc.targets.EnableGraph {
			continue
		}
		hash := sha256.Sum256([]byte(rc.chunk.Content))
		if err := c.graphStore.UpsertChunkRow(ctx, tx, rc.chunk, hex.EncodeToString(hash[:])); err != nil {
			return nil, fmt.Errorf("upsert chunk row %s: %w", rc.chunk.ChunkID, err)
		}
		graphWritten = append(graphWritten, rc.chunk.ChunkID)
	}

	var vectorRecords []types.VectorRecord
	for _, rc := range routed {
		if !rc.targets.EnableVector {
			continue
		}
		vector, ok := vectors[rc.chunk.ChunkID]
		if !ok {
			continue
		}
		repository, _ := rc.chunk.Metadata["repository"].(string)
		vectorRecords = append(vectorRecords, types.VectorRecord{
			ChunkID: rc.chunk.ChunkID,
			Vector:  vector,
			Payload: types.VectorPayload{
				Repository:  repository,
				ContentType: item.ContentType,
				ChunkNumber: rc.chunk.Index,
				SourceKind:  string(item.SourceKind),
				Language:    rc.chunk.Language,
				HeadingPath: rc.chunk.HeadingPath(),
			},
		})
	}

	var vectorErr error
	if len(vectorRecords) > 0 {
		vectorErr = c.vectorStore.Upsert(ctx, vectorRecords)
	}

	if vectorErr != nil {
		// Graph side hasn't committed yet; rolling back the deferred tx.Rollback
		// above is enough to undo it, so there's nothing to compensate.
		return nil, fmt.Errorf("vector upsert failed, graph batch rolled back: %w", vectorErr)
	}

	if err := tx.Commit(); err != nil {
		// The vector side already committed; delete it to keep I2 (every
		// vector record has a matching graph row) rather than leave an
		// orphaned vector with no chunk row behind it.
		for _, rec := range vectorRecords {
			if delErr := c.vectorStore.DeleteByID(ctx, rec.ChunkID); delErr != nil {
				c.logger.Error("compensating vector delete failed", "chunk_id", rec.ChunkID, "error", delErr)
			}
		}
		return nil, fmt.Errorf("commit graph batch, compensating deletes issued: %w", err)
	}

	writtenIDs := make(map[string]bool, len(graphWritten)+len(vectorRecords))
	for _, id := range graphWritten {
		writtenIDs[id] = true
	}
	for _, rec := range vectorRecords {
		writtenIDs[rec.ChunkID] = true
	}

	written := make([]types.Chunk, 0, len(writtenIDs))
	for _, rc := range routed {
		if writtenIDs[rc.chunk.ChunkID] {
			written = append(written, rc.chunk)
		}
	}
	return written, nil
}

// resolveEntities runs C5 over the batch's ingested chunks. Each chunk's
// extraction runs in its own transaction so one chunk's failure can't
// roll back another's entities, and no failure here fails the batch.
func (c *Coordinator) resolveEntities(ctx context.Context, chunks []types.Chunk) {
	if c.resolver == nil {
		return
	}
	for i := range chunks {
		if _, err := c.resolver.ResolveChunkInOwnBatch(ctx, &chunks[i]); err != nil {
			c.logger.Warn("entity resolution failed, skipping chunk", "chunk_id", chunks[i].ChunkID, "error", err)
		}
	}
}

// linkSimilarChunks calls C6 to find each newly-written chunk's nearest
// neighbours and records the ones above the configured similarity
// threshold as semantic_similar edges in C7.
func (c *Coordinator) linkSimilarChunks(ctx context.Context, chunks []types.Chunk, vectors map[string][]float32) {
	if c.cfg.LinkSimilarTopK <= 0 {
		return
	}
	for _, chunk := range chunks {
		vector, ok := vectors[chunk.ChunkID]
		if !ok {
			continue
		}
		neighbours, err := c.vectorStore.Search(ctx, vector, c.cfg.LinkSimilarTopK+1, nil)
		if err != nil {
			c.logger.Warn("neighbour search failed, skipping link_similar_chunks", "chunk_id", chunk.ChunkID, "error", err)
			continue
		}
		filtered := make([]storage.ScoredRecord, 0, len(neighbours))
		for _, n := range neighbours {
			if n.Record.ChunkID == chunk.ChunkID {
				continue
			}
			filtered = append(filtered, n)
		}
		if err := c.graphStore.LinkSimilarChunks(ctx, chunk.ChunkID, filtered, c.cfg.LinkSimilarThreshold); err != nil {
			c.logger.Warn("link_similar_chunks failed", "chunk_id", chunk.ChunkID, "error", err)
		}
	}
}

func batchChunks(chunks []types.Chunk, size int) [][]types.Chunk {
	if size <= 0 {
		size = len(chunks)
	}
	var out [][]types.Chunk
	for i := 0; i < len(chunks); i += size {
		end := i + size
		if end > len(chunks) {
			end = len(chunks)
		}
		out = append(out, chunks[i:end])
	}
	return out
}
