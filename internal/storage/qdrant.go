// Package storage holds the adapters C6 (vector store) and C7 (graph store)
// are built from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"conhub-ingest/internal/config"
	"conhub-ingest/internal/logging"
	"conhub-ingest/pkg/types"

	"github.com/qdrant/go-client/qdrant"
)

const (
	connectionStatusError   = "error"
	connectionStatusOK      = "connected"
	defaultQdrantCollection = "chunks"
)

// VectorStore abstracts the remote vector store. Collection lifecycle is
// idempotent (EnsureCollection); writes are batch-atomic; deletes support
// both id and filter forms.
type VectorStore interface {
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, records []types.VectorRecord) error
	Search(ctx context.Context, vector []float32, k int, filter *Filter) ([]ScoredRecord, error)
	DeleteByID(ctx context.Context, chunkID string) error
	DeleteByFilter(ctx context.Context, filter *Filter) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// ScoredRecord is a vector search hit: the stored record plus its
// similarity score, reported as 1 - cosine distance.
type ScoredRecord struct {
	Record types.VectorRecord
	Score  float64
}

// StorageMetrics tracks per-operation counters and latency for a store
// adapter. Grounded on the teacher's metrics-on-every-adapter convention.
type StorageMetrics struct {
	OperationCounts  map[string]int64
	AverageLatency   map[string]float64
	ErrorCounts      map[string]int64
	ConnectionStatus string
}

// QdrantStore implements VectorStore against a Qdrant collection.
type QdrantStore struct {
	client         *qdrant.Client
	config         *config.QdrantConfig
	metrics        *StorageMetrics
	collectionName string
}

// NewQdrantStore constructs a QdrantStore; call EnsureCollection before use.
func NewQdrantStore(cfg *config.QdrantConfig) *QdrantStore {
	collectionName := cfg.Collection
	if collectionName == "" {
		collectionName = defaultQdrantCollection
	}
	return &QdrantStore{
		config:         cfg,
		collectionName: collectionName,
		metrics: &StorageMetrics{
			OperationCounts:  make(map[string]int64),
			AverageLatency:   make(map[string]float64),
			ErrorCounts:      make(map[string]int64),
			ConnectionStatus: "unknown",
		},
	}
}

// EnsureCollection connects (on first call) and idempotently creates the
// collection with the given vector dimension and cosine distance metric.
// A dimension mismatch against an already-existing collection is a Fatal
// configuration error raised at startup, per the embedding numerics design
// note.
func (qs *QdrantStore) EnsureCollection(ctx context.Context, dim int) error {
	start := time.Now()
	defer qs.updateMetrics("ensure_collection", start)

	if qs.client == nil {
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:                   qs.config.Host,
			Port:                   qs.config.Port,
			APIKey:                 qs.config.APIKey,
			UseTLS:                 qs.config.UseTLS,
			SkipCompatibilityCheck: true,
		})
		if err != nil {
			qs.metrics.ConnectionStatus = connectionStatusError
			return fmt.Errorf("create qdrant client: %w", err)
		}
		qs.client = client
	}

	collections, err := qs.client.ListCollections(ctx)
	if err != nil {
		qs.metrics.ConnectionStatus = connectionStatusError
		return fmt.Errorf("list collections: %w", err)
	}

	for _, name := range collections {
		if name == qs.collectionName {
			info, infoErr := qs.client.GetCollectionInfo(ctx, qs.collectionName)
			if infoErr == nil && info != nil && info.GetConfig() != nil {
				existingDim := collectionVectorSize(info)
				if existingDim != 0 && existingDim != dim {
					return fmt.Errorf("%w: collection %s has dimension %d, embedding client reports %d",
						errDimensionMismatch, qs.collectionName, existingDim, dim)
				}
			}
			qs.metrics.ConnectionStatus = connectionStatusOK
			return nil
		}
	}

	err = qs.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: qs.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim), //nolint:gosec // dim is always a small positive embedding size
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		qs.metrics.ConnectionStatus = connectionStatusError
		return fmt.Errorf("create collection %s: %w", qs.collectionName, err)
	}
	logging.Info("created vector collection", "collection", qs.collectionName, "dim", dim)
	qs.metrics.ConnectionStatus = connectionStatusOK
	return nil
}

var errDimensionMismatch = errors.New("vector dimension mismatch")

func collectionVectorSize(info *qdrant.CollectionInfo) int {
	params := info.GetConfig().GetParams()
	if params == nil {
		return 0
	}
	vectors := params.GetVectorsConfig().GetParams()
	if vectors == nil {
		return 0
	}
	return int(vectors.GetSize()) //nolint:gosec // collection sizes are small
}

// Upsert writes a batch of vector records atomically. Qdrant's Upsert call
// is itself a single RPC over the whole batch, so "atomic per batch" holds
// as long as callers pass one job's chunk batch at a time (see C8 step 3).
func (qs *QdrantStore) Upsert(ctx context.Context, records []types.VectorRecord) error {
	start := time.Now()
	defer qs.updateMetrics("upsert", start)

	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("record %s: %w", r.ChunkID, errEmptyVector)
		}
		points = append(points, recordToPoint(r))
	}

	_, err := qs.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: qs.collectionName,
		Points:         points,
	})
	if err != nil {
		qs.metrics.ErrorCounts["upsert"]++
		return fmt.Errorf("upsert to qdrant: %w", err)
	}
	return nil
}

var errEmptyVector = errors.New("vector record must carry a non-empty vector")

// Search performs a similarity search constrained by an optional typed
// filter, returning up to k scored records ordered by descending score.
func (qs *QdrantStore) Search(ctx context.Context, vector []float32, k int, filter *Filter) ([]ScoredRecord, error) {
	start := time.Now()
	defer qs.updateMetrics("search", start)

	if len(vector) == 0 {
		return nil, errEmptyVector
	}
	if k <= 0 {
		k = 1
	}

	limit := uint64(k) //nolint:gosec // k is bounded by caller (N1/N2 constants)
	resp, err := qs.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: qs.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filter.toQdrant(),
	})
	if err != nil {
		qs.metrics.ErrorCounts["search"]++
		return nil, fmt.Errorf("search in qdrant: %w", err)
	}

	out := make([]ScoredRecord, 0, len(resp))
	for _, point := range resp {
		record, convErr := scoredPointToRecord(point)
		if convErr != nil {
			logging.Error("failed to convert scored point", "error", convErr, "point_id", point.GetId())
			continue
		}
		out = append(out, ScoredRecord{Record: record, Score: float64(point.GetScore())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// DeleteByID removes a single record by chunk id.
func (qs *QdrantStore) DeleteByID(ctx context.Context, chunkID string) error {
	start := time.Now()
	defer qs.updateMetrics("delete_by_id", start)

	_, err := qs.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: qs.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{stringToPointID(chunkID)}},
			},
		},
	})
	if err != nil {
		qs.metrics.ErrorCounts["delete_by_id"]++
		return fmt.Errorf("delete chunk %s from qdrant: %w", chunkID, err)
	}
	return nil
}

// DeleteByFilter removes every record matching the typed filter.
func (qs *QdrantStore) DeleteByFilter(ctx context.Context, filter *Filter) error {
	start := time.Now()
	defer qs.updateMetrics("delete_by_filter", start)

	qf := filter.toQdrant()
	if qf == nil {
		return errFilterRequired
	}

	_, err := qs.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: qs.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: qf},
		},
	})
	if err != nil {
		qs.metrics.ErrorCounts["delete_by_filter"]++
		return fmt.Errorf("delete by filter from qdrant: %w", err)
	}
	return nil
}

var errFilterRequired = errors.New("delete_by_filter requires a non-empty filter to avoid an accidental full-collection wipe")

// HealthCheck verifies the collection is reachable.
func (qs *QdrantStore) HealthCheck(ctx context.Context) error {
	_, err := qs.client.ListCollections(ctx)
	if err != nil {
		qs.metrics.ConnectionStatus = connectionStatusError
		return fmt.Errorf("qdrant health check: %w", err)
	}
	qs.metrics.ConnectionStatus = connectionStatusOK
	return nil
}

// Close releases the underlying client connection.
func (qs *QdrantStore) Close() error {
	if qs.client == nil {
		return nil
	}
	return qs.client.Close()
}

func (qs *QdrantStore) updateMetrics(op string, start time.Time) {
	elapsed := time.Since(start).Seconds() * 1000
	qs.metrics.OperationCounts[op]++
	prevAvg := qs.metrics.AverageLatency[op]
	count := float64(qs.metrics.OperationCounts[op])
	qs.metrics.AverageLatency[op] = prevAvg + (elapsed-prevAvg)/count
}

func stringToPointID(id string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
}

func recordToPoint(r types.VectorRecord) *qdrant.PointStruct {
	payload := map[string]*qdrant.Value{
		"chunk_number":   qdrant.NewValueInt(int64(r.Payload.ChunkNumber)),
		"repository":     qdrant.NewValueString(r.Payload.Repository),
		"branch":         qdrant.NewValueString(r.Payload.Branch),
		"content_type":   qdrant.NewValueString(r.Payload.ContentType),
		"url":            qdrant.NewValueString(r.Payload.URL),
		"connector_type": qdrant.NewValueString(r.Payload.ConnectorType),
		"source_kind":    qdrant.NewValueString(r.Payload.SourceKind),
		"language":       qdrant.NewValueString(r.Payload.Language),
		"heading_path":   qdrant.NewValueString(r.Payload.HeadingPath),
	}
	return &qdrant.PointStruct{
		Id:      stringToPointID(r.ChunkID),
		Vectors: qdrant.NewVectors(r.Vector...),
		Payload: payload,
	}
}

func scoredPointToRecord(point *qdrant.ScoredPoint) (types.VectorRecord, error) {
	id := point.GetId().GetUuid()
	if id == "" {
		return types.VectorRecord{}, fmt.Errorf("scored point missing uuid id")
	}
	payload := point.GetPayload()
	vec := make([]float32, 0)
	if v := point.GetVectors(); v != nil {
		vec = v.GetVector().GetData()
	}
	return types.VectorRecord{
		ChunkID: id,
		Vector:  vec,
		Payload: types.VectorPayload{
			Repository:    payload["repository"].GetStringValue(),
			Branch:        payload["branch"].GetStringValue(),
			ContentType:   payload["content_type"].GetStringValue(),
			ChunkNumber:   int(payload["chunk_number"].GetIntegerValue()),
			URL:           payload["url"].GetStringValue(),
			ConnectorType: payload["connector_type"].GetStringValue(),
			SourceKind:    payload["source_kind"].GetStringValue(),
			Language:      payload["language"].GetStringValue(),
			HeadingPath:   payload["heading_path"].GetStringValue(),
		},
	}, nil
}
