package api

import (
	"net/http"
	"strings"

	"conhub-ingest/internal/errors"
	"conhub-ingest/internal/logging"
	"conhub-ingest/internal/storage"
)

// ChunksHandler serves DELETE /chunks?filter=…, cascading the delete to
// both the vector and graph stores.
type ChunksHandler struct {
	vectorStore storage.VectorStore
	graphStore  storage.GraphStore
	logger      logging.Logger
}

// NewChunksHandler builds a ChunksHandler.
func NewChunksHandler(vectorStore storage.VectorStore, graphStore storage.GraphStore, logger logging.Logger) *ChunksHandler {
	if logger == nil {
		logger = logging.WithComponent("chunks_handler")
	}
	return &ChunksHandler{vectorStore: vectorStore, graphStore: graphStore, logger: logger}
}

// Delete handles DELETE /chunks?filter=key:value,key:value — an
// equality-only filter over the payload keys the vector store indexes.
func (h *ChunksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("filter")
	if raw == "" {
		errors.NewRequiredFieldError("filter").WriteHTTPError(w)
		return
	}

	builder := storage.NewFilterBuilder()
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 || kv[0] == "" {
			errors.NewValidationError("filter", "expected comma-separated key:value pairs", raw).WriteHTTPError(w)
			return
		}
		builder.Equals(kv[0], kv[1])
	}
	filter := builder.Build()

	if err := h.vectorStore.DeleteByFilter(r.Context(), filter); err != nil {
		h.logger.Error("vector delete by filter failed", "filter", raw, "error", err)
		errors.NewInternalError("vector store delete failed", err).WriteHTTPError(w)
		return
	}

	repository := filter.Repository()
	chunkIDs, err := h.graphStore.ChunkIDsByRepository(r.Context(), repository)
	if err != nil {
		h.logger.Warn("graph cascade lookup failed after vector delete", "filter", raw, "error", err)
	}
	var cascadeErrors int
	for _, id := range chunkIDs {
		if err := h.graphStore.DeleteChunkRow(r.Context(), id); err != nil {
			cascadeErrors++
			h.logger.Error("graph delete row failed during chunk cascade", "chunk_id", id, "error", err)
		}
	}

	writeOK(w, map[string]int{"graph_cascade_errors": cascadeErrors})
}
