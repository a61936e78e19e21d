package api

import (
	"encoding/json"
	"net/http"

	"conhub-ingest/internal/errors"
	"conhub-ingest/internal/logging"
	"conhub-ingest/internal/retrieval"
	"conhub-ingest/internal/storage"
)

// QueryHandler serves POST /query.
type QueryHandler struct {
	retriever *retrieval.Retriever
	logger    logging.Logger
}

// NewQueryHandler builds a QueryHandler.
func NewQueryHandler(retriever *retrieval.Retriever, logger logging.Logger) *QueryHandler {
	if logger == nil {
		logger = logging.WithComponent("query_handler")
	}
	return &QueryHandler{retriever: retriever, logger: logger}
}

type queryRequest struct {
	Query   string            `json:"query"`
	Filter  map[string]string `json:"filter"`
	TopK    int               `json:"top_k"`
	Profile string            `json:"profile"`
}

// Query handles POST /query: runs the hybrid retrieval pipeline and
// renders SearchResponse through the standard envelope.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.NewValidationError("body", "malformed JSON: "+err.Error(), nil).WriteHTTPError(w)
		return
	}
	if req.Query == "" {
		errors.ErrQueryRequired.WriteHTTPError(w)
		return
	}

	var filter *storage.Filter
	if len(req.Filter) > 0 {
		builder := storage.NewFilterBuilder()
		for k, v := range req.Filter {
			builder.Equals(k, v)
		}
		filter = builder.Build()
	}

	response, err := h.retriever.Search(r.Context(), retrieval.Query{
		Text:    req.Query,
		Filter:  filter,
		Profile: req.Profile,
		TopK:    req.TopK,
	})
	if err != nil {
		errors.NewInternalError("hybrid retrieval failed", err).WriteHTTPError(w)
		return
	}
	writeOKWithFlags(w, response, response.DegradationFlags)
}
