package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"conhub-ingest/internal/errors"
	"conhub-ingest/internal/ingestion"
	"conhub-ingest/internal/logging"
)

// JobsHandler serves GET /jobs/{job_id} and its websocket progress
// stream counterpart.
type JobsHandler struct {
	coordinator *ingestion.Coordinator
	upgrader    websocket.Upgrader
	logger      logging.Logger
}

// NewJobsHandler builds a JobsHandler. allowedOrigins controls the
// websocket upgrader's CheckOrigin; an empty list allows same-origin only.
func NewJobsHandler(coordinator *ingestion.Coordinator, allowedOrigins []string, logger logging.Logger) *JobsHandler {
	if logger == nil {
		logger = logging.WithComponent("jobs_handler")
	}
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	h := &JobsHandler{
		coordinator: coordinator,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originSet[r.Header.Get("Origin")]
			},
		},
	}
	if len(originSet) == 0 {
		// A nil CheckOrigin keeps the upgrader's own same-origin check.
		h.upgrader.CheckOrigin = nil
	}
	return h
}

// Get handles GET /jobs/{job_id}.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, ok := h.coordinator.Job(jobID)
	if !ok {
		errors.NewNotFoundError("job", jobID).WriteHTTPError(w)
		return
	}
	writeOK(w, job)
}

// Stream handles GET /jobs/{job_id}/stream: upgrades to a websocket and
// pushes the job's progress snapshot on an interval until it reaches a
// terminal state or the client disconnects.
func (h *JobsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, ok := h.coordinator.Job(jobID); !ok {
		errors.NewNotFoundError("job", jobID).WriteHTTPError(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		job, ok := h.coordinator.Job(jobID)
		if !ok {
			return
		}
		if err := conn.WriteJSON(job); err != nil {
			h.logger.Warn("websocket write failed, closing stream", "job_id", jobID, "error", err)
			return
		}
		if job.Status.Terminal() {
			return
		}
	}
}
