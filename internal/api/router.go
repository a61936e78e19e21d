// Package api provides the ingress HTTP layer (§6): ingestion, sync,
// job tracking and hybrid-query endpoints over chi, plus a job-progress
// websocket stream.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"conhub-ingest/internal/logging"
)

// Router wires the ingress API's middleware stack and routes.
type Router struct {
	mux     *chi.Mux
	ingest  *IngestHandler
	query   *QueryHandler
	jobs    *JobsHandler
	chunks  *ChunksHandler
	logger  logging.Logger
}

// NewRouter builds the ingress API router.
func NewRouter(ingest *IngestHandler, query *QueryHandler, jobs *JobsHandler, chunks *ChunksHandler, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.WithComponent("api_router")
	}
	r := &Router{
		mux:    chi.NewRouter(),
		ingest: ingest,
		query:  query,
		jobs:   jobs,
		chunks: chunks,
		logger: logger,
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Handler returns the HTTP handler for the ingress API.
func (r *Router) Handler() http.Handler {
	return r.mux
}

func (r *Router) setupMiddleware() {
	r.mux.Use(chimiddleware.Recoverer)
	r.mux.Use(chimiddleware.RequestID)
	r.mux.Use(r.requestLogger)
	r.mux.Use(chimiddleware.Timeout(60 * time.Second))
	r.mux.Use(chimiddleware.RequestSize(25 * 1024 * 1024))
	r.mux.Use(chimiddleware.Heartbeat("/ping"))
}

func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		r.logger.Info("request", "method", req.Method, "path", req.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

func (r *Router) setupRoutes() {
	r.mux.Route("/ingest", func(rtr chi.Router) {
		rtr.Post("/source", r.ingest.IngestSource)
		rtr.Post("/local", r.ingest.IngestLocal)
	})
	r.mux.Post("/sync/{connector_account_id}", r.ingest.Sync)
	r.mux.Route("/jobs", func(rtr chi.Router) {
		rtr.Get("/{job_id}", r.jobs.Get)
		rtr.Get("/{job_id}/stream", r.jobs.Stream)
	})
	r.mux.Post("/query", r.query.Query)
	r.mux.Delete("/chunks", r.chunks.Delete)
}
