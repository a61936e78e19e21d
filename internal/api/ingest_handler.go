package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"conhub-ingest/internal/errors"
	"conhub-ingest/internal/ingestion"
	"conhub-ingest/internal/logging"
	"conhub-ingest/pkg/types"
)

// IngestHandler serves POST /ingest/source, POST /ingest/local and
// POST /sync/{connector_account_id}.
type IngestHandler struct {
	coordinator   *ingestion.Coordinator
	profileName   string
	tenantID      string
	logger        logging.Logger
	defaultExtSet map[string]bool
}

// NewIngestHandler builds an IngestHandler. defaultExtensions lists the
// file extensions /ingest/local walks when a request doesn't override
// include_extensions.
func NewIngestHandler(coordinator *ingestion.Coordinator, profileName, tenantID string, defaultExtensions []string, logger logging.Logger) *IngestHandler {
	if logger == nil {
		logger = logging.WithComponent("ingest_handler")
	}
	extSet := make(map[string]bool, len(defaultExtensions))
	for _, ext := range defaultExtensions {
		extSet[ext] = true
	}
	return &IngestHandler{coordinator: coordinator, profileName: profileName, tenantID: tenantID, logger: logger, defaultExtSet: extSet}
}

type ingestSourceRequest struct {
	SourceKind  string         `json:"source_kind"`
	Content     string         `json:"content"`
	URI         string         `json:"uri"`
	ContentType string         `json:"content_type"`
	Language    string         `json:"language"`
	Metadata    map[string]any `json:"metadata"`
}

// IngestSource handles POST /ingest/source: validates and submits a single
// SourceItem to C8, returning its job id immediately.
func (h *IngestHandler) IngestSource(w http.ResponseWriter, r *http.Request) {
	var req ingestSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.NewValidationError("body", "malformed JSON: "+err.Error(), nil).WriteHTTPError(w)
		return
	}
	if req.Content == "" && req.URI != "" {
		data, err := os.ReadFile(req.URI)
		if err != nil {
			errors.NewValidationError("uri", "could not read source: "+err.Error(), req.URI).WriteHTTPError(w)
			return
		}
		req.Content = string(data)
	}
	if req.ContentType == "" {
		errors.NewRequiredFieldError("content_type").WriteHTTPError(w)
		return
	}

	hash := sha256.Sum256([]byte(req.Content))
	contentHash := hex.EncodeToString(hash[:])
	item := &types.SourceItem{
		ID:          contentHash,
		TenantID:    h.tenantID,
		SourceKind:  types.SourceKind(req.SourceKind),
		Content:     req.Content,
		ContentType: req.ContentType,
		Language:    req.Language,
		ContentHash: contentHash,
		Metadata:    req.Metadata,
	}

	job, err := h.coordinator.Submit(r.Context(), item, h.profileName)
	if err != nil {
		writeIngestionError(w, err)
		return
	}
	writeOK(w, map[string]string{"job_id": job.JobID})
}

type ingestLocalRequest struct {
	BasePath         string   `json:"base_path"`
	IncludeExtensions []string `json:"include_extensions"`
	ExcludePaths     []string `json:"exclude_paths"`
	MaxFileSizeMB    int      `json:"max_file_size_mb"`
}

type ingestLocalResponse struct {
	DocumentsProcessed int      `json:"documents_processed"`
	EmbeddingsCreated  int      `json:"embeddings_created"`
	SyncDurationMS     int64    `json:"sync_duration_ms"`
	Errors             []string `json:"errors,omitempty"`
}

// IngestLocal handles POST /ingest/local: walks base_path and submits
// every matching file as its own ingestion job.
func (h *IngestHandler) IngestLocal(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req ingestLocalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.NewValidationError("body", "malformed JSON: "+err.Error(), nil).WriteHTTPError(w)
		return
	}
	if req.BasePath == "" {
		errors.NewRequiredFieldError("base_path").WriteHTTPError(w)
		return
	}

	includeExt := h.defaultExtSet
	if len(req.IncludeExtensions) > 0 {
		includeExt = make(map[string]bool, len(req.IncludeExtensions))
		for _, ext := range req.IncludeExtensions {
			includeExt[ext] = true
		}
	}
	maxSize := int64(req.MaxFileSizeMB) * 1024 * 1024
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}

	resp := ingestLocalResponse{}
	err := filepath.WalkDir(req.BasePath, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			resp.Errors = append(resp.Errors, walkErr.Error())
			return nil
		}
		if d.IsDir() {
			for _, excluded := range req.ExcludePaths {
				if strings.HasPrefix(path, excluded) {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if len(includeExt) > 0 && !includeExt[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			resp.Errors = append(resp.Errors, path+": "+err.Error())
			return nil
		}

		hash := sha256.Sum256(data)
		contentHash := hex.EncodeToString(hash[:])
		item := &types.SourceItem{
			ID:          contentHash,
			TenantID:    h.tenantID,
			SourceKind:  types.SourceKindDocument,
			Content:     string(data),
			ContentType: contentTypeForExt(filepath.Ext(path)),
			ContentHash: contentHash,
			Metadata:    map[string]any{"path": path},
		}
		if _, err := h.coordinator.Submit(r.Context(), item, h.profileName); err != nil {
			resp.Errors = append(resp.Errors, path+": "+err.Error())
			return nil
		}
		resp.DocumentsProcessed++
		return nil
	})
	if err != nil {
		resp.Errors = append(resp.Errors, err.Error())
	}

	resp.SyncDurationMS = time.Since(start).Milliseconds()
	writeOK(w, resp)
}

// Sync handles POST /sync/{connector_account_id}. Connector-driven pulls
// are out of this module's scope (no connector registry is implemented);
// the endpoint exists so the route surface matches §6 and returns a
// DegradedDependency error naming the connector as unavailable.
func (h *IngestHandler) Sync(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "connector_account_id")
	errors.NewDegradedDependencyError("connector:"+accountID, nil).WriteHTTPError(w)
}

func writeIngestionError(w http.ResponseWriter, err error) {
	if se, ok := err.(*errors.StandardError); ok {
		se.WriteHTTPError(w)
		return
	}
	errors.NewInternalError(err.Error(), err).WriteHTTPError(w)
}

func contentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".go", ".py", ".js", ".ts", ".java", ".rb", ".rs", ".c", ".cpp", ".h":
		return "text/code"
	case ".json", ".yaml", ".yml":
		return "text/config"
	default:
		return "text/plain"
	}
}
