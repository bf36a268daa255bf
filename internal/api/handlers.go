package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/lecture-ingest/internal/domain"
	"github.com/spherical/lecture-ingest/internal/observability"
	"github.com/spherical/lecture-ingest/internal/store"
)

// Ingester is the ingestion surface the handlers need.
type Ingester interface {
	ParseAs(ctx context.Context, pdfPath, source string) ([]domain.OutputDocument, error)
	Stored(ctx context.Context, source string) ([]domain.OutputDocument, error)
}

// Handler serves ingestion requests.
type Handler struct {
	logger    *observability.Logger
	ingester  Ingester
	maxUpload int64
}

// NewHandler creates a new ingestion handler.
func NewHandler(logger *observability.Logger, ingester Ingester, maxUpload int64) *Handler {
	return &Handler{
		logger:    logger.WithOperation("api"),
		ingester:  ingester,
		maxUpload: maxUpload,
	}
}

// DocumentsDTO is the response body for ingestion and lookup.
type DocumentsDTO struct {
	Source    string                  `json:"source"`
	Count     int                     `json:"count"`
	Documents []domain.OutputDocument `json:"documents"`
}

// ErrorDTO is the error response body.
type ErrorDTO struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Batch   *int   `json:"batch,omitempty"`
}

// Ingest handles POST /api/v1/ingest with a multipart "file" field holding a PDF.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "multipart field \"file\" is required", err)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		h.writeError(w, http.StatusBadRequest, "file must be a .pdf", nil)
		return
	}

	dir, err := os.MkdirTemp("", "lecture-upload-*")
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to stage upload", err)
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := saveUpload(path, file); err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read upload", err)
		return
	}

	h.logger.Info().Str("source", name).Int("bytes", int(header.Size)).Msg("Starting ingestion")

	docs, err := h.ingester.ParseAs(r.Context(), path, name)
	if err != nil {
		h.writeError(w, statusFor(err), "ingestion failed", err)
		return
	}

	writeJSON(w, http.StatusOK, DocumentsDTO{Source: name, Count: len(docs), Documents: docs})
}

// Documents handles GET /api/v1/documents?source=<name>.
func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		h.writeError(w, http.StatusBadRequest, "source is required", nil)
		return
	}

	docs, err := h.ingester.Stored(r.Context(), source)
	if err != nil {
		h.writeError(w, statusFor(err), "lookup failed", err)
		return
	}

	writeJSON(w, http.StatusOK, DocumentsDTO{Source: source, Count: len(docs), Documents: docs})
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return 499
	case domain.IsType(err, domain.ErrorTypeValidation),
		domain.IsType(err, domain.ErrorTypeRender):
		return http.StatusUnprocessableEntity
	case domain.IsType(err, domain.ErrorTypeServiceCall),
		domain.IsType(err, domain.ErrorTypeReconciliation):
		return http.StatusBadGateway
	case domain.IsType(err, domain.ErrorTypeConfig):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string, err error) {
	body := ErrorDTO{Error: message}
	if err != nil {
		body.Details = err.Error()
		if batch, ok := domain.BatchOf(err); ok {
			body.Batch = &batch
		}
		h.logger.Warn().Err(err).Int("status", status).Msg(message)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
