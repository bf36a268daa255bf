// Package api exposes PDF ingestion over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spherical/lecture-ingest/internal/observability"
)

// Config holds HTTP surface settings.
type Config struct {
	MaxUploadBytes int64
}

// DefaultMaxUploadBytes bounds a single PDF upload.
const DefaultMaxUploadBytes = 64 << 20

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, ingester Ingester, cfg Config) http.Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = observability.Nop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"lecture-ingest"}`))
	})

	h := NewHandler(logger, ingester, cfg.MaxUploadBytes)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest", h.Ingest)
		r.Get("/documents", h.Documents)
	})

	return r
}

// requestLogger logs one line per request through the structured logger
func requestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
