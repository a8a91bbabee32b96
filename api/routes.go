package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"InvoiceRecon/api/constants"
	"InvoiceRecon/internal/logger"
)

func NewRouter(h *Handlers) *mux.Router {
	router := mux.NewRouter()
	router.Use(auditRequests)

	router.HandleFunc("/api/ingest/{source}", h.UploadIngest).Methods(http.MethodPost)
	router.HandleFunc("/api/runs", h.ListRuns).Methods(http.MethodGet)
	router.HandleFunc("/api/runs/{id}", h.GetRun).Methods(http.MethodGet)
	router.HandleFunc("/api/runs/{id}/artifacts/{name}", h.GetArtifact).Methods(http.MethodGet)
	router.HandleFunc("/api/health", h.Health).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Audit("[Gateway] [Error] %s from %s (route not found)", r.URL.Path, extractClientIP(r))
		RespondWithError(w, http.StatusNotFound, constants.ErrRouteNotFound)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, http.StatusMethodNotAllowed, constants.ErrMethodNotAllowed)
	})
	return router
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// auditRequests writes one audit line per request with its outcome.
func auditRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		prefix := "[Gateway]"
		if rw.statusCode >= 400 {
			prefix = "[Gateway][ERROR]"
		}
		logger.Audit("%s %s %s from %s, status %d in %s",
			prefix, r.Method, r.URL.Path, extractClientIP(r), rw.statusCode, time.Since(start).Round(time.Millisecond))
	})
}
