package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pivoter/pivoter/internal/metrics"
)

// statusRecorder captures the status code and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.wroteHeader {
		return
	}
	sr.status = code
	sr.wroteHeader = true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.wroteHeader {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// recorderFor reuses a recorder installed further out in the chain.
func recorderFor(w http.ResponseWriter) *statusRecorder {
	if sr, ok := w.(*statusRecorder); ok {
		return sr
	}
	return newStatusRecorder(w)
}

// Metrics returns a middleware that records request counts and latencies.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := recorderFor(w)

			metrics.ActiveConnections.Inc()
			defer metrics.ActiveConnections.Dec()

			next.ServeHTTP(sr, r)

			metrics.RecordRequest(r.Method, normalizePath(r.URL.Path), sr.status, time.Since(start))
		})
	}
}

// normalizePath maps a request path onto its route template so dataset IDs
// do not become label values.
func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/metrics", "/api/v1/datasets", "/api/v1/pivot":
		return path
	}

	rest, ok := strings.CutPrefix(path, "/api/v1/datasets/")
	if !ok {
		return "/other"
	}
	id, action, _ := strings.Cut(rest, "/")
	if _, err := uuid.Parse(id); err != nil {
		return "/other"
	}
	switch action {
	case "":
		return "/api/v1/datasets/{id}"
	case "query", "tree", "stats":
		return "/api/v1/datasets/{id}/" + action
	default:
		return "/other"
	}
}
