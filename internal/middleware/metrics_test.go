package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusRecorder(t *testing.T) {
	t.Run("defaults to 200 on first write", func(t *testing.T) {
		rec := httptest.NewRecorder()
		sr := newStatusRecorder(rec)

		n, err := sr.Write([]byte("hello"))

		assert.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, http.StatusOK, sr.status)
		assert.Equal(t, 5, sr.bytes)
		assert.True(t, sr.wroteHeader)
	})

	t.Run("keeps the first status code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		sr := newStatusRecorder(rec)

		sr.WriteHeader(http.StatusNotFound)
		sr.WriteHeader(http.StatusInternalServerError)

		assert.Equal(t, http.StatusNotFound, sr.status)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("recorderFor reuses an existing recorder", func(t *testing.T) {
		sr := newStatusRecorder(httptest.NewRecorder())
		assert.Same(t, sr, recorderFor(sr))
		assert.Equal(t, sr.ResponseWriter, sr.Unwrap())
	})
}

func TestMetrics(t *testing.T) {
	h := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("{}"))
	}))

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/datasets", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "{}", rec.Body.String())
}

func TestNormalizePath(t *testing.T) {
	const id = "0b7c5a55-8f6e-4c39-9a53-1c2d3e4f5a6b"

	tests := []struct {
		path     string
		expected string
	}{
		{"/health", "/health"},
		{"/ready", "/ready"},
		{"/metrics", "/metrics"},
		{"/api/v1/datasets", "/api/v1/datasets"},
		{"/api/v1/pivot", "/api/v1/pivot"},
		{"/api/v1/datasets/" + id, "/api/v1/datasets/{id}"},
		{"/api/v1/datasets/" + id + "/query", "/api/v1/datasets/{id}/query"},
		{"/api/v1/datasets/" + id + "/tree", "/api/v1/datasets/{id}/tree"},
		{"/api/v1/datasets/" + id + "/stats", "/api/v1/datasets/{id}/stats"},
		{"/api/v1/datasets/" + id + "/export", "/other"},
		{"/api/v1/datasets/not-a-uuid", "/other"},
		{"/api/v1/datasets/not-a-uuid/query", "/other"},
		{"/favicon.ico", "/other"},
		{"/", "/other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizePath(tt.path))
		})
	}
}
