package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pivoter/pivoter/internal/models"
	"github.com/pivoter/pivoter/internal/services"
)

// mockAnalyticsService implements services.AnalyticsService for testing.
type mockAnalyticsService struct {
	stats *services.DatasetStats
	err   error
}

func (m *mockAnalyticsService) GetDatasetStats(_ context.Context, _ uuid.UUID) (*services.DatasetStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

func TestNewAnalyticsHandler(t *testing.T) {
	handler := NewAnalyticsHandler(&mockAnalyticsService{})

	require.NotNil(t, handler)
	assert.NotNil(t, handler.service)
}

func TestAnalyticsHandler_GetStats(t *testing.T) {
	id := uuid.New()

	t.Run("returns stats for a dataset", func(t *testing.T) {
		handler := NewAnalyticsHandler(&mockAnalyticsService{
			stats: &services.DatasetStats{
				ID:           id.String(),
				Name:         "people",
				RowCount:     3,
				QueryCount:   42,
				PendingCount: 5,
			},
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/datasets/"+id.String()+"/stats", nil)
		rec := httptest.NewRecorder()

		handler.GetStats(rec, req, id.String())

		assert.Equal(t, http.StatusOK, rec.Code)

		var stats services.DatasetStats
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
		assert.Equal(t, id.String(), stats.ID)
		assert.Equal(t, int64(42), stats.QueryCount)
		assert.Equal(t, int64(5), stats.PendingCount)
	})

	t.Run("returns 404 for unknown dataset", func(t *testing.T) {
		handler := NewAnalyticsHandler(&mockAnalyticsService{err: models.ErrDatasetNotFound})

		rec := httptest.NewRecorder()
		handler.GetStats(rec, httptest.NewRequest(http.MethodGet, "/", nil), id.String())

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "NOT_FOUND", resp.Code)
	})

	t.Run("returns 400 for malformed id", func(t *testing.T) {
		handler := NewAnalyticsHandler(&mockAnalyticsService{})

		rec := httptest.NewRecorder()
		handler.GetStats(rec, httptest.NewRequest(http.MethodGet, "/", nil), "not-a-uuid")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
