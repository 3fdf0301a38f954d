package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/pivoter/pivoter/internal/repository"
)

// DatasetStats represents query statistics for a dataset.
type DatasetStats struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RowCount     int    `json:"row_count"`
	QueryCount   int64  `json:"query_count"`
	PendingCount int64  `json:"pending_count,omitempty"`
}

// PendingStatsProvider provides access to pending (unflushed) query counts.
type PendingStatsProvider interface {
	PendingStats() map[string]int64
}

// AnalyticsService defines the interface for analytics operations.
type AnalyticsService interface {
	GetDatasetStats(ctx context.Context, id uuid.UUID) (*DatasetStats, error)
}

// AnalyticsServiceImpl implements AnalyticsService.
type AnalyticsServiceImpl struct {
	repo            repository.DatasetRepository
	pendingProvider PendingStatsProvider
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(repo repository.DatasetRepository) *AnalyticsServiceImpl {
	return &AnalyticsServiceImpl{
		repo: repo,
	}
}

// NewAnalyticsServiceWithPendingStats creates an AnalyticsService with pending stats support.
func NewAnalyticsServiceWithPendingStats(repo repository.DatasetRepository, provider PendingStatsProvider) *AnalyticsServiceImpl {
	return &AnalyticsServiceImpl{
		repo:            repo,
		pendingProvider: provider,
	}
}

// GetDatasetStats retrieves query statistics for a dataset.
func (s *AnalyticsServiceImpl) GetDatasetStats(ctx context.Context, id uuid.UUID) (*DatasetStats, error) {
	ds, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &DatasetStats{
		ID:         ds.ID.String(),
		Name:       ds.Name,
		RowCount:   ds.RowCount,
		QueryCount: ds.QueryCount,
	}

	if s.pendingProvider != nil {
		stats.PendingCount = s.pendingProvider.PendingStats()[stats.ID]
	}

	return stats, nil
}
