package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pivoter/pivoter/internal/cache"
	"github.com/pivoter/pivoter/internal/metrics"
	"github.com/pivoter/pivoter/internal/models"
)

// CachedDatasetRepository wraps a DatasetRepository with a read-through cache
// of whole datasets. Cache failures fall back to the wrapped repository.
type CachedDatasetRepository struct {
	repo      DatasetRepository
	cache     cache.Cache
	keyPrefix string
	cacheTTL  time.Duration
}

// NewCachedDatasetRepository creates a new cached dataset repository.
func NewCachedDatasetRepository(repo DatasetRepository, c cache.Cache, keyPrefix string, cacheTTL time.Duration) *CachedDatasetRepository {
	if keyPrefix == "" {
		keyPrefix = "dataset:"
	}
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Minute
	}
	return &CachedDatasetRepository{
		repo:      repo,
		cache:     c,
		keyPrefix: keyPrefix,
		cacheTTL:  cacheTTL,
	}
}

// Create stores a new dataset in the database and the cache.
func (c *CachedDatasetRepository) Create(ctx context.Context, create *models.DatasetCreate) (*models.Dataset, error) {
	ds, err := c.repo.Create(ctx, create)
	if err != nil {
		return nil, err
	}

	_ = c.store(ctx, ds)
	return ds, nil
}

// GetByID retrieves a dataset, checking the cache first.
func (c *CachedDatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	if data, err := c.cache.Get(ctx, c.key(id)); err == nil {
		var ds models.Dataset
		if err := json.Unmarshal(data, &ds); err == nil {
			metrics.RecordCacheHit()
			return &ds, nil
		}
	}
	metrics.RecordCacheMiss()

	ds, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	_ = c.store(ctx, ds)
	return ds, nil
}

// Exists answers from the cache when the dataset is cached there. A miss is
// confirmed against the wrapped repository since entries expire.
func (c *CachedDatasetRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	if ok, err := c.cache.Exists(ctx, c.key(id)); err == nil && ok {
		return true, nil
	}
	return c.repo.Exists(ctx, id)
}

// List is not cached.
func (c *CachedDatasetRepository) List(ctx context.Context, limit, offset int) ([]*models.Dataset, error) {
	return c.repo.List(ctx, limit, offset)
}

// Delete removes a dataset from both cache and database.
func (c *CachedDatasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_ = c.cache.Delete(ctx, c.key(id))
	return c.repo.Delete(ctx, id)
}

// BatchIncrementQueryCounts updates the database and evicts the affected
// entries so the next read sees the new counts.
func (c *CachedDatasetRepository) BatchIncrementQueryCounts(ctx context.Context, counts map[string]int64) error {
	if err := c.repo.BatchIncrementQueryCounts(ctx, counts); err != nil {
		return err
	}
	for key := range counts {
		_ = c.cache.Delete(ctx, c.keyPrefix+key)
	}
	return nil
}

// HealthCheck checks both cache and database health.
func (c *CachedDatasetRepository) HealthCheck(ctx context.Context) error {
	if err := c.cache.Ping(ctx); err != nil {
		return err
	}
	return c.repo.HealthCheck(ctx)
}

func (c *CachedDatasetRepository) key(id uuid.UUID) string {
	return c.keyPrefix + id.String()
}

func (c *CachedDatasetRepository) store(ctx context.Context, ds *models.Dataset) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	return c.cache.Set(ctx, c.key(ds.ID), data, c.cacheTTL)
}
