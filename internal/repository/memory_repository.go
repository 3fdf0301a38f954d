package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pivoter/pivoter/internal/models"
)

// MemoryDatasetRepository keeps datasets in process memory. It is used when
// no database is configured.
type MemoryDatasetRepository struct {
	mu       sync.RWMutex
	datasets map[uuid.UUID]*models.Dataset
	now      func() time.Time
}

// NewMemoryDatasetRepository creates an empty in-memory repository.
func NewMemoryDatasetRepository() *MemoryDatasetRepository {
	return &MemoryDatasetRepository{
		datasets: make(map[uuid.UUID]*models.Dataset),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new dataset.
func (r *MemoryDatasetRepository) Create(_ context.Context, create *models.DatasetCreate) (*models.Dataset, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}

	ds := &models.Dataset{
		ID:        uuid.New(),
		Name:      create.Name,
		Hierarchy: append([]string(nil), create.Hierarchy...),
		Rows:      create.Rows,
		RowCount:  len(create.Rows),
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	r.datasets[ds.ID] = ds
	r.mu.Unlock()

	return clone(ds, true), nil
}

// GetByID retrieves a dataset by its ID.
func (r *MemoryDatasetRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, ok := r.datasets[id]
	if !ok {
		return nil, models.ErrDatasetNotFound
	}
	return clone(ds, true), nil
}

// Exists reports whether a dataset with the given ID is stored.
func (r *MemoryDatasetRepository) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	_, ok := r.datasets[id]
	r.mu.RUnlock()
	return ok, nil
}

// List returns dataset summaries ordered by creation time, newest first.
func (r *MemoryDatasetRepository) List(_ context.Context, limit, offset int) ([]*models.Dataset, error) {
	r.mu.RLock()
	all := make([]*models.Dataset, 0, len(r.datasets))
	for _, ds := range r.datasets {
		all = append(all, clone(ds, false))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	if offset >= len(all) {
		return []*models.Dataset{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Delete removes a dataset by its ID.
func (r *MemoryDatasetRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.datasets[id]; !ok {
		return models.ErrDatasetNotFound
	}
	delete(r.datasets, id)
	return nil
}

// BatchIncrementQueryCounts adds the given counts. Unknown IDs are ignored.
func (r *MemoryDatasetRepository) BatchIncrementQueryCounts(_ context.Context, counts map[string]int64) error {
	ids, deltas := splitCounts(counts)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range ids {
		if ds, ok := r.datasets[id]; ok {
			ds.QueryCount += deltas[i]
		}
	}
	return nil
}

// HealthCheck always succeeds.
func (r *MemoryDatasetRepository) HealthCheck(context.Context) error {
	return nil
}

// clone copies the dataset header. Rows are immutable once stored, so the
// slice is shared.
func clone(ds *models.Dataset, withRows bool) *models.Dataset {
	out := *ds
	out.Hierarchy = append([]string(nil), ds.Hierarchy...)
	if !withRows {
		out.Rows = nil
	}
	return &out
}
