package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/pivoter/pivoter/internal/cache"
	"github.com/pivoter/pivoter/internal/models"
	"github.com/pivoter/pivoter/internal/pivot"
	"github.com/pivoter/pivoter/internal/repository"
)

// MockDatasetRepository is a mock implementation of repository.DatasetRepository.
type MockDatasetRepository struct {
	mock.Mock
}

func (m *MockDatasetRepository) Create(ctx context.Context, create *models.DatasetCreate) (*models.Dataset, error) {
	args := m.Called(ctx, create)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dataset), args.Error(1)
}

func (m *MockDatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dataset), args.Error(1)
}

func (m *MockDatasetRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDatasetRepository) List(ctx context.Context, limit, offset int) ([]*models.Dataset, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Dataset), args.Error(1)
}

func (m *MockDatasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDatasetRepository) BatchIncrementQueryCounts(ctx context.Context, counts map[string]int64) error {
	args := m.Called(ctx, counts)
	return args.Error(0)
}

func (m *MockDatasetRepository) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockQueryCache is a mock implementation of cache.QueryCacher.
type MockQueryCache struct {
	mock.Mock
}

func (m *MockQueryCache) Get(ctx context.Context, datasetID, function string, labels []string) (*cache.QueryResult, error) {
	args := m.Called(ctx, datasetID, function, labels)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cache.QueryResult), args.Error(1)
}

func (m *MockQueryCache) Set(ctx context.Context, datasetID, function string, labels []string, res *cache.QueryResult) error {
	args := m.Called(ctx, datasetID, function, labels, res)
	return args.Error(0)
}

func (m *MockQueryCache) Invalidate(ctx context.Context, datasetID string) error {
	args := m.Called(ctx, datasetID)
	return args.Error(0)
}

func (m *MockQueryCache) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// gatedRepository holds the first GetByID after loading until release is
// closed, then fails if the caller's context was cancelled meanwhile.
type gatedRepository struct {
	*repository.MemoryDatasetRepository
	loaded  chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedRepository() *gatedRepository {
	return &gatedRepository{
		MemoryDatasetRepository: repository.NewMemoryDatasetRepository(),
		loaded:                  make(chan struct{}),
		release:                 make(chan struct{}),
	}
}

func (r *gatedRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	ds, err := r.MemoryDatasetRepository.GetByID(ctx, id)
	r.once.Do(func() { close(r.loaded) })
	<-r.release
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return ds, err
}

// recorder collects RecordQuery calls.
type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) RecordQuery(id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *recorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func peopleRows() []pivot.DataRow {
	return []pivot.DataRow{
		{"eyes": "brown", "hair": "dark", "nation": "italy", "#": "10"},
		{"eyes": "blue", "hair": "blonde", "nation": "italy", "#": "20"},
		{"eyes": "blue", "hair": "dark", "nation": "italy", "#": "30"},
	}
}

func peopleDataset() *models.Dataset {
	return &models.Dataset{
		ID:        uuid.New(),
		Name:      "people",
		Hierarchy: []string{"eyes", "hair", "nation"},
		Rows:      peopleRows(),
		RowCount:  3,
	}
}
