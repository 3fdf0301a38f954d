// Package repository handles data persistence.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pivoter/pivoter/internal/database"
	"github.com/pivoter/pivoter/internal/metrics"
	"github.com/pivoter/pivoter/internal/models"
)

// DatasetRepository defines the interface for dataset persistence operations.
type DatasetRepository interface {
	// Create stores a new dataset and returns the created entity.
	Create(ctx context.Context, create *models.DatasetCreate) (*models.Dataset, error)

	// GetByID retrieves a dataset, rows included.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error)

	// Exists reports whether a dataset is stored without loading its rows.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// List returns dataset summaries, newest first. Rows are not loaded.
	List(ctx context.Context, limit, offset int) ([]*models.Dataset, error)

	// Delete removes a dataset.
	Delete(ctx context.Context, id uuid.UUID) error

	// BatchIncrementQueryCounts adds the given counts keyed by dataset ID.
	BatchIncrementQueryCounts(ctx context.Context, counts map[string]int64) error

	// HealthCheck verifies the repository is healthy.
	HealthCheck(ctx context.Context) error
}

// PostgresDatasetRepository implements DatasetRepository using PostgreSQL.
type PostgresDatasetRepository struct {
	pool *database.Pool
}

// NewPostgresDatasetRepository creates a new PostgreSQL-backed dataset repository.
func NewPostgresDatasetRepository(pool *database.Pool) *PostgresDatasetRepository {
	return &PostgresDatasetRepository{pool: pool}
}

// Create stores a new dataset.
func (r *PostgresDatasetRepository) Create(ctx context.Context, create *models.DatasetCreate) (*models.Dataset, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	defer observe("create", time.Now())

	rows, err := json.Marshal(create.Rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}

	query := `
		INSERT INTO datasets (id, name, hierarchy, rows, row_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	ds := &models.Dataset{
		ID:        uuid.New(),
		Name:      create.Name,
		Hierarchy: create.Hierarchy,
		Rows:      create.Rows,
		RowCount:  len(create.Rows),
	}
	err = r.pool.QueryRow(ctx, query, ds.ID, ds.Name, ds.Hierarchy, rows, ds.RowCount).Scan(&ds.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}

	return ds, nil
}

// GetByID retrieves a dataset by its ID.
func (r *PostgresDatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	defer observe("get", time.Now())

	query := `
		SELECT id, name, hierarchy, rows, row_count, query_count, created_at
		FROM datasets
		WHERE id = $1
	`

	var (
		ds   models.Dataset
		rows []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ds.ID,
		&ds.Name,
		&ds.Hierarchy,
		&rows,
		&ds.RowCount,
		&ds.QueryCount,
		&ds.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDatasetNotFound
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	if err := json.Unmarshal(rows, &ds.Rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows of dataset %s: %w", id, err)
	}

	return &ds, nil
}

// Exists reports whether a dataset with the given ID is stored.
func (r *PostgresDatasetRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	defer observe("exists", time.Now())

	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM datasets WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check dataset: %w", err)
	}
	return exists, nil
}

// List returns dataset summaries ordered by creation time, newest first.
func (r *PostgresDatasetRepository) List(ctx context.Context, limit, offset int) ([]*models.Dataset, error) {
	defer observe("list", time.Now())

	query := `
		SELECT id, name, hierarchy, row_count, query_count, created_at
		FROM datasets
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	datasets := make([]*models.Dataset, 0, limit)
	for rows.Next() {
		var ds models.Dataset
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.Hierarchy, &ds.RowCount, &ds.QueryCount, &ds.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, &ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}

	return datasets, nil
}

// Delete removes a dataset by its ID.
func (r *PostgresDatasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	defer observe("delete", time.Now())

	result, err := r.pool.Exec(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrDatasetNotFound
	}

	return nil
}

// BatchIncrementQueryCounts applies all counts in a single statement. Keys
// that are not valid UUIDs are ignored.
func (r *PostgresDatasetRepository) BatchIncrementQueryCounts(ctx context.Context, counts map[string]int64) error {
	ids, deltas := splitCounts(counts)
	if len(ids) == 0 {
		return nil
	}
	defer observe("increment_query_counts", time.Now())

	query := `
		UPDATE datasets AS d
		SET query_count = d.query_count + c.n
		FROM unnest($1::uuid[], $2::bigint[]) AS c(id, n)
		WHERE d.id = c.id
	`

	if _, err := r.pool.Exec(ctx, query, ids, deltas); err != nil {
		return fmt.Errorf("failed to increment query counts: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection is healthy.
func (r *PostgresDatasetRepository) HealthCheck(ctx context.Context) error {
	return r.pool.HealthCheck(ctx)
}

func splitCounts(counts map[string]int64) ([]uuid.UUID, []int64) {
	ids := make([]uuid.UUID, 0, len(counts))
	deltas := make([]int64, 0, len(counts))
	for key, n := range counts {
		id, err := uuid.Parse(key)
		if err != nil || n == 0 {
			continue
		}
		ids = append(ids, id)
		deltas = append(deltas, n)
	}
	return ids, deltas
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, time.Since(start))
}
