// Package services contains business logic.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pivoter/pivoter/internal/cache"
	"github.com/pivoter/pivoter/internal/metrics"
	"github.com/pivoter/pivoter/internal/models"
	"github.com/pivoter/pivoter/internal/pivot"
	"github.com/pivoter/pivoter/internal/repository"
	"github.com/pivoter/pivoter/pkg/logger"
)

// Pagination bounds for ListDatasets.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// buildTimeout bounds a shared tree build, which outlives the caller that
// started it.
const buildTimeout = 30 * time.Second

// ErrInvalidPagination is returned for a negative offset.
var ErrInvalidPagination = errors.New("offset must not be negative")

// QueryRecorder records dataset queries for usage analytics.
type QueryRecorder interface {
	RecordQuery(datasetID string)
}

// CreateDatasetRequest represents the input for creating a dataset.
type CreateDatasetRequest struct {
	Name      string
	Hierarchy []string
	Rows      []pivot.DataRow
}

// QueryRequest addresses a node by label path and names the aggregation.
type QueryRequest struct {
	Labels   []string
	Function string
}

// QueryResult is the outcome of a query.
type QueryResult struct {
	Result   float64
	Function string
	Labels   []string
	Found    bool
	CacheHit bool
}

// PivotRequest is a one-shot pivot over rows that are not stored.
type PivotRequest struct {
	Rows      []pivot.DataRow
	Hierarchy []string
	Labels    []string
	Function  string
}

// PivotResult is the outcome of a one-shot pivot.
type PivotResult struct {
	QueryResult
	Hierarchy []string
	Tree      string
}

// PivotService defines dataset management and pivot query operations.
type PivotService interface {
	CreateDataset(ctx context.Context, req CreateDatasetRequest) (*models.Dataset, error)
	GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
	ListDatasets(ctx context.Context, limit, offset int) ([]*models.Dataset, error)
	DeleteDataset(ctx context.Context, id uuid.UUID) error
	Query(ctx context.Context, id uuid.UUID, req QueryRequest) (*QueryResult, error)
	Tree(ctx context.Context, id uuid.UUID) (*pivot.Tree, error)
	Pivot(ctx context.Context, req PivotRequest) (*PivotResult, error)
}

// Options configures a PivotServiceImpl. Zero values disable the optional
// collaborators.
type Options struct {
	Cache           cache.QueryCacher
	Recorder        QueryRecorder
	Logger          *logger.Logger
	MaxRows         int
	TreeCacheSize   int
	DefaultFunction string
}

// PivotServiceImpl implements PivotService.
type PivotServiceImpl struct {
	repo     repository.DatasetRepository
	cache    cache.QueryCacher
	recorder QueryRecorder
	log      *logger.Logger

	trees  *treeCache
	builds singleflight.Group

	maxRows         int
	defaultFunction string
}

// NewPivotService creates a new PivotService instance.
func NewPivotService(repo repository.DatasetRepository, opts Options) *PivotServiceImpl {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.DefaultFunction == "" {
		opts.DefaultFunction = "sum"
	}
	return &PivotServiceImpl{
		repo:            repo,
		cache:           opts.Cache,
		recorder:        opts.Recorder,
		log:             opts.Logger,
		trees:           newTreeCache(opts.TreeCacheSize),
		maxRows:         opts.MaxRows,
		defaultFunction: opts.DefaultFunction,
	}
}

// CreateDataset validates and stores a dataset.
func (s *PivotServiceImpl) CreateDataset(ctx context.Context, req CreateDatasetRequest) (*models.Dataset, error) {
	if err := s.checkRows(req.Rows); err != nil {
		return nil, err
	}

	ds, err := s.repo.Create(ctx, &models.DatasetCreate{
		Name:      req.Name,
		Hierarchy: req.Hierarchy,
		Rows:      req.Rows,
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordDatasetCreated()
	s.log.Info("dataset created", "id", ds.ID.String(), "rows", ds.RowCount, "hierarchy", strings.Join(ds.Hierarchy, ","))
	return ds, nil
}

// GetDataset retrieves a dataset by ID.
func (s *PivotServiceImpl) GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return s.repo.GetByID(ctx, id)
}

// ListDatasets returns a page of dataset summaries. A non-positive limit
// selects the default; limits above MaxListLimit are clamped.
func (s *PivotServiceImpl) ListDatasets(ctx context.Context, limit, offset int) ([]*models.Dataset, error) {
	if offset < 0 {
		return nil, ErrInvalidPagination
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.repo.List(ctx, limit, offset)
}

// DeleteDataset removes a dataset together with its memoised tree and cached
// results.
func (s *PivotServiceImpl) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	key := id.String()
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrDatasetNotFound) {
			s.trees.remove(key)
		}
		return err
	}

	s.trees.remove(key)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.log.Warn("failed to invalidate cached results", "id", key, "error", err.Error())
		}
	}

	s.log.Info("dataset deleted", "id", key)
	return nil
}

// Query aggregates the node addressed by req.Labels. A path that does not
// exist in the tree yields 0 with Found false.
func (s *PivotServiceImpl) Query(ctx context.Context, id uuid.UUID, req QueryRequest) (*QueryResult, error) {
	if req.Labels == nil {
		return nil, pivot.ErrNilQuery
	}
	name := s.functionName(req.Function)
	fn, err := pivot.Lookup(name)
	if err != nil {
		return nil, err
	}

	key := id.String()
	if err := s.ensureExists(ctx, id); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key, name, req.Labels); err == nil {
			s.record(key, name)
			return &QueryResult{
				Result:   cached.Result,
				Function: name,
				Labels:   req.Labels,
				Found:    cached.Found,
				CacheHit: true,
			}, nil
		}
	}

	tree, err := s.loadTree(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := evaluate(tree, req.Labels, name, fn)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		entry := &cache.QueryResult{Result: res.Result, Found: res.Found, CachedAt: time.Now().UTC()}
		if err := s.cache.Set(ctx, key, name, req.Labels, entry); err != nil {
			s.log.Debug("failed to cache query result", "id", key, "error", err.Error())
		}
	}

	s.record(key, name)
	return res, nil
}

// Tree returns the dataset's pivot tree, building it at most once per
// dataset while it stays memoised.
func (s *PivotServiceImpl) Tree(ctx context.Context, id uuid.UUID) (*pivot.Tree, error) {
	if err := s.ensureExists(ctx, id); err != nil {
		return nil, err
	}
	return s.loadTree(ctx, id)
}

// ensureExists confirms the dataset is still stored. Memoised trees and
// cached results outlive deletes made through other replicas.
func (s *PivotServiceImpl) ensureExists(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		s.trees.remove(id.String())
		return models.ErrDatasetNotFound
	}
	return nil
}

func (s *PivotServiceImpl) loadTree(ctx context.Context, id uuid.UUID) (*pivot.Tree, error) {
	key := id.String()
	if tree, ok := s.trees.get(key); ok {
		return tree, nil
	}

	v, err, _ := s.builds.Do(key, func() (interface{}, error) {
		if tree, ok := s.trees.get(key); ok {
			return tree, nil
		}
		gen := s.trees.generation()

		// Waiters share this build, so one caller going away must not fail it.
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()

		ds, err := s.repo.GetByID(bctx, id)
		if err != nil {
			return nil, err
		}

		tree, _, err := build(ds.Rows, ds.Hierarchy)
		if err != nil {
			return nil, fmt.Errorf("failed to build tree for dataset %s: %w", key, err)
		}

		if !s.trees.addIfCurrent(key, tree, gen) {
			s.log.Debug("dataset deleted during tree build, not memoised", "id", key)
		}
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pivot.Tree), nil
}

// Pivot builds a tree from rows that are not stored and queries it.
func (s *PivotServiceImpl) Pivot(_ context.Context, req PivotRequest) (*PivotResult, error) {
	if err := s.checkRows(req.Rows); err != nil {
		return nil, err
	}
	name := s.functionName(req.Function)
	fn, err := pivot.Lookup(name)
	if err != nil {
		return nil, err
	}

	labels := req.Labels
	if labels == nil {
		labels = []string{}
	}

	tree, hierarchy, err := build(req.Rows, req.Hierarchy)
	if err != nil {
		return nil, err
	}

	res, err := evaluate(tree, labels, name, fn)
	if err != nil {
		return nil, err
	}
	metrics.RecordPivotQuery(name)

	return &PivotResult{
		QueryResult: *res,
		Hierarchy:   hierarchy,
		Tree:        tree.String(),
	}, nil
}

func (s *PivotServiceImpl) checkRows(rows []pivot.DataRow) error {
	if s.maxRows > 0 && len(rows) > s.maxRows {
		return fmt.Errorf("%w: %d rows exceeds the limit of %d", models.ErrTooManyRows, len(rows), s.maxRows)
	}
	return nil
}

func (s *PivotServiceImpl) functionName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return s.defaultFunction
	}
	return name
}

func (s *PivotServiceImpl) record(id, function string) {
	metrics.RecordPivotQuery(function)
	if s.recorder != nil {
		s.recorder.RecordQuery(id)
	}
}

// build builds and times a tree. An empty hierarchy selects the natural one.
func build(rows []pivot.DataRow, hierarchy []string) (*pivot.Tree, []string, error) {
	start := time.Now()
	tree, used, err := pivot.BuildTree(rows, hierarchy)
	if err != nil {
		return nil, nil, err
	}
	metrics.RecordTreeBuild(tree.Len(), time.Since(start))
	return tree, used, nil
}

func evaluate(tree *pivot.Tree, labels []string, name string, fn pivot.Func) (*QueryResult, error) {
	result, err := tree.Query(labels, fn)
	if err != nil {
		return nil, err
	}
	_, found := tree.Lookup(labels)
	return &QueryResult{
		Result:   result,
		Function: name,
		Labels:   labels,
		Found:    found,
	}, nil
}
