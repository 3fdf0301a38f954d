package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pivoter/pivoter/internal/metrics"
)

// QueryResult is a cached aggregate.
type QueryResult struct {
	Result   float64   `json:"result"`
	Found    bool      `json:"found"`
	CachedAt time.Time `json:"cached_at"`
}

// QueryCacher defines the interface for pivot query result caching.
// This interface enables easy mocking in tests.
type QueryCacher interface {
	Get(ctx context.Context, datasetID, function string, labels []string) (*QueryResult, error)
	Set(ctx context.Context, datasetID, function string, labels []string, res *QueryResult) error
	Invalidate(ctx context.Context, datasetID string) error
	Ping(ctx context.Context) error
}

var _ QueryCacher = (*QueryCache)(nil)

// QueryCache stores aggregate results keyed by dataset, function and label path.
type QueryCache struct {
	cache     Cache
	keyPrefix string
	ttl       time.Duration
}

// NewQueryCache creates a query result cache on top of cache.
func NewQueryCache(cache Cache, keyPrefix string, ttl time.Duration) *QueryCache {
	if keyPrefix == "" {
		keyPrefix = "pivot:"
	}
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &QueryCache{
		cache:     cache,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Get returns the cached result or ErrCacheMiss.
func (c *QueryCache) Get(ctx context.Context, datasetID, function string, labels []string) (*QueryResult, error) {
	data, err := c.cache.Get(ctx, c.key(datasetID, function, labels))
	if err != nil {
		metrics.RecordCacheMiss()
		return nil, err
	}

	var res QueryResult
	if err := json.Unmarshal(data, &res); err != nil {
		metrics.RecordCacheMiss()
		return nil, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	metrics.RecordCacheHit()
	return &res, nil
}

// Set stores a result.
func (c *QueryCache) Set(ctx context.Context, datasetID, function string, labels []string, res *QueryResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return c.cache.Set(ctx, c.key(datasetID, function, labels), data, c.ttl)
}

// Invalidate drops every cached result of a dataset.
func (c *QueryCache) Invalidate(ctx context.Context, datasetID string) error {
	_, err := c.cache.DeletePrefix(ctx, c.datasetPrefix(datasetID))
	return err
}

// Ping checks if the cache is healthy.
func (c *QueryCache) Ping(ctx context.Context) error {
	return c.cache.Ping(ctx)
}

func (c *QueryCache) datasetPrefix(datasetID string) string {
	return c.keyPrefix + datasetID + ":"
}

// key escapes each label so "/" and ":" inside values cannot collide.
func (c *QueryCache) key(datasetID, function string, labels []string) string {
	escaped := make([]string, len(labels))
	for i, l := range labels {
		escaped[i] = url.PathEscape(l)
	}
	return c.datasetPrefix(datasetID) + strings.ToLower(function) + ":" + strings.Join(escaped, "/")
}
