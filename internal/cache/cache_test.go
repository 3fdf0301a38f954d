package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pivoter/pivoter/internal/config"
)

func skipIfNoRedis(t *testing.T) {
	t.Helper()
	if os.Getenv("TEST_REDIS") != "true" {
		t.Skip("Skipping: TEST_REDIS not set. Run with docker-compose up -d")
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func testRedisConfig() *config.RedisConfig {
	return &config.RedisConfig{
		Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
		Port:     6379,
		Password: getEnvOrDefault("REDIS_PASSWORD", ""),
		DB:       0,
		PoolSize: 10,
	}
}

func setupTestRedis(t *testing.T) (*RedisCache, func()) {
	t.Helper()
	skipIfNoRedis(t)

	ctx := context.Background()
	cfg := testRedisConfig()

	cache, err := NewRedisCache(ctx, cfg)
	require.NoError(t, err)

	cleanup := func() {
		// Clean up test keys
		client := cache.Client()
		iter := client.Scan(ctx, 0, "test:*", 100).Iterator()
		for iter.Next(ctx) {
			_ = client.Del(ctx, iter.Val())
		}
		_ = cache.Close()
	}

	return cache, cleanup
}

func TestNewRedisCache(t *testing.T) {
	skipIfNoRedis(t)

	ctx := context.Background()
	cfg := testRedisConfig()

	cache, err := NewRedisCache(ctx, cfg)
	require.NoError(t, err)
	defer cache.Close()

	assert.NotNil(t, cache)
	assert.NotNil(t, cache.Client())
}

func TestNewRedisCache_InvalidHost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := &config.RedisConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     6379,
		Password: "",
		DB:       0,
		PoolSize: 1,
	}

	_, err := NewRedisCache(ctx, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestRedisCache_SetAndGet(t *testing.T) {
	cache, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("set and get value", func(t *testing.T) {
		key := "test:setget1"
		value := []byte("hello world")

		err := cache.Set(ctx, key, value, time.Minute)
		require.NoError(t, err)

		got, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	})

	t.Run("get non-existent key", func(t *testing.T) {
		_, err := cache.Get(ctx, "test:nonexistent")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("set with TTL expiry", func(t *testing.T) {
		key := "test:ttl1"
		value := []byte("expires soon")

		err := cache.Set(ctx, key, value, 100*time.Millisecond)
		require.NoError(t, err)

		// Should exist immediately
		got, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, value, got)

		// Wait for expiry
		time.Sleep(150 * time.Millisecond)

		_, err = cache.Get(ctx, key)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestRedisCache_Delete(t *testing.T) {
	cache, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("delete existing key", func(t *testing.T) {
		key := "test:del1"
		value := []byte("to be deleted")

		err := cache.Set(ctx, key, value, time.Minute)
		require.NoError(t, err)

		err = cache.Delete(ctx, key)
		require.NoError(t, err)

		_, err = cache.Get(ctx, key)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("delete non-existent key (no error)", func(t *testing.T) {
		err := cache.Delete(ctx, "test:nonexistent")
		assert.NoError(t, err)
	})
}

func TestRedisCache_Exists(t *testing.T) {
	cache, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("exists returns true for existing key", func(t *testing.T) {
		key := "test:exists1"
		err := cache.Set(ctx, key, []byte("value"), time.Minute)
		require.NoError(t, err)

		exists, err := cache.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("exists returns false for non-existent key", func(t *testing.T) {
		exists, err := cache.Exists(ctx, "test:nonexistent")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestRedisCache_Ping(t *testing.T) {
	cache, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	err := cache.Ping(ctx)
	assert.NoError(t, err)
}

func TestRedisCache_DeletePrefix(t *testing.T) {
	cache, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 150; i++ {
		require.NoError(t, cache.Set(ctx, fmt.Sprintf("test:prefix:a:%d", i), []byte("v"), time.Minute))
	}
	require.NoError(t, cache.Set(ctx, "test:prefix:b:1", []byte("v"), time.Minute))

	removed, err := cache.DeletePrefix(ctx, "test:prefix:a:")
	require.NoError(t, err)
	assert.Equal(t, int64(150), removed)

	exists, err := cache.Exists(ctx, "test:prefix:a:7")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = cache.Exists(ctx, "test:prefix:b:1")
	require.NoError(t, err)
	assert.True(t, exists)
}

// QueryCache tests

func TestNewQueryCache(t *testing.T) {
	t.Run("with defaults", func(t *testing.T) {
		qc := NewQueryCache(newMockCache(), "", 0)

		assert.Equal(t, "pivot:", qc.keyPrefix)
		assert.Equal(t, 10*time.Minute, qc.ttl)
	})

	t.Run("with custom values", func(t *testing.T) {
		qc := NewQueryCache(newMockCache(), "custom:", time.Hour)

		assert.Equal(t, "custom:", qc.keyPrefix)
		assert.Equal(t, time.Hour, qc.ttl)
	})
}

func TestQueryCache_Key(t *testing.T) {
	qc := NewQueryCache(newMockCache(), "p:", time.Minute)

	tests := []struct {
		name     string
		function string
		labels   []string
		expected string
	}{
		{"root", "sum", []string{}, "p:ds:sum:"},
		{"path", "Average", []string{"blue", "dark"}, "p:ds:average:blue/dark"},
		{"escaped", "sum", []string{"a/b", "c:d"}, "p:ds:sum:a%2Fb/c:d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, qc.key("ds", tt.function, tt.labels))
		})
	}

	assert.NotEqual(t,
		qc.key("ds", "sum", []string{"a/b"}),
		qc.key("ds", "sum", []string{"a", "b"}),
	)
}

func TestQueryCache_SetAndGet(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMockCache(), "p:", time.Minute)

	t.Run("miss", func(t *testing.T) {
		_, err := qc.Get(ctx, "ds", "sum", []string{"blue"})
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("hit", func(t *testing.T) {
		in := &QueryResult{Result: 50, Found: true, CachedAt: time.Now().UTC().Truncate(time.Second)}
		require.NoError(t, qc.Set(ctx, "ds", "sum", []string{"blue"}, in))

		out, err := qc.Get(ctx, "ds", "sum", []string{"blue"})
		require.NoError(t, err)
		assert.Equal(t, 50.0, out.Result)
		assert.True(t, out.Found)
		assert.True(t, in.CachedAt.Equal(out.CachedAt))
	})

	t.Run("function is part of the key", func(t *testing.T) {
		_, err := qc.Get(ctx, "ds", "count", []string{"blue"})
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("corrupt entry", func(t *testing.T) {
		mc := newMockCache()
		qc := NewQueryCache(mc, "p:", time.Minute)
		mc.data[qc.key("ds", "sum", nil)] = []byte("not-json")

		_, err := qc.Get(ctx, "ds", "sum", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unmarshal")
	})
}

func TestQueryCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	mc := newMockCache()
	qc := NewQueryCache(mc, "p:", time.Minute)

	require.NoError(t, qc.Set(ctx, "one", "sum", []string{"a"}, &QueryResult{Result: 1}))
	require.NoError(t, qc.Set(ctx, "one", "count", nil, &QueryResult{Result: 2}))
	require.NoError(t, qc.Set(ctx, "two", "sum", []string{"a"}, &QueryResult{Result: 3}))

	require.NoError(t, qc.Invalidate(ctx, "one"))

	_, err := qc.Get(ctx, "one", "sum", []string{"a"})
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = qc.Get(ctx, "one", "count", nil)
	assert.ErrorIs(t, err, ErrCacheMiss)

	res, err := qc.Get(ctx, "two", "sum", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Result)
}

func TestQueryCache_Ping(t *testing.T) {
	mc := newMockCache()
	qc := NewQueryCache(mc, "", 0)
	assert.NoError(t, qc.Ping(context.Background()))

	mc.closed = true
	assert.Error(t, qc.Ping(context.Background()))
}

func TestQueryCache_Redis(t *testing.T) {
	cache, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	qc := NewQueryCache(cache, "test:q:", time.Minute)

	require.NoError(t, qc.Set(ctx, "ds", "median", []string{"blue"}, &QueryResult{Result: 25, Found: true}))
	res, err := qc.Get(ctx, "ds", "median", []string{"blue"})
	require.NoError(t, err)
	assert.Equal(t, 25.0, res.Result)

	require.NoError(t, qc.Invalidate(ctx, "ds"))
	_, err = qc.Get(ctx, "ds", "median", []string{"blue"})
	assert.ErrorIs(t, err, ErrCacheMiss)
}

// MockCache is an in-memory Cache used by unit tests.
type MockCache struct {
	data   map[string][]byte
	closed bool
}

func newMockCache() *MockCache {
	return &MockCache{data: make(map[string][]byte)}
}

func (m *MockCache) Get(_ context.Context, key string) ([]byte, error) {
	if m.data == nil {
		return nil, ErrCacheMiss
	}
	val, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return val, nil
}

func (m *MockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func (m *MockCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *MockCache) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *MockCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

func (m *MockCache) Ping(_ context.Context) error {
	if m.closed {
		return errors.New("cache closed")
	}
	return nil
}

func (m *MockCache) Close() error {
	m.closed = true
	return nil
}
