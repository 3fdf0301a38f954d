// Package main is the entry point for the pivot API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pivoter/pivoter/internal/analytics"
	"github.com/pivoter/pivoter/internal/cache"
	"github.com/pivoter/pivoter/internal/config"
	"github.com/pivoter/pivoter/internal/database"
	"github.com/pivoter/pivoter/internal/handlers"
	"github.com/pivoter/pivoter/internal/ratelimit"
	"github.com/pivoter/pivoter/internal/repository"
	"github.com/pivoter/pivoter/internal/server"
	"github.com/pivoter/pivoter/internal/services"
	"github.com/pivoter/pivoter/pkg/logger"
)

const poolStatsInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logger.New(os.Stdout, cfg.App.LogLevel).With("service", "pivoter", "env", cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo       repository.DatasetRepository
		pool       *database.Pool
		redisCache *cache.RedisCache
		queryCache cache.QueryCacher
		serverOpts []server.Option
	)

	if cfg.DatabaseEnabled() {
		pool, err = database.NewPool(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		migrator, err := database.NewMigrator(pool)
		if err != nil {
			return err
		}
		applied, err := migrator.Up(ctx)
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "host", cfg.Database.Host, "migrations_applied", applied)
		repo = repository.NewPostgresDatasetRepository(pool)
	} else {
		log.Warn("database not configured, datasets are kept in memory")
		repo = repository.NewMemoryDatasetRepository()
	}

	if cfg.RedisEnabled() {
		redisCache, err = cache.NewRedisCache(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer redisCache.Close()

		repo = repository.NewCachedDatasetRepository(repo, redisCache, "", cfg.Pivot.CacheTTL)
		queryCache = cache.NewQueryCache(redisCache, cfg.Pivot.CacheKeyPrefix, cfg.Pivot.CacheTTL)
		log.Info("redis cache enabled", "host", cfg.Redis.Host, "ttl", cfg.Pivot.CacheTTL.String())

		if cfg.Rate.Enabled {
			limiter, err := ratelimit.NewRedisLimiter(redisCache.Client(), ratelimit.Config{
				Requests: cfg.Rate.Requests,
				Window:   cfg.Rate.Window,
			}, "")
			if err != nil {
				return err
			}
			serverOpts = append(serverOpts, server.WithRateLimiter(limiter))
		}
	}

	counter := analytics.NewQueryCounter(analytics.Config{
		FlushInterval: cfg.Pivot.FlushInterval,
		BatchSize:     cfg.Pivot.FlushBatchSize,
	}, analytics.NewRepositoryFlusher(repo, log))
	defer counter.Stop()

	opts := services.Options{
		Recorder:        counter,
		Logger:          log,
		MaxRows:         cfg.Pivot.MaxRows,
		TreeCacheSize:   cfg.Pivot.TreeCacheSize,
		DefaultFunction: cfg.Pivot.DefaultFunction,
	}
	if queryCache != nil {
		opts.Cache = queryCache
	}
	pivotService := services.NewPivotService(repo, opts)
	analyticsService := services.NewAnalyticsServiceWithPendingStats(repo, counter)

	srv, err := server.New(cfg, log, serverOpts...)
	if err != nil {
		return err
	}
	srv.SetDatasetHandler(handlers.NewDatasetHandler(pivotService))
	srv.SetAnalyticsHandler(handlers.NewAnalyticsHandler(analyticsService))
	srv.HealthHandler().AddCheck("datasets", repo.HealthCheck)
	if pool != nil {
		srv.HealthHandler().AddCheck("database", pool.HealthCheck)
	}
	if redisCache != nil {
		srv.HealthHandler().AddCheck("redis", redisCache.Ping)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if pool != nil {
		g.Go(func() error {
			ticker := time.NewTicker(poolStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					pool.Stats()
				}
			}
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if dropped := counter.Dropped(); dropped > 0 {
		log.Warn("query counts dropped", "count", dropped)
	}
	return nil
}
