package main

import (
	"context"
	"fmt"
	"time"

	"github.com/lemmego/rda"
	"github.com/lemmego/rda/rdabun"
	"github.com/lemmego/rda/rdacache"
	"github.com/rs/zerolog"
)

// runCache layers the read cache over a SQLite-backed repository,
// preferring a local Redis and falling back to process memory.
func runCache(ctx context.Context, logger zerolog.Logger, endpoint string, policy rda.RetryPolicy) error {
	if endpoint == "" {
		endpoint = ":memory:"
	}

	store, err := rdabun.NewFactory(rdabun.Options{Driver: "sqlite", MaxOpenConns: 1}).
		Create(rda.ConnectionConfig{Endpoint: endpoint})
	if err != nil {
		return fmt.Errorf("creating bun store: %w", err)
	}
	if _, err := store.(*rdabun.Store).DB().ExecContext(ctx, runnerDDL); err != nil {
		return fmt.Errorf("creating articles table: %w", err)
	}

	manager, err := rda.NewManager(ctx, rda.ConnectionConfig{ExistingStore: store}, nil,
		rda.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating manager: %w", err)
	}
	defer manager.Close()

	source := rda.NewRepository[Article](manager, rda.RepositoryConfig{
		Collection: "articles",
		SoftDelete: true,
		IDFormat:   rda.IDFormatAny,
		Retry:      &policy,
	})

	var cache rdacache.Cache
	if redisCache, err := rdacache.NewRedisCache(rdacache.RedisOptions{Addr: "localhost:6379"}); err == nil {
		logger.Info().Msg("using redis cache")
		defer redisCache.Close()
		cache = redisCache
	} else {
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory cache")
		cache = rdacache.NewMemoryCache()
	}

	repo := rdacache.New[Article](source, cache, rda.RepositoryConfig{CacheTime: 30 * time.Second},
		rdacache.WithLogger(logger))

	created, err := repo.Create(ctx, map[string]interface{}{
		"id":    "cache-demo",
		"title": "Cache Demo",
	})
	if err != nil {
		return fmt.Errorf("creating article: %w", err)
	}

	cold := time.Now()
	if _, err := repo.GetByID(ctx, created.ID); err != nil {
		return fmt.Errorf("cold read: %w", err)
	}
	coldTook := time.Since(cold)

	warm := time.Now()
	if _, err := repo.GetByID(ctx, created.ID); err != nil {
		return fmt.Errorf("warm read: %w", err)
	}
	warmTook := time.Since(warm)
	logger.Info().Dur("cold", coldTook).Dur("warm", warmTook).Msg("read timings")

	if _, err := repo.Update(ctx, created.ID, map[string]interface{}{"status": "published"}); err != nil {
		return fmt.Errorf("updating article: %w", err)
	}
	fresh, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		return fmt.Errorf("reading after update: %w", err)
	}
	logger.Info().Str("status", fresh.Status).Msg("update invalidated the cached record")

	repo.List(ctx, rda.Filter{})
	listWarm := time.Now()
	repo.List(ctx, rda.Filter{})
	logger.Info().Dur("warm_list", time.Since(listWarm)).Msg("second list served from cache")

	return nil
}
