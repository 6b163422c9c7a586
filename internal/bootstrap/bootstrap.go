// Package bootstrap wires the store and summary cache from configuration for
// the server and the operator CLI.
package bootstrap

import (
	"context"
	"time"

	"pdvledger/backend/internal/cache"
	"pdvledger/backend/internal/config"
	"pdvledger/backend/internal/logger"
	"pdvledger/backend/internal/store"
	pgstore "pdvledger/backend/internal/store/postgres"
	"pdvledger/backend/internal/store/sqlite"
)

// OpenRepository connects to PostgreSQL when DATABASE_URL is set and to the
// resolved SQLite file otherwise. Any failure wraps store.ErrInitialization.
func OpenRepository(ctx context.Context, cfg config.Config, log *logger.Logger) (store.Repository, error) {
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("repository ready", "backend", "postgres")
		return pg, nil
	}

	path, err := sqlite.ResolvePath()
	if err != nil {
		return nil, err
	}
	lite, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	log.Info("repository ready", "backend", "sqlite", "path", lite.Path())
	return lite, nil
}

// OpenSummaryCache returns the redis cache when REDIS_ADDR is set and
// reachable, the noop cache otherwise. The returned close func is never nil.
func OpenSummaryCache(ctx context.Context, cfg config.Config, log *logger.Logger) (cache.SummaryCache, func() error) {
	noop := func() error { return nil }
	if cfg.RedisAddr == "" {
		log.Info("summary cache ready", "backend", "noop")
		return cache.NoopSummaryCache{}, noop
	}

	redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		log.Warn("redis unavailable, using noop summary cache", "addr", cfg.RedisAddr, "error", err)
		_ = redisCache.Close()
		return cache.NoopSummaryCache{}, noop
	}
	log.Info("summary cache ready", "backend", "redis", "addr", cfg.RedisAddr)
	return redisCache, redisCache.Close
}
