package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/storeadmin/pkg/audit"
	"github.com/platinummonkey/storeadmin/pkg/config"
	"github.com/platinummonkey/storeadmin/pkg/httputil"
	"github.com/platinummonkey/storeadmin/pkg/middleware"
	"github.com/platinummonkey/storeadmin/pkg/observability"
	"github.com/platinummonkey/storeadmin/pkg/rbac"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type app struct {
	manager *rbac.Manager
	audit   audit.Logger
	handler http.Handler
}

// newApp wires the RBAC manager and the HTTP handler. metrics and redisClient may be nil.
func newApp(ctx context.Context, cfg *config.Config, db *sql.DB, redisClient *redis.Client, metrics *observability.Metrics, logger *observability.Logger) (*app, error) {
	cache, err := newSnapshotCache(cfg.Cache, redisClient)
	if err != nil {
		return nil, err
	}

	catalog := rbac.DefaultCatalog()
	if cfg.RBAC.CatalogFile != "" {
		if catalog, err = rbac.LoadCatalog(cfg.RBAC.CatalogFile); err != nil {
			return nil, err
		}
	}

	dbAudit, err := audit.NewDBLogger(ctx, db)
	if err != nil {
		return nil, err
	}
	auditLogger := audit.NewMultiLogger(audit.NewLogrusLogger(os.Stdout), dbAudit)

	opts := rbac.Options{
		Cache:  cache,
		Audit:  auditLogger,
		Logger: logger,
	}
	if metrics != nil {
		opts.Recorder = metrics
	}
	manager := rbac.NewManager(db, rbac.Config{Options: opts, Catalog: catalog})

	return &app{
		manager: manager,
		audit:   auditLogger,
		handler: newRouter(ctx, cfg, manager, redisClient, metrics, logger),
	}, nil
}

func newSnapshotCache(cfg config.CacheConfig, redisClient *redis.Client) (rbac.SnapshotCache, error) {
	switch cfg.Backend {
	case config.CacheMemory:
		return rbac.NewMemoryCache(rbac.CacheConfig{MaxEntries: cfg.MaxEntries, TTL: cfg.TTL}), nil
	case config.CacheRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis cache backend needs a redis client")
		}
		return rbac.NewRedisCache(redisClient, cfg.TTL), nil
	case config.CacheNone:
		return rbac.NoCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

func newRouter(ctx context.Context, cfg *config.Config, manager *rbac.Manager, redisClient *redis.Client, metrics *observability.Metrics, logger *observability.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Identity(cfg.RBAC.IdentityHeader))

	if cfg.Server.RateLimitPerMinute > 0 {
		limitCfg := middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimitPerMinute,
			WindowDuration:    time.Minute,
			BurstSize:         cfg.Server.RateLimitBurst,
		}
		var limiter middleware.Limiter
		if redisClient != nil {
			limiter = middleware.NewDistributedRateLimiter(redisClient, limitCfg, "ratelimit:storeadmin")
		} else {
			local := middleware.NewRateLimiter(limitCfg)
			local.StartCleanup(ctx)
			limiter = local
		}
		router.Use(middleware.RateLimit(limiter, logger))
	}
	if metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	manager.RegisterRoutes(router)

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	)(router)
	return otelhttp.NewHandler(handler, "storeadmin")
}
