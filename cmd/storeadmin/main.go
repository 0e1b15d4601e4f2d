package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/storeadmin/pkg/config"
	"github.com/platinummonkey/storeadmin/pkg/database"
	"github.com/platinummonkey/storeadmin/pkg/observability"
	"github.com/platinummonkey/storeadmin/pkg/rbac"
	"github.com/platinummonkey/storeadmin/pkg/snapshot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "storeadmin").
		WithField("version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("storeadmin exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	var shutdown []observability.ShutdownFunc

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown = append(shutdown, func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders)
	})

	db, err := database.Open(ctx, database.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.ConnMaxLifetime,
		Timeout:      cfg.Database.Timeout,
	})
	if err != nil {
		return err
	}
	shutdown = append(shutdown, func(context.Context) error { return db.Close() })
	logger.WithField("driver", cfg.Database.Driver).Info("database connected")

	var redisClient *redis.Client
	if cfg.Cache.Backend == config.CacheRedis {
		redisClient, err = rbac.NewRedisClient(ctx, cfg.Cache.RedisURL, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return err
		}
		shutdown = append(shutdown, func(context.Context) error { return redisClient.Close() })
	}

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = observability.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	app, err := newApp(ctx, cfg, db, redisClient, metrics, logger)
	if err != nil {
		return err
	}
	shutdown = append(shutdown, func(context.Context) error { return app.audit.Close() })

	if _, err := app.manager.Initialize(ctx); err != nil {
		return err
	}
	if cfg.RBAC.BootstrapAdmin != "" {
		if _, err := app.manager.AssignSystemRole(ctx, cfg.RBAC.BootstrapAdmin, ""); err != nil {
			return fmt.Errorf("failed to provision bootstrap admin: %w", err)
		}
		logger.WithField("user_id", cfg.RBAC.BootstrapAdmin).Info("bootstrap admin holds the system role")
	}

	if cfg.Export.Enabled() && cfg.Export.Schedule != "" {
		scheduler, err := startExportSchedule(ctx, cfg, app, metrics, logger)
		if err != nil {
			return err
		}
		shutdown = append(shutdown, func(ctx context.Context) error {
			select {
			case <-scheduler.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      app.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, version))
	if registry != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("storeadmin API listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	if cfg.RBAC.CatalogFile != "" && cfg.RBAC.WatchCatalog {
		g.Go(func() error {
			return app.manager.WatchCatalog(gctx, cfg.RBAC.CatalogFile)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		// Shutdown runs in reverse order, so the servers stop before their dependencies.
		steps := append(shutdown, healthServer.Shutdown, apiServer.Shutdown)
		return observability.Shutdown(shutdownCtx, logger, steps...)
	})

	return g.Wait()
}

func startExportSchedule(ctx context.Context, cfg *config.Config, app *app, metrics *observability.Metrics, logger *observability.Logger) (*cron.Cron, error) {
	uploader, err := snapshot.NewS3Uploader(ctx, snapshot.S3Config{
		Bucket:       cfg.Export.Bucket,
		Region:       cfg.Export.Region,
		Endpoint:     cfg.Export.Endpoint,
		UsePathStyle: cfg.Export.UsePathStyle,
		AccessKey:    cfg.Export.AccessKey,
		SecretKey:    cfg.Export.SecretKey,
	})
	if err != nil {
		return nil, err
	}

	opts := snapshot.Options{KeyPrefix: cfg.Export.KeyPrefix, Logger: logger}
	if metrics != nil {
		opts.Recorder = metrics
	}
	exporter := snapshot.NewExporter(app.manager.Permissions(), app.manager.Roles(), app.manager.Sidebar(), uploader, opts)

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := exporter.Schedule(ctx, c, cfg.Export.Schedule); err != nil {
		return nil, err
	}
	c.Start()
	// A fresh deployment gets a snapshot without waiting for the first tick.
	exporter.ExportAsync(ctx)
	logger.WithFields(map[string]interface{}{
		"schedule": cfg.Export.Schedule,
		"bucket":   cfg.Export.Bucket,
	}).Info("rbac snapshot export scheduled")
	return c, nil
}
