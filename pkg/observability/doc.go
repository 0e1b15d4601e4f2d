// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry setup and health checks for the store admin service.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("role_id", id).Info("role updated")
//
// FromContext returns the request-scoped logger enriched with request and user ids.
//
// # Prometheus Metrics
//
//	registry := observability.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("view", true, "granted", elapsed)
//
// Metrics satisfies the recorder interface the rbac resolver and registries accept.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(mux, checker)
package observability
