// Package observability provides structured logging, Prometheus metrics,
// and health checks for the checkbook services.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, nil)
//	logger.Info("Server started", "port", 8080)
//
// Context-aware logging:
//
//	logger.WithField("request_id", reqID).Error("Request failed")
//
// # Prometheus Metrics
//
// HTTP metrics are registered per server:
//
//	metrics := observability.NewMetrics(registry)
//	handler := metrics.Middleware(mux)
//
// Domain counters (permission checks, audit writes) are package-level and
// incremented directly by the permissions and audit packages.
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(db, version)
//	status := checker.Check(ctx)
package observability
