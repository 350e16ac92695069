package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerhouse/checkbook/pkg/api"
	"github.com/ledgerhouse/checkbook/pkg/audit"
	"github.com/ledgerhouse/checkbook/pkg/config"
	"github.com/ledgerhouse/checkbook/pkg/observability"
	"github.com/ledgerhouse/checkbook/pkg/permissions"
)

const version = "1.0.0"

func main() {
	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger = observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := permissions.RunMigrations(ctx, db); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	recorder, err := audit.NewDBRecorder(db)
	if err != nil {
		logger.Error("audit recorder setup failed", "error", err)
		os.Exit(1)
	}
	if err := recorder.EnsureSchema(ctx); err != nil {
		logger.Error("audit schema setup failed", "error", err)
		os.Exit(1)
	}

	requestLogger := logrus.New()
	requestLogger.SetFormatter(&logrus.JSONFormatter{})

	// The default registry also carries the domain counters registered by
	// the permissions and audit packages.
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	server := api.NewServer(db, recorder, logger, api.Options{
		Metrics:       metrics,
		RequestLogger: requestLogger,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthRouter(db, cfg.Observability.MetricsEnabled),
	}

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})

	var g errgroup.Group
	g.Go(func() error {
		logger.Info("API server listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("health server listening", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(sm.WaitForShutdown)

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func healthRouter(db *sql.DB, metricsEnabled bool) http.Handler {
	checker := observability.NewHealthChecker(db, version)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", checker.Liveness).Methods("GET")
	router.HandleFunc("/readyz", checker.Readiness).Methods("GET")
	if metricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler(nil)).Methods("GET")
	}
	return router
}
