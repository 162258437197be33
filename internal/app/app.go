package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/medrex/clinic-audit/internal/audit"
	"github.com/medrex/clinic-audit/internal/ingest"
	"github.com/medrex/clinic-audit/pkg/config"
	"github.com/medrex/clinic-audit/pkg/database"
	"github.com/medrex/clinic-audit/pkg/interfaces"
	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/monitoring"
	"github.com/medrex/clinic-audit/pkg/repository"
)

const (
	ServiceName    = "clinic-audit"
	ServiceVersion = "1.0.0"
)

// App holds the process-wide handles shared by the binaries
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *database.DB
	Redis   redis.UniversalClient
	Metrics *monitoring.MetricsCollector
	Tracing *monitoring.TracingManager
	Health  *monitoring.HealthManager
	Audit   interfaces.AuditService
	Ingest  interfaces.IngestService
}

// New connects to the record store (and Redis when configured), makes sure
// the schema exists and wires the services.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		return nil, err
	}

	if err := db.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetricsCollector(ServiceName, registry)

	tracing, err := monitoring.NewTracingManager(ctx, ServiceName, ServiceVersion, &cfg.Monitoring.Tracing)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	metrics.SetTracing(tracing)

	health := monitoring.NewHealthManager(ServiceName, ServiceVersion)
	health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db))

	a := &App{
		Config:  cfg,
		Logger:  log,
		DB:      db,
		Metrics: metrics,
		Tracing: tracing,
		Health:  health,
	}

	var gate audit.RunGate
	if cfg.Redis.Enabled() {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		health.RegisterChecker("redis", monitoring.NewRedisHealthChecker(a.Redis))
		gate = audit.NewRedisGate(a.Redis, cfg.Audit.LockKey, cfg.Audit.LockTTLDuration(), log)
		log.WithComponent("app").Info("Audit runs gated by Redis lock")
	} else {
		gate = audit.NewLocalGate()
		log.WithComponent("app").Warn("Redis not configured, audit runs gated in-process only")
	}

	a.Audit = audit.New(&cfg.Audit, log, audit.Repositories{
		Snapshots:    repository.NewSnapshotRepository(db.DB, log),
		Fichas:       repository.NewFichaRepository(db.DB, log),
		Divergencias: repository.NewDivergenciaRepository(db.DB, log),
		Auditorias:   repository.NewAuditoriaRepository(db.DB, log),
	}, gate, metrics)

	a.Ingest = ingest.New(log,
		repository.NewFichaRepository(db.DB, log),
		repository.NewExecucaoRepository(db.DB, log),
		repository.NewGuiaRepository(db.DB, log),
		metrics,
		cfg.Server.MaxUploadBytes,
	)

	return a, nil
}

// Router builds the HTTP surface
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(monitoring.NewMonitoringMiddleware(a.Metrics, a.Logger).HTTPMiddleware)

	a.Audit.RegisterRoutes(router)
	a.Ingest.RegisterRoutes(router)

	if a.Config.Monitoring.Enabled {
		router.Handle(a.Config.Monitoring.MetricsPath, a.Metrics.Handler()).Methods("GET")
		router.HandleFunc(a.Config.Monitoring.HealthPath, a.Health.HTTPHandler()).Methods("GET")
	}

	return router
}

// Server wraps the router with the configured timeouts
func (a *App) Server() *http.Server {
	srv := a.Config.Server
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", srv.Host, srv.Port),
		Handler:      a.Router(),
		ReadTimeout:  time.Duration(srv.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(srv.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(srv.IdleTimeout) * time.Second,
	}
}

// Close flushes pending spans and releases the store and Redis connections
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Tracing.Shutdown(ctx); err != nil {
		a.Logger.WithError(err).Warn("Failed to flush traces")
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.WithError(err).Warn("Failed to close database")
	}
}
