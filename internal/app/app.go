// Package app holds the wiring shared by the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jwalitptl/ward-api/internal/config"
	"github.com/jwalitptl/ward-api/internal/repository"
	"github.com/jwalitptl/ward-api/internal/repository/sqldb"
	"github.com/jwalitptl/ward-api/pkg/logger"
	"github.com/jwalitptl/ward-api/pkg/messaging"
	"github.com/jwalitptl/ward-api/pkg/messaging/redis"
	"github.com/jwalitptl/ward-api/pkg/metrics"
	"github.com/jwalitptl/ward-api/pkg/worker"
)

const metricsNamespace = "ward"

// NewLogger builds the process logger from config and installs it globally.
func NewLogger(cfg config.LoggingConfig) (*logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	log := logger.NewLogger(&logger.Config{
		Level:  level,
		Format: cfg.Format,
		Output: os.Stdout,
	})
	log.SetGlobal()
	return log, nil
}

// OpenDatabase connects, optionally migrates, and returns the shared base
// repository.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*sqlx.DB, sqldb.BaseRepository, error) {
	isolation, err := sqldb.ParseIsolation(cfg.IsolationLevel)
	if err != nil {
		return nil, sqldb.BaseRepository{}, err
	}

	db, err := sqldb.NewDB(cfg)
	if err != nil {
		return nil, sqldb.BaseRepository{}, err
	}

	if cfg.AutoMigrate {
		applied, err := sqldb.NewMigrator(db).Up(ctx)
		if err != nil {
			db.Close()
			return nil, sqldb.BaseRepository{}, fmt.Errorf("migration failed: %w", err)
		}
		log.Info("Database migrated", "applied", applied)
	}

	return db, sqldb.NewBaseRepository(db, isolation), nil
}

// NewMetrics registers the application collectors plus runtime and
// connection pool collectors on a dedicated registry.
func NewMetrics(db *sqlx.DB, dbName string) (*prometheus.Registry, *metrics.Metrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if db != nil {
		registry.MustRegister(collectors.NewDBStatsCollector(db.DB, dbName))
	}
	return registry, metrics.NewMetrics(registry, metricsNamespace)
}

// NewBroker connects to Redis with the configured pool and breaker settings.
func NewBroker(cfg config.RedisConfig, log *logger.Logger, m *metrics.Metrics) (messaging.Broker, error) {
	zl := log.ZL.With().Str("component", "redis").Logger()
	return redis.NewRedisBroker(redis.Config{
		URL:            cfg.URL,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		PoolSize:       cfg.PoolSize,
		MinIdleConns:   cfg.MinIdleConns,
		BreakerTimeout: cfg.BreakerTimeout,
	}, &zl, m)
}

// Relay pairs the outbox processor with its retention cleanup.
type Relay struct {
	Processor *worker.OutboxProcessor
	Cleanup   *worker.OutboxCleanupWorker
}

func NewRelay(cfg config.OutboxConfig, outbox repository.OutboxRepository, publisher worker.EventPublisher, log *logger.Logger, m *metrics.Metrics) (*Relay, error) {
	relayLog := log.WithFields(map[string]interface{}{"component": "outbox_relay"})

	processor, err := worker.NewOutboxProcessor(outbox, publisher, worker.OutboxProcessorConfig{
		BatchSize:     cfg.BatchSize,
		PollInterval:  cfg.PollInterval,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
		MaxAttempts:   cfg.MaxAttempts,
	}, relayLog, m)
	if err != nil {
		return nil, err
	}

	return &Relay{
		Processor: processor,
		Cleanup:   worker.NewOutboxCleanupWorker(outbox, cfg.Retention, cfg.CleanupInterval, relayLog, m),
	}, nil
}

// Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.Processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		r.Cleanup.Start(ctx)
	}()
	wg.Wait()
}

// Go runs the relay in the background. The returned channel is closed once
// every in-flight batch has finished after ctx is cancelled.
func (r *Relay) Go(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	return done
}
