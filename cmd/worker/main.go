package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/ward-api/internal/app"
	"github.com/jwalitptl/ward-api/internal/config"
	"github.com/jwalitptl/ward-api/internal/handler/health"
	"github.com/jwalitptl/ward-api/internal/handler/prometheus"
	"github.com/jwalitptl/ward-api/internal/middleware"
	"github.com/jwalitptl/ward-api/internal/repository/sqldb"
	"github.com/jwalitptl/ward-api/pkg/logger"
	"github.com/jwalitptl/ward-api/pkg/messaging"
)

func main() {
	var (
		configPath string
		addr       string
		once       bool
	)

	cmd := &cobra.Command{
		Use:          "ward-worker",
		Short:        "Relay lifecycle events from the outbox to Redis",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg, addr, once)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.Flags().StringVar(&addr, "addr", ":8081", "Address for health and metrics endpoints")
	cmd.Flags().BoolVar(&once, "once", false, "Process a single batch and exit")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, addr string, once bool) error {
	log, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, base, err := app.OpenDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	registry, m := app.NewMetrics(db, cfg.Database.Name)

	broker, err := app.NewBroker(cfg.Redis, log, m)
	if err != nil {
		return err
	}
	defer broker.Close()

	relay, err := app.NewRelay(cfg.Outbox, sqldb.NewOutboxRepository(base), messaging.NewPublisher(broker, cfg.Redis.Channel), log, m)
	if err != nil {
		return err
	}

	if once {
		result, err := relay.Processor.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("processed=%d retried=%d failed=%d\n", result.Processed, result.Retried, result.Failed)
		return nil
	}

	srv := statusServer(addr, log, &base, prometheus.New(registry, m))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Health check server failed")
			stop()
		}
	}()

	relay.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func statusServer(addr string, log *logger.Logger, db health.Pinger, metricsH *prometheus.Handler) *http.Server {
	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Recovery())
	health.NewHandler(db).RegisterRoutes(engine)
	engine.GET("/metrics", metricsH.Handler())

	log.Info("Starting status server", "addr", addr)
	return &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
