package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/ward-api/internal/app"
	"github.com/jwalitptl/ward-api/internal/config"
	"github.com/jwalitptl/ward-api/internal/handler/health"
	patientHandler "github.com/jwalitptl/ward-api/internal/handler/patient"
	"github.com/jwalitptl/ward-api/internal/handler/prometheus"
	"github.com/jwalitptl/ward-api/internal/repository/sqldb"
	"github.com/jwalitptl/ward-api/internal/router"
	patientService "github.com/jwalitptl/ward-api/internal/service/patient"
	"github.com/jwalitptl/ward-api/pkg/messaging"
)

func serveCmd(configPath *string) *cobra.Command {
	var withRelay bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, withRelay)
		},
	}
	cmd.Flags().BoolVar(&withRelay, "with-relay", false, "Also run the outbox relay in this process (requires events.enabled)")
	return cmd
}

func runServer(cfg *config.Config, withRelay bool) error {
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

	patientRepo := sqldb.NewPatientRepository(base, cfg.Events.Enabled)
	patientSvc := patientService.NewService(patientRepo, log, m)

	r := router.NewRouter(
		cfg,
		log,
		patientHandler.NewHandler(patientSvc),
		health.NewHandler(&base),
		prometheus.New(registry, m),
	)
	r.Setup()

	if withRelay {
		if !cfg.Events.Enabled {
			log.Warn("Relay requested but events are disabled; nothing will be written to the outbox")
		}
		broker, err := app.NewBroker(cfg.Redis, log, m)
		if err != nil {
			return err
		}
		defer broker.Close()

		relay, err := app.NewRelay(cfg.Outbox, sqldb.NewOutboxRepository(base), messaging.NewPublisher(broker, cfg.Redis.Channel), log, m)
		if err != nil {
			return err
		}
		relayDone := relay.Go(ctx)
		// Runs before the broker and database are closed.
		defer func() {
			stop()
			<-relayDone
			log.Info("Outbox relay stopped")
		}()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", srv.Addr, "driver", cfg.Database.Driver, "events", cfg.Events.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited properly")
	return nil
}
