package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/ward-api/internal/app"
	"github.com/jwalitptl/ward-api/internal/config"
	"github.com/jwalitptl/ward-api/pkg/messaging"
)

func eventsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect published lifecycle events",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Print lifecycle events as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := app.NewLogger(cfg.Logging)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			_, m := app.NewMetrics(nil, cfg.Database.Name)
			broker, err := app.NewBroker(cfg.Redis, log, m)
			if err != nil {
				return err
			}
			publisher := messaging.NewPublisher(broker, cfg.Redis.Channel)
			defer publisher.Close()

			enc := json.NewEncoder(os.Stdout)
			fmt.Fprintf(os.Stderr, "Listening on %s\n", cfg.Redis.Channel)
			err = publisher.Subscribe(ctx,
				func(msg messaging.Message) { _ = enc.Encode(msg) },
				func(err error) { log.Warn("Skipping undecodable event", "error", err.Error()) },
			)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	})

	return cmd
}
