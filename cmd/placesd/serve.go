package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"places-cache/pkg/api"
	"places-cache/pkg/cleanup"
	"places-cache/pkg/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the scheduled cache sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address (overrides server.address)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	var scheduler *cleanup.Scheduler
	if cfg.Cleanup.ScheduleEnabled {
		scheduler, err = cleanup.NewScheduler(a.sweeper)
		if err != nil {
			return fmt.Errorf("cleanup scheduler: %w", err)
		}
		scheduler.Start()
	}

	server := api.NewServer(a.lookup, cfg.Server,
		api.WithSweeper(a.sweeper),
		api.WithStore(a.store),
		api.WithMetrics(a.snapshot),
		api.WithRegistry(a.registry),
	)
	errCh := server.Start()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			a.logger.Warn("scheduler stop failed", zap.Error(err))
		}
	}
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := a.store.Flush(shutdownTimeout); err != nil {
		a.logger.Warn("pending cache writes not flushed", zap.Error(err))
	}

	a.logger.Info("server stopped")
	return nil
}
