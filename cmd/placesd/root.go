package main

import (
	"fmt"

	"places-cache/pkg/cache"
	"places-cache/pkg/chain"
	"places-cache/pkg/cleanup"
	"places-cache/pkg/config"
	"places-cache/pkg/logging"
	"places-cache/pkg/lookup"
	"places-cache/pkg/metrics"
	metricsmem "places-cache/pkg/metrics/memory"
	metricsprom "places-cache/pkg/metrics/prometheus"
	"places-cache/pkg/places"
	"places-cache/pkg/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "placesd",
		Short:         "Places lookup API with a shared result cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (defaults and environment are used when empty)")

	load := func() (*config.Config, error) {
		return config.Load(configFile)
	}

	root.AddCommand(newServeCmd(load), newCleanupCmd(load))
	return root
}

// app holds the wired components shared by every command.
type app struct {
	config   *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	snapshot *metricsmem.MemoryCollector
	metrics  metrics.MetricsCollector
	store    *chain.Chain
	places   *places.Client
	lookup   *lookup.Service
	sweeper  *cleanup.Sweeper
}

func newApp(cfg *config.Config) (*app, error) {
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logging.SetGlobal(logger)

	a := &app{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		snapshot: metricsmem.NewMemoryCollector(),
		metrics:  metrics.NoOpCollector{},
	}

	if cfg.Metrics.Enabled {
		pc := metricsprom.NewPrometheusCollector("places")
		if err := pc.Register(a.registry); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = metrics.Multi{pc, a.snapshot}
	}

	a.store, err = store.Open(cfg.Store, store.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}

	a.places = places.NewClient(cfg.Places, places.WithMetrics(a.metrics))
	if !a.places.HasCredential() {
		logger.Warn("no places API key configured; lookups will fail")
	}

	a.lookup = lookup.NewService(a.places, a.store, cfg.Lookup, lookup.WithLogger(logger.Named("lookup")))

	a.sweeper, err = cleanup.NewSweeper(a.store, cfg.Cleanup,
		cleanup.WithMetrics(a.metrics),
		cleanup.WithTables(cache.Tables...),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	logger.Info("components initialized",
		zap.String("store", a.store.String()),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)
	return a, nil
}

// close releases the store; errors are logged.
func (a *app) close() {
	if a.lookup != nil {
		a.lookup.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
