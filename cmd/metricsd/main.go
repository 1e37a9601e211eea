package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/metricsd/internal/api"
	"codeberg.org/mutker/metricsd/internal/config"
	"codeberg.org/mutker/metricsd/internal/errors"
	"codeberg.org/mutker/metricsd/internal/hostmon"
	"codeberg.org/mutker/metricsd/internal/logger"
	"codeberg.org/mutker/metricsd/internal/metrics"
	"codeberg.org/mutker/metricsd/internal/store"
	"codeberg.org/mutker/metricsd/internal/window"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	if !cfg.Debug && !cfg.Verbose {
		logger.SetLogLevel(logLevelFor(config.LogLevel(cfg.LogLevel)))
	}
	logger.Debug().Msg("Config loaded")
}

func logLevelFor(level config.LogLevel) logger.LogLevel {
	switch level {
	case config.LogLevelDebug:
		return logger.DebugLevel
	case config.LogLevelInfo:
		return logger.InfoLevel
	case config.LogLevelError:
		return logger.ErrorLevel
	case config.LogLevelWarning:
		return logger.WarnLevel
	}

	return logger.WarnLevel
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	ring := window.New(cfg.WindowSeconds)
	ring.Initialize(time.Now())

	snapshotStore, err := newStore()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize snapshot store")
	}
	defer func() {
		if err := snapshotStore.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close snapshot store")
		}
	}()

	server, err := api.NewServer(cfg.Listen, ring, snapshotStore, logger.Default())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize API server")
	}
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start API server")
	}

	aggregator, err := metrics.NewAggregator(
		ring,
		snapshotStore,
		hostmon.NewSampler(),
		server,
		logger.Default(),
		time.Duration(cfg.RetentionSeconds)*time.Second,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize aggregator")
	}

	if err := loop(ctx, aggregator); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}

	shutdownCtx := context.Background()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shut down API server")
	}
	logger.Info().Msg("Exiting...")
}

func newStore() (metrics.Store, error) {
	if !cfg.Persistence {
		logger.Debug().Msg("Persistence disabled, keeping snapshots in memory")
		return store.NewMemory(), nil
	}

	return store.NewSQLite(store.Config{DBPath: cfg.Database}, logger.Default())
}

func loop(ctx context.Context, aggregator *metrics.Aggregator) error {
	interval := time.Duration(cfg.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			snapshot, err := aggregator.Tick(ctx, now)
			if err != nil {
				// Colliding tick timestamps only lose one snapshot
				if errors.IsCode(err, errors.ErrDuplicateKey) {
					logger.Warn().Err(err).Msg("Skipped snapshot with duplicate timestamp")
					continue
				}

				return err
			}

			if cfg.Verbose || cfg.Debug {
				logger.Info().
					Int("connected_clients", snapshot.ConnectedClients).
					Float64("updates_per_second", snapshot.UpdatesPerSecond).
					Float64("average_update_time_ms", snapshot.AverageUpdateTimeMs).
					Float64("memory_usage_mb", snapshot.MemoryUsageMb).
					Float64("cpu_usage_percent", snapshot.CPUUsagePercent).
					Msg("")
			}
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
