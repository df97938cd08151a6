package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	corecfg "github.com/edulake/edulake-dwh/internal/core/config"
	"github.com/edulake/edulake-dwh/internal/migrations"
	"github.com/edulake/edulake-dwh/internal/refresh"
	"github.com/edulake/edulake-dwh/internal/snapshot"
	"github.com/edulake/edulake-dwh/internal/warehouse/postgres"
)

func main() {
	configPath := flag.String("config", "dwh.yaml", "Path to configuration file")
	mode := flag.String("mode", "once", "Run mode: once | scheduled")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"snapshots_backend", cfg.Snapshots.Backend,
		"refresh_parallel", cfg.Refresh.Parallel,
		"refresh_dedup_facts", cfg.Refresh.DedupFacts,
	)

	// 2. Initialize Warehouse (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Warehouse.DSN,
		cfg.Warehouse.MaxOpenConns,
		cfg.Warehouse.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize warehouse database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Warehouse Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Warehouse.AutoMigrate); err != nil {
		slog.Error("Failed to run warehouse migrations", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize Snapshot Reader
	reader, closer, err := newReader(ctx, cfg.Snapshots)
	if err != nil {
		slog.Error("Failed to initialize snapshot reader", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	// 4. Resolve Source Mapping
	sources, err := snapshot.LoadSources(cfg.Snapshots.SourcesPath)
	if err != nil {
		slog.Error("Failed to load snapshot sources", "error", err)
		os.Exit(1)
	}

	// 5. Initialize Refresh Runner
	runner := refresh.NewRunner(reader, dbAdapter, refresh.Options{
		Parallel:   cfg.Refresh.Parallel,
		DedupFacts: cfg.Refresh.DedupFacts,
		Sources:    sources,
	})

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	switch *mode {
	case "once":
		result := runner.Run(ctx)
		if !result.OK() {
			slog.Error("Refresh finished with failed tables", "tables", result.Failed())
			os.Exit(1)
		}
	case "scheduled":
		runScheduled(ctx, runner, cfg.Refresh.Interval())
	default:
		slog.Error("Unsupported run mode", "mode", *mode)
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}

// runScheduled executes the refresh on a fixed interval until the context is
// cancelled. A failed run is logged and the schedule keeps going.
func runScheduled(ctx context.Context, runner *refresh.Runner, interval time.Duration) {
	scheduler := gocron.NewScheduler(time.UTC)

	slog.Info("Starting scheduled refresh", "interval", interval)

	_, err := scheduler.Every(interval).Do(func() {
		result := runner.Run(ctx)
		if !result.OK() {
			slog.Error("Scheduled refresh finished with failed tables", "tables", result.Failed())
		}
	})
	if err != nil {
		slog.Error("Failed to schedule refresh job", "error", err)
		os.Exit(1)
	}

	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	slog.Info("Refresh scheduler stopped")
}

// newReader builds the configured snapshot backend. The returned closer is
// nil for backends that hold no connection.
func newReader(ctx context.Context, cfg corecfg.SnapshotsConfig) (snapshot.Reader, io.Closer, error) {
	switch cfg.Backend {
	case corecfg.BackendGCS:
		r, err := snapshot.NewGCSReader(ctx, cfg.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	default:
		return snapshot.NewFSReader(cfg.Root), nil, nil
	}
}
