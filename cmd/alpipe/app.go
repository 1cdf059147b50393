package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/alpipe/internal/api"
	"github.com/phrazzld/alpipe/internal/config"
	"github.com/phrazzld/alpipe/internal/events"
	"github.com/phrazzld/alpipe/internal/monitor"
	"github.com/phrazzld/alpipe/internal/pipeline"
	"github.com/phrazzld/alpipe/internal/platform/filestore"
	"github.com/phrazzld/alpipe/internal/platform/logger"
	"github.com/phrazzld/alpipe/internal/stage"
	"github.com/phrazzld/alpipe/internal/store"
	"golang.org/x/sync/errgroup"
)

// application holds the wired pipeline and everything that must be
// released on shutdown.
type application struct {
	config     *config.Config
	logger     *slog.Logger
	pools      *pipeline.WorkerPools
	monitor    *monitor.Monitor
	store      store.StatusStore
	controller *pipeline.Controller
	closers    []func() error
}

// newApplication loads the configuration at configPath and wires the
// controller. The worker pools are started before it returns.
func newApplication(ctx context.Context, configPath string) (*application, error) {
	snap, err := config.LoadSnapshot(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := snap.Master

	log, err := logger.Setup(logger.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("configuration loaded",
		"config", configPath,
		"log_level", cfg.LogLevel,
		"tick_interval", cfg.TickInterval.String(),
		"status_backend", cfg.StatusStore.Backend)

	app := &application{config: cfg, logger: log}
	if err := app.wire(ctx, configPath, snap); err != nil {
		app.cleanup()
		return nil, err
	}
	return app, nil
}

func (app *application) wire(ctx context.Context, configPath string, snap *config.Snapshot) error {
	cfg := app.config
	paths := cfg.ResolvedPaths()

	if err := pipeline.PrepareDirectories(paths); err != nil {
		return fmt.Errorf("failed to prepare directories: %w", err)
	}

	statusStore, closeStore, err := openStatusStore(ctx, cfg, paths, app.logger)
	if err != nil {
		return err
	}
	app.closers = append(app.closers, closeStore)
	app.store = statusStore

	status, err := pipeline.RestoreStatus(ctx, statusStore, paths, app.logger)
	if err != nil {
		return fmt.Errorf("failed to restore status: %w", err)
	}

	stages, err := stage.Default().Resolve(cfg.Stages, app.logger)
	if err != nil {
		return fmt.Errorf("failed to resolve stage strategies: %w", err)
	}

	app.pools = pipeline.NewWorkerPools(cfg.Stages, app.logger)
	app.pools.Start()

	app.monitor = monitor.New(app.logger)
	emitter := events.NewInMemoryEventEmitter(app.logger)
	emitter.RegisterHandler(app.monitor)

	reloader := config.NewReloader(snap, func() (*config.Snapshot, error) {
		return config.LoadSnapshot(configPath)
	})
	shards := filestore.NewShardWriter(func() string {
		return reloader.Current().Master.ResolvedPaths().ShardPath
	}, app.logger)

	app.controller, err = pipeline.New(status, pipeline.Deps{
		Reloader:  reloader,
		Stages:    stages,
		Executors: app.pools.Executors(),
		Store:     statusStore,
		Shards:    shards,
		Emitter:   emitter,
		Logger:    app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	return nil
}

// run drives the controller and, when a listen address is configured, the
// status server until ctx is cancelled or either of them fails.
func (app *application) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The server has nothing to report once the controller stops.
		defer cancel()
		return app.controller.Run(gctx)
	})

	if addr := app.config.HTTP.ListenAddr; addr != "" {
		var opts []api.RouterOption
		if history, ok := app.store.(api.HistorySource); ok {
			opts = append(opts, api.WithHistory(history))
		}
		router := api.NewRouter(app.monitor, app.monitor.Registry(), app.logger, opts...)
		g.Go(func() error {
			return api.Serve(gctx, addr, router, app.logger)
		})
	}

	return g.Wait()
}

// cleanup stops the worker pools and closes the status store.
func (app *application) cleanup() {
	if app.pools != nil {
		app.pools.Stop()
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error("failed to release resource", "error", err)
		}
	}
	app.logger.Info("shutdown complete")
}
