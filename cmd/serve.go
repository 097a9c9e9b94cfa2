package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/desertthunder/motifd/internal/auth"
	"github.com/desertthunder/motifd/internal/paths"
	"github.com/desertthunder/motifd/internal/providers"
	"github.com/desertthunder/motifd/internal/quota"
	"github.com/desertthunder/motifd/internal/repositories"
	"github.com/desertthunder/motifd/internal/server"
	"github.com/desertthunder/motifd/internal/shared"
	"github.com/desertthunder/motifd/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve wires the full stack (gate, ledger, guard, provider, scheduler,
// HTTP server) and runs until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	if host := cmd.String("host"); host != "" {
		config.Server.Host = host
	}
	if port := cmd.Int("port"); port != 0 {
		config.Server.Port = int(port)
	}
	if err := config.Validate(); err != nil {
		return err
	}

	gate := auth.NewGate(config.Auth)

	roots := config.Paths.AllowedRoots
	if len(roots) == 0 {
		roots = []string{config.Paths.OutputDir}
	}
	guard, err := paths.NewGuard(roots...)
	if err != nil {
		return fmt.Errorf("failed to initialize path guard: %w", err)
	}

	if _, err := shared.EnsureDirectory(config.Paths.OutputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	store, archive, cleanup, err := r.buildStores(config)
	if err != nil {
		return err
	}
	defer cleanup()

	provider, err := providers.New(config.ActiveProvider(), config.Paths.OutputDir, config.Render.RetryAttempts, r.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize provider: %w", err)
	}
	r.logger.Info("provider ready", "name", provider.Name())

	scheduler := tasks.NewScheduler(tasks.SchedulerOpts{
		Gate:        gate,
		Ledger:      quota.NewLedger(config.Quota.DailyLimit, gate, store),
		Guard:       guard,
		Provider:    provider,
		Archive:     archive,
		OutputDir:   config.Paths.OutputDir,
		Concurrency: config.Render.Concurrency,
		Logger:      r.logger,
	})

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler.Start(runCtx)
	defer scheduler.Stop()

	srv := server.New(*config, scheduler, gate, guard, r.logger)
	return srv.Start(runCtx)
}

// buildStores selects the quota counter store from the configured backend
// and opens the task archive when a database path is configured.
func (r *Runner) buildStores(config *shared.Config) (quota.CounterStore, tasks.Archive, func(), error) {
	cleanup := func() {}

	var archive tasks.Archive
	dbPath := config.Quota.SQLitePath
	if dbPath == "" && config.Quota.Backend == "sqlite" {
		dbPath = "motifd.db"
	}

	var sqliteStore *quota.SQLiteStore
	if dbPath != "" {
		db, err := shared.NewDatabase(dbPath)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, 4, 2)
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, nil, cleanup, fmt.Errorf("failed to run migrations: %w", err)
		}
		cleanup = func() { db.Close() }
		archive = repositories.NewTaskRepository(db)
		sqliteStore = quota.NewSQLiteStore(db)
	}

	switch config.Quota.Backend {
	case "sqlite":
		if sqliteStore == nil {
			return nil, nil, cleanup, fmt.Errorf("%w: sqlite quota backend requires a database path", shared.ErrInvalidConfig)
		}
		return sqliteStore, archive, cleanup, nil
	case "redis":
		store := quota.NewRedisStore(config.Quota.RedisAddr)
		prev := cleanup
		cleanup = func() { store.Close(); prev() }
		return store, archive, cleanup, nil
	default:
		return quota.NewMemoryStore(), archive, cleanup, nil
	}
}
