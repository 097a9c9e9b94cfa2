package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/motifd/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file if missing, prepares the output directories
// and initializes the task database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}

	for _, dir := range append([]string{config.Paths.OutputDir}, config.Paths.AllowedRoots...) {
		if dir == "" {
			continue
		}
		if _, err := shared.EnsureDirectory(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	dbPath := config.Quota.SQLitePath
	if dbPath == "" {
		dbPath = "motifd.db"
	}
	r.logger.Info("initializing database", "path", dbPath)

	db, err := shared.NewDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, 4, 2)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", dbPath)

	r.writePlain("✓ motifd is ready\n")
	r.writePlain("Config: %s\n", configPath)
	r.writePlain("Outputs: %s\n", config.Paths.OutputDir)
	r.writePlain("Next: run 'motifd serve' and submit with 'motifd render --input <file.mid>'\n")
	return nil
}
