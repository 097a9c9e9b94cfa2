package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/motifd/internal/formatter"
	"github.com/desertthunder/motifd/internal/repositories"
	"github.com/desertthunder/motifd/internal/shared"
	"github.com/desertthunder/motifd/internal/ui"
	"github.com/urfave/cli/v3"
)

// TasksStatus fetches and prints one task snapshot.
func (r *Runner) TasksStatus(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: a task id argument is required", shared.ErrValidation)
	}

	config := r.loadConfig(cmd)
	task, err := r.client(cmd, config).Task(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(task, true)
	}
	return r.writePlain("%s", formatter.FormatTask(task))
}

// TasksCancel requests cancellation and prints the resulting snapshot.
func (r *Runner) TasksCancel(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: a task id argument is required", shared.ErrValidation)
	}

	config := r.loadConfig(cmd)
	task, err := r.client(cmd, config).Cancel(ctx, id)
	if err != nil {
		return err
	}

	return r.writePlain("%s", formatter.FormatTask(task))
}

// TasksWatch launches the interactive watcher for one task.
func (r *Runner) TasksWatch(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: a task id argument is required", shared.ErrValidation)
	}

	config := r.loadConfig(cmd)

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/motifd-watch.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model := ui.NewModel(ctx, r.client(cmd, config), id)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// TasksHistory lists archived terminal tasks from the local database.
func (r *Runner) TasksHistory(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	dbPath := config.Quota.SQLitePath
	if dbPath == "" {
		dbPath = "motifd.db"
	}

	db, err := shared.NewDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	repo := repositories.NewTaskRepository(db)
	records, err := repo.List(cmd.String("owner"), int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return r.writePlain("No archived tasks\n")
	}

	if csvPath := cmd.String("csv"); csvPath != "" {
		written, err := formatter.WriteCSVExport(records, csvPath)
		if err != nil {
			return err
		}
		return r.writePlain("Exported %d records to %s\n", len(records), written)
	}

	return r.writePlain("%s", formatter.FormatHistory(records))
}
