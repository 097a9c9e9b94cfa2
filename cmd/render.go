package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/motifd/internal/formatter"
	"github.com/desertthunder/motifd/internal/services"
	"github.com/desertthunder/motifd/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Render submits a MIDI file to a running server. With --wait (or --output)
// it polls until the task settles; with --output it also downloads the
// artifact.
func (r *Runner) Render(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	client := r.client(cmd, config)

	dest := cmd.String("output")
	wait := cmd.Bool("wait") || dest != ""

	sub, err := client.Submit(ctx, services.RenderRequest{
		InputPath: cmd.String("input"),
		Style:     cmd.String("style"),
		Intensity: cmd.Float("intensity"),
	})
	if err != nil {
		return fmt.Errorf("submission failed: %w", err)
	}
	r.logger.Info("task submitted", "task", sub.TaskID)

	if !wait {
		if cmd.Bool("json") {
			return r.writeJSON(sub, true)
		}
		r.writePlain("Task %s queued\n", sub.TaskID)
		r.writePlain("Poll with: motifd tasks status %s\n", sub.TaskID)
		return nil
	}

	task, err := r.pollUntilTerminal(ctx, client, sub.TaskID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if err := r.writeJSON(task, true); err != nil {
			return err
		}
	} else {
		r.writePlain("%s", formatter.FormatTask(task))
	}

	if task.Status != tasks.StatusSucceeded {
		return fmt.Errorf("task %s finished as %s", task.ID, task.Status)
	}

	if dest != "" {
		if err := client.Download(ctx, task.Result.AudioURL, dest); err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		r.writePlain("Saved audio to %s\n", dest)
	}
	return nil
}

// pollUntilTerminal polls the task once a second until it settles.
func (r *Runner) pollUntilTerminal(ctx context.Context, client *services.Client, id string) (*tasks.Task, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		task, err := client.Task(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to poll task: %w", err)
		}
		if task.Status.Terminal() {
			return task, nil
		}
		r.logger.Debug("task in progress", "task", id, "status", task.Status, "progress", task.Progress)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
