// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func clientFlags() []cli.Flag {
	return []cli.Flag{
		configFlag(),
		&cli.StringFlag{
			Name:  "server",
			Usage: "Base URL of a running motifd server (default derived from config)",
		},
		&cli.StringFlag{
			Name:  "token",
			Usage: "Bearer token (default: first configured token)",
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml and initialize the task database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// serveCommand starts the render task server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the render task server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "host",
				Usage: "Override the configured bind host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Override the configured port",
			},
		},
		Action: r.Serve,
	}
}

// renderCommand submits render tasks against a running server.
func renderCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "Submit a MIDI file for rendering",
		Flags: append(clientFlags(),
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Path to the MIDI file (must be inside a permitted root)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "style",
				Usage: "Rendering style prompt",
			},
			&cli.FloatFlag{
				Name:  "intensity",
				Usage: "Render intensity between 0 and 1",
				Value: 0.5,
			},
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Poll until the task settles and print the final snapshot",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Download the artifact to this path (implies --wait)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		),
		Action: r.Render,
	}
}

// tasksCommand handles the task lifecycle against a running server.
func tasksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect and manage render tasks",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show a task snapshot",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: append(clientFlags(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				),
				Action: r.TasksStatus,
			},
			{
				Name:  "cancel",
				Usage: "Request cancellation of a task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  clientFlags(),
				Action: r.TasksCancel,
			},
			{
				Name:    "watch",
				Aliases: []string{"ui"},
				Usage:   "Watch a task interactively until it settles",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  clientFlags(),
				Action: r.TasksWatch,
			},
			{
				Name:  "history",
				Usage: "List archived terminal tasks from the local database",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "owner",
						Usage: "Only show tasks for this owner",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of records",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "csv",
						Usage: "Export the records to this CSV file instead of printing",
					},
				},
				Action: r.TasksHistory,
			},
		},
	}
}
