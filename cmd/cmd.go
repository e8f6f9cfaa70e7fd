// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

const version = "0.3.0"

func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "rankwatch",
		Usage:   "Track search rankings across directory, feature page, map and web providers",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Before:   r.before,
		Commands: r.register(),
	}
}

// setupCommand initializes configuration, data directories and the run journal.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml, data directories and the run journal database",
		Action: r.Setup,
	}
}

// tasksCommand handles task file operations
func tasksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect configured ranking tasks",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List configured tasks",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TasksList,
			},
		},
	}
}

// runCommand starts a ranking run over the selected tasks.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the ranking engine over selected tasks",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Run every configured task",
			},
			&cli.StringSliceFlag{
				Name:    "task",
				Aliases: []string{"t"},
				Usage:   "Task id to run (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Pick tasks and follow progress in the interactive TUI",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Stream events as newline-delimited JSON",
			},
		},
		Action: r.Run,
	}
}

// checkCommand runs one task ad hoc without touching history.
func checkCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Check one ranking immediately without recording history",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "task",
				Usage: "Configured task id to check",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "Provider for an ad-hoc task (directory, feature_page, map_pack, web_search)",
			},
			&cli.StringFlag{
				Name:  "keyword",
				Usage: "Search keyword",
			},
			&cli.StringFlag{
				Name:  "target",
				Usage: "Target listing name",
			},
			&cli.StringFlag{
				Name:  "location",
				Usage: "Map search location",
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "Feature page URL or tracked site URL",
			},
			&cli.StringFlag{
				Name:  "area",
				Usage: "Directory area name",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Stream events as newline-delimited JSON",
			},
		},
		Action: r.Check,
	}
}

// historyCommand reads and maintains the ranking ledger.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded ranking history",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Only show one provider",
			},
			&cli.StringFlag{
				Name:  "task",
				Usage: "Only show one task id",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (table, csv, json)",
				Value:   "table",
			},
			&cli.IntFlag{
				Name:  "recent",
				Usage: "Number of most recent dates shown in the table",
				Value: 7,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
		},
		Action: r.History,
		Commands: []*cli.Command{
			{
				Name:  "merge",
				Usage: "Fold the history of one task id into another",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "from",
						Usage:    "Task id whose history is moved",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Task id receiving the history",
						Required: true,
					},
				},
				Action: r.HistoryMerge,
			},
		},
	}
}

// runsCommand reads the run journal.
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List journaled runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to list",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Runs,
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show one run with its results",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.RunsShow,
			},
		},
	}
}

// serveCommand runs the dashboard API and the scheduled trigger together.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the dashboard API and run the daily schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the dashboard in the default browser",
			},
			&cli.BoolFlag{
				Name:  "no-schedule",
				Usage: "Disable the scheduled run even when schedule.enabled is set",
			},
		},
		Action: r.Serve,
	}
}
