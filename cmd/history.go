package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/rankwatch/internal/formatter"
	"github.com/desertthunder/rankwatch/internal/ledger"
	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// TasksList prints the configured tasks.
func (r *Runner) TasksList(ctx context.Context, cmd *cli.Command) error {
	all, err := r.taskStore().Load()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if all == nil {
			all = []models.Task{}
		}
		return r.writeJSON(all, true)
	}

	if len(all) == 0 {
		return r.writePlain("No tasks configured in %s\n", r.taskStore().Path())
	}
	return r.writePlain("%s\n%d tasks\n", formatter.TasksTable(all), len(all))
}

// History prints or exports the recorded ranking history.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	var provider models.Provider
	if raw := cmd.String("provider"); raw != "" {
		p, err := models.ParseProvider(raw)
		if err != nil {
			return fmt.Errorf("%w: --provider: %v", shared.ErrInvalidFlag, err)
		}
		provider = p
	}

	l, err := ledger.Open(r.config.Storage.DataDir)
	if err != nil {
		return err
	}
	records := formatter.Filter(l.All(), provider, cmd.String("task"))

	var data []byte
	switch format := cmd.String("format"); format {
	case "table":
		if len(records) == 0 {
			return r.writePlain("No history recorded yet\n")
		}
		data = []byte(formatter.HistoryTable(records, int(cmd.Int("recent"))) + "\n")
	case "csv":
		if data, err = formatter.HistoryCSV(records); err != nil {
			return err
		}
	case "json":
		if data, err = formatter.HistoryJSON(records); err != nil {
			return err
		}
		data = append(data, '\n')
	default:
		return fmt.Errorf("%w: --format must be table, csv or json, got %q", shared.ErrInvalidFlag, format)
	}

	if out := cmd.String("output"); out != "" {
		if err := shared.WriteFileAtomic(out, data, 0644); err != nil {
			return fmt.Errorf("failed to write history: %w", err)
		}
		r.logger.Info("history written", "path", out, "records", len(records))
		return nil
	}

	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// HistoryMerge folds the history of one task id into another, e.g. after a task was re-created under a new id.
func (r *Runner) HistoryMerge(ctx context.Context, cmd *cli.Command) error {
	from, to := cmd.String("from"), cmd.String("to")
	if from == to {
		return fmt.Errorf("%w: --from and --to must differ", shared.ErrInvalidArgument)
	}

	l, err := ledger.Open(r.config.Storage.DataDir)
	if err != nil {
		return err
	}
	if err := l.Merge(from, to); err != nil {
		return err
	}
	if err := l.Save(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrPersistence, err)
	}

	r.logger.Info("history merged", "from", from, "to", to)
	return r.writePlain("✓ Merged history of %s into %s\n", from, to)
}

// Runs lists journaled runs, newest first.
func (r *Runner) Runs(ctx context.Context, cmd *cli.Command) error {
	journal, err := r.journal()
	if err != nil {
		return err
	}

	runs, err := journal.List(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if runs == nil {
			runs = []*models.RunSummary{}
		}
		return r.writeJSON(runs, true)
	}
	if len(runs) == 0 {
		return r.writePlain("No runs recorded yet\n")
	}
	return r.writePlain("%s\n", formatter.RunsTable(runs))
}

// RunsShow prints one journaled run with its per-task results.
func (r *Runner) RunsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}

	journal, err := r.journal()
	if err != nil {
		return err
	}
	run, err := journal.Get(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(run, true)
	}

	r.writePlain("%s\n", formatter.RunsTable([]*models.RunSummary{run}))
	for _, res := range run.Results {
		line := fmt.Sprintf("  %-12s %-13s %s", res.TaskID, res.Provider, res.Rank)
		if res.Screenshot != "" {
			line += "  " + res.Screenshot
		}
		r.writePlain("%s\n", line)
	}
	return nil
}
