package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
	"github.com/desertthunder/rankwatch/internal/tasks"
)

func selectionFrom(cmd *cli.Command) tasks.Selection {
	sel := tasks.Selection{All: cmd.Bool("all")}
	for _, v := range cmd.StringSlice("task") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				sel.IDs = append(sel.IDs, id)
			}
		}
	}
	return sel
}

// Run executes a ranking run and streams its progress to the terminal.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	sel := selectionFrom(cmd)

	if cmd.Bool("tui") {
		if sel.All || len(sel.IDs) > 0 {
			return r.TUI(ctx, &sel)
		}
		return r.TUI(ctx, nil)
	}
	if !sel.All && len(sel.IDs) == 0 {
		return fmt.Errorf("%w: pass --all or at least one --task", shared.ErrMissingArgument)
	}

	engine, err := r.rankingEngine()
	if err != nil {
		return err
	}

	asJSON := cmd.Bool("json")
	events := make(chan tasks.Event)
	done := make(chan struct{})

	var (
		summary *models.RunSummary
		runErr  error
	)
	go func() {
		defer close(done)
		summary, runErr = engine.Run(ctx, tasks.RunRequest{Selection: sel, Mode: models.ModeInteractive}, events)
	}()

	if !asJSON {
		r.writePlainHeader("Ranking run")
	}
	if err := r.relay(events, asJSON); err != nil {
		r.logger.Warn("failed to write event", "error", err)
	}
	<-done

	if !asJSON && summary != nil {
		r.printSummary(summary)
	}
	return runErr
}

// Check runs one task without writing history.
//
// The task is either a configured id (--task) or assembled from the ad-hoc flags.
func (r *Runner) Check(ctx context.Context, cmd *cli.Command) error {
	task, err := r.checkTask(cmd)
	if err != nil {
		return err
	}

	engine, err := r.rankingEngine()
	if err != nil {
		return err
	}

	asJSON := cmd.Bool("json")
	events := make(chan tasks.Event)
	done := make(chan struct{})

	var (
		result   *models.ExtractionResult
		checkErr error
	)
	go func() {
		defer close(done)
		result, checkErr = engine.Check(ctx, task, events)
	}()

	if !asJSON {
		r.writePlainHeader("Check: " + task.DisplayName())
	}
	if err := r.relay(events, asJSON); err != nil {
		r.logger.Warn("failed to write event", "error", err)
	}
	<-done

	if checkErr == nil && !asJSON && result != nil && result.Screenshot != "" {
		r.writePlain("Screenshot: %s\n", result.Screenshot)
	}
	return checkErr
}

func (r *Runner) checkTask(cmd *cli.Command) (models.Task, error) {
	if id := cmd.String("task"); id != "" {
		return r.taskStore().Get(id)
	}

	raw := cmd.String("provider")
	if raw == "" {
		return models.Task{}, fmt.Errorf("%w: pass --task or --provider with the ad-hoc fields", shared.ErrMissingArgument)
	}
	provider, err := models.ParseProvider(raw)
	if err != nil {
		return models.Task{}, fmt.Errorf("%w: --provider: %v", shared.ErrInvalidFlag, err)
	}

	task := models.Task{
		ID:         "check",
		Provider:   provider,
		Keyword:    cmd.String("keyword"),
		TargetName: cmd.String("target"),
		Location:   cmd.String("location"),
		URL:        cmd.String("url"),
		AreaName:   cmd.String("area"),
	}
	if err := task.Validate(); err != nil {
		return models.Task{}, fmt.Errorf("%w: %w", shared.ErrInvalidTask, err)
	}
	return task, nil
}

// relay writes every event until the producer closes the channel. Write errors stop output, not the drain.
func (r *Runner) relay(events <-chan tasks.Event, asJSON bool) error {
	var firstErr error
	for ev := range events {
		if firstErr != nil {
			continue
		}
		var err error
		if asJSON {
			err = r.writeJSON(ev, false)
		} else {
			err = r.printEvent(ev)
		}
		if err != nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Runner) printEvent(ev tasks.Event) error {
	switch ev.Kind {
	case tasks.EventStatus:
		if ev.TaskName != "" {
			return r.writePlain("  · %s: %s\n", ev.TaskName, ev.Message)
		}
		return r.writePlain("  · %s\n", ev.Message)
	case tasks.EventProgress:
		p := ev.Progress
		return r.writePlain("[%d/%d] %s\n", p.Current, p.Total, p.Task.DisplayName())
	case tasks.EventResult:
		res := ev.Result
		if res.TotalCount > 0 {
			return r.writePlain("  ✓ %s → %s (of %d)\n", res.TaskName, res.Rank, res.TotalCount)
		}
		return r.writePlain("  ✓ %s → %s\n", res.TaskName, res.Rank)
	case tasks.EventError:
		return r.writePlain("  ✗ %s\n", ev.Message)
	case tasks.EventFinalResult:
		res := ev.Final
		if res.PageTitle != "" {
			r.writePlain("Page:  %s\n", res.PageTitle)
		}
		return r.writePlain("Rank:  %s\n", res.Rank)
	case tasks.EventFinalStatus:
		return r.writePlainln("%s", ev.Message)
	}
	return nil
}

func (r *Runner) printSummary(s *models.RunSummary) {
	r.writePlain("Run %s: %s, %d/%d jobs", s.ID, s.State, s.CompletedGroups, s.TotalGroups)
	if s.FailedGroups > 0 {
		r.writePlain(", %d failed", s.FailedGroups)
	}
	r.writePlain(" in %s\n", s.Duration().Round(time.Second))
}
