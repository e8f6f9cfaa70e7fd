package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/rankwatch/internal/shared"
	"github.com/desertthunder/rankwatch/internal/tasks"
	"github.com/desertthunder/rankwatch/internal/ui"
)

// TUI launches the interactive task picker and run view. A non-nil autorun starts that selection immediately.
func (r *Runner) TUI(ctx context.Context, autorun *tasks.Selection) error {
	all, err := r.taskStore().Load()
	if err != nil {
		return err
	}
	if len(all) == 0 && autorun == nil {
		return fmt.Errorf("%w: no tasks configured in %s", shared.ErrMissingConfig, r.taskStore().Path())
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(filepath.Join(r.config.Storage.DataDir, "logs", "rankwatch-tui.log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	engine, err := r.rankingEngine()
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, engine, all, autorun)
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	summary, runErr := model.Summary()
	if summary != nil {
		r.printSummary(summary)
	}
	return runErr
}
