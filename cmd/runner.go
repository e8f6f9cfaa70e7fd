package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/rankwatch/internal/browser"
	"github.com/desertthunder/rankwatch/internal/extract"
	"github.com/desertthunder/rankwatch/internal/repositories"
	"github.com/desertthunder/rankwatch/internal/server"
	"github.com/desertthunder/rankwatch/internal/services"
	"github.com/desertthunder/rankwatch/internal/shared"
	"github.com/desertthunder/rankwatch/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Stores, the journal and the engine are built on first use so read-only commands never start a browser.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer

	tasks  *repositories.TaskStore
	db     *sql.DB
	runs   *repositories.RunRepository
	engine server.Engine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	// Engine replaces the browser-backed ranking engine.
	Engine server.Engine
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		engine:     opts.Engine,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, tasksCommand, runCommand, checkCommand, historyCommand, runsCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before applies the global flags: the log level and the config file, when one exists.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level, err := log.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return ctx, fmt.Errorf("%w: --log-level: %v", shared.ErrInvalidFlag, err)
	}
	shared.SetLogLevel(r.logger, level)

	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}
	return ctx, nil
}

// SetLogger replaces the logger, e.g. while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) taskStore() *repositories.TaskStore {
	if r.tasks == nil {
		r.tasks = repositories.NewTaskStore(r.config.Storage.TasksFile)
	}
	return r.tasks
}

// journal opens the run journal, applying pending migrations.
func (r *Runner) journal() (*repositories.RunRepository, error) {
	if r.runs != nil {
		return r.runs, nil
	}
	db, err := shared.OpenJournal(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open run journal: %w", err)
	}
	r.db = db
	r.runs = repositories.NewRunRepository(db)
	return r.runs, nil
}

// rankingEngine wires the browser-backed engine over the configured stores.
func (r *Runner) rankingEngine() (server.Engine, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	journal, err := r.journal()
	if err != nil {
		return nil, err
	}

	cfg := r.config
	geocoder := services.NewGeocodingService(cfg.Geocoding, nil)
	if !geocoder.Configured() {
		r.logger.Warn("geocoding API key not configured, map pack and web search tasks will fail", "env", shared.GoogleAPIKeyEnv)
	}

	pipelines := extract.NewRegistry(extract.Options{
		Providers: cfg.Providers,
		Geocoder:  geocoder,
		Accuracy:  cfg.Geocoding.Accuracy,
		Snapshots: extract.NewSnapshotter(cfg.Screenshot.Dir, cfg.Screenshot.Quality),
		Settle:    cfg.Browser.Settle.Duration,
		Logger:    r.logger,
	})

	r.engine = tasks.NewRankingEngine(tasks.EngineOpts{
		Tasks:       r.taskStore(),
		HistoryDir:  cfg.Storage.DataDir,
		Pipelines:   pipelines,
		OpenSession: browser.Opener(cfg.Browser, r.logger),
		Pacing:      tasks.PacingFromConfig(cfg.Pacing),
		Journal:     journal,
		Logger:      r.logger,
	})
	return r.engine, nil
}

// Close releases the journal database.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db, r.runs = nil, nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
