package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/rankwatch/internal/shared"
)

// Setup creates the config file when missing, prepares data directories and migrates the run journal.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("using existing config", "path", configPath)
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		config, err := shared.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load created config: %w", err)
		}
		r.config = config
		r.configPath = configPath
		r.logger.Info("config file created", "path", configPath)
	}

	config := r.config
	dirs := []string{config.Storage.DataDir, config.Screenshot.Dir, filepath.Dir(config.Database.Path)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	tasksFile := config.Storage.TasksFile
	if _, err := os.Stat(tasksFile); os.IsNotExist(err) {
		if err := r.taskStore().Save(nil); err != nil {
			return fmt.Errorf("failed to create task file: %w", err)
		}
		r.logger.Info("created empty task file", "path", tasksFile)
	}

	r.logger.Info("initializing database", "path", config.Database.Path)
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.writePlain("✓ Setup complete\n")
	r.writePlain("Config:   %s\n", configPath)
	r.writePlain("Tasks:    %s\n", tasksFile)
	r.writePlain("History:  %s\n", config.Storage.DataDir)
	r.writePlain("Journal:  %s\n", config.Database.Path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Add tasks to %s\n", tasksFile)
	r.writePlain("2. Set %s for map pack and web search tasks\n", shared.GoogleAPIKeyEnv)
	r.writePlain("3. Run 'rankwatch run --all'\n")
	return nil
}
