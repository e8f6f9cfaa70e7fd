package repositories

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// TaskStore reads and writes the task list file.
//
// Files ending in .yaml or .yml use YAML; anything else is JSON. JSON files written by older installations
// with camelCase keys and legacy type names still load.
type TaskStore struct {
	path string
	mu   sync.Mutex
}

// NewTaskStore returns a store for path.
func NewTaskStore(path string) *TaskStore {
	return &TaskStore{path: path}
}

// Path returns the task file location.
func (s *TaskStore) Path() string { return s.path }

func (s *TaskStore) isYAML() bool {
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads and validates every task. A missing file is an empty list.
func (s *TaskStore) Load() ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Task{}, nil
	}

	var tasks []models.Task
	if s.isYAML() {
		err = yaml.Unmarshal(data, &tasks)
	} else {
		err = json.Unmarshal(data, &tasks)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", shared.ErrInvalidTask, s.path, err)
	}

	if err := ValidateTasks(tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Save validates tasks and replaces the file.
func (s *TaskStore) Save(tasks []models.Task) error {
	if err := ValidateTasks(tasks); err != nil {
		return err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}

	var (
		data []byte
		err  error
	)
	if s.isYAML() {
		data, err = yaml.Marshal(tasks)
	} else {
		data, err = json.MarshalIndent(tasks, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return shared.WriteFileAtomic(s.path, data, 0644)
}

// Get loads the file and returns the task with id.
func (s *TaskStore) Get(id string) (models.Task, error) {
	tasks, err := s.Load()
	if err != nil {
		return models.Task{}, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Task{}, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
}

// ValidateTasks checks every task's schema and rejects duplicate ids. All problems are reported together.
func ValidateTasks(tasks []models.Task) error {
	var errs []error
	seen := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
		}
		if t.ID == "" {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			errs = append(errs, fmt.Errorf("entry %d: duplicate id %q", i, t.ID))
		}
		seen[t.ID] = struct{}{}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidTask, err)
	}
	return nil
}
