package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// RunRepository journals finished runs in SQLite.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Record inserts a run and its results, assigning the next sequence number to summary.
func (r *RunRepository) Record(ctx context.Context, summary *models.RunSummary) error {
	if summary.ID == "" {
		summary.ID = shared.GenerateID()
	}

	sequence, err := NextSequence(ctx, r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO runs (
			id, sequence, mode, state, total_groups, total_tasks,
			completed_groups, failed_groups, error_message, started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var errorMessage any = summary.Error
	if summary.Error == "" {
		errorMessage = nil
	}

	var finishedAt any = summary.FinishedAt
	if summary.FinishedAt.IsZero() {
		finishedAt = nil
	}

	_, err = tx.ExecContext(ctx, query,
		summary.ID,
		sequence,
		string(summary.Mode),
		string(summary.State),
		summary.TotalGroups,
		summary.TotalTasks,
		summary.CompletedGroups,
		summary.FailedGroups,
		errorMessage,
		summary.StartedAt,
		finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, res := range summary.Results {
		var screenshot any = res.Screenshot
		if res.Screenshot == "" {
			screenshot = nil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO run_results (run_id, task_id, provider, rank, screenshot, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, summary.ID, res.TaskID, string(res.Provider), res.Rank.String(), screenshot, res.RecordedAt)
		if err != nil {
			return fmt.Errorf("failed to insert run result %s: %w", res.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	summary.Sequence = sequence
	return nil
}

const runColumns = `
	id, sequence, mode, state, total_groups, total_tasks,
	completed_groups, failed_groups, error_message, started_at, finished_at
`

// Get retrieves a run and its results by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.RunSummary, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	summary, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	results, err := r.results(ctx, id)
	if err != nil {
		return nil, err
	}
	summary.Results = results
	return summary, nil
}

// List returns the most recent runs first, without their results. A limit of zero or less returns every run.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*models.RunSummary, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY sequence DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunSummary
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// TaskResults returns every journaled result for a task, newest first.
func (r *RunRepository) TaskResults(ctx context.Context, taskID string) ([]models.RunResult, error) {
	return r.queryResults(ctx, `
		SELECT task_id, provider, rank, screenshot, recorded_at
		FROM run_results
		WHERE task_id = ?
		ORDER BY recorded_at DESC
	`, taskID)
}

func (r *RunRepository) results(ctx context.Context, runID string) ([]models.RunResult, error) {
	return r.queryResults(ctx, `
		SELECT task_id, provider, rank, screenshot, recorded_at
		FROM run_results
		WHERE run_id = ?
		ORDER BY recorded_at, task_id
	`, runID)
}

func (r *RunRepository) queryResults(ctx context.Context, query string, args ...any) ([]models.RunResult, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run results: %w", err)
	}
	defer rows.Close()

	var results []models.RunResult
	for rows.Next() {
		var (
			res        models.RunResult
			provider   string
			rank       string
			screenshot sql.NullString
		)
		if err := rows.Scan(&res.TaskID, &provider, &rank, &screenshot, &res.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run result: %w", err)
		}
		res.Provider = models.Provider(provider)
		if res.Rank, err = models.ParseRank(rank); err != nil {
			return nil, fmt.Errorf("failed to parse rank for %s: %w", res.TaskID, err)
		}
		res.Screenshot = screenshot.String
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans one runs row from a [sql.Row] or [sql.Rows].
func scanRun(row scanner) (*models.RunSummary, error) {
	var (
		summary      models.RunSummary
		mode         string
		state        string
		errorMessage sql.NullString
		startedAt    time.Time
		finishedAt   sql.NullTime
	)

	err := row.Scan(
		&summary.ID, &summary.Sequence, &mode, &state, &summary.TotalGroups, &summary.TotalTasks,
		&summary.CompletedGroups, &summary.FailedGroups, &errorMessage, &startedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	summary.Mode = models.RunMode(mode)
	summary.State = models.RunState(state)
	summary.Error = errorMessage.String
	summary.StartedAt = startedAt
	if finishedAt.Valid {
		summary.FinishedAt = finishedAt.Time
	}
	return &summary, nil
}
