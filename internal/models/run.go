package models

import "time"

// RunMode selects how a run reports progress.
type RunMode string

const (
	ModeInteractive RunMode = "interactive" // events streamed to a caller
	ModeScheduled   RunMode = "scheduled"   // headless, logs only
	ModeCheck       RunMode = "check"       // ad-hoc single task, no history writes
)

// RunState is the lifecycle position of a run.
type RunState string

const (
	StateInit            RunState = "INIT"
	StateProcessingGroup RunState = "PROCESSING_GROUP"
	StateFinalizing      RunState = "FINALIZING"
	StateDone            RunState = "DONE"
	StateAborted         RunState = "ABORTED"
)

// Terminal reports whether no further transitions follow.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// RunResult is one member's outcome within a run.
type RunResult struct {
	TaskID     string    `json:"task_id"`
	Provider   Provider  `json:"provider"`
	Rank       Rank      `json:"rank"`
	Screenshot string    `json:"screenshot,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RunSummary is the persisted digest of a finished run.
type RunSummary struct {
	ID              string      `json:"id"`
	Sequence        int64       `json:"sequence,omitempty"`
	Mode            RunMode     `json:"mode"`
	State           RunState    `json:"state"`
	TotalGroups     int         `json:"total_groups"`
	TotalTasks      int         `json:"total_tasks"`
	CompletedGroups int         `json:"completed_groups"`
	FailedGroups    int         `json:"failed_groups"`
	Error           string      `json:"error,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at"`
	Results         []RunResult `json:"results,omitempty"`
}

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
