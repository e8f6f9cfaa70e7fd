package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/desertthunder/rankwatch/internal/extract"
	"github.com/desertthunder/rankwatch/internal/models"
)

// EventKind discriminates the messages of a run's event stream.
type EventKind int

const (
	EventStatus EventKind = iota
	EventProgress
	EventResult
	EventError
	EventFinalResult
	EventFinalStatus
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventProgress:
		return "progress"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventFinalResult:
		return "final_result"
	case EventFinalStatus:
		return "final_status"
	default:
		return ""
	}
}

// Event is one message of a run's event stream. Which fields are set depends on Kind.
type Event struct {
	Kind     EventKind
	Message  string // status, error and final_status text
	TaskName string // optional on status events

	Progress *Progress
	Result   *RankResult
	Final    *models.ExtractionResult

	// Diagnostics for error events.
	URL  string
	HTML string
}

// Progress announces the group about to run.
type Progress struct {
	Current int         `json:"current"`
	Total   int         `json:"total"`
	Task    models.Task `json:"task"`
}

// RankResult is one member's outcome.
type RankResult struct {
	Rank       models.Rank `json:"rank"`
	TotalCount int         `json:"total_count,omitempty"`
	TaskName   string      `json:"task_name"`
	TaskID     string      `json:"task_id"`
}

type statusPayload struct {
	Status   string `json:"status"`
	TaskName string `json:"task_name,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
	URL   string `json:"url,omitempty"`
	HTML  string `json:"html,omitempty"`
}

// MarshalJSON encodes the event as a single-key object named after its kind.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventStatus:
		return json.Marshal(statusPayload{Status: e.Message, TaskName: e.TaskName})
	case EventProgress:
		return json.Marshal(struct {
			Progress *Progress `json:"progress"`
		}{e.Progress})
	case EventResult:
		return json.Marshal(struct {
			Result *RankResult `json:"result"`
		}{e.Result})
	case EventError:
		return json.Marshal(errorPayload{Error: e.Message, URL: e.URL, HTML: e.HTML})
	case EventFinalResult:
		return json.Marshal(struct {
			FinalResult *models.ExtractionResult `json:"final_result"`
		}{e.Final})
	case EventFinalStatus:
		return json.Marshal(struct {
			FinalStatus string `json:"final_status"`
		}{e.Message})
	default:
		return nil, fmt.Errorf("unknown event kind %d", e.Kind)
	}
}

// send delivers ev, blocking until the consumer takes it or ctx ends. A nil channel discards events.
func send(ctx context.Context, events chan<- Event, ev Event) error {
	if events == nil {
		return nil
	}
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func statusEvent(taskName, format string, args ...any) Event {
	return Event{Kind: EventStatus, Message: fmt.Sprintf(format, args...), TaskName: taskName}
}

func progressEvent(current, total int, task models.Task) Event {
	return Event{Kind: EventProgress, Progress: &Progress{Current: current, Total: total, Task: task}}
}

func resultEvent(task models.Task, rank models.Rank, totalCount int) Event {
	return Event{Kind: EventResult, Result: &RankResult{
		Rank:       rank,
		TotalCount: totalCount,
		TaskName:   task.DisplayName(),
		TaskID:     task.ID,
	}}
}

// errorEvent carries page diagnostics when err is an [extract.PipelineError].
func errorEvent(prefix string, err error) Event {
	ev := Event{Kind: EventError, Message: err.Error()}
	if prefix != "" {
		ev.Message = prefix + ": " + ev.Message
	}
	var pe *extract.PipelineError
	if errors.As(err, &pe) {
		ev.URL, ev.HTML = pe.URL, pe.HTML
	}
	return ev
}

func finalResultEvent(res *models.ExtractionResult) Event {
	return Event{Kind: EventFinalResult, Final: res}
}

func finalStatusEvent(format string, args ...any) Event {
	return Event{Kind: EventFinalStatus, Message: fmt.Sprintf(format, args...)}
}

func doneStatus(jobs int) Event {
	return finalStatusEvent("all done (%d jobs)", jobs)
}

func abortedStatus(done, jobs int) Event {
	return finalStatusEvent("aborted after %d of %d jobs", done, jobs)
}
