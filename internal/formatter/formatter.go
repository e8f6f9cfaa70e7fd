// package formatter renders ranking history, tasks and runs as terminal tables, CSV and JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// OutOfRangeRank is the chart value for sentinels, placing them below every real position.
const OutOfRangeRank = 101

// sharpMove is the rank change that counts as a sharp rise or fall.
const sharpMove = 5

// ChartValue maps a rank onto a plottable position. Sentinels and missing ranks become [OutOfRangeRank].
func ChartValue(r models.Rank) int {
	if n, ok := r.Int(); ok && n < OutOfRangeRank {
		return n
	}
	return OutOfRangeRank
}

// Movement classifies the change between two consecutive measurements.
type Movement int

const (
	Unchanged Movement = iota
	SharpRise
	Rise
	Fall
	SharpFall
)

func (m Movement) String() string {
	switch m {
	case SharpRise:
		return "▲▲"
	case Rise:
		return "▲"
	case Fall:
		return "▼"
	case SharpFall:
		return "▼▼"
	default:
		return "-"
	}
}

// Classify compares cur against prev. A lower position is a rise.
func Classify(prev, cur models.Rank) Movement {
	delta := ChartValue(cur) - ChartValue(prev)
	switch {
	case delta <= -sharpMove:
		return SharpRise
	case delta < 0:
		return Rise
	case delta >= sharpMove:
		return SharpFall
	case delta > 0:
		return Fall
	default:
		return Unchanged
	}
}

// Trend returns the latest rank and its movement from the entry before it.
func Trend(rec models.HistoryRecord) (latest models.Rank, move Movement) {
	n := len(rec.Log)
	if n == 0 {
		return models.Rank{}, Unchanged
	}
	latest = rec.Log[n-1].Rank
	if n == 1 {
		return latest, Unchanged
	}
	return latest, Classify(rec.Log[n-2].Rank, latest)
}

// Dates lists every date present across records, ascending.
func Dates(records []models.HistoryRecord) []string {
	seen := map[string]struct{}{}
	for _, rec := range records {
		for _, e := range rec.Log {
			seen[e.Date] = struct{}{}
		}
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Filter keeps records for provider and task id. Empty values match everything.
func Filter(records []models.HistoryRecord, provider models.Provider, taskID string) []models.HistoryRecord {
	var out []models.HistoryRecord
	for _, rec := range records {
		if provider != "" && rec.Task.Provider != provider {
			continue
		}
		if taskID != "" && rec.ID != taskID {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// HistoryCSV renders a task × date matrix: one row per record and one column per date.
func HistoryCSV(records []models.HistoryRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	dates := Dates(records)
	headers := append([]string{"ID", "Provider", "Task"}, dates...)
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, rec := range records {
		byDate := make(map[string]models.Rank, len(rec.Log))
		for _, e := range rec.Log {
			byDate[e.Date] = e.Rank
		}
		row := []string{rec.ID, string(rec.Task.Provider), rec.Task.DisplayName()}
		for _, d := range dates {
			row = append(row, byDate[d].String())
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// HistoryJSON renders records as indented JSON.
func HistoryJSON(records []models.HistoryRecord) ([]byte, error) {
	if records == nil {
		records = []models.HistoryRecord{}
	}
	return json.MarshalIndent(records, "", "  ")
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))

	movementStyles = map[Movement]lipgloss.Style{
		SharpRise: cellStyle.Foreground(lipgloss.Color("#34C759")),
		Rise:      cellStyle.Foreground(lipgloss.Color("#007AFF")),
		Fall:      cellStyle.Foreground(lipgloss.Color("#FF9500")),
		SharpFall: cellStyle.Foreground(lipgloss.Color("#FF3B30")),
	}
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

// HistoryTable renders the latest rank, its movement and the last few dates of every record.
func HistoryTable(records []models.HistoryRecord, recent int) string {
	dates := Dates(records)
	if recent > 0 && len(dates) > recent {
		dates = dates[len(dates)-recent:]
	}

	headers := append([]string{"ID", "Task", "Latest", "Move"}, dates...)
	moves := make([]Movement, len(records))
	rows := make([][]string, 0, len(records))
	for i, rec := range records {
		latest, move := Trend(rec)
		moves[i] = move
		byDate := make(map[string]models.Rank, len(rec.Log))
		for _, e := range rec.Log {
			byDate[e.Date] = e.Rank
		}
		row := []string{rec.ID, shared.Truncate(rec.Task.DisplayName(), 40), latest.String(), move.String()}
		for _, d := range dates {
			row = append(row, byDate[d].String())
		}
		rows = append(rows, row)
	}

	return newTable(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 3 && row >= 0 && row < len(moves) {
				if s, ok := movementStyles[moves[row]]; ok {
					return s
				}
			}
			return cellStyle
		}).
		String()
}

// TasksTable renders the configured tasks.
func TasksTable(tasks []models.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{t.ID, string(t.Provider), t.TargetName, shared.Truncate(t.DisplayName(), 48)})
	}
	return newTable("ID", "Provider", "Target", "Task").
		Rows(rows...).
		StyleFunc(plainStyle).
		String()
}

// RunsTable renders journaled runs.
func RunsTable(runs []*models.RunSummary) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(r.Sequence, 10),
			r.StartedAt.Local().Format(time.DateTime),
			string(r.Mode),
			string(r.State),
			fmt.Sprintf("%d/%d", r.CompletedGroups, r.TotalGroups),
			strconv.Itoa(r.FailedGroups),
			r.Duration().Round(time.Second).String(),
			shared.Truncate(r.Error, 40),
		})
	}
	return newTable("#", "Started", "Mode", "State", "Jobs", "Failed", "Took", "Error").
		Rows(rows...).
		StyleFunc(plainStyle).
		String()
}

func plainStyle(row, _ int) lipgloss.Style {
	if row == table.HeaderRow {
		return headerStyle
	}
	return cellStyle
}
