package models

import (
	"sort"
	"time"
)

// DateLayout is the calendar date format used as the history key.
const DateLayout = "2006/01/02"

// HistoryEntry is one day's measurement for a task.
type HistoryEntry struct {
	Date       string `json:"date"`
	Rank       Rank   `json:"rank"`
	Screenshot string `json:"screenshot,omitempty"`
}

// HistoryRecord is the full time series of one task.
type HistoryRecord struct {
	ID   string         `json:"id"`
	Task Task           `json:"task"`
	Log  []HistoryEntry `json:"log"`
}

// DateKey formats t as a history date key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// Upsert replaces the entry for entry.Date or inserts it, keeping the log date-ascending.
//
// It reports whether a new entry was added.
func (r *HistoryRecord) Upsert(entry HistoryEntry) bool {
	for i := range r.Log {
		if r.Log[i].Date == entry.Date {
			r.Log[i] = entry
			return false
		}
	}
	r.Log = append(r.Log, entry)
	r.SortLog()
	return true
}

// SortLog orders the log by date. Entries with unparseable dates sort first, by string.
func (r *HistoryRecord) SortLog() {
	sort.SliceStable(r.Log, func(i, j int) bool {
		a, errA := time.Parse(DateLayout, r.Log[i].Date)
		b, errB := time.Parse(DateLayout, r.Log[j].Date)
		switch {
		case errA != nil && errB != nil:
			return r.Log[i].Date < r.Log[j].Date
		case errA != nil:
			return true
		case errB != nil:
			return false
		}
		return a.Before(b)
	})
}

// Latest returns the most recent entry.
func (r *HistoryRecord) Latest() (HistoryEntry, bool) {
	if len(r.Log) == 0 {
		return HistoryEntry{}, false
	}
	return r.Log[len(r.Log)-1], true
}
