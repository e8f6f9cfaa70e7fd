// Package ledger stores per-task ranking history as one JSON file per provider.
//
// A [Ledger] is loaded in full at the start of a run, mutated in memory through [Partition.Upsert], and written
// back by [Ledger.Save] with a temp-file-then-rename so concurrent readers only ever see complete files.
// A Ledger is owned by one goroutine at a time; read-only callers should [Open] their own copy.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// legacyFiles are the partition names used by older installations.
var legacyFiles = map[models.Provider]string{
	models.ProviderDirectory:   "history_normal.json",
	models.ProviderFeaturePage: "history_special.json",
	models.ProviderMapPack:     "history_meo.json",
	models.ProviderWebSearch:   "history_seo.json",
}

// Ledger holds one [Partition] per provider.
type Ledger struct {
	dir        string
	partitions map[models.Provider]*Partition
}

// FileName returns the partition file name for p.
func FileName(p models.Provider) string {
	return fmt.Sprintf("history_%s.json", p)
}

// Open loads every partition under dir. Missing files yield empty partitions.
func Open(dir string) (*Ledger, error) {
	l := &Ledger{dir: dir, partitions: make(map[models.Provider]*Partition, len(models.Providers))}
	for _, p := range models.Providers {
		part, err := loadPartition(dir, p)
		if err != nil {
			return nil, err
		}
		l.partitions[p] = part
	}
	return l, nil
}

// Dir returns the directory the ledger reads from and writes to.
func (l *Ledger) Dir() string { return l.dir }

// Partition returns the partition for p, or nil for an unknown provider.
func (l *Ledger) Partition(p models.Provider) *Partition {
	return l.partitions[p]
}

// Upsert records rank for task on date in the task's provider partition.
func (l *Ledger) Upsert(task models.Task, date string, rank models.Rank, screenshot string) error {
	part := l.Partition(task.Provider)
	if part == nil {
		return fmt.Errorf("%w: %q", shared.ErrUnknownProvider, task.Provider)
	}
	part.Upsert(task, date, rank, screenshot)
	return nil
}

// All returns every record across partitions in provider order.
func (l *Ledger) All() []models.HistoryRecord {
	var out []models.HistoryRecord
	for _, p := range models.Providers {
		out = append(out, l.partitions[p].Records()...)
	}
	return out
}

// Find looks a task id up across partitions.
func (l *Ledger) Find(id string) (models.HistoryRecord, bool) {
	for _, p := range models.Providers {
		if rec, ok := l.partitions[p].Find(id); ok {
			return rec, true
		}
	}
	return models.HistoryRecord{}, false
}

// Merge folds the record for from into to within whichever partition holds from.
func (l *Ledger) Merge(from, to string) error {
	for _, p := range models.Providers {
		part := l.partitions[p]
		if _, ok := part.index[from]; ok {
			return part.Merge(from, to)
		}
	}
	return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, from)
}

// Save writes every partition. All partitions are attempted and the errors are joined.
func (l *Ledger) Save() error {
	var errs []error
	for _, p := range models.Providers {
		if err := l.partitions[p].save(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPersistence, err)
	}
	return nil
}

// Partition is the history of every task of one provider.
type Partition struct {
	provider models.Provider
	path     string
	records  []*models.HistoryRecord
	index    map[string]int
}

func loadPartition(dir string, p models.Provider) (*Partition, error) {
	part := &Partition{provider: p, path: filepath.Join(dir, FileName(p)), index: map[string]int{}}

	source := part.path
	if _, err := os.Stat(source); errors.Is(err, os.ErrNotExist) {
		source = filepath.Join(dir, legacyFiles[p])
	}

	data, err := os.ReadFile(source)
	if errors.Is(err, os.ErrNotExist) {
		return part, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history %s: %w", source, err)
	}
	if len(data) == 0 {
		return part, nil
	}

	var records []*models.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", source, err)
	}
	for _, rec := range records {
		if rec == nil || rec.ID == "" {
			continue
		}
		foldDates(rec)
		rec.SortLog()
		if i, dup := part.index[rec.ID]; dup {
			mergeLogs(part.records[i], rec)
			continue
		}
		part.index[rec.ID] = len(part.records)
		part.records = append(part.records, rec)
	}
	return part, nil
}

// Provider returns the partition's provider.
func (p *Partition) Provider() models.Provider { return p.provider }

// Len returns the number of task records.
func (p *Partition) Len() int { return len(p.records) }

// Upsert sets the entry for (task.ID, date), creating the record if needed.
//
// The stored task snapshot is refreshed with every call.
func (p *Partition) Upsert(task models.Task, date string, rank models.Rank, screenshot string) {
	entry := models.HistoryEntry{Date: date, Rank: rank, Screenshot: screenshot}
	if i, ok := p.index[task.ID]; ok {
		rec := p.records[i]
		rec.Task = task
		rec.Upsert(entry)
		return
	}
	p.index[task.ID] = len(p.records)
	p.records = append(p.records, &models.HistoryRecord{ID: task.ID, Task: task, Log: []models.HistoryEntry{entry}})
}

// Find returns a copy of the record for id.
func (p *Partition) Find(id string) (models.HistoryRecord, bool) {
	i, ok := p.index[id]
	if !ok {
		return models.HistoryRecord{}, false
	}
	return copyRecord(p.records[i]), true
}

// Records returns copies of every record in insertion order.
func (p *Partition) Records() []models.HistoryRecord {
	out := make([]models.HistoryRecord, len(p.records))
	for i, rec := range p.records {
		out[i] = copyRecord(rec)
	}
	return out
}

// Merge folds the history of from into to and removes from.
//
// When to does not exist, from is renamed. Where both have an entry for the same date the better rank wins:
// a position beats a sentinel and a smaller position beats a larger one.
func (p *Partition) Merge(from, to string) error {
	fi, ok := p.index[from]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, from)
	}
	if from == to {
		return nil
	}
	src := p.records[fi]

	if ti, exists := p.index[to]; exists {
		mergeLogs(p.records[ti], src)
		p.remove(from)
		return nil
	}

	src.ID = to
	src.Task.ID = to
	delete(p.index, from)
	p.index[to] = fi
	return nil
}

func (p *Partition) remove(id string) {
	i := p.index[id]
	p.records = append(p.records[:i], p.records[i+1:]...)
	p.index = make(map[string]int, len(p.records))
	for j, rec := range p.records {
		p.index[rec.ID] = j
	}
}

func (p *Partition) save() error {
	records := p.records
	if records == nil {
		records = []*models.HistoryRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history %s: %w", p.provider, err)
	}
	if err := shared.WriteFileAtomic(p.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write history %s: %w", p.provider, err)
	}
	return nil
}

// mergeLogs folds src's entries into dst, keeping the better rank per date.
func mergeLogs(dst, src *models.HistoryRecord) {
	byDate := make(map[string]int, len(dst.Log))
	for i, e := range dst.Log {
		byDate[e.Date] = i
	}
	for _, e := range src.Log {
		i, ok := byDate[e.Date]
		if !ok {
			byDate[e.Date] = len(dst.Log)
			dst.Log = append(dst.Log, e)
			continue
		}
		if better(e.Rank, dst.Log[i].Rank) {
			dst.Log[i] = e
		}
	}
	dst.SortLog()
}

// foldDates collapses repeated dates in rec's log. The later entry wins.
func foldDates(rec *models.HistoryRecord) {
	byDate := make(map[string]int, len(rec.Log))
	out := rec.Log[:0]
	for _, e := range rec.Log {
		if i, ok := byDate[e.Date]; ok {
			out[i] = e
			continue
		}
		byDate[e.Date] = len(out)
		out = append(out, e)
	}
	rec.Log = out
}

func better(candidate, current models.Rank) bool {
	c, cok := candidate.Int()
	n, nok := current.Int()
	switch {
	case cok && !nok:
		return true
	case cok && nok:
		return c < n
	}
	return false
}

func copyRecord(rec *models.HistoryRecord) models.HistoryRecord {
	out := *rec
	out.Log = append([]models.HistoryEntry(nil), rec.Log...)
	return out
}

// SortByID orders records by task id. Used by read-only listings.
func SortByID(records []models.HistoryRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}
