package formatter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/rankwatch/internal/models"
)

func history() []models.HistoryRecord {
	return []models.HistoryRecord{
		{
			ID:   "d1",
			Task: models.Task{ID: "d1", Provider: models.ProviderDirectory, AreaName: "渋谷", Keyword: "ネイル"},
			Log: []models.HistoryEntry{
				{Date: "2024/06/01", Rank: models.Position(12)},
				{Date: "2024/06/02", Rank: models.Position(4)},
			},
		},
		{
			ID:   "m1",
			Task: models.Task{ID: "m1", Provider: models.ProviderMapPack, TargetName: "Salon", Location: "渋谷駅", Keyword: "ネイル"},
			Log: []models.HistoryEntry{
				{Date: "2024/05/31", Rank: models.Position(3)},
				{Date: "2024/06/02", Rank: models.NotFound},
			},
		},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur models.Rank
		want      Movement
	}{
		{name: "sharp rise", prev: models.Position(12), cur: models.Position(4), want: SharpRise},
		{name: "rise", prev: models.Position(5), cur: models.Position(3), want: Rise},
		{name: "same", prev: models.Position(5), cur: models.Position(5), want: Unchanged},
		{name: "fall", prev: models.Position(2), cur: models.Position(5), want: Fall},
		{name: "drop out", prev: models.Position(3), cur: models.NotFound, want: SharpFall},
		{name: "sentinels compare equal", prev: models.Captcha, cur: models.NotFound, want: Unchanged},
		{name: "re-entry", prev: models.NoPanel, cur: models.Position(99), want: Rise},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.prev, tt.cur); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTrend(t *testing.T) {
	recs := history()
	if latest, move := Trend(recs[0]); latest != models.Position(4) || move != SharpRise {
		t.Errorf("unexpected trend %s %s", latest, move)
	}
	if latest, move := Trend(models.HistoryRecord{Log: []models.HistoryEntry{{Rank: models.Position(1)}}}); latest != models.Position(1) || move != Unchanged {
		t.Errorf("unexpected single-entry trend %s %s", latest, move)
	}
	if latest, _ := Trend(models.HistoryRecord{}); !latest.IsZero() {
		t.Errorf("expected zero rank, got %s", latest)
	}
}

func TestDatesAndFilter(t *testing.T) {
	dates := Dates(history())
	want := []string{"2024/05/31", "2024/06/01", "2024/06/02"}
	if strings.Join(dates, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, dates)
	}

	if got := Filter(history(), models.ProviderMapPack, ""); len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("unexpected provider filter: %+v", got)
	}
	if got := Filter(history(), "", "d1"); len(got) != 1 || got[0].ID != "d1" {
		t.Errorf("unexpected id filter: %+v", got)
	}
	if got := Filter(history(), "", ""); len(got) != 2 {
		t.Errorf("expected everything, got %d", len(got))
	}
}

func TestExporters(t *testing.T) {
	t.Run("HistoryCSV", func(t *testing.T) {
		data, err := HistoryCSV(history())
		if err != nil {
			t.Fatalf("HistoryCSV failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected 3 lines, got %d: %s", len(lines), data)
		}
		if lines[0] != "ID,Provider,Task,2024/05/31,2024/06/01,2024/06/02" {
			t.Errorf("unexpected header %q", lines[0])
		}
		if lines[1] != "d1,directory,[渋谷] ネイル,,12,4" {
			t.Errorf("unexpected d1 row %q", lines[1])
		}
		if lines[2] != "m1,map_pack,[Salon] [渋谷駅] ネイル,3,,NOT_FOUND" {
			t.Errorf("unexpected m1 row %q", lines[2])
		}
	})

	t.Run("HistoryJSON", func(t *testing.T) {
		data, err := HistoryJSON(history())
		if err != nil {
			t.Fatal(err)
		}
		var decoded []models.HistoryRecord
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatal(err)
		}
		if len(decoded) != 2 || decoded[1].Log[1].Rank != models.NotFound {
			t.Errorf("unexpected decode: %+v", decoded)
		}

		empty, _ := HistoryJSON(nil)
		if string(empty) != "[]" {
			t.Errorf("expected [], got %s", empty)
		}
	})

	t.Run("HistoryTable", func(t *testing.T) {
		out := HistoryTable(history(), 2)
		for _, want := range []string{"d1", "m1", "NOT_FOUND", "▲▲", "▼▼", "2024/06/02"} {
			if !strings.Contains(out, want) {
				t.Errorf("table missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "2024/05/31") {
			t.Errorf("expected only the 2 most recent dates:\n%s", out)
		}
	})

	t.Run("TasksTable", func(t *testing.T) {
		out := TasksTable([]models.Task{{ID: "w1", Provider: models.ProviderWebSearch, URL: "https://a/", Keyword: "k"}})
		if !strings.Contains(out, "w1") || !strings.Contains(out, "web_search") {
			t.Errorf("unexpected table:\n%s", out)
		}
	})

	t.Run("RunsTable", func(t *testing.T) {
		start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
		out := RunsTable([]*models.RunSummary{{
			Sequence: 7, Mode: models.ModeScheduled, State: models.StateDone,
			TotalGroups: 3, CompletedGroups: 2, FailedGroups: 1,
			StartedAt: start, FinishedAt: start.Add(95 * time.Second),
		}})
		for _, want := range []string{"7", "scheduled", "DONE", "2/3", "1m35s"} {
			if !strings.Contains(out, want) {
				t.Errorf("table missing %q:\n%s", want, out)
			}
		}
	})
}
