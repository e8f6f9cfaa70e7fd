package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

func mapTask(id, target string) models.Task {
	return models.Task{ID: id, Provider: models.ProviderMapPack, Keyword: "ネイル", Location: "渋谷駅", TargetName: target}
}

func mustOpen(t *testing.T, dir string) *Ledger {
	t.Helper()
	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return l
}

func TestLedgerUpsert(t *testing.T) {
	t.Run("repeated upsert for same date keeps one entry", func(t *testing.T) {
		l := mustOpen(t, t.TempDir())
		task := mapTask("m1", "Salon")

		for i := 0; i < 3; i++ {
			if err := l.Upsert(task, "2024/06/01", models.Position(5), "a.jpg"); err != nil {
				t.Fatal(err)
			}
		}
		rec, ok := l.Find("m1")
		if !ok || len(rec.Log) != 1 {
			t.Fatalf("expected one entry, got %+v", rec)
		}
	})

	t.Run("second differing call wins", func(t *testing.T) {
		l := mustOpen(t, t.TempDir())
		task := mapTask("m1", "Salon")

		l.Upsert(task, "2024/06/01", models.Position(5), "a.jpg")
		l.Upsert(task, "2024/06/01", models.NoPanel, "b.jpg")

		rec, _ := l.Find("m1")
		if rec.Log[0].Rank != models.NoPanel || rec.Log[0].Screenshot != "b.jpg" {
			t.Errorf("expected NO_PANEL/b.jpg, got %+v", rec.Log[0])
		}
	})

	t.Run("task snapshot refreshed", func(t *testing.T) {
		l := mustOpen(t, t.TempDir())
		task := models.Task{ID: "f1", Provider: models.ProviderFeaturePage, URL: "https://x/", TargetName: "S"}
		l.Upsert(task, "2024/06/01", models.Position(1), "")
		task.Title = "特集"
		l.Upsert(task, "2024/06/02", models.Position(2), "")

		rec, _ := l.Find("f1")
		if rec.Task.Title != "特集" {
			t.Errorf("expected refreshed title, got %q", rec.Task.Title)
		}
	})

	t.Run("out of order dates stay sorted", func(t *testing.T) {
		l := mustOpen(t, t.TempDir())
		task := mapTask("m1", "Salon")
		for _, d := range []string{"2024/06/03", "2024/06/01", "2024/06/02"} {
			l.Upsert(task, d, models.Position(1), "")
		}
		rec, _ := l.Find("m1")
		for i := 1; i < len(rec.Log); i++ {
			if rec.Log[i-1].Date >= rec.Log[i].Date {
				t.Fatalf("log not ascending: %+v", rec.Log)
			}
		}
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		l := mustOpen(t, t.TempDir())
		err := l.Upsert(models.Task{ID: "x", Provider: "bing"}, "2024/06/01", models.NotFound, "")
		if !errors.Is(err, shared.ErrUnknownProvider) {
			t.Errorf("expected ErrUnknownProvider, got %v", err)
		}
	})
}

func TestLedgerPersistence(t *testing.T) {
	t.Run("save then reopen round trips every partition", func(t *testing.T) {
		dir := t.TempDir()
		l := mustOpen(t, dir)
		l.Upsert(models.Task{ID: "d1", Provider: models.ProviderDirectory, Keyword: "k", TargetName: "S"}, "2024/06/01", models.Position(3), "d.jpg")
		l.Upsert(mapTask("m1", "S"), "2024/06/01", models.NotFound, "")
		l.Upsert(models.Task{ID: "w1", Provider: models.ProviderWebSearch, Keyword: "k", URL: "u"}, "2024/06/01", models.Captcha, "w.jpg")

		if err := l.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		for _, p := range models.Providers {
			if _, err := os.Stat(filepath.Join(dir, FileName(p))); err != nil {
				t.Errorf("partition %s not written: %v", p, err)
			}
		}

		again := mustOpen(t, dir)
		if got := again.Partition(models.ProviderDirectory).Len(); got != 1 {
			t.Errorf("directory partition has %d records", got)
		}
		rec, ok := again.Find("w1")
		if !ok || rec.Log[0].Rank != models.Captcha {
			t.Errorf("web search record lost: %+v", rec)
		}
		if len(again.All()) != 3 {
			t.Errorf("expected 3 records, got %d", len(again.All()))
		}
	})

	t.Run("reads legacy partition names and values", func(t *testing.T) {
		dir := t.TempDir()
		legacy := `[{"id":"g1","task":{"id":"g1","type":"google","keyword":"k","searchLocation":"L","salonName":"S"},
			"log":[{"date":"2024/06/02","rank":"枠無","screenshot":null},{"date":"2024/06/01","rank":4,"screenshot":"x.jpg"}]}]`
		if err := os.WriteFile(filepath.Join(dir, "history_meo.json"), []byte(legacy), 0644); err != nil {
			t.Fatal(err)
		}

		l := mustOpen(t, dir)
		rec, ok := l.Find("g1")
		if !ok {
			t.Fatal("legacy record not loaded")
		}
		if rec.Task.Provider != models.ProviderMapPack || rec.Task.Location != "L" {
			t.Errorf("legacy task not mapped: %+v", rec.Task)
		}
		if rec.Log[0].Date != "2024/06/01" || rec.Log[1].Rank != models.NoPanel {
			t.Errorf("legacy log not normalized: %+v", rec.Log)
		}

		if err := l.Save(); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(dir, FileName(models.ProviderMapPack))); err != nil {
			t.Errorf("save should write the current partition name: %v", err)
		}
	})

	t.Run("repeated dates in a file collapse on load", func(t *testing.T) {
		dir := t.TempDir()
		data := `[{"id":"m1","task":{"id":"m1","provider":"map_pack","keyword":"k","location":"L","target_name":"S"},
			"log":[{"date":"2024/06/01","rank":3},{"date":"2024/05/31","rank":9},{"date":"2024/06/01","rank":5}]}]`
		if err := os.WriteFile(filepath.Join(dir, FileName(models.ProviderMapPack)), []byte(data), 0644); err != nil {
			t.Fatal(err)
		}

		l := mustOpen(t, dir)
		rec, _ := l.Find("m1")
		if len(rec.Log) != 2 || rec.Log[1].Rank != models.Position(5) {
			t.Fatalf("expected later entry to win, got %+v", rec.Log)
		}

		if err := l.Upsert(mapTask("m1", "S"), "2024/06/01", models.Position(7), ""); err != nil {
			t.Fatal(err)
		}
		if err := l.Save(); err != nil {
			t.Fatal(err)
		}
		rec, _ = mustOpen(t, dir).Find("m1")
		if len(rec.Log) != 2 || rec.Log[0].Date != "2024/05/31" || rec.Log[1].Rank != models.Position(7) {
			t.Errorf("expected one entry per date, got %+v", rec.Log)
		}
	})

	t.Run("corrupt partition is an error", func(t *testing.T) {
		dir := t.TempDir()
		os.WriteFile(filepath.Join(dir, FileName(models.ProviderWebSearch)), []byte("{not json"), 0644)
		if _, err := Open(dir); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("save failure is a persistence error", func(t *testing.T) {
		dir := t.TempDir()
		l := mustOpen(t, dir)
		blocker := filepath.Join(dir, "blocker")
		os.WriteFile(blocker, []byte("x"), 0644)
		l.dir = blocker
		for _, p := range l.partitions {
			p.path = filepath.Join(blocker, FileName(p.provider))
		}
		if err := l.Save(); !errors.Is(err, shared.ErrPersistence) {
			t.Errorf("expected ErrPersistence, got %v", err)
		}
	})
}

func TestPartitionMerge(t *testing.T) {
	t.Run("folds logs keeping better rank", func(t *testing.T) {
		l := mustOpen(t, t.TempDir())
		l.Upsert(mapTask("old", "Old Name"), "2024/06/01", models.Position(8), "")
		l.Upsert(mapTask("old", "Old Name"), "2024/06/02", models.Position(2), "")
		l.Upsert(mapTask("new", "New Name"), "2024/06/02", models.Position(5), "")
		l.Upsert(mapTask("new", "New Name"), "2024/06/03", models.NotFound, "")

		if err := l.Merge("old", "new"); err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if _, ok := l.Find("old"); ok {
			t.Error("source record should be removed")
		}
		rec, _ := l.Find("new")
		want := []models.Rank{models.Position(8), models.Position(2), models.NotFound}
		if len(rec.Log) != len(want) {
			t.Fatalf("unexpected log %+v", rec.Log)
		}
		for i, r := range want {
			if rec.Log[i].Rank != r {
				t.Errorf("log[%d] = %v, want %v", i, rec.Log[i].Rank, r)
			}
		}
	})

	t.Run("renames when target absent", func(t *testing.T) {
		l := mustOpen(t, t.TempDir())
		l.Upsert(mapTask("m1", "S"), "2024/06/01", models.Position(1), "")
		if err := l.Merge("m1", "[google]-m1"); err != nil {
			t.Fatal(err)
		}
		rec, ok := l.Find("[google]-m1")
		if !ok || rec.Task.ID != "[google]-m1" {
			t.Errorf("rename failed: %+v", rec)
		}
	})

	t.Run("unknown source", func(t *testing.T) {
		l := mustOpen(t, t.TempDir())
		if err := l.Merge("missing", "x"); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
	})
}

func TestSavedJSONShape(t *testing.T) {
	dir := t.TempDir()
	l := mustOpen(t, dir)
	l.Upsert(models.Task{ID: "d1", Provider: models.ProviderDirectory, Keyword: "k", TargetName: "S"}, "2024/06/01", models.Position(25), "")
	if err := l.Save(); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, FileName(models.ProviderDirectory)))
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	log := raw[0]["log"].([]any)[0].(map[string]any)
	if log["rank"] != float64(25) || log["date"] != "2024/06/01" {
		t.Errorf("unexpected entry %v", log)
	}
}
