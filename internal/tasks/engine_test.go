package tasks

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/rankwatch/internal/extract"
	"github.com/desertthunder/rankwatch/internal/ledger"
	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
	tu "github.com/desertthunder/rankwatch/internal/testing"
)

type memTasks struct {
	mu      sync.Mutex
	tasks   []models.Task
	loadErr error
	saveErr error
	saved   [][]models.Task
}

func (m *memTasks) Load() ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]models.Task(nil), m.tasks...), nil
}

func (m *memTasks) Save(tasks []models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, append([]models.Task(nil), tasks...))
	m.tasks = append([]models.Task(nil), tasks...)
	return nil
}

type memJournal struct {
	mu   sync.Mutex
	runs []*models.RunSummary
}

func (j *memJournal) Record(_ context.Context, s *models.RunSummary) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, s)
	return nil
}

func fixed(res *models.ExtractionResult) extract.Pipeline {
	return extract.PipelineFunc(func(ctx context.Context, s extract.Session, q extract.Query, status extract.StatusFunc) (*models.ExtractionResult, error) {
		status("working")
		out := *res
		return &out, nil
	})
}

func failing(err error) extract.Pipeline {
	return extract.PipelineFunc(func(context.Context, extract.Session, extract.Query, extract.StatusFunc) (*models.ExtractionResult, error) {
		return nil, err
	})
}

type harness struct {
	engine  *RankingEngine
	tasks   *memTasks
	journal *memJournal
	session *tu.FakeSession
	dir     string
	opened  int
}

func newHarness(t *testing.T, tasks []models.Task, pipelines extract.Registry) *harness {
	t.Helper()
	h := &harness{
		tasks:   &memTasks{tasks: tasks},
		journal: &memJournal{},
		session: tu.NewFakeSession(nil),
		dir:     t.TempDir(),
	}
	h.engine = NewRankingEngine(EngineOpts{
		Tasks:      h.tasks,
		HistoryDir: h.dir,
		Pipelines:  pipelines,
		OpenSession: func(context.Context) (extract.Session, error) {
			h.opened++
			return h.session, nil
		},
		Journal: h.journal,
		Logger:  shared.NewLogger(nil),
		Now:     func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.Local) },
	})
	return h
}

func (h *harness) run(t *testing.T, req RunRequest) (*models.RunSummary, []Event, error) {
	t.Helper()
	events := make(chan Event, 256)
	summary, err := h.engine.Run(context.Background(), req, events)
	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	return summary, got, err
}

func (h *harness) ledger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(h.dir)
	if err != nil {
		t.Fatalf("ledger.Open failed: %v", err)
	}
	return l
}

func kinds(events []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func rankOf(t *testing.T, l *ledger.Ledger, id string) models.Rank {
	t.Helper()
	rec, ok := l.Find(id)
	if !ok || len(rec.Log) == 0 {
		t.Fatalf("no history for %s", id)
	}
	return rec.Log[len(rec.Log)-1].Rank
}

var (
	dirTask  = models.Task{ID: "d1", Provider: models.ProviderDirectory, Keyword: "ネイル", TargetName: "Salon D", AreaName: "渋谷"}
	mapTaskA = models.Task{ID: "m1", Provider: models.ProviderMapPack, Keyword: "ネイル", Location: "渋谷駅", TargetName: "Salon A"}
	mapTaskZ = models.Task{ID: "m2", Provider: models.ProviderMapPack, Keyword: "ネイル", Location: "渋谷駅", TargetName: "Salon Z"}
)

func mapResult() *models.ExtractionResult {
	return &models.ExtractionResult{
		TotalCount: 3,
		Screenshot: "shot.jpg",
		Listings: []models.Listing{
			{Rank: 1, Label: "Other"},
			{Rank: 2, Label: "Another"},
			{Rank: 3, Label: "Salon A 渋谷店"},
		},
	}
}

func TestRankingEngineRun(t *testing.T) {
	t.Run("groups share one extraction and every member is recorded", func(t *testing.T) {
		mapCalls := 0
		h := newHarness(t, []models.Task{mapTaskA, dirTask, mapTaskZ}, extract.Registry{
			models.ProviderDirectory: fixed(&models.ExtractionResult{Rank: models.Position(25), TotalCount: 80}),
			models.ProviderMapPack: extract.PipelineFunc(func(ctx context.Context, s extract.Session, q extract.Query, status extract.StatusFunc) (*models.ExtractionResult, error) {
				mapCalls++
				if q.Target != "" {
					t.Errorf("grouped query should carry no target, got %q", q.Target)
				}
				return mapResult(), nil
			}),
		})

		summary, events, err := h.run(t, RunRequest{Selection: Selection{All: true}})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if mapCalls != 1 {
			t.Errorf("expected one map extraction, got %d", mapCalls)
		}
		if h.opened != 1 || h.session.Closed() != 1 {
			t.Errorf("expected one session opened and closed, got %d/%d", h.opened, h.session.Closed())
		}

		progress := kinds(events, EventProgress)
		if len(progress) != 2 {
			t.Fatalf("expected 2 progress events, got %d", len(progress))
		}
		if progress[0].Progress.Task.ID != "d1" || progress[1].Progress.Task.ID != "m1" {
			t.Errorf("unexpected group order: %s, %s", progress[0].Progress.Task.ID, progress[1].Progress.Task.ID)
		}
		if progress[1].Progress.Current != 2 || progress[1].Progress.Total != 2 {
			t.Errorf("unexpected progress counters: %+v", progress[1].Progress)
		}

		results := kinds(events, EventResult)
		if len(results) != 3 {
			t.Fatalf("expected 3 result events, got %d", len(results))
		}

		final := events[len(events)-1]
		if final.Kind != EventFinalStatus || final.Message != "all done (2 jobs)" {
			t.Errorf("unexpected final event: %+v", final)
		}

		l := h.ledger(t)
		if got := rankOf(t, l, "m1"); got != models.Position(3) {
			t.Errorf("m1: expected 3, got %s", got)
		}
		if got := rankOf(t, l, "m2"); got != models.NotFound {
			t.Errorf("m2: expected NOT_FOUND, got %s", got)
		}
		if got := rankOf(t, l, "d1"); got != models.Position(25) {
			t.Errorf("d1: expected 25, got %s", got)
		}
		rec, _ := l.Find("m1")
		if rec.Log[0].Date != "2024/06/01" || rec.Log[0].Screenshot != "shot.jpg" {
			t.Errorf("unexpected entry: %+v", rec.Log[0])
		}

		if summary.State != models.StateDone || summary.CompletedGroups != 2 || summary.TotalTasks != 3 {
			t.Errorf("unexpected summary: %+v", summary)
		}
		if len(h.journal.runs) != 1 || len(h.journal.runs[0].Results) != 3 {
			t.Errorf("expected one journaled run with 3 results, got %+v", h.journal.runs)
		}
	})

	t.Run("feature page pair and directory task", func(t *testing.T) {
		fa := models.Task{ID: "fa", Provider: models.ProviderFeaturePage, URL: "https://x/special/", TargetName: "Salon A"}
		fb := models.Task{ID: "fb", Provider: models.ProviderFeaturePage, URL: "https://x/special/", TargetName: "Salon B"}
		dc := models.Task{ID: "dc", Provider: models.ProviderDirectory, Keyword: "nail-art", TargetName: "Salon C"}
		h := newHarness(t, []models.Task{fa, fb, dc}, extract.Registry{
			models.ProviderFeaturePage: fixed(&models.ExtractionResult{Listings: []models.Listing{
				{Rank: 1, Label: "Other"}, {Rank: 2, Label: "Another"}, {Rank: 3, Label: "Salon A"},
			}}),
			models.ProviderDirectory: fixed(&models.ExtractionResult{Rank: models.Position(25)}),
		})

		_, events, err := h.run(t, RunRequest{Selection: Selection{All: true}})
		if err != nil {
			t.Fatal(err)
		}
		if got := len(kinds(events, EventProgress)); got != 2 {
			t.Errorf("expected 2 groups, got %d", got)
		}
		if got := len(kinds(events, EventResult)); got != 3 {
			t.Errorf("expected 3 results, got %d", got)
		}

		l := h.ledger(t)
		for id, want := range map[string]models.Rank{"fa": models.Position(3), "fb": models.NotFound, "dc": models.Position(25)} {
			if got := rankOf(t, l, id); got != want {
				t.Errorf("%s: expected %s, got %s", id, want, got)
			}
		}
	})

	t.Run("sentinel applies to every member", func(t *testing.T) {
		h := newHarness(t, []models.Task{mapTaskA, mapTaskZ}, extract.Registry{
			models.ProviderMapPack: fixed(&models.ExtractionResult{Rank: models.Captcha}),
		})
		if _, _, err := h.run(t, RunRequest{Selection: Selection{All: true}}); err != nil {
			t.Fatal(err)
		}
		l := h.ledger(t)
		for _, id := range []string{"m1", "m2"} {
			if got := rankOf(t, l, id); got != models.Captcha {
				t.Errorf("%s: expected CAPTCHA, got %s", id, got)
			}
		}
	})

	t.Run("busy coordinator rejects the run", func(t *testing.T) {
		h := newHarness(t, []models.Task{dirTask}, extract.Registry{})
		release, err := h.engine.Coordinator().Acquire()
		if err != nil {
			t.Fatal(err)
		}
		defer release()

		_, events, err := h.run(t, RunRequest{Selection: Selection{All: true}})
		if !errors.Is(err, shared.ErrRunInProgress) {
			t.Fatalf("expected ErrRunInProgress, got %v", err)
		}
		if len(events) != 1 || events[0].Kind != EventError {
			t.Errorf("expected a single error event, got %+v", events)
		}
		if h.opened != 0 {
			t.Error("session should not be opened")
		}
	})

	t.Run("session failure frees the coordinator and writes nothing", func(t *testing.T) {
		h := newHarness(t, []models.Task{dirTask}, extract.Registry{})
		h.engine.openSession = func(context.Context) (extract.Session, error) {
			return nil, errors.New("chrome not found")
		}

		_, events, err := h.run(t, RunRequest{Selection: Selection{All: true}})
		if !errors.Is(err, shared.ErrSessionUnavailable) {
			t.Fatalf("expected ErrSessionUnavailable, got %v", err)
		}
		if h.engine.Coordinator().Busy() {
			t.Error("coordinator should be free")
		}
		if len(kinds(events, EventError)) != 1 || len(kinds(events, EventFinalStatus)) != 1 {
			t.Errorf("expected error and final_status events, got %+v", events)
		}
		entries, _ := os.ReadDir(h.dir)
		if len(entries) != 0 {
			t.Errorf("expected no history files, got %d", len(entries))
		}
		if len(h.tasks.saved) != 0 {
			t.Error("tasks should not be saved")
		}
		if len(h.journal.runs) != 1 || h.journal.runs[0].State != models.StateAborted {
			t.Errorf("expected an aborted journal entry, got %+v", h.journal.runs)
		}
	})

	t.Run("task load failure", func(t *testing.T) {
		h := newHarness(t, nil, extract.Registry{})
		h.tasks.loadErr = errors.New("boom")
		if _, _, err := h.run(t, RunRequest{Selection: Selection{All: true}}); err == nil {
			t.Fatal("expected error")
		}
		if h.opened != 0 || h.engine.Coordinator().Busy() {
			t.Error("expected no session and a free coordinator")
		}
	})

	t.Run("failed group is skipped", func(t *testing.T) {
		h := newHarness(t, []models.Task{dirTask, mapTaskA}, extract.Registry{
			models.ProviderDirectory: failing(&extract.PipelineError{Err: shared.ErrExtraction, URL: "https://x/", HTML: "<html/>"}),
			models.ProviderMapPack:   fixed(mapResult()),
		})
		summary, events, err := h.run(t, RunRequest{Selection: Selection{All: true}})
		if err != nil {
			t.Fatal(err)
		}
		errs := kinds(events, EventError)
		if len(errs) != 1 || errs[0].URL != "https://x/" || errs[0].HTML != "<html/>" {
			t.Errorf("expected error event with diagnostics, got %+v", errs)
		}
		if summary.FailedGroups != 1 || summary.CompletedGroups != 1 {
			t.Errorf("unexpected summary: %+v", summary)
		}
		l := h.ledger(t)
		if _, ok := l.Find("d1"); ok {
			t.Error("failed group should record nothing")
		}
		if got := rankOf(t, l, "m1"); got != models.Position(3) {
			t.Errorf("expected 3, got %s", got)
		}
	})

	t.Run("pipeline panic fails the group and the run goes on", func(t *testing.T) {
		h := newHarness(t, []models.Task{dirTask, mapTaskA}, extract.Registry{
			models.ProviderDirectory: extract.PipelineFunc(func(context.Context, extract.Session, extract.Query, extract.StatusFunc) (*models.ExtractionResult, error) {
				var counts map[string]int
				counts["page"]++
				return nil, nil
			}),
			models.ProviderMapPack: fixed(mapResult()),
		})

		summary, events, err := h.run(t, RunRequest{Selection: Selection{All: true}})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		errs := kinds(events, EventError)
		if len(errs) != 1 || !strings.Contains(errs[0].Message, "pipeline panic") {
			t.Errorf("expected one pipeline panic error, got %+v", errs)
		}
		if h.session.Closed() != 1 || h.engine.Coordinator().Busy() {
			t.Errorf("expected session closed once and coordinator free, got %d", h.session.Closed())
		}
		if summary.FailedGroups != 1 || summary.CompletedGroups != 1 {
			t.Errorf("unexpected summary: %+v", summary)
		}
		if got := rankOf(t, h.ledger(t), "m1"); got != models.Position(3) {
			t.Errorf("m1: expected 3, got %s", got)
		}
		if last := events[len(events)-1]; last.Kind != EventFinalStatus {
			t.Errorf("expected final_status last, got %+v", last)
		}
	})

	t.Run("panic outside the pipeline still finalizes", func(t *testing.T) {
		h := newHarness(t, []models.Task{dirTask, mapTaskA}, extract.Registry{
			models.ProviderDirectory: fixed(&models.ExtractionResult{Rank: models.Position(25)}),
			models.ProviderMapPack:   fixed(mapResult()),
		})
		h.engine.pacing = panicPacing{}

		summary, events, err := h.run(t, RunRequest{Selection: Selection{All: true}})
		if err == nil || !strings.Contains(err.Error(), "run panicked") {
			t.Fatalf("expected run panic error, got %v", err)
		}
		if summary.State != models.StateAborted || h.session.Closed() != 1 {
			t.Errorf("expected aborted run with closed session, got %s/%d", summary.State, h.session.Closed())
		}
		if got := rankOf(t, h.ledger(t), "d1"); got != models.Position(25) {
			t.Errorf("d1: expected 25, got %s", got)
		}
		if len(h.journal.runs) != 1 {
			t.Errorf("expected the run to be journaled, got %d", len(h.journal.runs))
		}
		if last := events[len(events)-1]; last.Kind != EventFinalStatus {
			t.Errorf("expected final_status last, got %+v", last)
		}
	})

	t.Run("post-processing panic records ERROR and continues", func(t *testing.T) {
		h := newHarness(t, []models.Task{mapTaskA, mapTaskZ}, extract.Registry{
			models.ProviderMapPack: fixed(mapResult()),
		})
		h.engine.resolve = func(member models.Task, res *models.ExtractionResult) models.Rank {
			if member.ID == "m1" {
				panic("bad listing")
			}
			return resolveRank(member, res)
		}
		if _, _, err := h.run(t, RunRequest{Selection: Selection{All: true}}); err != nil {
			t.Fatal(err)
		}
		l := h.ledger(t)
		if got := rankOf(t, l, "m1"); got != models.Failed {
			t.Errorf("m1: expected ERROR, got %s", got)
		}
		if got := rankOf(t, l, "m2"); got != models.NotFound {
			t.Errorf("m2: expected NOT_FOUND, got %s", got)
		}
	})

	t.Run("discovered page title enriches tasks", func(t *testing.T) {
		f1 := models.Task{ID: "f1", Provider: models.ProviderFeaturePage, URL: "https://x/special/", TargetName: "Salon A"}
		f2 := models.Task{ID: "f2", Provider: models.ProviderFeaturePage, URL: "https://x/special/PN2/", TargetName: "Salon Z", Title: "kept"}
		h := newHarness(t, []models.Task{f1, f2}, extract.Registry{
			models.ProviderFeaturePage: fixed(&models.ExtractionResult{PageTitle: "春の特集", Listings: []models.Listing{{Rank: 7, Label: "Salon A"}}}),
		})
		if _, _, err := h.run(t, RunRequest{Selection: Selection{All: true}}); err != nil {
			t.Fatal(err)
		}
		if len(h.tasks.saved) != 1 {
			t.Fatalf("expected tasks saved once, got %d", len(h.tasks.saved))
		}
		saved := h.tasks.saved[0]
		if saved[0].Title != "春の特集" || saved[1].Title != "kept" {
			t.Errorf("unexpected titles: %q, %q", saved[0].Title, saved[1].Title)
		}
		rec, _ := h.ledger(t).Find("f1")
		if rec.Task.Title != "春の特集" || rec.Log[0].Rank != models.Position(7) {
			t.Errorf("unexpected record: %+v", rec)
		}
	})

	t.Run("unchanged tasks are not rewritten", func(t *testing.T) {
		h := newHarness(t, []models.Task{dirTask}, extract.Registry{
			models.ProviderDirectory: fixed(&models.ExtractionResult{Rank: models.Position(1)}),
		})
		if _, _, err := h.run(t, RunRequest{Selection: Selection{All: true}}); err != nil {
			t.Fatal(err)
		}
		if len(h.tasks.saved) != 0 {
			t.Error("tasks should not be saved")
		}
	})

	t.Run("unknown ids are reported and skipped", func(t *testing.T) {
		h := newHarness(t, []models.Task{dirTask}, extract.Registry{
			models.ProviderDirectory: fixed(&models.ExtractionResult{Rank: models.Position(1)}),
		})
		summary, events, err := h.run(t, RunRequest{Selection: Selection{IDs: []string{"d1", "ghost", "d1"}}})
		if err != nil {
			t.Fatal(err)
		}
		if summary.TotalTasks != 1 {
			t.Errorf("expected 1 task, got %d", summary.TotalTasks)
		}
		if statuses := kinds(events, EventStatus); len(statuses) == 0 || statuses[0].Message != "skipping unknown task ids: ghost" {
			t.Errorf("expected skip notice, got %+v", statuses)
		}
	})

	t.Run("empty selection finishes without a session", func(t *testing.T) {
		h := newHarness(t, []models.Task{dirTask}, extract.Registry{})
		_, events, err := h.run(t, RunRequest{})
		if err != nil {
			t.Fatal(err)
		}
		if h.opened != 0 {
			t.Error("session should not be opened")
		}
		if events[len(events)-1].Message != "all done (0 jobs)" {
			t.Errorf("unexpected final event: %+v", events[len(events)-1])
		}
	})

	t.Run("scheduled mode emits nothing", func(t *testing.T) {
		h := newHarness(t, []models.Task{dirTask}, extract.Registry{
			models.ProviderDirectory: fixed(&models.ExtractionResult{Rank: models.Position(4)}),
		})
		_, events, err := h.run(t, RunRequest{Selection: Selection{All: true}, Mode: models.ModeScheduled})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 0 {
			t.Errorf("expected no events, got %d", len(events))
		}
		if got := rankOf(t, h.ledger(t), "d1"); got != models.Position(4) {
			t.Errorf("expected 4, got %s", got)
		}
	})

	t.Run("cancellation aborts and keeps finished groups", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h := newHarness(t, []models.Task{dirTask, mapTaskA}, extract.Registry{
			models.ProviderDirectory: fixed(&models.ExtractionResult{Rank: models.Position(2)}),
			models.ProviderMapPack: extract.PipelineFunc(func(ctx context.Context, _ extract.Session, _ extract.Query, _ extract.StatusFunc) (*models.ExtractionResult, error) {
				cancel()
				return nil, ctx.Err()
			}),
		})

		events := make(chan Event, 256)
		summary, err := h.engine.Run(ctx, RunRequest{Selection: Selection{All: true}}, events)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if summary.State != models.StateAborted {
			t.Errorf("expected ABORTED, got %s", summary.State)
		}
		if got := rankOf(t, h.ledger(t), "d1"); got != models.Position(2) {
			t.Errorf("expected saved rank 2, got %s", got)
		}
		if h.session.Closed() != 1 || h.engine.Coordinator().Busy() {
			t.Error("expected session closed and coordinator free")
		}
		var last Event
		for ev := range events {
			last = ev
		}
		if last.Kind != EventFinalStatus || last.Message != "aborted after 1 of 2 jobs" {
			t.Errorf("unexpected final event: %+v", last)
		}
	})

	t.Run("persistence failure is reported after results", func(t *testing.T) {
		f1 := models.Task{ID: "f1", Provider: models.ProviderFeaturePage, URL: "https://x/special/", TargetName: "A"}
		h := newHarness(t, []models.Task{f1}, extract.Registry{
			models.ProviderFeaturePage: fixed(&models.ExtractionResult{PageTitle: "T"}),
		})
		h.tasks.saveErr = errors.New("disk full")
		summary, events, err := h.run(t, RunRequest{Selection: Selection{All: true}})
		if !errors.Is(err, shared.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if summary.State != models.StateDone || summary.Error == "" {
			t.Errorf("unexpected summary: %+v", summary)
		}
		if len(kinds(events, EventResult)) != 1 {
			t.Error("expected result event")
		}
	})

	t.Run("current reflects the run in progress", func(t *testing.T) {
		var during RunManifest
		var seen bool
		var h *harness
		h = newHarness(t, []models.Task{dirTask}, extract.Registry{
			models.ProviderDirectory: extract.PipelineFunc(func(context.Context, extract.Session, extract.Query, extract.StatusFunc) (*models.ExtractionResult, error) {
				during, seen = h.engine.Current()
				return &models.ExtractionResult{Rank: models.Position(1)}, nil
			}),
		})
		if _, _, err := h.run(t, RunRequest{Selection: Selection{All: true}}); err != nil {
			t.Fatal(err)
		}
		if !seen || during.State != models.StateProcessingGroup || len(during.Groups) != 1 {
			t.Errorf("unexpected manifest: %+v", during)
		}
		if _, ok := h.engine.Current(); ok {
			t.Error("expected no current run after Run returns")
		}
	})
}

func TestRankingEngineCheck(t *testing.T) {
	collect := func(events chan Event) []Event {
		var out []Event
		for ev := range events {
			out = append(out, ev)
		}
		return out
	}

	t.Run("resolves rank without writing history", func(t *testing.T) {
		h := newHarness(t, nil, extract.Registry{models.ProviderMapPack: fixed(mapResult())})
		events := make(chan Event, 64)
		res, err := h.engine.Check(context.Background(), mapTaskA, events)
		if err != nil {
			t.Fatal(err)
		}
		if res.Rank != models.Position(3) {
			t.Errorf("expected 3, got %s", res.Rank)
		}
		got := collect(events)
		if len(got) < 2 {
			t.Fatalf("expected final_result and final_status, got %+v", got)
		}
		if res := got[len(got)-2]; res.Kind != EventFinalResult || res.Final.Rank != models.Position(3) {
			t.Errorf("unexpected final result: %+v", res)
		}
		if last := got[len(got)-1]; last.Kind != EventFinalStatus || last.Message != "check finished" {
			t.Errorf("unexpected final status: %+v", last)
		}
		if len(h.ledger(t).All()) != 0 {
			t.Error("check should not write history")
		}
		if entries, _ := os.ReadDir(h.dir); len(entries) != 0 {
			t.Error("check should not create files")
		}
		if h.session.Closed() != 1 || h.engine.Coordinator().Busy() {
			t.Error("expected session closed and coordinator free")
		}
	})

	t.Run("invalid task", func(t *testing.T) {
		h := newHarness(t, nil, extract.Registry{})
		events := make(chan Event, 4)
		_, err := h.engine.Check(context.Background(), models.Task{ID: "x", Provider: models.ProviderMapPack}, events)
		if !errors.Is(err, shared.ErrInvalidTask) {
			t.Fatalf("expected ErrInvalidTask, got %v", err)
		}
		if h.opened != 0 {
			t.Error("session should not be opened")
		}
	})

	t.Run("pipeline failure ends with final status", func(t *testing.T) {
		h := newHarness(t, nil, extract.Registry{models.ProviderDirectory: failing(shared.ErrExtraction)})
		events := make(chan Event, 16)
		if _, err := h.engine.Check(context.Background(), dirTask, events); !errors.Is(err, shared.ErrExtraction) {
			t.Fatalf("expected ErrExtraction, got %v", err)
		}
		got := collect(events)
		if len(got) < 2 || got[len(got)-2].Kind != EventError || got[len(got)-1].Kind != EventFinalStatus {
			t.Errorf("unexpected events: %+v", got)
		}
	})

	t.Run("shares the coordinator with runs", func(t *testing.T) {
		h := newHarness(t, nil, extract.Registry{})
		release, _ := h.engine.Coordinator().Acquire()
		defer release()
		if _, err := h.engine.Check(context.Background(), dirTask, nil); !errors.Is(err, shared.ErrRunInProgress) {
			t.Fatalf("expected ErrRunInProgress, got %v", err)
		}
	})
}

type panicPacing struct{}

func (panicPacing) Delay(models.RunMode) time.Duration { panic("pacing misconfigured") }
