package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/desertthunder/rankwatch/internal/extract"
	"github.com/desertthunder/rankwatch/internal/ledger"
	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// TaskSource loads and persists the configured tasks.
type TaskSource interface {
	Load() ([]models.Task, error)
	Save(tasks []models.Task) error
}

// RunRecorder journals finished runs.
type RunRecorder interface {
	Record(ctx context.Context, summary *models.RunSummary) error
}

// SessionOpener starts the browser session shared by a run.
type SessionOpener func(ctx context.Context) (extract.Session, error)

// RunRequest selects the tasks and reporting mode of a run.
type RunRequest struct {
	Selection Selection
	Mode      models.RunMode
}

// RunManifest tracks a run in progress.
type RunManifest struct {
	ID              string
	Mode            models.RunMode
	State           models.RunState
	Groups          []Group
	Current         int
	TotalTasks      int
	CompletedGroups int
	FailedGroups    int
	Results         []models.RunResult
	StartedAt       time.Time
	FinishedAt      time.Time
	Err             string
}

// Summary condenses the manifest for the run journal.
func (m *RunManifest) Summary() *models.RunSummary {
	return &models.RunSummary{
		ID:              m.ID,
		Mode:            m.Mode,
		State:           m.State,
		TotalGroups:     len(m.Groups),
		TotalTasks:      m.TotalTasks,
		CompletedGroups: m.CompletedGroups,
		FailedGroups:    m.FailedGroups,
		Error:           m.Err,
		StartedAt:       m.StartedAt,
		FinishedAt:      m.FinishedAt,
		Results:         append([]models.RunResult(nil), m.Results...),
	}
}

// EngineOpts are the collaborators of a [RankingEngine].
type EngineOpts struct {
	Tasks       TaskSource
	HistoryDir  string
	Pipelines   extract.Registry
	OpenSession SessionOpener
	Coordinator *RunCoordinator
	Pacing      PacingPolicy
	Journal     RunRecorder
	Logger      *log.Logger
	Now         func() time.Time
}

// RankingEngine runs selected tasks group by group over one browser session.
type RankingEngine struct {
	tasks       TaskSource
	historyDir  string
	pipelines   extract.Registry
	openSession SessionOpener
	coordinator *RunCoordinator
	pacing      PacingPolicy
	journal     RunRecorder
	logger      *log.Logger
	now         func() time.Time

	// resolve maps a group's result onto one member.
	resolve func(member models.Task, res *models.ExtractionResult) models.Rank

	mu      sync.Mutex
	current *RunManifest
}

// NewRankingEngine wires an engine. A nil coordinator gets a private one; a nil pacing policy never waits.
func NewRankingEngine(opts EngineOpts) *RankingEngine {
	e := &RankingEngine{
		tasks:       opts.Tasks,
		historyDir:  opts.HistoryDir,
		pipelines:   opts.Pipelines,
		openSession: opts.OpenSession,
		coordinator: opts.Coordinator,
		pacing:      opts.Pacing,
		journal:     opts.Journal,
		logger:      opts.Logger,
		now:         opts.Now,
		resolve:     resolveRank,
	}
	if e.coordinator == nil {
		e.coordinator = NewRunCoordinator()
	}
	if e.pacing == nil {
		e.pacing = NoPacing{}
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Coordinator exposes the guard so read-only callers can check [RunCoordinator.Busy].
func (e *RankingEngine) Coordinator() *RunCoordinator {
	return e.coordinator
}

// Current returns a snapshot of the run in progress.
func (e *RankingEngine) Current() (RunManifest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return RunManifest{}, false
	}
	m := *e.current
	m.Results = append([]models.RunResult(nil), e.current.Results...)
	return m, true
}

func (e *RankingEngine) update(fn func(m *RunManifest)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		fn(e.current)
	}
}

func resolveRank(member models.Task, res *models.ExtractionResult) models.Rank {
	if !member.Provider.Grouped() {
		return res.Rank
	}
	return res.ResolveTarget(member.TargetName)
}

type emitFunc func(ctx context.Context, ev Event) error

func emitter(mode models.RunMode, events chan<- Event) emitFunc {
	return func(ctx context.Context, ev Event) error {
		if mode == models.ModeScheduled {
			return nil
		}
		return send(ctx, events, ev)
	}
}

// detachedSendTimeout bounds final sends made after the run context ended.
const detachedSendTimeout = time.Second

// emitDetached delivers a closing event even when ctx is done, giving up if nobody reads it.
func emitDetached(ctx context.Context, emit emitFunc, ev Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedSendTimeout)
	defer cancel()
	emit(ctx, ev)
}

// Run executes req and streams its events. The channel is closed when Run returns.
//
// A busy coordinator fails with [shared.ErrRunInProgress]. Task loading and session start failures end the run
// before anything is written. Once the session is open every exit closes it, saves the history partitions and
// journals the run; persistence failures are returned wrapped in [shared.ErrPersistence].
func (e *RankingEngine) Run(ctx context.Context, req RunRequest, events chan<- Event) (summary *models.RunSummary, err error) {
	if events != nil {
		defer close(events)
	}
	if req.Mode == "" {
		req.Mode = models.ModeInteractive
	}
	emit := emitter(req.Mode, events)

	release, err := e.coordinator.Acquire()
	if err != nil {
		emit(ctx, errorEvent("", err))
		return nil, err
	}
	defer release()

	m := &RunManifest{ID: uuid.NewString(), Mode: req.Mode, State: models.StateInit, StartedAt: e.now()}
	e.mu.Lock()
	e.current = m
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
	}()

	logger := shared.WithLogger(e.logger, "run_id", m.ID, "mode", req.Mode)
	logger.Info("run started")

	all, err := e.tasks.Load()
	if err != nil {
		return e.abort(ctx, m, emit, logger, fmt.Errorf("failed to load tasks: %w", err))
	}

	selected, missing := SelectTasks(all, req.Selection)
	if len(missing) > 0 {
		logger.Warn("unknown task ids", "ids", missing)
		emit(ctx, statusEvent("", "skipping unknown task ids: %s", strings.Join(missing, ", ")))
	}
	groups := GroupTasks(selected)
	e.update(func(m *RunManifest) {
		m.Groups = groups
		m.TotalTasks = TaskCount(groups)
	})
	logger.Info("tasks grouped", "tasks", len(selected), "jobs", len(groups))

	if len(groups) == 0 {
		e.update(func(m *RunManifest) { m.State = models.StateDone; m.FinishedAt = e.now() })
		e.record(ctx, m, logger)
		emit(ctx, doneStatus(0))
		return m.Summary(), nil
	}

	hist, err := ledger.Open(e.historyDir)
	if err != nil {
		return e.abort(ctx, m, emit, logger, fmt.Errorf("failed to load history: %w", err))
	}

	sess, err := e.openSession(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrSessionUnavailable) {
			err = fmt.Errorf("%w: %v", shared.ErrSessionUnavailable, err)
		}
		return e.abort(ctx, m, emit, logger, err)
	}

	var runErr error
	enriched := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", "panic", r, "stack", string(debug.Stack()))
			runErr = fmt.Errorf("run panicked: %v", r)
		}
		summary, err = e.finalize(ctx, m, sess, hist, all, enriched, runErr, emit, logger)
	}()

	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		e.update(func(m *RunManifest) {
			m.State = models.StateProcessingGroup
			m.Current = i
		})
		if err := emit(ctx, progressEvent(i+1, len(groups), g.Representative())); err != nil {
			runErr = err
			break
		}

		title, err := e.processGroup(ctx, sess, hist, g, emit, logger)
		if title != "" && enrichTitles(all, g, title) {
			enriched = true
		}
		if err != nil {
			runErr = err
			break
		}

		if i < len(groups)-1 {
			if err := wait(ctx, e.pacing.Delay(req.Mode)); err != nil {
				runErr = err
				break
			}
		}
	}

	return
}

// processGroup runs one extraction and records every member. Only cancellation is returned as an error.
func (e *RankingEngine) processGroup(
	ctx context.Context,
	sess extract.Session,
	hist *ledger.Ledger,
	g Group,
	emit emitFunc,
	logger *log.Logger,
) (title string, err error) {
	name := g.DisplayName()
	glog := shared.WithLogger(logger, "provider", g.Provider, "group", name)

	fail := func(err error) error {
		glog.Error("group failed", "error", err)
		e.update(func(m *RunManifest) { m.FailedGroups++ })
		return emit(ctx, errorEvent(name, err))
	}

	pl, err := e.pipelines.Get(g.Provider)
	if err != nil {
		return "", fail(err)
	}

	status := func(msg string) {
		emit(ctx, Event{Kind: EventStatus, Message: msg, TaskName: name})
	}
	res, err := runPipeline(ctx, pl, sess, extract.QueryFor(g.Representative(), g.Provider.Grouped()), status)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fail(err)
	}

	if g.Provider == models.ProviderFeaturePage {
		title = res.PageTitle
	}
	date := models.DateKey(e.now())
	for _, member := range g.Members {
		if title != "" && member.Title == "" {
			member.Title = title
		}
		rank := e.rankFor(member, res, glog)
		if err := hist.Upsert(member, date, rank, res.Screenshot); err != nil {
			glog.Error("history upsert failed", "task_id", member.ID, "error", err)
		}
		glog.Info("task measured", "task_id", member.ID, "rank", rank)

		result := models.RunResult{TaskID: member.ID, Provider: member.Provider, Rank: rank, Screenshot: res.Screenshot, RecordedAt: e.now()}
		e.update(func(m *RunManifest) { m.Results = append(m.Results, result) })

		if err := emit(ctx, resultEvent(member, rank, res.TotalCount)); err != nil {
			return title, err
		}
	}
	e.update(func(m *RunManifest) { m.CompletedGroups++ })
	return title, nil
}

// runPipeline calls pl, turning a panic into an [shared.ErrExtraction] error.
func runPipeline(
	ctx context.Context,
	pl extract.Pipeline,
	sess extract.Session,
	q extract.Query,
	status extract.StatusFunc,
) (res *models.ExtractionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: pipeline panic: %v", shared.ErrExtraction, r)
		}
	}()
	return pl.Run(ctx, sess, q, status)
}

// rankFor resolves one member, recording [models.Failed] if resolution panics.
func (e *RankingEngine) rankFor(member models.Task, res *models.ExtractionResult, logger *log.Logger) (rank models.Rank) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("post-processing failed", "task_id", member.ID, "panic", r)
			rank = models.Failed
		}
	}()
	return e.resolve(member, res)
}

// enrichTitles fills the discovered page title on group members that have none.
func enrichTitles(all []models.Task, g Group, title string) bool {
	members := make(map[string]struct{}, len(g.Members))
	for _, m := range g.Members {
		members[m.ID] = struct{}{}
	}
	changed := false
	for i := range all {
		if _, ok := members[all[i].ID]; ok && all[i].Title == "" {
			all[i].Title = title
			changed = true
		}
	}
	return changed
}

// finalize runs on every exit after the session opened.
func (e *RankingEngine) finalize(
	ctx context.Context,
	m *RunManifest,
	sess extract.Session,
	hist *ledger.Ledger,
	all []models.Task,
	enriched bool,
	runErr error,
	emit emitFunc,
	logger *log.Logger,
) (*models.RunSummary, error) {
	e.update(func(m *RunManifest) { m.State = models.StateFinalizing })

	if err := sess.Close(); err != nil {
		logger.Warn("failed to close browser session", "error", err)
	}

	var errs []error
	if err := hist.Save(); err != nil {
		errs = append(errs, err)
	}
	if enriched {
		if err := e.tasks.Save(all); err != nil {
			errs = append(errs, fmt.Errorf("%w: tasks: %v", shared.ErrPersistence, err))
		}
	}
	persistErr := errors.Join(errs...)
	if persistErr != nil {
		logger.Error("failed to persist run", "error", persistErr)
	}

	e.update(func(m *RunManifest) {
		m.FinishedAt = e.now()
		m.State = models.StateDone
		if runErr != nil {
			m.State = models.StateAborted
			m.Err = runErr.Error()
		} else if persistErr != nil {
			m.Err = persistErr.Error()
		}
	})
	e.record(ctx, m, logger)

	done := m.CompletedGroups + m.FailedGroups
	if runErr != nil {
		logger.Warn("run aborted", "error", runErr, "jobs_done", done, "jobs", len(m.Groups))
		emitDetached(ctx, emit, abortedStatus(done, len(m.Groups)))
		return m.Summary(), runErr
	}

	logger.Info("run finished", "jobs", len(m.Groups), "failed", m.FailedGroups, "took", m.FinishedAt.Sub(m.StartedAt))
	emit(ctx, doneStatus(len(m.Groups)))
	if persistErr != nil {
		if !errors.Is(persistErr, shared.ErrPersistence) {
			persistErr = fmt.Errorf("%w: %v", shared.ErrPersistence, persistErr)
		}
		return m.Summary(), persistErr
	}
	return m.Summary(), nil
}

// abort ends a run that failed before the session opened.
func (e *RankingEngine) abort(ctx context.Context, m *RunManifest, emit emitFunc, logger *log.Logger, err error) (*models.RunSummary, error) {
	logger.Error("run failed", "error", err)
	e.update(func(m *RunManifest) {
		m.State = models.StateAborted
		m.FinishedAt = e.now()
		m.Err = err.Error()
	})
	e.record(ctx, m, logger)
	emit(ctx, errorEvent("", err))
	emit(ctx, abortedStatus(0, len(m.Groups)))
	return m.Summary(), err
}

func (e *RankingEngine) record(ctx context.Context, m *RunManifest, logger *log.Logger) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(context.WithoutCancel(ctx), m.Summary()); err != nil {
		logger.Warn("failed to journal run", "error", err)
	}
}

// Check measures one task without touching the history or the task list.
//
// It holds the coordinator like a run. On success the stream carries final_result, on failure an error event,
// and final_status is always last.
func (e *RankingEngine) Check(ctx context.Context, task models.Task, events chan<- Event) (*models.ExtractionResult, error) {
	if events != nil {
		defer close(events)
	}
	emit := emitter(models.ModeCheck, events)

	if err := task.Validate(); err != nil {
		err = fmt.Errorf("%w: %v", shared.ErrInvalidTask, err)
		emit(ctx, errorEvent("", err))
		return nil, err
	}

	release, err := e.coordinator.Acquire()
	if err != nil {
		emit(ctx, errorEvent("", err))
		return nil, err
	}
	defer release()

	logger := shared.WithLogger(e.logger, "mode", models.ModeCheck, "provider", task.Provider)
	name := task.DisplayName()

	pl, err := e.pipelines.Get(task.Provider)
	if err != nil {
		emit(ctx, errorEvent(name, err))
		return nil, err
	}

	sess, err := e.openSession(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrSessionUnavailable) {
			err = fmt.Errorf("%w: %v", shared.ErrSessionUnavailable, err)
		}
		logger.Error("check failed", "error", err)
		emit(ctx, errorEvent("", err))
		emit(ctx, finalStatusEvent("check failed"))
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to close browser session", "error", err)
		}
	}()

	status := func(msg string) {
		emit(ctx, Event{Kind: EventStatus, Message: msg, TaskName: name})
	}
	res, err := runPipeline(ctx, pl, sess, extract.QueryFor(task, task.Provider.Grouped()), status)
	if err != nil {
		logger.Error("check failed", "error", err)
		emit(ctx, errorEvent(name, err))
		emitDetached(ctx, emit, finalStatusEvent("check failed"))
		return nil, err
	}

	res.Rank = e.rankFor(task, res, logger)
	logger.Info("check finished", "rank", res.Rank, "total", res.TotalCount)
	emit(ctx, finalResultEvent(res))
	emit(ctx, finalStatusEvent("check finished"))
	return res, nil
}
