package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/rankwatch/internal/formatter"
	"github.com/desertthunder/rankwatch/internal/ledger"
	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
	"github.com/desertthunder/rankwatch/internal/tasks"
)

// APIOpts are the collaborators of the dashboard API.
type APIOpts struct {
	Engine        Engine
	Tasks         TaskReader
	Runs          RunReader
	HistoryDir    string
	ScreenshotDir string
	Logger        *log.Logger
}

// API serves the dashboard endpoints.
type API struct {
	engine     Engine
	tasks      TaskReader
	runs       RunReader
	historyDir string
	logger     *log.Logger
}

// NewAPI builds the dashboard router with logging and panic recovery applied to every route.
func NewAPI(opts APIOpts) *BasicRouter {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	a := &API{
		engine:     opts.Engine,
		tasks:      opts.Tasks,
		runs:       opts.Runs,
		historyDir: opts.HistoryDir,
		logger:     logger,
	}

	r := NewBasicRouter()
	r.Use(Recoverer(logger), RequestLogger(logger))

	r.HandleFunc(http.MethodGet, "/api/status", a.status)
	r.HandleFunc(http.MethodGet, "/api/tasks", a.listTasks)
	r.HandleFunc(http.MethodGet, "/api/history", a.history)
	r.HandleFunc(http.MethodGet, "/api/runs", a.listRuns)
	r.HandleFunc(http.MethodGet, "/api/runs/{id}", a.getRun)
	r.HandleFunc(http.MethodGet, "/api/runs/stream", a.streamRun)
	r.HandleFunc(http.MethodPost, "/api/check", a.check)
	if opts.ScreenshotDir != "" {
		r.Handler(NewScreenshotHandler(opts.ScreenshotDir))
	}
	return r
}

type statusResponse struct {
	Busy            bool            `json:"busy"`
	RunID           string          `json:"run_id,omitempty"`
	State           models.RunState `json:"state,omitempty"`
	Current         int             `json:"current,omitempty"`
	TotalGroups     int             `json:"total_groups,omitempty"`
	CompletedGroups int             `json:"completed_groups,omitempty"`
	FailedGroups    int             `json:"failed_groups,omitempty"`
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Busy: a.engine.Coordinator().Busy()}
	if m, ok := a.engine.Current(); ok {
		resp.RunID = m.ID
		resp.State = m.State
		resp.Current = m.Current
		resp.TotalGroups = len(m.Groups)
		resp.CompletedGroups = m.CompletedGroups
		resp.FailedGroups = m.FailedGroups
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	all, err := a.tasks.Load()
	if err != nil {
		a.fail(w, err)
		return
	}
	if all == nil {
		all = []models.Task{}
	}
	writeJSON(w, http.StatusOK, all)
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var provider models.Provider
	if raw := q.Get("provider"); raw != "" {
		p, err := models.ParseProvider(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		provider = p
	}

	l, err := ledger.Open(a.historyDir)
	if err != nil {
		a.fail(w, err)
		return
	}
	records := formatter.Filter(l.All(), provider, q.Get("task"))

	switch q.Get("format") {
	case "csv":
		data, err := formatter.HistoryCSV(records)
		if err != nil {
			a.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="history.csv"`)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	case "", "json":
		data, err := formatter.HistoryJSON(records)
		if err != nil {
			a.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	default:
		writeError(w, http.StatusBadRequest, "format must be csv or json")
	}
}

func (a *API) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := a.runs.List(r.Context(), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	if runs == nil {
		runs = []*models.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *API) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// streamRun starts a run over the selected tasks and streams its events.
//
// Selection comes from ?all=1 or repeated/comma separated ?task= ids.
func (a *API) streamRun(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sel := tasks.Selection{All: q.Get("all") == "1" || q.Get("all") == "true"}
	for _, v := range q["task"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				sel.IDs = append(sel.IDs, id)
			}
		}
	}
	if !sel.All && len(sel.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "select tasks with all=1 or task=<id>")
		return
	}
	if a.engine.Coordinator().Busy() {
		writeError(w, http.StatusTooManyRequests, shared.ErrRunInProgress.Error())
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		a.fail(w, err)
		return
	}

	events := make(chan tasks.Event)
	errc := make(chan error, 1)
	go func() {
		_, err := a.engine.Run(r.Context(), tasks.RunRequest{Selection: sel, Mode: models.ModeInteractive}, events)
		errc <- err
	}()
	stream.Relay(events)
	if err := <-errc; err != nil {
		a.logger.Warn("streamed run ended with error", "error", err)
	}
}

// check runs one task posted as JSON and streams its events. Nothing is written to history.
func (a *API) check(w http.ResponseWriter, r *http.Request) {
	var task models.Task
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "invalid task body: "+err.Error())
		return
	}
	if err := task.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if a.engine.Coordinator().Busy() {
		writeError(w, http.StatusTooManyRequests, shared.ErrRunInProgress.Error())
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		a.fail(w, err)
		return
	}

	events := make(chan tasks.Event)
	errc := make(chan error, 1)
	go func() {
		_, err := a.engine.Check(r.Context(), task, events)
		errc <- err
	}()
	stream.Relay(events)
	if err := <-errc; err != nil {
		a.logger.Warn("check ended with error", "task_id", task.ID, "error", err)
	}
}

// fail maps domain errors onto status codes.
func (a *API) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrRunNotFound), errors.Is(err, shared.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrInvalidTask), errors.Is(err, shared.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrRunInProgress):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		a.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
