package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	TaskListView ViewState = iota
	ConfirmView
	RunView
	ResultView
)

// maxLogLines bounds the scrolling event log on the run view.
const maxLogLines = 8

// Runner starts a ranking run and streams its events.
type Runner interface {
	Run(ctx context.Context, req tasks.RunRequest, events chan<- tasks.Event) (*models.RunSummary, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	cancel   context.CancelFunc
	view     ViewState
	engine   Runner
	tasks    []models.Task
	selected map[string]bool
	autorun  *tasks.Selection

	width    int
	height   int
	taskList list.Model
	bar      progress.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	events   chan tasks.Event
	done     chan runOutcome
	current  *tasks.Progress
	status   string
	log      []string
	results  []tasks.RankResult
	failures []string
	final    string
	summary  *models.RunSummary
	err      error
}

// taskItem wraps [models.Task] to implement list.Item.
type taskItem struct {
	task     models.Task
	selected bool
}

func (i taskItem) FilterValue() string { return i.task.ID + " " + i.task.DisplayName() }
func (i taskItem) Title() string {
	box := "[ ]"
	if i.selected {
		box = "[x]"
	}
	return fmt.Sprintf("%s %s", box, i.task.DisplayName())
}
func (i taskItem) Description() string {
	return fmt.Sprintf("%s • %s", i.task.Provider, i.task.ID)
}

// NewModel creates a new TUI model over the configured tasks.
//
// A non-nil autorun skips the picker and starts a run for that selection immediately.
func NewModel(ctx context.Context, engine Runner, all []models.Task, autorun *tasks.Selection) *Model {
	items := make([]list.Item, len(all))
	for i, t := range all {
		items[i] = taskItem{task: t}
	}
	taskList := list.New(items, list.NewDefaultDelegate(), 0, 0)
	taskList.Title = "Ranking Tasks"

	m := &Model{
		ctx:      ctx,
		view:     TaskListView,
		engine:   engine,
		tasks:    all,
		selected: map[string]bool{},
		autorun:  autorun,
		taskList: taskList,
		bar:      progress.New(progress.WithDefaultGradient()),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
	return m
}

// Init starts the spinner and, with an autorun selection, the run itself.
func (m *Model) Init() tea.Cmd {
	if m.autorun != nil {
		m.view = RunView
		return tea.Batch(m.spinner.Tick, m.startRun(*m.autorun))
	}
	return m.spinner.Tick
}

// Summary returns the finished run, if any.
func (m *Model) Summary() (*models.RunSummary, error) {
	return m.summary, m.err
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.taskList.SetSize(msg.Width-4, msg.Height-8)
		m.bar.Width = max(10, min(msg.Width-8, 80))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case TaskListView:
			return m.handleTaskListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case RunView:
			return m.handleRunKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgRunEvent:
			m.apply(msg.data.(tasks.Event))
			return m, m.waitForEvent()
		case MsgRunComplete:
			outcome := msg.data.(runOutcome)
			m.summary, m.err = outcome.summary, outcome.err
			m.view = ResultView
			m.events, m.done = nil, nil
			if m.cancel != nil {
				m.cancel()
				m.cancel = nil
			}
			return m, nil
		}
	}

	if m.view == TaskListView {
		var cmd tea.Cmd
		m.taskList, cmd = m.taskList.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply folds one engine event into the run view.
func (m *Model) apply(ev tasks.Event) {
	switch ev.Kind {
	case tasks.EventStatus:
		m.status = ev.Message
		if ev.TaskName != "" {
			m.status = ev.TaskName + ": " + ev.Message
		}
	case tasks.EventProgress:
		m.current = ev.Progress
		m.appendLog(fmt.Sprintf("▶ %d/%d %s", ev.Progress.Current, ev.Progress.Total, ev.Progress.Task.DisplayName()))
	case tasks.EventResult:
		m.results = append(m.results, *ev.Result)
		m.appendLog(fmt.Sprintf("  %s → %s", ev.Result.TaskName, styles.rankStyle(ev.Result.Rank).Render(ev.Result.Rank.String())))
	case tasks.EventError:
		m.failures = append(m.failures, ev.Message)
		m.appendLog(styles.err.Render("  ✗ " + ev.Message))
	case tasks.EventFinalStatus:
		m.final = ev.Message
	}
}

func (m *Model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case TaskListView:
		return m.renderTaskList()
	case ConfirmView:
		return m.renderConfirm()
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleTaskListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.taskList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.taskList, cmd = m.taskList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggle):
		if item, ok := m.taskList.SelectedItem().(taskItem); ok {
			item.selected = !item.selected
			m.selected[item.task.ID] = item.selected
			return m, m.taskList.SetItem(m.taskList.Index(), item)
		}
		return m, nil
	case key.Matches(msg, m.keys.all):
		return m, m.selectAll(len(m.selection()) != len(m.tasks))
	case key.Matches(msg, m.keys.enter):
		if len(m.selection()) == 0 {
			if item, ok := m.taskList.SelectedItem().(taskItem); ok {
				m.selected[item.task.ID] = true
				m.taskList.SetItem(m.taskList.Index(), taskItem{task: item.task, selected: true})
			}
		}
		if len(m.selection()) > 0 {
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func (m *Model) selectAll(on bool) tea.Cmd {
	var cmds []tea.Cmd
	for i, item := range m.taskList.Items() {
		ti := item.(taskItem)
		ti.selected = on
		m.selected[ti.task.ID] = on
		cmds = append(cmds, m.taskList.SetItem(i, ti))
	}
	return tea.Batch(cmds...)
}

// selection returns the chosen ids in configuration order.
func (m *Model) selection() []string {
	var ids []string
	for _, t := range m.tasks {
		if m.selected[t.ID] {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = RunView
		return m, m.startRun(tasks.Selection{IDs: m.selection()})
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = TaskListView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleRunKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.cancel) && m.cancel != nil {
		m.status = "aborting..."
		m.cancel()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.reset()
		m.view = TaskListView
		return m, nil
	}
	return m, nil
}

func (m *Model) reset() {
	m.current, m.status, m.final = nil, "", ""
	m.log, m.results, m.failures = nil, nil, nil
	m.summary, m.err = nil, nil
}

func (m *Model) startRun(sel tasks.Selection) tea.Cmd {
	m.reset()
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.events = make(chan tasks.Event)
	m.done = make(chan runOutcome, 1)

	events, done := m.events, m.done
	go func() {
		summary, err := m.engine.Run(ctx, tasks.RunRequest{Selection: sel, Mode: models.ModeInteractive}, events)
		done <- runOutcome{summary: summary, err: err}
	}()

	return m.waitForEvent()
}

func (m *Model) waitForEvent() tea.Cmd {
	events, done := m.events, m.done
	return func() tea.Msg {
		if events == nil {
			return runCompleteMsg(nil, nil)
		}
		ev, ok := <-events
		if !ok {
			outcome := <-done
			return runCompleteMsg(outcome.summary, outcome.err)
		}
		return runEventMsg(ev)
	}
}

func (m *Model) renderTaskList() string {
	helpKeys := []key.Binding{m.keys.toggle, m.keys.all, m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.taskList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	ids := m.selection()
	var picked []models.Task
	for _, t := range m.tasks {
		if m.selected[t.ID] {
			picked = append(picked, t)
		}
	}
	jobs := len(tasks.GroupTasks(picked))

	title := styles.title.Render(fmt.Sprintf("Measure %d tasks?", len(ids)))
	info := fmt.Sprintf("\nTasks: %d\nBrowser jobs: %d\n", len(ids), jobs)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderRun() string {
	title := styles.title.Render("Checking Rankings")

	percent := 0.0
	counter := "starting..."
	if m.current != nil && m.current.Total > 0 {
		percent = float64(m.current.Current-1) / float64(m.current.Total)
		counter = fmt.Sprintf("job %d of %d", m.current.Current, m.current.Total)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n%s %s\n", title, m.bar.ViewAs(percent), m.spinner.View(), counter)
	if m.status != "" {
		fmt.Fprintf(&b, "%s\n", styles.help.Render(m.status))
	}
	if len(m.log) > 0 {
		fmt.Fprintf(&b, "\n%s\n", strings.Join(m.log, "\n"))
	}
	fmt.Fprintf(&b, "\n%s", m.help.ShortHelpView([]key.Binding{m.keys.cancel}))
	return b.String()
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	var title string
	switch {
	case m.err != nil:
		title = styles.err.Render(fmt.Sprintf("Run failed: %v", m.err))
	case len(m.failures) > 0:
		title = styles.warn.Render(fmt.Sprintf("Finished with %d failed jobs", len(m.failures)))
	default:
		title = styles.ok.Render("✓ Run Complete!")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", title)
	if m.final != "" {
		fmt.Fprintf(&b, "%s\n", m.final)
	}
	if m.summary != nil {
		fmt.Fprintf(&b, "Jobs: %d/%d • Tasks: %d • Took: %s\n",
			m.summary.CompletedGroups, m.summary.TotalGroups, m.summary.TotalTasks, m.summary.Duration().Round(time.Second))
	}

	if len(m.results) > 0 {
		b.WriteString("\n")
		for _, r := range m.results {
			fmt.Fprintf(&b, "  %-8s %s\n", styles.rankStyle(r.Rank).Render(r.Rank.String()), r.TaskName)
		}
	}
	if len(m.failures) > 0 {
		fmt.Fprintf(&b, "\n%s\n", styles.warn.Render("Errors:"))
		for _, f := range m.failures {
			fmt.Fprintf(&b, "  • %s\n", f)
		}
	}

	fmt.Fprintf(&b, "\n%s", helpView)
	return b.String()
}
