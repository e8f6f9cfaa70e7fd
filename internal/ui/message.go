package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgRunEvent MsgKind = iota
	MsgRunComplete
)

type runOutcome struct {
	summary *models.RunSummary
	err     error
}

// runEventMsg is the constructor for [MsgRunEvent]
func runEventMsg(ev tasks.Event) Msg {
	return Msg{kind: MsgRunEvent, data: ev}
}

// runCompleteMsg is the constructor for [MsgRunComplete]
func runCompleteMsg(summary *models.RunSummary, err error) Msg {
	return Msg{kind: MsgRunComplete, data: runOutcome{summary: summary, err: err}}
}
