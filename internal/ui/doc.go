// Package ui implements an interactive terminal interface for ranking runs using bubbletea's Elm architecture.
//
// The TUI walks through a short workflow:
//  1. [TaskListView] : Browse configured tasks and pick the ones to measure
//  2. [ConfirmView] : Confirm the selection and job count
//  3. [RunView] : Follow the run's event stream with a progress bar
//  4. [ResultView] : Review every rank and error the run produced
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg
// union type. Events flow from the engine through a channel that is read one message at a time, so the run is
// paced by the UI and nothing is dropped.
//
// Keyboard navigation uses vim-style bindings (j/k, space, enter, esc, y/n, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
