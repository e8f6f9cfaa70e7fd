package tasks

import (
	"sync"
	"sync/atomic"

	"github.com/desertthunder/rankwatch/internal/shared"
)

// RunCoordinator admits at most one run at a time. The zero value is free.
type RunCoordinator struct {
	busy atomic.Bool
}

// NewRunCoordinator returns a free coordinator.
func NewRunCoordinator() *RunCoordinator {
	return &RunCoordinator{}
}

// TryAcquire takes the coordinator without blocking and reports whether it succeeded.
func (c *RunCoordinator) TryAcquire() bool {
	return c.busy.CompareAndSwap(false, true)
}

// Release frees the coordinator. Releasing a free coordinator panics, like unlocking an unlocked [sync.Mutex].
func (c *RunCoordinator) Release() {
	if !c.busy.CompareAndSwap(true, false) {
		panic("tasks: release of a free RunCoordinator")
	}
}

// Acquire takes the coordinator or fails with [shared.ErrRunInProgress].
//
// The returned release func may be called any number of times; only the first call releases.
func (c *RunCoordinator) Acquire() (release func(), err error) {
	if !c.TryAcquire() {
		return nil, shared.ErrRunInProgress
	}
	var once sync.Once
	return func() { once.Do(c.Release) }, nil
}

// Busy reports whether a run holds the coordinator. The answer may be stale by the time it is used.
func (c *RunCoordinator) Busy() bool {
	return c.busy.Load()
}
