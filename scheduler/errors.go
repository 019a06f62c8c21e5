package scheduler

import "errors"

// Scheduler state errors.
var (
	// ErrStopped indicates the scheduler was stopped and cannot restart.
	ErrStopped = errors.New("scheduler stopped")

	// ErrNotRunning indicates Pause was called outside the Running state.
	ErrNotRunning = errors.New("scheduler is not running")

	// ErrNotPaused indicates Resume was called outside the Paused state.
	ErrNotPaused = errors.New("scheduler is not paused")

	// ErrSkipTick lets a tick function report that there was nothing to do,
	// for example because no frame has been captured yet. It is not counted
	// as an error.
	ErrSkipTick = errors.New("tick skipped")
)
