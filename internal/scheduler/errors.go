package scheduler

import "errors"

var (
	// ErrCapacityExceeded rejects a registration beyond the fixed task
	// table capacity. Recoverable; the caller decides what to drop.
	ErrCapacityExceeded = errors.New("task table capacity exceeded")

	// ErrNotFound rejects operations on an unknown task id.
	ErrNotFound = errors.New("task not found")

	// ErrDuplicateID rejects a second registration under an existing id.
	ErrDuplicateID = errors.New("task id already registered")

	// ErrNotArmed rejects Tick/Run on an engine that was never armed.
	ErrNotArmed = errors.New("scheduler not armed")

	// ErrAlreadyRunning rejects a second concurrent Run.
	ErrAlreadyRunning = errors.New("scheduler already running")

	// ErrInvalidTask rejects a registration with no action or zero period.
	ErrInvalidTask = errors.New("invalid task")
)
