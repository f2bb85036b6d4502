package pool

import "errors"

var (
	// ErrInvalidConcurrency is returned by New when the requested worker
	// count is not strictly positive.
	ErrInvalidConcurrency = errors.New("pool: worker count must be positive")

	// ErrPoolClosed is returned by Submit/Schedule once the pool has
	// transitioned to a terminal state (STOPPING, STOPPED, or BROKEN).
	ErrPoolClosed = errors.New("pool: closed")

	// ErrTaskTimeout is the error a handle carries when its deadline
	// elapsed and its worker was force-terminated.
	ErrTaskTimeout = errors.New("pool: task timed out")

	// ErrTaskCancelled is the error a handle carries when it was
	// cancelled before a worker picked it up, or abandoned at shutdown.
	ErrTaskCancelled = errors.New("pool: task cancelled")

	// ErrHandlerNotFound is the failure text a worker reports when a
	// task names a handler that was never registered.
	ErrHandlerNotFound = errors.New("pool: no handler registered for task type")

	// ErrWaitTimeout names a wait whose deadline passed before the handle
	// reached a terminal state. Handle.Wait does not return it; it
	// reports a cut-short wait as ctx.Err().
	ErrWaitTimeout = errors.New("pool: wait timed out")
)

// TaskError wraps the textual traceback a worker reported for a failed
// task. It exists (rather than errors.New(msg)) so callers can recognize
// "the task itself failed" distinctly from pool-level errors via
// errors.As.
type TaskError struct {
	Message string
}

func (e *TaskError) Error() string { return e.Message }
