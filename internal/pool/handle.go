package pool

import (
	"context"
	"sync"

	"github.com/NageshMashette/execpool/internal/task"
)

// Observer is invoked whenever a Handle transitions state. Observers run
// synchronously after the handle's lock is released, so they may call
// the handle's read methods, but they must not block.
type Observer func(h *Handle, state task.State)

// Handle is a single-assignment container representing the eventual
// outcome of a submitted task: PENDING -> RUNNING -> {DONE, FAILED,
// CANCELLED}. It is safe for concurrent use.
type Handle struct {
	id string

	mu        sync.Mutex
	state     task.State
	value     interface{}
	err       error
	logs      string
	done      chan struct{} // closed exactly once, when state becomes terminal
	observers []Observer
}

func newHandle(id string) *Handle {
	return &Handle{
		id:    id,
		state: task.StatePending,
		done:  make(chan struct{}),
	}
}

// ID returns the task ID this handle tracks.
func (h *Handle) ID() string { return h.id }

// State returns the handle's current state.
func (h *Handle) State() task.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done reports whether the handle has reached any terminal state.
func (h *Handle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.IsFinal()
}

// Cancelled reports whether the handle was cancelled.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == task.StateCancelled
}

// Value returns the task's result value. Only meaningful once Done()
// and Err() == nil.
func (h *Handle) Value() interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

// Err returns the handle's terminal error, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Logs returns everything captured on stdout/stderr/the log package
// during the task's execution. Always present, possibly empty.
func (h *Handle) Logs() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logs
}

// OnTransition registers an observer called on every future state
// transition. It does not fire for the handle's current state.
func (h *Handle) OnTransition(obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, obs)
}

// Wait blocks until the handle reaches a terminal state or ctx is done.
// It returns the handle's error (nil on success) or ctx.Err() if the
// wait itself was cut short.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel attempts to cancel the task. It only succeeds while the handle
// is still PENDING: a task a worker has already picked up cannot be
// cooperatively stopped, only killed by a timeout.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	if h.state != task.StatePending {
		h.mu.Unlock()
		return false
	}
	h.state = task.StateCancelled
	h.err = ErrTaskCancelled
	h.mu.Unlock()
	h.fireTransition(task.StateCancelled)
	close(h.done)
	return true
}

// startRunning transitions PENDING -> RUNNING. Returns false if the
// handle was already cancelled (the Feeder's cue to drop the task
// instead of dispatching it).
func (h *Handle) startRunning() bool {
	h.mu.Lock()
	if h.state != task.StatePending {
		h.mu.Unlock()
		return false
	}
	h.state = task.StateRunning
	h.mu.Unlock()
	h.fireTransition(task.StateRunning)
	return true
}

// complete transitions RUNNING -> DONE or FAILED depending on r, setting
// logs and value/err. It is the Collector's sole responsibility to call
// this. A result flagged TimedOut carries ErrTaskTimeout itself rather
// than a wrapped TaskError, so errors.Is(h.Err(), ErrTaskTimeout) holds
// for a killer-triggered timeout the same way it does for failTimeout.
func (h *Handle) complete(r *task.Result) {
	h.mu.Lock()
	h.logs = r.Logs
	var final task.State
	switch {
	case r.TimedOut:
		h.state = task.StateFailed
		h.err = ErrTaskTimeout
		final = task.StateFailed
	case r.Failed():
		h.state = task.StateFailed
		h.err = &TaskError{Message: r.Err}
		final = task.StateFailed
	default:
		h.state = task.StateDone
		h.value = r.Value
		final = task.StateDone
	}
	h.mu.Unlock()
	h.fireTransition(final)
	close(h.done)
}

// failTimeout transitions RUNNING -> FAILED with a timeout error
// directly, without going through the result queue. Kept for callers
// that already hold a Handle and know its task timed out without
// needing to round-trip a synthesized task.Result.
func (h *Handle) failTimeout(logs string) {
	h.complete(&task.Result{Logs: logs, TimedOut: true})
}

func (h *Handle) fireTransition(state task.State) {
	h.mu.Lock()
	observers := append([]Observer(nil), h.observers...)
	h.mu.Unlock()
	for _, obs := range observers {
		obs(h, state)
	}
}
