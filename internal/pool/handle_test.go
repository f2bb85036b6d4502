package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NageshMashette/execpool/internal/task"
)

func TestNewHandle(t *testing.T) {
	h := newHandle("task-1")
	assert.Equal(t, "task-1", h.ID())
	assert.Equal(t, task.StatePending, h.State())
	assert.False(t, h.Done())
	assert.False(t, h.Cancelled())
}

func TestHandle_CancelWhilePending(t *testing.T) {
	h := newHandle("task-1")

	var observed []task.State
	h.OnTransition(func(_ *Handle, s task.State) { observed = append(observed, s) })

	ok := h.Cancel()
	assert.True(t, ok)
	assert.True(t, h.Done())
	assert.True(t, h.Cancelled())
	assert.ErrorIs(t, h.Err(), ErrTaskCancelled)
	assert.Equal(t, []task.State{task.StateCancelled}, observed)

	// A second Cancel is a no-op, not a second transition.
	assert.False(t, h.Cancel())
	assert.Equal(t, []task.State{task.StateCancelled}, observed)
}

func TestHandle_CancelAfterRunningFails(t *testing.T) {
	h := newHandle("task-1")
	require.True(t, h.startRunning())
	assert.False(t, h.Cancel())
	assert.Equal(t, task.StateRunning, h.State())
}

func TestHandle_CompleteSuccess(t *testing.T) {
	h := newHandle("task-1")
	require.True(t, h.startRunning())

	h.complete(&task.Result{ID: "task-1", Value: 42, Logs: "hi\n"})

	assert.Equal(t, task.StateDone, h.State())
	assert.True(t, h.Done())
	assert.Nil(t, h.Err())
	assert.Equal(t, 42, h.Value())
	assert.Equal(t, "hi\n", h.Logs())
}

func TestHandle_CompleteFailure(t *testing.T) {
	h := newHandle("task-1")
	require.True(t, h.startRunning())

	h.complete(&task.Result{ID: "task-1", Err: "boom", Logs: "oops\n"})

	assert.Equal(t, task.StateFailed, h.State())
	require.Error(t, h.Err())
	assert.Equal(t, "boom", h.Err().Error())
	assert.Equal(t, "oops\n", h.Logs())
}

func TestHandle_FailTimeout(t *testing.T) {
	h := newHandle("task-1")
	require.True(t, h.startRunning())

	h.failTimeout("partial output\n")

	assert.Equal(t, task.StateFailed, h.State())
	assert.ErrorIs(t, h.Err(), ErrTaskTimeout)
	assert.Equal(t, "partial output\n", h.Logs())
}

func TestHandle_StartRunningTwiceFails(t *testing.T) {
	h := newHandle("task-1")
	assert.True(t, h.startRunning())
	assert.False(t, h.startRunning())
}

func TestHandle_WaitReturnsOnCompletion(t *testing.T) {
	h := newHandle("task-1")
	require.True(t, h.startRunning())

	go func() {
		time.Sleep(10 * time.Millisecond)
		h.complete(&task.Result{ID: "task-1", Value: "ok"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := h.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "ok", h.Value())
}

func TestHandle_WaitHonorsContextDeadline(t *testing.T) {
	h := newHandle("task-1")
	require.True(t, h.startRunning())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandle_OnTransitionFiresOutsideLock(t *testing.T) {
	h := newHandle("task-1")
	done := make(chan struct{}, 2)
	h.OnTransition(func(inner *Handle, s task.State) {
		// Must be able to call back into the handle's read methods
		// without deadlocking, since fireTransition releases the lock
		// before invoking observers.
		_ = inner.State()
		_ = inner.Logs()
		done <- struct{}{}
	})

	require.True(t, h.startRunning())
	h.complete(&task.Result{ID: "task-1", Value: 1})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer never fired")
	}
}
