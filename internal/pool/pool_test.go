package pool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain doubles as this test binary's re-exec entrypoint: a child
// spawned by spawnWorker() is the very same compiled test binary with
// EXECPOOL_WORKER=1 set, so registering handlers and calling
// MaybeRunWorker() here is enough to make it a working worker process
// with no separate helper binary.
func TestMain(m *testing.M) {
	registerIntegrationHandlers()
	MaybeRunWorker()
	os.Exit(m.Run())
}

func registerIntegrationHandlers() {
	RegisterHandler("it-echo", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		if len(args) == 0 {
			return nil, nil
		}
		return args[0], nil
	})
	RegisterHandler("it-log", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		fmt.Println("stdout line")
		fmt.Fprintln(os.Stderr, "stderr line")
		return "logged", nil
	})
	RegisterHandler("it-fail", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return nil, errors.New("handler exploded")
	})
	RegisterHandler("it-sleep", func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		seconds, _ := kwargs["seconds"].(float64)
		time.Sleep(time.Duration(seconds * float64(time.Second)))
		return "awake", nil
	})
}

func newTestPool(t *testing.T, workers int, defaultTimeout time.Duration) *Pool {
	t.Helper()
	p, err := New(Options{
		Workers:          workers,
		DefaultTimeout:   defaultTimeout,
		ShutdownTimeout:  5 * time.Second,
		RespawnBaseDelay: 10 * time.Millisecond,
		RespawnMaxDelay:  200 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = p.Shutdown(context.Background(), true)
	})
	return p
}

func TestPool_SubmitRoundTrip(t *testing.T) {
	p := newTestPool(t, 2, time.Second)

	h, err := p.Submit("it-echo", []interface{}{"hello"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
	assert.Equal(t, "hello", h.Value())
	assert.True(t, h.Done())
}

func TestPool_CapturesLogs(t *testing.T) {
	p := newTestPool(t, 1, time.Second)

	h, err := p.Submit("it-log", nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
	assert.Contains(t, h.Logs(), "stdout line")
	assert.Contains(t, h.Logs(), "stderr line")
}

func TestPool_CapturesHandlerFailure(t *testing.T) {
	p := newTestPool(t, 1, time.Second)

	h, err := p.Submit("it-fail", nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	waitErr := h.Wait(ctx)
	require.Error(t, waitErr)
	assert.Contains(t, waitErr.Error(), "handler exploded")

	var taskErr *TaskError
	assert.True(t, errors.As(waitErr, &taskErr))
}

func TestPool_TimeoutRespawnsWorker(t *testing.T) {
	p := newTestPool(t, 1, time.Second)

	h, err := p.Schedule("it-sleep", nil, map[string]interface{}{"seconds": 5.0}, 200*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	waitErr := h.Wait(ctx)
	require.Error(t, waitErr)
	assert.True(t, errors.Is(waitErr, ErrTaskTimeout))

	// The slot's process should be respawned and able to take new work.
	h2, err := p.Submit("it-echo", []interface{}{"still alive"}, nil)
	require.NoError(t, err)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel2()
	require.NoError(t, h2.Wait(ctx2))
	assert.Equal(t, "still alive", h2.Value())
}

func TestPool_HundredTasksNoLoss(t *testing.T) {
	p := newTestPool(t, 4, time.Second)

	const n = 100
	handles := make([]*Handle, n)
	for i := 0; i < n; i++ {
		h, err := p.Submit("it-echo", []interface{}{i}, nil)
		require.NoError(t, err)
		handles[i] = h
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, h := range handles {
		require.NoError(t, h.Wait(ctx))
		v, ok := h.Value().(float64)
		require.True(t, ok, "expected numeric value for task %d, got %T", i, h.Value())
		assert.Equal(t, float64(i), v)
	}
}

func TestPool_ShutdownReturnsExitCodePerWorker(t *testing.T) {
	p, err := New(Options{
		Workers:         2,
		DefaultTimeout:  time.Second,
		ShutdownTimeout: 2 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	exitCodes, err := p.Shutdown(ctx, true)
	require.NoError(t, err)
	assert.Len(t, exitCodes, 2)
}
