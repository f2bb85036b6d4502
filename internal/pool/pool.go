// Package pool implements a bounded pool of isolated OS-process workers
// that execute arbitrary registered handlers, enforce per-task timeouts
// by killing and respawning offending workers, capture each task's
// stdout/stderr, and report outcomes through completion handles.
//
// A pool coordinates five concurrent actors without a shared mutex
// serializing all of them: the submitter (any goroutine calling
// Submit), the Feeder (moves pending tasks onto idle workers), the
// Collector (drains finished results onto their handles), the Killer
// (enforces timeouts and respawns crashed or killed workers), and the
// worker processes themselves.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NageshMashette/execpool/internal/logger"
	"github.com/NageshMashette/execpool/internal/metrics"
	"github.com/NageshMashette/execpool/internal/task"
)

// State is the pool controller's own lifecycle, distinct from any one
// task's or worker's state.
type State int32

const (
	StateStarting State = iota
	StateStarted
	StateStopping
	StateStopped
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// terminal reports whether s is one of the exit-now signals every actor
// watches for.
func (s State) terminal() bool {
	return s == StateStopping || s == StateStopped || s == StateBroken
}

// Options configures a Pool.
type Options struct {
	Workers          int
	DefaultTimeout   time.Duration
	ShutdownTimeout  time.Duration
	RespawnBaseDelay time.Duration
	RespawnMaxDelay  time.Duration
}

func (o *Options) setDefaults() {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = 30 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	if o.RespawnBaseDelay <= 0 {
		o.RespawnBaseDelay = 200 * time.Millisecond
	}
	if o.RespawnMaxDelay <= 0 {
		o.RespawnMaxDelay = 30 * time.Second
	}
}

// slot pairs a worker-table position with its current occupant. Slots
// exist (rather than just a slice of *workerProcess) so the Killer can
// replace a dead process in place without the Feeder/Collector needing
// to know a respawn happened mid-iteration.
type slot struct {
	mu      sync.Mutex
	proc    *workerProcess
	crashes int       // consecutive crashes, for respawnBackoff
	lastRun time.Time // when this slot's current process was spawned
}

// Pool is a bounded set of OS-process workers. The zero value is not
// usable; construct with New.
type Pool struct {
	opts Options

	state atomic.Int32

	slots []*slot

	handles sync.Map // task ID -> *Handle
	pending *unboundedQueue[*Handle]
	results *unboundedQueue[resultEnvelope]

	backoff *respawnBackoff

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	sink EventSink
}

// EventSink receives a notification of a pool-level occurrence: kind
// names the event ("task.submitted", "worker.killed", etc.), id is the
// task ID or worker PID as a string, and extra carries any additional
// detail. Kept as a plain callback rather than importing the events
// package directly, so this package never depends on Redis.
type EventSink func(kind, id string, extra map[string]interface{})

// OnEvent registers the sink used to externalize pool occurrences (the
// admin API wires this to its event bus and result archive). Call
// before submitting any tasks; it is not safe to change concurrently
// with Submit.
func (p *Pool) OnEvent(sink EventSink) {
	p.sink = sink
}

func (p *Pool) notify(kind, id string, extra map[string]interface{}) {
	if p.sink != nil {
		p.sink(kind, id, extra)
	}
}

// taskEventKind maps a handle's terminal/running states onto the event
// kind names external sinks (the event bus, the archive) key on.
var taskEventKind = map[task.State]string{
	task.StateRunning:   "task.started",
	task.StateDone:      "task.completed",
	task.StateFailed:    "task.failed",
	task.StateCancelled: "task.cancelled",
}

// resultEnvelope carries a worker's reported outcome alongside which
// slot produced it. The slot is marked idle by its result reader
// (proc.clear) before the push; the Collector does not read slotIdx.
type resultEnvelope struct {
	slotIdx int
	result  *task.Result
}

// New starts a pool of opts.Workers worker processes and its Feeder,
// Collector, and Killer goroutines. The returned Pool is StateStarted
// once every worker process has been started; it does not wait for the
// workers to report in. If any worker fails to spawn, New returns an
// error and no Pool.
func New(opts Options) (*Pool, error) {
	if opts.Workers <= 0 {
		return nil, ErrInvalidConcurrency
	}
	opts.setDefaults()

	p := &Pool{
		opts:    opts,
		pending: newUnboundedQueue[*Handle](),
		results: newUnboundedQueue[resultEnvelope](),
		backoff: newRespawnBackoff(opts.RespawnBaseDelay, opts.RespawnMaxDelay),
		stopCh:  make(chan struct{}),
	}
	p.state.Store(int32(StateStarting))

	p.slots = make([]*slot, opts.Workers)
	for i := range p.slots {
		proc, err := spawnWorker()
		if err != nil {
			p.state.Store(int32(StateBroken))
			return nil, fmt.Errorf("pool: spawn worker %d: %w", i, err)
		}
		p.slots[i] = &slot{proc: proc, lastRun: time.Now()}
		metrics.ActiveWorkers.Inc()
		p.startResultReader(i, proc)
	}

	p.state.Store(int32(StateStarted))

	p.wg.Add(3)
	go p.feederLoop()
	go p.collectorLoop()
	go p.killerLoop()

	logger.Info().Int("workers", opts.Workers).Msg("pool started")
	return p, nil
}

func (p *Pool) State() State {
	return State(p.state.Load())
}

// Submit enqueues a task for execution and returns a Handle tracking
// its outcome. Submit never blocks on a worker being free; the task
// simply waits in the pending queue until the Feeder can place it. It
// is sugar for Schedule using the pool's configured default timeout.
func (p *Pool) Submit(taskType string, args []interface{}, kwargs map[string]interface{}) (*Handle, error) {
	return p.schedule(taskType, args, kwargs, 0)
}

// Schedule is Submit with an explicit per-task timeout, overriding
// opts.DefaultTimeout. A timeout <= 0 falls back to the pool default,
// same as Submit.
func (p *Pool) Schedule(taskType string, args []interface{}, kwargs map[string]interface{}, timeout time.Duration) (*Handle, error) {
	return p.schedule(taskType, args, kwargs, timeout)
}

func (p *Pool) schedule(taskType string, args []interface{}, kwargs map[string]interface{}, timeout time.Duration) (*Handle, error) {
	if p.State().terminal() {
		return nil, ErrPoolClosed
	}
	t := task.New(taskType, args, kwargs)
	if timeout <= 0 {
		timeout = p.opts.DefaultTimeout
	}
	t.Timeout = timeout
	h := newHandle(t.ID)
	h.OnTransition(func(h *Handle, state task.State) {
		kind, ok := taskEventKind[state]
		if !ok {
			return
		}
		extra := map[string]interface{}{"type": taskType}
		if state == task.StateDone || state == task.StateFailed {
			extra["logs"] = h.Logs()
			if err := h.Err(); err != nil {
				extra["err"] = err.Error()
			} else {
				extra["value"] = h.Value()
			}
		}
		p.notify(kind, h.ID(), extra)
	})
	p.handles.Store(t.ID, &handleEntry{handle: h, task: t})
	p.pending.Push(h)
	metrics.TasksSubmitted.WithLabelValues(taskType).Inc()
	metrics.ActiveTasks.Inc()
	p.notify("task.submitted", t.ID, map[string]interface{}{"type": taskType})
	return h, nil
}

// handleEntry is what the handle table actually stores: the Handle
// callers see, plus the Task needed to dispatch it and enforce its
// timeout.
type handleEntry struct {
	handle *Handle
	task   *task.Task
}

// Handle looks up a previously submitted task's handle by ID.
func (p *Pool) Handle(id string) (*Handle, bool) {
	e, ok := p.entry(id)
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// WorkerCount returns the configured number of worker slots (not
// necessarily all currently live — a slot awaiting respawn still counts).
func (p *Pool) WorkerCount() int {
	return len(p.slots)
}

// WorkerSnapshot is a point-in-time view of one worker slot, for the
// admin API and CLI.
type WorkerSnapshot struct {
	Slot       int    `json:"slot"`
	PID        int    `json:"pid"`
	Dead       bool   `json:"dead"`
	CurrentTask string `json:"current_task,omitempty"`
}

// WorkerSnapshots reports every slot's current occupant.
func (p *Pool) WorkerSnapshots() []WorkerSnapshot {
	out := make([]WorkerSnapshot, 0, len(p.slots))
	for i, s := range p.slots {
		s.mu.Lock()
		proc := s.proc
		s.mu.Unlock()
		if proc == nil {
			out = append(out, WorkerSnapshot{Slot: i, Dead: true})
			continue
		}
		out = append(out, WorkerSnapshot{
			Slot:        i,
			PID:         proc.pid,
			Dead:        proc.isDead(),
			CurrentTask: proc.currentTaskID(),
		})
	}
	return out
}

func (p *Pool) entry(id string) (*handleEntry, bool) {
	v, ok := p.handles.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*handleEntry), true
}

// Shutdown stops accepting new tasks and terminates every worker,
// returning each slot's exit code in slot order. If wait is true it
// first asks workers to finish their current task and exit cleanly,
// waiting up to opts.ShutdownTimeout (or ctx's deadline, whichever is
// sooner) before force-killing stragglers; if wait is false every
// worker is force-killed immediately. Safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context, wait bool) ([]int, error) {
	p.stopOnce.Do(func() {
		p.state.Store(int32(StateStopping))
		close(p.stopCh)
	})

	if wait {
		deadline := time.Now().Add(p.opts.ShutdownTimeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}

		for _, s := range p.slots {
			s.mu.Lock()
			proc := s.proc
			s.mu.Unlock()
			if proc != nil {
				proc.sendStop()
			}
		}

		done := make(chan struct{})
		go func() {
			for _, s := range p.slots {
				s.mu.Lock()
				proc := s.proc
				s.mu.Unlock()
				if proc != nil {
					proc.wait()
				}
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Until(deadline)):
			for _, s := range p.slots {
				s.mu.Lock()
				proc := s.proc
				s.mu.Unlock()
				if proc != nil {
					proc.kill()
				}
			}
			<-done
		}
	} else {
		for _, s := range p.slots {
			s.mu.Lock()
			proc := s.proc
			s.mu.Unlock()
			if proc != nil {
				proc.kill()
			}
		}
	}

	// wait() above returns once the reaper has observed exit, and kill()
	// once it has or its SIGTERM/SIGKILL grace periods ran out, so
	// exitCode() here blocks only for a process that outlived both.
	exitCodes := make([]int, len(p.slots))
	for i, s := range p.slots {
		s.mu.Lock()
		proc := s.proc
		s.mu.Unlock()
		if proc == nil {
			exitCodes[i] = -1
			continue
		}
		exitCodes[i] = proc.exitCode()
		proc.closePipes()
	}

	p.pending.Close()
	p.results.Close()

	// Every handle still PENDING or RUNNING never got a result; report
	// them as cancelled rather than leaving callers waiting forever.
	p.handles.Range(func(_, v interface{}) bool {
		e := v.(*handleEntry)
		if !e.handle.Done() {
			e.handle.Cancel()
		}
		return true
	})

	p.state.Store(int32(StateStopped))
	p.wg.Wait()
	logger.Info().Msg("pool stopped")
	return exitCodes, nil
}
