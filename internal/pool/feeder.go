package pool

import (
	"time"

	"github.com/NageshMashette/execpool/internal/logger"
	"github.com/NageshMashette/execpool/internal/task"
)

// feederPollInterval matches collectorPollInterval: the pending queue
// and the worker-free check both lack a blocking wait, so both
// coordinators fall back to a short sleep.
const feederPollInterval = 10 * time.Millisecond

// feederLoop moves pending tasks onto idle worker slots. It is the
// pool's only reader of the pending queue and the only actor allowed to
// call Handle.startRunning, so a handle can never be dispatched twice.
func (p *Pool) feederLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(feederPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.feedOnce()
		}
	}
}

func (p *Pool) feedOnce() {
	for {
		slotIdx, proc, ok := p.findIdleSlot()
		if !ok {
			return
		}
		h, ok := p.pending.TryPop()
		if !ok {
			return
		}
		entry, found := p.entry(h.ID())
		if !found {
			continue
		}
		if !h.startRunning() {
			// Cancelled before a worker could pick it up; the handle
			// itself already recorded StateCancelled.
			p.handles.Delete(h.ID())
			continue
		}
		proc.assign(entry.task.ID)
		if err := proc.sendTask(taskToWire(entry.task)); err != nil {
			logger.Get().Error().Err(err).Int("pid", proc.pid).Msg("dispatch failed")
			proc.clear()
			// best-effort: treat an undeliverable task like a lost worker,
			// reported through the result queue so the Collector completes it
			p.results.Push(resultEnvelope{slotIdx: slotIdx, result: &task.Result{
				ID:  h.ID(),
				Err: "worker process exited unexpectedly",
			}})
			continue
		}
	}
}

// findIdleSlot returns the first slot whose current worker is live and
// has no task assigned. Locking per-slot (rather than one pool-wide lock) lets the
// Killer replace a single slot's process without blocking dispatch to
// every other slot.
func (p *Pool) findIdleSlot() (int, *workerProcess, bool) {
	for i, s := range p.slots {
		s.mu.Lock()
		proc := s.proc
		s.mu.Unlock()
		if proc == nil || proc.isDead() {
			continue
		}
		if proc.currentTaskID() == "" {
			return i, proc, true
		}
	}
	return 0, nil, false
}

func taskToWire(t *task.Task) *taskWire {
	return &taskWire{
		ID:      t.ID,
		Type:    t.Type,
		Args:    t.Args,
		Kwargs:  t.Kwargs,
		Timeout: int64(t.Timeout),
	}
}
