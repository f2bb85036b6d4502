package pool

import (
	"io"
	"time"

	"github.com/NageshMashette/execpool/internal/logger"
	"github.com/NageshMashette/execpool/internal/metrics"
	"github.com/NageshMashette/execpool/internal/task"
)

// collectorPollInterval mirrors the short poll the reference
// implementation uses for its results thread: there is no blocking
// primitive that multiplexes "new result available" against "pool
// stopping" over this queue, so a short sleep stands in for it.
const collectorPollInterval = 10 * time.Millisecond

// startResultReader launches the single goroutine that reads fd4 for
// one worker slot. It is the sole writer of that worker's
// currentTask/startedAt fields while a task is outstanding, and the
// sole producer onto the pool's result queue for that slot.
func (p *Pool) startResultReader(slotIdx int, proc *workerProcess) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			env, err := proc.resultRd.Read()
			if err != nil {
				if err != io.EOF {
					logger.Get().Warn().Err(err).Int("pid", proc.pid).Msg("worker control read failed")
				}
				proc.markDead()
				p.handleWorkerGone(slotIdx, proc)
				return
			}
			switch env.Kind {
			case msgStarted:
				// Liveness confirmation only; assign() already ran
				// synchronously in the Feeder before dispatch.
			case msgResult:
				var rp resultPayload
				if decErr := decodePayload(env.Payload, &rp); decErr != nil {
					continue
				}
				proc.clear()
				p.results.Push(resultEnvelope{
					slotIdx: slotIdx,
					result: &task.Result{
						ID:    rp.TaskID,
						Value: rp.Value,
						Err:   rp.Err,
						Logs:  rp.Logs,
					},
				})
			}
		}
	}()
}

// handleWorkerGone runs when a worker's fd4 closes unexpectedly — the
// process crashed, was killed out from under a running task, or exited
// on its own. If it was mid-task, that task gets a synthetic failure so
// its handle doesn't hang forever; either way the Killer is responsible
// for noticing the slot's process has exited and respawning it.
func (p *Pool) handleWorkerGone(slotIdx int, proc *workerProcess) {
	taskID := proc.currentTaskID()
	if taskID == "" {
		return
	}
	proc.clear()

	result := &task.Result{ID: taskID}
	switch {
	case proc.wasTimedOut():
		result.Err = ErrTaskTimeout.Error()
		result.TimedOut = true
	case proc.wasKilled():
		result.Err = "worker process killed"
	default:
		result.Err = "worker process exited unexpectedly"
	}
	p.results.Push(resultEnvelope{slotIdx: slotIdx, result: result})
}

// collectorLoop drains finished results and fulfills their handles.
// This is the only actor permitted to call Handle.complete, keeping
// handle completion single-writer just like the supervisor's task
// table.
func (p *Pool) collectorLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(collectorPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			p.drainResults()
			return
		case <-ticker.C:
			p.drainResults()
		}
	}
}

func (p *Pool) drainResults() {
	for {
		re, ok := p.results.TryPop()
		if !ok {
			return
		}
		entry, found := p.entry(re.result.ID)
		if !found {
			continue
		}
		entry.handle.complete(re.result)
		p.handles.Delete(re.result.ID)

		status := "done"
		if re.result.Failed() {
			status = "failed"
		}
		metrics.TasksCompleted.WithLabelValues(entry.task.Type, status).Inc()
		metrics.ActiveTasks.Dec()
	}
}
