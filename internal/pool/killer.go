package pool

import (
	"fmt"
	"time"

	"github.com/NageshMashette/execpool/internal/logger"
	"github.com/NageshMashette/execpool/internal/metrics"
)

// killerPollInterval is intentionally coarse relative to the Feeder and
// Collector: a task's timeout is rarely sub-second, so checking it on
// the same tight 10ms cadence would just burn CPU for no added
// precision, matching the reference implementation's once-a-second
// killer thread.
const killerPollInterval = 1 * time.Second

// killerLoop enforces per-task timeouts and keeps every slot occupied
// by a live process, respawning (with backoff) whenever one dies.
func (p *Pool) killerLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(killerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.enforceTimeouts()
			p.respawnDeadSlots()
		}
	}
}

// enforceTimeouts kills any worker whose currently assigned task has
// run longer than that task's timeout. The kill itself doesn't fulfill
// the handle directly — killing breaks the worker's fd4, and the
// result reader's handleWorkerGone path reports the ErrTaskTimeout
// failure through the normal result queue, keeping the Collector the
// sole completer of handles.
func (p *Pool) enforceTimeouts() {
	now := time.Now()
	for _, s := range p.slots {
		s.mu.Lock()
		proc := s.proc
		s.mu.Unlock()
		if proc == nil || proc.isDead() {
			continue
		}
		taskID := proc.currentTaskID()
		if taskID == "" {
			continue
		}
		startedAt, ok := proc.runningSince()
		if !ok {
			continue
		}
		entry, found := p.entry(taskID)
		if !found {
			continue
		}
		if now.Sub(startedAt) < entry.task.Timeout {
			continue
		}
		logger.Get().Warn().Int("pid", proc.pid).Str("task_id", taskID).Msg("task timed out, killing worker")
		metrics.WorkerKills.WithLabelValues("timeout").Inc()
		p.notify("worker.killed", fmt.Sprint(proc.pid), map[string]interface{}{"reason": "timeout", "task_id": taskID})
		_ = proc.killForTimeout()
	}
}

// respawnDeadSlots reaps any process whose control pipe has broken and
// starts a fresh one in its place, honoring a backoff so a handler that
// crashes on every task doesn't spin the host.
func (p *Pool) respawnDeadSlots() {
	for i, s := range p.slots {
		s.mu.Lock()
		proc := s.proc
		s.mu.Unlock()
		if proc == nil || !proc.isDead() {
			continue
		}
		p.respawnSlot(i, s, proc)
	}
}

func (p *Pool) respawnSlot(idx int, s *slot, old *workerProcess) {
	s.mu.Lock()
	if s.proc != old {
		// Another tick already replaced this slot.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	go func() {
		old.wait()
		old.closePipes()

		s.mu.Lock()
		if time.Since(s.lastRun) > defaultCrashWindowReset {
			s.crashes = 0
		}
		s.crashes++
		crashes := s.crashes
		s.mu.Unlock()

		if d := p.backoff.delay(crashes); d > 0 {
			select {
			case <-time.After(d):
			case <-p.stopCh:
				return
			}
		}
		if p.State().terminal() {
			return
		}

		newProc, err := spawnWorker()
		if err != nil {
			logger.Get().Error().Err(err).Int("slot", idx).Msg("failed to respawn worker")
			return
		}

		s.mu.Lock()
		s.proc = newProc
		s.lastRun = time.Now()
		s.mu.Unlock()

		metrics.WorkerRespawns.Inc()
		p.startResultReader(idx, newProc)
		p.notify("worker.respawned", fmt.Sprint(newProc.pid), map[string]interface{}{"slot": idx})
		logger.Get().Info().Int("slot", idx).Int("pid", newProc.pid).Msg("worker respawned")
	}()
}
