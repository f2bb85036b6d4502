package pool

import (
	"math"
	"math/rand"
	"time"
)

// respawnBackoff paces how quickly a crashing worker process gets
// replaced. Nothing in a task-retry sense is being retried here — task
// semantics stay at-most-once — this only protects the host from a
// handler that panics or gets killed on every single task, which
// without a backoff would pin a CPU core in a tight respawn loop.
// Built on the same exponential-plus-jitter shape as a task retry
// policy, but keyed by consecutive-crash count per worker slot rather
// than by task attempt count.
type respawnBackoff struct {
	base   time.Duration
	max    time.Duration
	factor float64
	jitter float64
}

func newRespawnBackoff(base, max time.Duration) *respawnBackoff {
	return &respawnBackoff{
		base:   base,
		max:    max,
		factor: 2.0,
		jitter: 0.2,
	}
}

// delay returns how long to wait before respawning a worker that has
// crashed consecutiveCrashes times in a row (0 means respawn immediately).
func (b *respawnBackoff) delay(consecutiveCrashes int) time.Duration {
	if consecutiveCrashes <= 0 {
		return 0
	}
	d := float64(b.base) * math.Pow(b.factor, float64(consecutiveCrashes-1))
	if d > float64(b.max) {
		d = float64(b.max)
	}
	j := d * b.jitter * (rand.Float64()*2 - 1)
	d += j
	if d < 0 {
		d = float64(b.base)
	}
	return time.Duration(d)
}

// defaultCrashWindowReset is how long a worker slot must run without crashing
// before its consecutive-crash counter resets to zero, letting a slot
// that recovers return to immediate respawns instead of staying throttled
// from an earlier incident.
const defaultCrashWindowReset = 30 * time.Second
