package pool

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// sigtermGrace and sigkillGrace bound how long kill() waits for the
// process to exit after each signal before escalating or giving up.
const (
	sigtermGrace = 1 * time.Second
	sigkillGrace = 2 * time.Second
)

// workerProcess is the supervisor's handle on one re-exec'd OS process.
// currentTask holds the ID of whatever task this process is presently
// running, if any — the Killer reads it to decide what to report a
// timeout against. The Feeder sets it when it dispatches a task, and
// this process's own fd4 reader goroutine clears it once the result
// (or the process's exit) is seen.
type workerProcess struct {
	cmd *exec.Cmd
	pid int

	taskWrite *frameWriter // parent -> child (fd3)
	resultRd  *frameReader // child -> parent (fd4)

	taskWriteFile *os.File
	resultRdFile  *os.File

	currentTask atomic.Value // string task ID, "" if idle
	startedAt   atomic.Value // time.Time, zero if idle

	killed   atomic.Bool // set when kill() starts, before SIGTERM is sent
	timedOut atomic.Bool // set when that kill was for a timeout specifically
	dead     atomic.Bool // set by the fd4 reader once its Read returns an error

	mu        sync.Mutex
	exitCh    chan struct{} // closed once the reaper goroutine observes exit
	exitCodeV int
	waitErr   error
}

// markDead records that this process's control pipe has broken,
// meaning the process is gone or going. The Killer polls this to find
// slots needing a replacement process.
func (wp *workerProcess) markDead() {
	wp.dead.Store(true)
}

func (wp *workerProcess) isDead() bool {
	return wp.dead.Load()
}

// spawnWorker re-execs the running binary with EXECPOOL_WORKER=1 and
// wires up its control pipes. The caller owns stopping and reaping it.
func spawnWorker() (*workerProcess, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("pool: resolve executable: %w", err)
	}

	taskRead, taskWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("pool: task pipe: %w", err)
	}
	resultRead, resultWrite, err := os.Pipe()
	if err != nil {
		taskRead.Close()
		taskWrite.Close()
		return nil, fmt.Errorf("pool: result pipe: %w", err)
	}

	cmd := exec.Command(self)
	cmd.Env = append(os.Environ(), reExecEnvVar+"=1")
	cmd.ExtraFiles = []*os.File{taskRead, resultWrite} // fd3, fd4 in the child
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		taskRead.Close()
		taskWrite.Close()
		resultRead.Close()
		resultWrite.Close()
		return nil, fmt.Errorf("pool: start worker: %w", err)
	}

	// The child has its own copies of taskRead/resultWrite now; the
	// parent's copies must close so the pipe can signal EOF once the
	// child exits.
	taskRead.Close()
	resultWrite.Close()

	wp := &workerProcess{
		cmd:           cmd,
		pid:           cmd.Process.Pid,
		taskWrite:     newFrameWriter(taskWrite),
		resultRd:      newFrameReader(resultRead),
		taskWriteFile: taskWrite,
		resultRdFile:  resultRead,
		exitCh:        make(chan struct{}),
	}
	wp.currentTask.Store("")
	wp.startedAt.Store(time.Time{})

	// The reaper is the process's sole caller of cmd.Wait(); wait() and
	// exitCode() both just block on exitCh rather than calling it
	// themselves, since calling Wait twice on the same *exec.Cmd panics.
	go func() {
		err := cmd.Wait()
		wp.mu.Lock()
		wp.waitErr = err
		if cmd.ProcessState != nil {
			wp.exitCodeV = cmd.ProcessState.ExitCode()
		} else {
			wp.exitCodeV = -1
		}
		wp.mu.Unlock()
		close(wp.exitCh)
	}()

	return wp, nil
}

// assign records that this process has been handed task id, for the
// Killer's timeout bookkeeping. Called by the Feeder before dispatch.
func (wp *workerProcess) assign(id string) {
	wp.currentTask.Store(id)
	wp.startedAt.Store(time.Now())
}

// clear marks the process idle again, called once its result has been
// read off fd4.
func (wp *workerProcess) clear() {
	wp.currentTask.Store("")
	wp.startedAt.Store(time.Time{})
}

func (wp *workerProcess) currentTaskID() string {
	return wp.currentTask.Load().(string)
}

func (wp *workerProcess) runningSince() (time.Time, bool) {
	t := wp.startedAt.Load().(time.Time)
	return t, !t.IsZero()
}

// sendTask writes a task to the process's fd3.
func (wp *workerProcess) sendTask(t *taskWire) error {
	return wp.taskWrite.Write(msgTask, taskPayload{Task: t})
}

// sendStop asks the process to exit cleanly after its current task (if
// any) finishes. Best-effort: if the pipe is already broken the process
// is presumably dead or dying anyway.
func (wp *workerProcess) sendStop() {
	_ = wp.taskWrite.Write(msgStop, struct{}{})
}

// kill terminates the process, preferring a clean shutdown: SIGTERM
// first, then SIGKILL only if it hasn't exited within sigtermGrace.
// Used by the Killer on timeout and by Shutdown's force path.
func (wp *workerProcess) kill() error {
	wp.killed.Store(true)
	if wp.cmd.Process == nil {
		return nil
	}

	// Best-effort: if the process is already gone this just errors and
	// the Kill fallback below is a no-op too.
	_ = wp.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-wp.exitCh:
		return nil
	case <-time.After(sigtermGrace):
	}

	if err := wp.cmd.Process.Kill(); err != nil {
		return err
	}
	select {
	case <-wp.exitCh:
	case <-time.After(sigkillGrace):
	}
	return nil
}

func (wp *workerProcess) wasKilled() bool {
	return wp.killed.Load()
}

// killForTimeout marks the kill as timeout-attributed before actually
// signaling the process, so the fd4 reader's handleWorkerGone call sees
// both wasKilled() and wasTimedOut() true and can report ErrTaskTimeout
// instead of a generic "process exited" message.
func (wp *workerProcess) killForTimeout() error {
	wp.timedOut.Store(true)
	return wp.kill()
}

func (wp *workerProcess) wasTimedOut() bool {
	return wp.timedOut.Load()
}

// wait blocks until the reaper goroutine has reaped the process,
// releasing its OS resources, and returns what cmd.Wait() returned.
// Safe to call any number of times, from any number of goroutines.
func (wp *workerProcess) wait() error {
	<-wp.exitCh
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.waitErr
}

// exitCode blocks until the process has exited and returns its exit
// code, or -1 if it could not be determined.
func (wp *workerProcess) exitCode() int {
	<-wp.exitCh
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.exitCodeV
}

// closePipes closes the supervisor's ends of both control pipes. Call
// after wait() returns; by then the child's exit has already closed its
// end of fd4, which is what gives the fd4 reader goroutine io.EOF.
func (wp *workerProcess) closePipes() {
	wp.taskWriteFile.Close()
	wp.resultRdFile.Close()
}
