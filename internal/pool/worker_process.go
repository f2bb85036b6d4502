package pool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// HandlerFunc is the signature every task handler registers under a
// name. It receives the positional and keyword arguments exactly as
// submitted and returns a JSON-serializable value or an error.
type HandlerFunc func(args []interface{}, kwargs map[string]interface{}) (interface{}, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]HandlerFunc{}
)

// RegisterHandler makes a handler available under name to any worker
// process spawned from this binary. Call it from an init() or before
// New, in both the supervisor and (since it's the same binary) the
// re-exec'd child — registration must happen unconditionally, ahead of
// the MaybeRunWorker check, or the child will report ErrHandlerNotFound
// for every task type.
func RegisterHandler(name string, fn HandlerFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

func lookupHandler(name string) (HandlerFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// reExecEnvVar is set in the child's environment by the supervisor
// before it calls Start on the re-exec'd command. Its presence is the
// sole signal that this process invocation should run the worker loop
// instead of the caller's own main().
const reExecEnvVar = "EXECPOOL_WORKER"

// MaybeRunWorker must run at the start of an execpool-embedding
// program's main(), right after handler registration (see
// RegisterHandler) and before anything else. If this process was re-exec'd as a worker it runs
// the worker loop and calls os.Exit when the loop ends; it never
// returns in that case. In the supervisor process it is a no-op.
func MaybeRunWorker() {
	if os.Getenv(reExecEnvVar) != "1" {
		return
	}
	code := runWorkerLoop()
	os.Exit(code)
}

// runWorkerLoop is the body of a worker process: read tasks off fd3
// one at a time, run them with output capture, report outcomes on fd4,
// until the supervisor sends a stop sentinel or closes its end.
func runWorkerLoop() int {
	in := openControlFile(fdTaskIn, "/proc/self/fd/3")
	out := openControlFile(fdResultOut, "/proc/self/fd/4")
	defer out.Close()
	defer in.Close()

	reader := newFrameReader(in)
	writer := newFrameWriter(out)

	for {
		env, err := reader.Read()
		if err != nil {
			// Supervisor closed fd3, most likely because it killed us
			// or is shutting down. Exit quietly either way.
			return 0
		}

		switch env.Kind {
		case msgStop:
			return 0
		case msgTask:
			var p taskPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			runOneTask(p.Task, writer)
		}
	}
}

func runOneTask(t *taskWire, writer *frameWriter) {
	_ = writer.Write(msgStarted, startedPayload{TaskID: t.ID})

	logs, value, taskErr := executeWithCapture(t)

	res := resultPayload{TaskID: t.ID, Logs: logs}
	if taskErr != nil {
		res.Err = taskErr.Error()
	} else {
		res.Value = value
	}
	_ = writer.Write(msgResult, res)
}

// executeWithCapture runs the handler named by t.Type with stdout,
// stderr and the standard log package's output redirected into an
// in-memory buffer, and recovers a panicking
// handler into a regular failure rather than letting it escape — here
// escaping is worse than in an in-process executor, since it would
// kill the whole worker process.
func executeWithCapture(t *taskWire) (logs string, value interface{}, err error) {
	origStdout, origStderr := os.Stdout, os.Stderr
	r, w, pipeErr := os.Pipe()
	if pipeErr != nil {
		return "", nil, fmt.Errorf("pool: capture pipe: %w", pipeErr)
	}
	os.Stdout = w
	os.Stderr = w
	origLog := log.Writer()
	log.SetOutput(w)

	var buf bytes.Buffer
	captureDone := make(chan struct{})
	go func() {
		io.Copy(&buf, r)
		close(captureDone)
	}()

	defer func() {
		os.Stdout = origStdout
		os.Stderr = origStderr
		log.SetOutput(origLog)
		w.Close()
		<-captureDone
		r.Close()
		logs = buf.String()
	}()

	fn, ok := lookupHandler(t.Type)
	if !ok {
		err = ErrHandlerNotFound
		return
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic in task handler %q: %v\n%s", t.Type, rec, debug.Stack())
			}
		}()
		value, err = fn(t.Args, t.Kwargs)
	}()

	return
}

// workerHeartbeatInterval governs how often a worker's fd4 reader
// goroutine on the supervisor side should expect traffic before
// considering the worker merely idle rather than stuck. Not currently
// enforced as a liveness check (the Killer only acts on per-task
// timeouts), but kept here so a future heartbeat reporter has a single
// place to source its cadence from.
const workerHeartbeatInterval = 5 * time.Second
