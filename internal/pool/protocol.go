package pool

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// msgKind tags the envelope written over fd3 (parent->child) or fd4
// (child->parent). Both directions share one framing so a single
// frameReader/frameWriter pair can serve either side of the pipe.
type msgKind string

const (
	msgTask    msgKind = "task"    // parent -> child: run this task
	msgStop    msgKind = "stop"    // parent -> child: exit once the current task (if any) is done
	msgStarted msgKind = "started" // child -> parent: task accepted, confirms liveness
	msgResult  msgKind = "result"  // child -> parent: task finished (success or failure)
)

// envelope is the wire format for one control message. Payload carries
// the kind-specific body as raw JSON so frameReader.Read doesn't need to know
// the type up front.
type envelope struct {
	Kind    msgKind         `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type taskPayload struct {
	Task *taskWire `json:"task"`
}

// taskWire mirrors task.Task field-for-field; kept separate so the wire
// contract doesn't silently shift if task.Task grows fields later.
type taskWire struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Args    []interface{}          `json:"args,omitempty"`
	Kwargs  map[string]interface{} `json:"kwargs,omitempty"`
	Timeout int64                  `json:"timeout_ns,omitempty"`
}

type startedPayload struct {
	TaskID string `json:"task_id"`
}

type resultPayload struct {
	TaskID string `json:"task_id"`
	Value  interface{} `json:"value,omitempty"`
	Err    string      `json:"err,omitempty"`
	Logs   string      `json:"logs"`
}

// frameWriter serializes writes of length-prefixed JSON frames onto a
// shared *os.File (fd3 or fd4). Multiple goroutines may hold a reference
// but must go through Write, which is the only method taking the lock.
type frameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newFrameWriter(f io.Writer) *frameWriter {
	return &frameWriter{w: f}
}

func (fw *frameWriter) Write(kind msgKind, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pool: marshal payload: %w", err)
	}
	env := envelope{Kind: kind, Payload: body}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("pool: marshal envelope: %w", err)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := fw.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("pool: write frame length: %w", err)
	}
	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("pool: write frame body: %w", err)
	}
	return nil
}

// frameReader reads length-prefixed JSON frames off fd3 or fd4. Not
// safe for concurrent Read calls; each pipe end has exactly one reader
// goroutine in this design.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(f io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReader(f)}
}

// Read blocks for the next frame. It returns io.EOF once the peer has
// closed its end of the pipe, which both the supervisor's fd4 reader
// and the worker's fd3 reader treat as "the other side is gone."
func (fr *frameReader) Read() (envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		return envelope{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(fr.r, data); err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("pool: unmarshal envelope: %w", err)
	}
	return env, nil
}

// controlFiles are the well-known fd numbers a re-exec'd worker inherits
// via cmd.ExtraFiles. ExtraFiles[0] lands at fd 3, ExtraFiles[1] at fd 4,
// immediately after the standard fd 0/1/2 — leaving stdout/stderr free
// for per-task output capture instead of control traffic.
const (
	fdTaskIn   = 3 // parent -> child: tasks and the stop sentinel
	fdResultOut = 4 // child -> parent: started/result announcements
)

func openControlFile(fd uintptr, name string) *os.File {
	return os.NewFile(fd, name)
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	return json.Unmarshal(raw, v)
}
