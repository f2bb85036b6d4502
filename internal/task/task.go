// Package task defines the value types that cross the executor's process
// boundary: the work to run and the outcome it produced. Both are plain
// data — a Task identifies work by a registered handler name rather than
// carrying a callable, since a Go func value cannot survive a fork the
// way a Python callable can be pickled.
package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task is an immutable unit of work. ID is minted at submission and
// identifies the task for its entire lifetime (handle table, shared map,
// timeout records).
type Task struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Args    []interface{}          `json:"args,omitempty"`
	Kwargs  map[string]interface{} `json:"kwargs,omitempty"`
	Timeout time.Duration          `json:"timeout,omitempty"`
}

// New creates a Task with a fresh ID.
func New(taskType string, args []interface{}, kwargs map[string]interface{}) *Task {
	return &Task{
		ID:     uuid.New().String(),
		Type:   taskType,
		Args:   args,
		Kwargs: kwargs,
	}
}

// Result is the immutable outcome of running a Task. Exactly one of
// Value or Err is meaningful; Logs is always present, possibly empty.
// Err is a pre-rendered message (and, on panic, a stack trace) rather
// than a live error object, because it has to cross the worker's
// process boundary as plain text. TimedOut distinguishes a timeout
// kill from an ordinary handler failure, both of which otherwise look
// like "Err is non-empty" to anything downstream.
type Result struct {
	ID       string      `json:"id"`
	Value    interface{} `json:"value,omitempty"`
	Err      string      `json:"err,omitempty"`
	Logs     string      `json:"logs"`
	TimedOut bool        `json:"timed_out,omitempty"`
}

// Failed reports whether the result represents a task that did not
// complete successfully.
func (r *Result) Failed() bool {
	return r.Err != ""
}

func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

func FromJSON(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
