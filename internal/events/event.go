// Package events provides an optional publish/subscribe bus for pool
// lifecycle events, intended for dashboards and the admin WebSocket feed
// rather than for anything the pool itself depends on — a pool with no
// Redis configured simply never emits anything.
package events

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of event carried by an Event.
type Type string

const (
	TaskSubmitted  Type = "task.submitted"
	TaskStarted    Type = "task.started"
	TaskCompleted  Type = "task.completed"
	TaskFailed     Type = "task.failed"
	TaskCancelled  Type = "task.cancelled"
	WorkerSpawned  Type = "worker.spawned"
	WorkerKilled   Type = "worker.killed"
	WorkerRespawn  Type = "worker.respawned"
	PoolStateEvent Type = "pool.state"
)

// Event is a single occurrence broadcast to subscribers.
type Event struct {
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// New builds an Event stamped with the current time.
func New(t Type, data map[string]interface{}) *Event {
	return &Event{Type: t, Timestamp: time.Now().UTC(), Data: data}
}

func (e *Event) ToJSON() ([]byte, error) { return json.Marshal(e) }

func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// TaskEventData builds the Data map conventionally used for task.* events.
func TaskEventData(taskID, taskType string, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{"task_id": taskID, "type": taskType}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// WorkerEventData builds the Data map conventionally used for worker.* events.
func WorkerEventData(pid int, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{"pid": pid}
	for k, v := range extra {
		data[k] = v
	}
	return data
}
