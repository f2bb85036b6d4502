package main

import (
	"context"

	"github.com/NageshMashette/execpool/internal/archive"
	"github.com/NageshMashette/execpool/internal/events"
	"github.com/NageshMashette/execpool/internal/logger"
	"github.com/NageshMashette/execpool/internal/pool"
	"github.com/NageshMashette/execpool/internal/task"
)

// wireObservability fans every pool occurrence out to the optional
// event bus (for the admin WebSocket feed) and, for terminal task
// outcomes, the optional result archive. Both targets are nil-safe, so
// this is wired unconditionally regardless of whether Redis is configured.
func wireObservability(p *pool.Pool, bus *events.Bus, arch *archive.Archive) {
	p.OnEvent(func(kind, id string, extra map[string]interface{}) {
		ctx := context.Background()
		bus.Publish(ctx, events.New(events.Type(kind), eventData(id, extra)))

		switch kind {
		case "task.completed", "task.failed":
			taskType, _ := extra["type"].(string)
			logs, _ := extra["logs"].(string)
			r := &task.Result{ID: id, Logs: logs}
			if errMsg, ok := extra["err"].(string); ok {
				r.Err = errMsg
			} else {
				r.Value = extra["value"]
			}
			if err := arch.Record(ctx, taskType, r); err != nil {
				// Logged only; archive failures never block task
				// completion.
				logger.Get().Warn().Err(err).Str("task_id", id).Msg("archive record failed")
			}
		}
	})
}

func eventData(id string, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{"id": id}
	for k, v := range extra {
		data[k] = v
	}
	return data
}
