// Package archive provides an optional, write-only record of terminal
// task results. Nothing in the pool reads it back to re-dispatch work —
// that would make it a persistence layer for the executor itself, which
// is explicitly out of scope. It exists purely so an operator can query
// "what did task X return six hours ago" after the in-memory handle
// that originally carried the answer is long gone.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NageshMashette/execpool/internal/config"
	"github.com/NageshMashette/execpool/internal/task"
)

const streamName = "execpool:results"

// Archive appends completed task results to a Redis stream with a
// configurable retention window. A nil *Archive is valid and every
// method on it is a no-op, so callers can construct one unconditionally
// and simply skip New when cfg.Addr is empty.
type Archive struct {
	client        *redis.Client
	retentionDays int
}

// New connects to Redis and returns an Archive, or (nil, nil) if cfg.Addr
// is empty — the archive is opt-in, not a hard dependency of the pool.
func New(cfg config.RedisConfig) (*Archive, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("archive: connect to redis: %w", err)
	}

	return &Archive{client: client, retentionDays: cfg.RetentionDays}, nil
}

// Record appends one terminal result to the archive stream, trimming
// the stream to the configured retention window approximately (Redis
// Streams trim by count here since results arrive continuously and
// there's no per-entry TTL primitive worth the round trips).
func (a *Archive) Record(ctx context.Context, taskType string, r *task.Result) error {
	if a == nil {
		return nil
	}

	entry := struct {
		TaskID string      `json:"task_id"`
		Type   string      `json:"type"`
		Value  interface{} `json:"value,omitempty"`
		Err    string      `json:"err,omitempty"`
		Logs   string      `json:"logs"`
		At     time.Time   `json:"at"`
	}{
		TaskID: r.ID,
		Type:   taskType,
		Value:  r.Value,
		Err:    r.Err,
		Logs:   r.Logs,
		At:     time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal entry: %w", err)
	}

	_, err = a.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		MaxLen: int64(a.retentionDays) * 100000,
		Approx: true,
		Values: map[string]interface{}{
			"task_id": r.ID,
			"type":    taskType,
			"data":    string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("archive: append: %w", err)
	}
	return nil
}

// Lookup retrieves the most recently archived result for a task ID, if
// the retention window still has it.
func (a *Archive) Lookup(ctx context.Context, taskID string) (*task.Result, error) {
	if a == nil {
		return nil, nil
	}

	msgs, err := a.client.XRevRange(ctx, streamName, "+", "-").Result()
	if err != nil {
		return nil, fmt.Errorf("archive: scan: %w", err)
	}
	for _, m := range msgs {
		if m.Values["task_id"] != taskID {
			continue
		}
		var entry struct {
			Value interface{} `json:"value,omitempty"`
			Err   string      `json:"err,omitempty"`
			Logs  string      `json:"logs"`
		}
		raw, _ := m.Values["data"].(string)
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		return &task.Result{ID: taskID, Value: entry.Value, Err: entry.Err, Logs: entry.Logs}, nil
	}
	return nil, nil
}

// Close releases the underlying Redis connection.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	return a.client.Close()
}
