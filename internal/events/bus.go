package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/NageshMashette/execpool/internal/config"
	"github.com/NageshMashette/execpool/internal/logger"
)

const channelPrefix = "execpool:events:"

// Bus publishes pool lifecycle events over Redis Pub/Sub and lets the
// admin API's WebSocket hub subscribe to them. A nil *Bus is valid and
// Publish becomes a no-op, so the pool can hold one unconditionally.
type Bus struct {
	client *redis.Client
}

// New connects to Redis and returns a Bus, or (nil, nil) if cfg.Addr is
// empty.
func New(cfg config.RedisConfig) (*Bus, error) {
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
	ctx, cancel := context.WithTimeout(context.Background(), 5*cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("events: connect to redis: %w", err)
	}
	return &Bus{client: client}, nil
}

func (b *Bus) channelName(t Type) string {
	return channelPrefix + string(t)
}

// Publish broadcasts an event. Errors are logged, not returned, since a
// dropped dashboard update should never affect task execution.
func (b *Bus) Publish(ctx context.Context, e *Event) {
	if b == nil {
		return
	}
	data, err := e.ToJSON()
	if err != nil {
		logger.Get().Error().Err(err).Msg("event serialize failed")
		return
	}
	if err := b.client.Publish(ctx, b.channelName(e.Type), data).Err(); err != nil {
		logger.Get().Warn().Err(err).Str("event_type", string(e.Type)).Msg("event publish failed")
	}
}

// Subscribe returns a channel of events for the given types. The
// channel closes when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, types ...Type) (<-chan *Event, error) {
	if b == nil {
		ch := make(chan *Event)
		close(ch)
		return ch, nil
	}

	channels := make([]string, len(types))
	for i, t := range types {
		channels[i] = b.channelName(t)
	}
	ps := b.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, fmt.Errorf("events: subscribe: %w", err)
	}

	out := make(chan *Event, 100)
	go func() {
		defer close(out)
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				e, err := FromJSON([]byte(msg.Payload))
				if err != nil {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// allEventTypes lists every Type a subscriber might care about, for
// SubscribeAll's convenience.
var allEventTypes = []Type{
	TaskSubmitted, TaskStarted, TaskCompleted, TaskFailed, TaskCancelled,
	WorkerSpawned, WorkerKilled, WorkerRespawn, PoolStateEvent,
}

// SubscribeAll subscribes to every known event type, for a consumer
// (like the WebSocket hub) that filters per-client rather than per-
// subscription.
func (b *Bus) SubscribeAll(ctx context.Context) (<-chan *Event, error) {
	return b.Subscribe(ctx, allEventTypes...)
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.client.Close()
}
