package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"sync/atomic"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"

	"github.com/redis/go-redis/v9"
)

// RedisBus fans events out through a Redis channel so several processes
// sharing a scope see the same page events. Redis pub/sub gives the same
// at-most-once, no-replay delivery as the local bus. With a nil client, and
// whenever no subscription is running, it behaves like a LocalBus.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	local   *LocalBus
	started atomic.Bool
}

// Channel returns the Redis channel used for scope.
func Channel(scope string) string {
	return fmt.Sprintf("events:%s", scope)
}

// NewRedisBus creates a RedisBus for scope.
func NewRedisBus(rdb *redis.Client, scope string) *RedisBus {
	return &RedisBus{rdb: rdb, channel: Channel(scope), local: NewLocalBus()}
}

// Publish sends e through Redis while the subscription started by Start is
// running, and delivers locally otherwise.
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	if b.rdb == nil || !b.started.Load() {
		return b.local.Publish(ctx, e)
	}
	ctx, span := observability.GetTraceLayer().TraceBusEvent(ctx, e.Name, "redis")
	defer span.End()

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		observability.RecordSpanError(span, err)
		return fmt.Errorf("publish %s: %w", e.Name, err)
	}
	observability.BusEvents.WithLabelValues(e.Name, "redis").Inc()
	return nil
}

// Subscribe registers a local handler for events arriving from Redis.
func (b *RedisBus) Subscribe(name string, h Handler) func() {
	return b.local.Subscribe(name, h)
}

// Start subscribes to the scope channel and dispatches incoming events to
// local subscribers until ctx is cancelled. The subscription is confirmed
// before Start returns; if it cannot be, publishing stays local.
func (b *RedisBus) Start(ctx context.Context) error {
	if b.rdb == nil {
		return nil
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	ch := sub.Channel()
	b.started.Store(true)

	go func() {
		defer func() {
			b.started.Store(false)
			_ = sub.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in event subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					var e Event
					if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
						log.Printf("invalid event payload on %s: %v", msg.Channel, err)
						return
					}
					b.local.dispatch(ctx, e)
				}()
			}
		}
	}()

	return nil
}
