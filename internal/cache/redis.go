// Package cache bootstraps the Redis client shared by the event bus.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

type metricsHook struct{}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// Options parses either a redis:// URL or a bare host:port address. The
// maintenance-notifications handshake is disabled since not every server
// implements it.
func Options(addr string) (*redis.Options, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	opts.MaintNotificationsConfig = &maintnotifications.Config{Mode: maintnotifications.ModeDisabled}
	return opts, nil
}

// InitRedis connects to addr. An empty address, an invalid URL or a failed
// ping leaves the client nil and the process continues with in-process events.
func InitRedis(addr string) *redis.Client {
	if addr == "" {
		observability.GlobalLogger.Info("Redis not configured, using in-process event bus")
		return nil
	}

	opts, err := Options(addr)
	if err != nil {
		observability.GlobalLogger.Warn("Redis connection warning: invalid REDIS_URL (continuing without Redis)",
			"addr", addr, "error", err)
		return nil
	}

	rdb := redis.NewClient(opts)
	rdb.AddHook(metricsHook{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		observability.GlobalLogger.Warn("Redis connection warning (continuing without Redis)", "error", err)
		_ = rdb.Close()
		return nil
	}
	observability.GlobalLogger.Info("Redis connected successfully", "addr", opts.Addr)
	return rdb
}
