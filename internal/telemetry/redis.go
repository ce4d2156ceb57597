package telemetry

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

var redisCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "redis_commands_total",
	Help:      "Redis commands sent, by command name and result.",
}, []string{"cmd", "result"})

// MonitorRedis traces the client and logs every command at debug level.
func MonitorRedis(r redis.UniversalClient) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisHook{})
	return nil
}

type redisHook struct{}

func (redisHook) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			slog.ErrorContext(ctx, "redis: dial failed", "addr", addr, "error", err)
			return nil, err
		}
		slog.InfoContext(ctx, "redis: connected", "network", network, "addr", addr)
		return conn, nil
	}
}

func (redisHook) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmd)
		observeRedis(ctx, cmd, time.Since(start))
		return err
	}
}

func (redisHook) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmds)
		elapsed := time.Since(start)
		for _, cmd := range cmds {
			observeRedis(ctx, cmd, elapsed)
		}
		return err
	}
}

func observeRedis(ctx context.Context, cmd redis.Cmder, elapsed time.Duration) {
	result := "ok"
	switch err := cmd.Err(); {
	case err == nil:
	case stderrors.Is(err, redis.Nil):
		result = "nil"
	default:
		result = "error"
		slog.ErrorContext(ctx, "redis: command failed", "cmd", cmd.Name(), "elapsed", elapsed, "error", err)
	}

	redisCommandsTotal.WithLabelValues(cmd.Name(), result).Inc()
	slog.DebugContext(ctx, "redis: processed", "cmd", cmd.String(), "elapsed", elapsed)
}
