package observability

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentRedisClient adds command counters, latency and a pool saturation
// gauge to client. The abuse guard is the only redis user, so every series is
// tagged with component.
func InstrumentRedisClient(client *redis.Client, component string, logger *slog.Logger) {
	if client == nil {
		return
	}
	hook, err := newRedisMetricsHook(client, component)
	if err != nil {
		logger.Warn("redis instrumentation disabled", "component", component, "error", err)
		return
	}
	client.AddHook(hook)
}

type redisMetricsHook struct {
	component  string
	cmdTotal   metric.Int64Counter
	cmdLatency metric.Float64Histogram
}

func newRedisMetricsHook(client *redis.Client, component string) (*redisMetricsHook, error) {
	meter := otel.Meter("circle-identity-core/redis")

	cmdTotal, err := meter.Int64Counter("redis.command.total",
		metric.WithDescription("Redis commands executed"))
	if err != nil {
		return nil, err
	}
	cmdLatency, err := meter.Float64Histogram("redis.command.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Redis command latency in seconds"))
	if err != nil {
		return nil, err
	}
	saturation, err := meter.Float64ObservableGauge("redis.pool.saturation",
		metric.WithUnit("1"),
		metric.WithDescription("Used connections over total connections"))
	if err != nil {
		return nil, err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := client.PoolStats()
		if stats == nil || stats.TotalConns == 0 {
			return nil
		}
		used := float64(stats.TotalConns-stats.IdleConns) / float64(stats.TotalConns)
		o.ObserveFloat64(saturation, used, metric.WithAttributes(attribute.String("component", component)))
		return nil
	}, saturation)
	if err != nil {
		return nil, err
	}
	return &redisMetricsHook{component: component, cmdTotal: cmdTotal, cmdLatency: cmdLatency}, nil
}

func (h *redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.record(ctx, strings.ToLower(cmd.Name()), err, time.Since(start))
		return err
	}
}

func (h *redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.record(ctx, "pipeline", err, time.Since(start))
		return err
	}
}

func (h *redisMetricsHook) record(ctx context.Context, command string, err error, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("component", h.component),
		attribute.String("command", command),
		attribute.String("status", redisCommandStatus(err)),
	)
	h.cmdTotal.Add(ctx, 1, attrs)
	h.cmdLatency.Record(ctx, d.Seconds(), attrs)
}

func redisCommandStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, redis.Nil):
		return "miss"
	case strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return "timeout"
	default:
		return "error"
	}
}
