package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

type AppMetrics struct {
	authFlowCounter          metric.Int64Counter
	authReqDuration          metric.Float64Histogram
	lockoutCounter           metric.Int64Counter
	verificationCodeCounter  metric.Int64Counter
	tokenCounter             metric.Int64Counter
	oauthLinkCounter         metric.Int64Counter
	oauthProviderDuration    metric.Float64Histogram
	compensationCounter      metric.Int64Counter
	notificationCounter      metric.Int64Counter
	abuseGuardCounter        metric.Int64Counter
	abuseGuardCooldown       metric.Float64Histogram
	repositoryOpsCounter     metric.Int64Counter
	databaseStartupCounter   metric.Int64Counter
	databaseStartupDuration  metric.Float64Histogram
	healthCheckResultCounter metric.Int64Counter
	healthCheckDuration      metric.Float64Histogram
	toolCommandRuns          metric.Int64Counter
	toolCommandDuration      metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "auth.request.duration"},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
				},
			},
		)),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(cfg.OTELServiceName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var firstErr error
	counter := func(name string) metric.Int64Counter {
		c, err := meter.Int64Counter(name)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("create counter %s: %w", name, err)
		}
		return c
	}
	hist := func(name, unit, desc string) metric.Float64Histogram {
		opts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
		if unit != "" {
			opts = append(opts, metric.WithUnit(unit))
		}
		h, err := meter.Float64Histogram(name, opts...)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("create histogram %s: %w", name, err)
		}
		return h
	}

	m := &AppMetrics{
		authFlowCounter:          counter("auth.flow.events"),
		authReqDuration:          hist("auth.request.duration", "s", "Duration of auth endpoint requests in seconds"),
		lockoutCounter:           counter("auth.lockout.events"),
		verificationCodeCounter:  counter("auth.verification_code.events"),
		tokenCounter:             counter("auth.token.events"),
		oauthLinkCounter:         counter("auth.oauth.link.events"),
		oauthProviderDuration:    hist("auth.oauth.provider.request.duration", "s", "Duration of OAuth provider calls in seconds"),
		compensationCounter:      counter("auth.compensation.events"),
		notificationCounter:      counter("notification.delivery.events"),
		abuseGuardCounter:        counter("auth.abuse_guard.events"),
		abuseGuardCooldown:       hist("auth.abuse_guard.cooldown", "s", "Cooldown duration returned by auth abuse guard"),
		repositoryOpsCounter:     counter("repository.operations"),
		databaseStartupCounter:   counter("database.startup.events"),
		databaseStartupDuration:  hist("database.startup.duration", "s", "Duration of database startup phases in seconds"),
		healthCheckResultCounter: counter("health.check.results"),
		healthCheckDuration:      hist("health.check.duration", "s", "Duration of health dependency checks in seconds"),
		toolCommandRuns:          counter("tool.command.runs"),
		toolCommandDuration:      hist("tool.command.duration", "s", "Duration of authctl commands in seconds"),
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return m, nil
}

// RecordAuthFlowEvent counts one use-case outcome, e.g. flow=login outcome=ACCOUNT_LOCKED.
func RecordAuthFlowEvent(ctx context.Context, flow, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.authFlowCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.authReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

func RecordLockoutEvent(ctx context.Context, action string) {
	m := current()
	if m == nil {
		return
	}
	m.lockoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func RecordVerificationCodeEvent(ctx context.Context, purpose, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.verificationCodeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("outcome", outcome),
	))
}

func RecordTokenEvent(ctx context.Context, kind, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func RecordOAuthLinkEvent(ctx context.Context, provider, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.oauthLinkCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

func RecordOAuthProviderRequestDuration(ctx context.Context, provider, operation, status string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.oauthProviderDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

// RecordCompensation counts undo steps of multi-store flows.
func RecordCompensation(ctx context.Context, step, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.compensationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("outcome", outcome),
	))
}

func RecordNotificationDelivery(ctx context.Context, channel, driver, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.notificationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("driver", driver),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthAbuseGuardEvent(ctx context.Context, scope, action, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.abuseGuardCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthAbuseCooldown(ctx context.Context, scope, action string, cooldown time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.abuseGuardCooldown.Record(ctx, cooldown.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("action", action),
	))
}

func RecordRepositoryOperation(ctx context.Context, store, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryOpsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordDatabaseStartupEvent(ctx context.Context, phase, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.databaseStartupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("outcome", outcome),
	))
}

func RecordDatabaseStartupDuration(ctx context.Context, phase string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.databaseStartupDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("phase", phase)))
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.healthCheckResultCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("check", check)))
}

func RecordToolCommandRun(ctx context.Context, tool, action, status string) {
	m := current()
	if m == nil {
		return
	}
	m.toolCommandRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("action", action),
		attribute.String("status", status),
	))
}

func RecordToolCommandDuration(ctx context.Context, tool, action, status string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.toolCommandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("action", action),
		attribute.String("status", status),
	))
}
