package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func recordEveryHelper(ctx context.Context) {
	RecordAuthFlowEvent(ctx, "login", "success")
	RecordAuthRequestDuration(ctx, "login", "success", 10*time.Millisecond)
	RecordLockoutEvent(ctx, "locked")
	RecordVerificationCodeEvent(ctx, "phone_verification", "issued")
	RecordTokenEvent(ctx, "refresh", "rotated")
	RecordOAuthLinkEvent(ctx, "google", "linked")
	RecordOAuthProviderRequestDuration(ctx, "google", "verify_assertion", "success", 12*time.Millisecond)
	RecordCompensation(ctx, "register.delete_identity", "success")
	RecordNotificationDelivery(ctx, "sms", "log", "success")
	RecordAuthAbuseGuardEvent(ctx, "login", "check", "ok")
	RecordAuthAbuseCooldown(ctx, "login", "check", time.Second)
	RecordRepositoryOperation(ctx, "credential", "increment_failed_login", "success")
	RecordDatabaseStartupEvent(ctx, "migrate", "success")
	RecordDatabaseStartupDuration(ctx, "migrate", 15*time.Millisecond)
	RecordHealthCheckResult(ctx, "identity_db", "ready")
	RecordHealthCheckDuration(ctx, "identity_db", 5*time.Millisecond)
	RecordToolCommandRun(ctx, "account", "unlock", "success")
	RecordToolCommandDuration(ctx, "migrate", "up", "success", 30*time.Millisecond)
}

func TestRecordMetricHelpersNoPanicWhenUninitialized(t *testing.T) {
	metricsMu.Lock()
	appMetrics = nil
	metricsMu.Unlock()

	recordEveryHelper(context.Background())
}

func TestRecordMetricHelpersEmitExpectedLabelCardinality(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()

	m, err := newAppMetrics(provider.Meter("observability-test"))
	if err != nil {
		t.Fatalf("new app metrics: %v", err)
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	defer func() {
		metricsMu.Lock()
		appMetrics = nil
		metricsMu.Unlock()
	}()

	recordEveryHelper(ctx)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	expected := map[string]int{
		"auth.flow.events":                     2,
		"auth.request.duration":                2,
		"auth.lockout.events":                  1,
		"auth.verification_code.events":        2,
		"auth.token.events":                    2,
		"auth.oauth.link.events":               2,
		"auth.oauth.provider.request.duration": 3,
		"auth.compensation.events":             2,
		"notification.delivery.events":         3,
		"auth.abuse_guard.events":              3,
		"auth.abuse_guard.cooldown":            2,
		"repository.operations":                3,
		"database.startup.events":              2,
		"database.startup.duration":            1,
		"health.check.results":                 2,
		"health.check.duration":                1,
		"tool.command.runs":                    3,
		"tool.command.duration":                3,
	}

	observed := collectLabelCardinality(t, rm)
	for metricName, want := range expected {
		got, ok := observed[metricName]
		if !ok {
			t.Fatalf("missing metric datapoint for %s", metricName)
		}
		if got != want {
			t.Fatalf("metric %s label cardinality mismatch: got=%d want=%d", metricName, got, want)
		}
	}
}

func TestInitMetricsDisabledReturnsProvider(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{OTELMetricsEnabled: false}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("init metrics disabled: %v", err)
	}
	if mp == nil {
		t.Fatal("expected non-nil meter provider")
	}
	_ = mp.Shutdown(ctx)
}

func collectLabelCardinality(t *testing.T, rm metricdata.ResourceMetrics) map[string]int {
	t.Helper()
	out := map[string]int{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Attributes.Len()
				}
			case metricdata.Histogram[float64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Attributes.Len()
				}
			}
		}
	}
	return out
}
