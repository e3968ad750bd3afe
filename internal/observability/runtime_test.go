package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitRuntimeWithExportersDisabled(t *testing.T) {
	cfg := &config.Config{OTELServiceName: "identity-core-test", OTELLogLevel: "info"}
	rt, err := InitRuntime(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("init runtime: %v", err)
	}
	if rt.LoggerProvider != nil {
		t.Fatal("expected no logs pipeline when OTEL_LOGS_ENABLED is false")
	}
	if rt.MeterProvider == nil || rt.TracerProvider == nil {
		t.Fatalf("expected local meter and tracer providers, got %+v", rt)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestRuntimeShutdownReportsEveryProvider(t *testing.T) {
	var nilRuntime *Runtime
	if err := nilRuntime.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil runtime: %v", err)
	}

	rt := &Runtime{MeterProvider: sdkmetric.NewMeterProvider(), TracerProvider: sdktrace.NewTracerProvider()}
	if got := rt.providers(); len(got) != 2 || got[0].name != "metrics" || got[1].name != "tracing" {
		t.Fatalf("unexpected providers %+v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := rt.Shutdown(ctx)
	if err == nil {
		return
	}
	for _, name := range []string{"metrics", "tracing"} {
		if strings.Contains(err.Error(), "shutdown "+name) {
			return
		}
	}
	t.Fatalf("shutdown error does not name a provider: %v", err)
}
