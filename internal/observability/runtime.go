package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Runtime owns the OTel providers of the identity service.
type Runtime struct {
	LoggerProvider *sdklog.LoggerProvider
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

type namedProvider struct {
	name     string
	shutdown func(context.Context) error
}

// providers lists what was started, in start order. Nil providers are skipped.
func (r *Runtime) providers() []namedProvider {
	var out []namedProvider
	if r.LoggerProvider != nil {
		out = append(out, namedProvider{"logs", r.LoggerProvider.Shutdown})
	}
	if r.MeterProvider != nil {
		out = append(out, namedProvider{"metrics", r.MeterProvider.Shutdown})
	}
	if r.TracerProvider != nil {
		out = append(out, namedProvider{"tracing", r.TracerProvider.Shutdown})
	}
	return out
}

// InitRuntime starts logs, metrics and tracing in that order. A failure shuts
// down whatever already started.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	r := &Runtime{}
	var err error
	if r.LoggerProvider, err = InitLogs(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if r.MeterProvider, err = InitMetrics(ctx, cfg, logger); err != nil {
		_ = r.Shutdown(ctx)
		return nil, err
	}
	if r.TracerProvider, err = InitTracing(ctx, cfg, logger); err != nil {
		_ = r.Shutdown(ctx)
		return nil, err
	}
	return r, nil
}

// Shutdown stops providers in reverse start order, so the logs pipeline is the
// last to go. Every provider is attempted.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	ps := r.providers()
	var errs []error
	for i := len(ps) - 1; i >= 0; i-- {
		if err := ps[i].shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", ps[i].name, err))
		}
	}
	return errors.Join(errs...)
}
