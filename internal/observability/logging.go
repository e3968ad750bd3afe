package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	otlploggrpc "go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"
)

const redactedValue = "[REDACTED]"

// sensitiveKeys never reach a sink with their value. Matching is case-insensitive
// on the last key segment so grouped attrs are covered too.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"new_password":  {},
	"password_hash": {},
	"access_token":  {},
	"refresh_token": {},
	"id_token":      {},
	"token":         {},
	"authorization": {},
	"secret":        {},
	"jwt_secret":    {},
}

func isSensitiveKey(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

func redactAttr(a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, redactedValue)
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]any, 0, len(group))
		for _, ga := range group {
			out = append(out, redactAttr(ga))
		}
		return slog.Group(a.Key, out...)
	}
	return a
}

// identityHandler stamps trace context on every record and scrubs credential
// material before fanning out to its sinks.
type identityHandler struct {
	sinks []slog.Handler
}

func (h *identityHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *identityHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	var traceID, spanID string
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID = sc.TraceID().String()
		spanID = sc.SpanID().String()
	}
	out.AddAttrs(slog.String("trace_id", traceID), slog.String("span_id", spanID))

	for _, s := range h.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, out.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *identityHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		scrubbed = append(scrubbed, redactAttr(a))
	}
	next := make([]slog.Handler, 0, len(h.sinks))
	for _, s := range h.sinks {
		next = append(next, s.WithAttrs(scrubbed))
	}
	return &identityHandler{sinks: next}
}

func (h *identityHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, 0, len(h.sinks))
	for _, s := range h.sinks {
		next = append(next, s.WithGroup(name))
	}
	return &identityHandler{sinks: next}
}

// NewBootstrapLogger is used before the OTel pipeline exists.
func NewBootstrapLogger(cfg *config.Config) *slog.Logger {
	return slog.New(newHandler(os.Stdout, cfg, nil))
}

// InitLogger builds the process logger. Records are teed to the OTel logs
// pipeline when lp is non-nil.
func InitLogger(cfg *config.Config, lp *sdklog.LoggerProvider) *slog.Logger {
	return slog.New(newHandler(os.Stdout, cfg, lp))
}

func newHandler(w io.Writer, cfg *config.Config, lp *sdklog.LoggerProvider) slog.Handler {
	sinks := []slog.Handler{
		slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLogLevel(cfg.OTELLogLevel)}),
	}
	if cfg.OTELLogsEnabled && lp != nil {
		sinks = append(sinks, otelslog.NewHandler(cfg.OTELServiceName, otelslog.WithLoggerProvider(lp)))
	}
	return &identityHandler{sinks: sinks}
}

func InitLogs(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdklog.LoggerProvider, error) {
	if !cfg.OTELLogsEnabled {
		logger.Info("otel logs disabled")
		return nil, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp log exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create logs resource: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	logger.Info("otel logs initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return lp, nil
}

func parseLogLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
