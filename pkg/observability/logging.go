package observability

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds the process logger from the configured level and format.
// Unknown levels fall back to info.
func NewLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// Logger returns the default logger enriched with every identifier bound to
// the context: correlation_id, event_id, alertname, and the active span's
// trace_id and span_id.
func Logger(ctx context.Context) *slog.Logger {
	log := slog.Default()
	if id := CorrelationID(ctx); id != "" {
		log = log.With("correlation_id", id)
	}
	if id := EventID(ctx); id != "" {
		log = log.With("event_id", id)
	}
	if name := Alertname(ctx); name != "" {
		log = log.With("alertname", name)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		log = log.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	return log
}

var telemetryErrOnce sync.Once

// LogTelemetryError records a telemetry failure once per process and
// otherwise swallows it.
func LogTelemetryError(err error) {
	if err == nil {
		return
	}
	telemetryErrOnce.Do(func() {
		slog.Warn("Telemetry error, further occurrences suppressed", "error", err)
	})
}
