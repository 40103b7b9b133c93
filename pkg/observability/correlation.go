// Package observability provides correlation IDs, context-bound structured
// logging, Prometheus metrics, and OpenTelemetry spans for the remediation
// pipeline. Telemetry failures are swallowed and logged once per process;
// they never propagate to callers.
package observability

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// HeaderCorrelationID is the HTTP header carrying the correlation ID on
// inbound events and every outbound call a workflow makes.
const HeaderCorrelationID = "X-Correlation-ID"

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	eventIDKey
	alertnameKey
)

// CorrelationIDFrom derives the correlation ID for an inbound event.
// Preference order: X-Correlation-ID header, CloudEvent id, W3C traceparent
// trace-id, then a newly generated UUID.
func CorrelationIDFrom(headers http.Header, eventID string) string {
	if headers != nil {
		if id := headers.Get(HeaderCorrelationID); id != "" {
			return id
		}
	}
	if eventID != "" {
		return eventID
	}
	if headers != nil {
		if traceID := traceIDFromTraceparent(headers.Get("traceparent")); traceID != "" {
			return traceID
		}
	}
	return uuid.NewString()
}

// traceIDFromTraceparent extracts the trace-id field from a W3C traceparent
// header value ("00-<trace-id>-<span-id>-<flags>"). Returns "" when the
// value is malformed or the trace-id is all zeros.
func traceIDFromTraceparent(value string) string {
	parts := strings.Split(value, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := parts[1]
	if len(traceID) != 32 {
		return ""
	}
	nonZero := false
	for _, c := range traceID {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		default:
			return ""
		}
		if c != '0' {
			nonZero = true
		}
	}
	if !nonZero {
		return ""
	}
	return traceID
}

// Bind returns a context carrying the identifiers that every log record
// emitted under it should include. Empty values are skipped.
func Bind(ctx context.Context, correlationID, eventID, alertname string) context.Context {
	if correlationID != "" {
		ctx = context.WithValue(ctx, correlationIDKey, correlationID)
	}
	if eventID != "" {
		ctx = context.WithValue(ctx, eventIDKey, eventID)
	}
	if alertname != "" {
		ctx = context.WithValue(ctx, alertnameKey, alertname)
	}
	return ctx
}

// CorrelationID returns the bound correlation ID, or "" when unbound.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// EventID returns the bound event ID, or "" when unbound.
func EventID(ctx context.Context) string {
	id, _ := ctx.Value(eventIDKey).(string)
	return id
}

// Alertname returns the bound alertname, or "" when unbound.
func Alertname(ctx context.Context) string {
	name, _ := ctx.Value(alertnameKey).(string)
	return name
}
