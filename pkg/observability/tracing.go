package observability

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agent-sre"

// InitTracing installs the global tracer provider and W3C trace-context
// propagator. Spans carry valid IDs for log correlation; exporting them is
// an operator concern layered on elsewhere. Returns a shutdown function.
func InitTracing(serviceName, serviceVersion string) func(context.Context) error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		LogTelemetryError(err)
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Shutdown
}

// StartSpan opens a span under the current context.
func StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, operation, trace.WithAttributes(attrs...))
}

// InjectHTTP propagates the active trace context and the bound correlation
// ID onto an outbound request.
func InjectHTTP(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	if id := CorrelationID(ctx); id != "" {
		req.Header.Set(HeaderCorrelationID, id)
	}
}

// RemediationTrace scopes one remediation workflow. It holds the gauge up
// for the workflow's lifetime and records the attempt counter and duration
// histogram when ended.
type RemediationTrace struct {
	metrics        *Metrics
	span           trace.Span
	alertname      string
	lambdaFunction string
	started        time.Time
	ended          bool
}

// TraceRemediation opens the workflow-level span and increments the
// active-remediations gauge. Callers must End exactly once.
func (m *Metrics) TraceRemediation(ctx context.Context, alertname, lambdaFunction, correlationID string) (context.Context, *RemediationTrace) {
	ctx, span := StartSpan(ctx, "remediation",
		attribute.String("alertname", alertname),
		attribute.String("lambda_function", lambdaFunction),
		attribute.String("correlation_id", correlationID),
	)
	m.ActiveRemediations.Inc()

	return ctx, &RemediationTrace{
		metrics:        m,
		span:           span,
		alertname:      alertname,
		lambdaFunction: lambdaFunction,
		started:        time.Now(),
	}
}

// SetLambdaFunction updates the selected function once known. The selection
// usually happens inside the span. Nil-safe for metric-less callers.
func (t *RemediationTrace) SetLambdaFunction(name string) {
	if t == nil {
		return
	}
	t.lambdaFunction = name
	t.span.SetAttributes(attribute.String("lambda_function", name))
}

// End closes the span and records the attempt with its final status.
func (t *RemediationTrace) End(status string) {
	if t == nil || t.ended {
		return
	}
	t.ended = true

	fn := t.lambdaFunction
	if fn == "" {
		fn = "none"
	}

	t.metrics.ActiveRemediations.Dec()
	t.metrics.RemediationAttempts.WithLabelValues(t.alertname, fn, status).Inc()
	t.metrics.RemediationDuration.WithLabelValues(fn, status).Observe(time.Since(t.started).Seconds())

	t.span.SetAttributes(attribute.String("status", status))
	t.span.End()
}
