// Package lambda invokes remediation endpoints: plain HTTP services exposing
// GET /health for liveness and POST / accepting a CloudEvent. A failed
// health probe short-circuits the invocation as cannot-fix; invocation
// failures are surfaced as error results the workflow may retry.
package lambda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/config"
	"github.com/brunovlucena/homelab-sub000/pkg/events"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
	"github.com/brunovlucena/homelab-sub000/pkg/version"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome of one invocation attempt.
type Result struct {
	Status        string         `json:"status"`
	Message       string         `json:"message,omitempty"`
	Error         string         `json:"error,omitempty"`
	Raw           map[string]any `json:"raw,omitempty"`
	CorrelationID string         `json:"correlation_id"`
}

// Succeeded reports whether the lambda completed the remediation.
func (r *Result) Succeeded() bool { return r.Status == StatusSuccess }

// Invoker calls lambda functions over cluster DNS. A circuit breaker guards
// the invocation path so a dead endpoint stops consuming the retry budget
// of every workflow behind it.
type Invoker struct {
	cfg     *config.LambdaConfig
	metrics *observability.Metrics
	probec  *http.Client
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
	urlFor  func(function string) string
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithURLBuilder overrides cluster DNS resolution, used by tests to point
// at local fakes.
func WithURLBuilder(f func(function string) string) Option {
	return func(i *Invoker) { i.urlFor = f }
}

// NewInvoker creates an invoker from lambda configuration.
func NewInvoker(cfg *config.LambdaConfig, metrics *observability.Metrics, opts ...Option) *Invoker {
	i := &Invoker{
		cfg:     cfg,
		metrics: metrics,
		probec:  &http.Client{Timeout: cfg.ProbeTimeout},
		httpc:   &http.Client{Timeout: cfg.InvokeTimeout},
	}
	i.urlFor = func(function string) string {
		return fmt.Sprintf("http://%s.%s.%s", function, cfg.Namespace, cfg.ClusterDomain)
	}
	i.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "lambda-invoker",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke probes the function and POSTs the remediation CloudEvent. A failed
// probe returns a cannot-fix error and no invocation is attempted; transport
// and endpoint failures come back as error results the caller may retry.
func (i *Invoker) Invoke(ctx context.Context, function string, parameters map[string]any, correlationID string) (*Result, error) {
	url := i.urlFor(function)

	ctx, span := observability.StartSpan(ctx, "lambda_function.call",
		attribute.String("lambda_function", function),
		attribute.String("namespace", i.cfg.Namespace),
		attribute.String("url", url),
		attribute.String("event_id", correlationID),
		attribute.String("event_type", events.TypeRemediationRequest),
	)
	defer span.End()

	if err := i.probe(ctx, url); err != nil {
		span.SetAttributes(attribute.String("status", StatusError))
		i.count(function, "unavailable")
		return nil, err
	}

	out, err := i.breaker.Execute(func() (any, error) {
		return i.post(ctx, url, parameters, correlationID)
	})
	var result *Result
	if err != nil {
		// Breaker open or transport failure: an error result, retryable.
		result = &Result{
			Status:        StatusError,
			Message:       err.Error(),
			CorrelationID: correlationID,
		}
	} else {
		result = out.(*Result)
	}

	span.SetAttributes(
		attribute.String("status", result.Status),
		attribute.String("message", result.Message),
	)
	i.count(function, result.Status)
	return result, nil
}

// probe checks GET /health within the probe budget. Anything but a 200 means
// the function cannot fix anything right now.
func (i *Invoker) probe(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/health", nil)
	if err != nil {
		return apperrors.Unavailable("lambda.probe", err)
	}
	resp, err := i.probec.Do(req)
	if err != nil {
		return apperrors.Unavailable("lambda.probe", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		return apperrors.Unavailable("lambda.probe",
			fmt.Errorf("health probe returned %d", resp.StatusCode))
	}
	return nil
}

// post sends the remediation CloudEvent in structured mode and surfaces the
// inner status of the response event.
func (i *Invoker) post(ctx context.Context, url string, parameters map[string]any, correlationID string) (*Result, error) {
	e, err := events.NewRemediationRequest(correlationID, parameters)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, apperrors.New(apperrors.KindParse, "lambda.invoke", err)
	}

	ctx, cancel := context.WithTimeout(ctx, i.cfg.InvokeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "lambda.invoke", err)
	}
	req.Header.Set("Content-Type", "application/cloudevents+json")
	req.Header.Set("User-Agent", version.Full())
	req.Header.Set(observability.HeaderCorrelationID, correlationID)
	observability.InjectHTTP(ctx, req)

	resp, err := i.httpc.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "lambda.invoke", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "lambda.invoke", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &Result{
			Status:        StatusError,
			Message:       fmt.Sprintf("HTTP %d", resp.StatusCode),
			CorrelationID: correlationID,
		}, nil
	}
	return parseResult(raw, correlationID), nil
}

// parseResult decodes a response body that is either a CloudEvent wrapping
// the result or the bare result object.
func parseResult(raw []byte, correlationID string) *Result {
	payload := map[string]any{}

	var respEvent event.Event
	if err := json.Unmarshal(raw, &respEvent); err == nil && respEvent.SpecVersion() != "" {
		respEvent.DataAs(&payload)
	} else if err := json.Unmarshal(raw, &payload); err != nil {
		return &Result{
			Status:        StatusError,
			Message:       "unparseable lambda response",
			CorrelationID: correlationID,
		}
	}

	result := &Result{
		Status:        StatusError,
		Raw:           payload,
		CorrelationID: correlationID,
	}
	if s, ok := payload["status"].(string); ok && s != "" {
		result.Status = s
	}
	if m, ok := payload["message"].(string); ok {
		result.Message = m
	}
	if e, ok := payload["error"].(string); ok {
		result.Error = e
	}
	return result
}

func (i *Invoker) count(function, status string) {
	if i.metrics != nil {
		i.metrics.LambdaInvocations.WithLabelValues(function, status).Inc()
	}
}
