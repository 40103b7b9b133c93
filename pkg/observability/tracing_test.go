package observability

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRemediationGaugeAndCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	ctx, tr := m.TraceRemediation(context.Background(), "PodCrashLooping", "", "corr-1")
	require.NotNil(t, ctx)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveRemediations))

	tr.SetLambdaFunction("pod-restart")
	tr.End("success")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRemediations))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.RemediationAttempts.WithLabelValues("PodCrashLooping", "pod-restart", "success")))
}

func TestTraceRemediationEndIsIdempotent(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	_, tr := m.TraceRemediation(context.Background(), "HighErrorRate", "scale-deployment", "corr-2")
	tr.End("error")
	tr.End("error")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRemediations))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.RemediationAttempts.WithLabelValues("HighErrorRate", "scale-deployment", "error")))
}

func TestTraceRemediationDefaultsFunctionLabel(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	_, tr := m.TraceRemediation(context.Background(), "Unselectable", "", "corr-3")
	tr.End("error")

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.RemediationAttempts.WithLabelValues("Unselectable", "none", "error")))
}

func TestInjectHTTPAddsCorrelationHeader(t *testing.T) {
	shutdown := InitTracing("agent-sre-test", "test")
	defer func() { _ = shutdown(context.Background()) }()

	ctx := Bind(context.Background(), "corr-9", "", "")
	ctx, span := StartSpan(ctx, "outbound.test")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://example.invalid/", nil)
	require.NoError(t, err)

	InjectHTTP(ctx, req)

	assert.Equal(t, "corr-9", req.Header.Get(HeaderCorrelationID))
	assert.NotEmpty(t, req.Header.Get("traceparent"))
}

func TestNewMetricsRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RemediationAttempts.WithLabelValues("PodCrashLooping", "pod-restart", "success").Inc()
	m.RemediationDuration.WithLabelValues("pod-restart", "success").Observe(1.2)
	m.EventsReceived.WithLabelValues("io.homelab.prometheus.alert.fired", "accepted").Inc()
	m.WorkflowSteps.WithLabelValues("extract_from_cloudevent", "success").Inc()
	m.SelectorDecisions.WithLabelValues("static_annotation").Inc()
	m.LambdaInvocations.WithLabelValues("pod-restart", "success").Inc()
	m.ApprovalRequests.WithLabelValues("approved").Inc()
	m.ApprovalDecisions.WithLabelValues("slack", "approve").Inc()
	m.ConversationCacheHits.Inc()
	m.MessageLength.Observe(120)
	m.PreferenceUpdates.WithLabelValues("true").Inc()
	m.DomainRecords.WithLabelValues("pattern").Inc()
	m.ContextBuildDuration.Observe(0.01)
	m.ContextSize.Observe(2048)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"agent_sre_active_remediations",
		"agent_sre_remediation_attempts_total",
		"agent_sre_remediation_duration_seconds",
		"agent_sre_events_received_total",
		"agent_sre_workflow_steps_total",
		"agent_sre_selector_decisions_total",
		"agent_sre_lambda_invocations_total",
		"agent_sre_approval_requests_total",
		"agent_sre_approval_decisions_total",
		"agent_sre_memory_conversation_cache_hits_total",
		"agent_sre_memory_message_length_chars",
		"agent_sre_memory_preference_updates_total",
		"agent_sre_memory_domain_records_total",
		"agent_sre_memory_context_build_duration_seconds",
		"agent_sre_memory_context_size_chars",
	}
	for _, name := range expected {
		assert.True(t, names[name], "expected metric %q", name)
	}
}
