package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace is the Prometheus namespace for all agent metrics.
const Namespace = "agent_sre"

// Registry is the custom Prometheus registry for the agent.
// Using a custom registry avoids polluting the global default and gives full
// control over which collectors are active.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Metrics holds every Prometheus collector the pipeline emits.
type Metrics struct {
	// Remediation pipeline.
	ActiveRemediations  prometheus.Gauge
	RemediationAttempts *prometheus.CounterVec
	RemediationDuration *prometheus.HistogramVec

	// Event ingress and workflow.
	EventsReceived *prometheus.CounterVec
	WorkflowSteps  *prometheus.CounterVec

	// Selector and lambda invoker.
	SelectorDecisions *prometheus.CounterVec
	LambdaInvocations *prometheus.CounterVec

	// Approval protocol.
	ApprovalRequests  *prometheus.CounterVec
	ApprovalDecisions *prometheus.CounterVec

	// Memory manager.
	ConversationCacheHits prometheus.Counter
	MessageLength         prometheus.Histogram
	PreferenceUpdates     *prometheus.CounterVec
	DomainRecords         *prometheus.CounterVec
	ContextBuildDuration  prometheus.Histogram
	ContextSize           prometheus.Histogram
}

// NewMetrics creates and registers all collectors with the given registerer.
// Production wiring passes Registry; tests pass a fresh one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveRemediations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_remediations",
			Help:      "Number of remediation workflows currently in flight.",
		}),

		RemediationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "remediation_attempts_total",
			Help:      "Total remediation attempts by alertname, lambda function, and status.",
		}, []string{"alertname", "lambda_function", "status"}),

		RemediationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "remediation_duration_seconds",
			Help:      "Histogram of remediation workflow latencies in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"lambda_function", "status"}),

		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Total CloudEvents received by type and handling status.",
		}, []string{"event_type", "status"}),

		WorkflowSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "workflow",
			Name:      "steps_total",
			Help:      "Total workflow step executions by step name and outcome.",
		}, []string{"step", "status"}),

		SelectorDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "selector",
			Name:      "decisions_total",
			Help:      "Total selector decisions by method.",
		}, []string{"method"}),

		LambdaInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "lambda",
			Name:      "invocations_total",
			Help:      "Total lambda invocations by function and status.",
		}, []string{"lambda_function", "status"}),

		ApprovalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "approval",
			Name:      "requests_total",
			Help:      "Total approval requests by final status.",
		}, []string{"status"}),

		ApprovalDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "approval",
			Name:      "decisions_total",
			Help:      "Total per-provider approval decisions.",
		}, []string{"provider", "decision"}),

		ConversationCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "memory",
			Name:      "conversation_cache_hits_total",
			Help:      "Conversations resolved from an existing record instead of created.",
		}),

		MessageLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "memory",
			Name:      "message_length_chars",
			Help:      "Histogram of conversation message lengths in characters.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),

		PreferenceUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "memory",
			Name:      "preference_updates_total",
			Help:      "User preference upserts by origin.",
		}, []string{"explicit"}),

		DomainRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "memory",
			Name:      "domain_records_total",
			Help:      "Domain memory records by category.",
		}, []string{"category"}),

		ContextBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "memory",
			Name:      "context_build_duration_seconds",
			Help:      "Histogram of context assembly latencies in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		ContextSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "memory",
			Name:      "context_size_chars",
			Help:      "Histogram of assembled context sizes in characters.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}),
	}

	reg.MustRegister(
		m.ActiveRemediations,
		m.RemediationAttempts,
		m.RemediationDuration,
		m.EventsReceived,
		m.WorkflowSteps,
		m.SelectorDecisions,
		m.LambdaInvocations,
		m.ApprovalRequests,
		m.ApprovalDecisions,
		m.ConversationCacheHits,
		m.MessageLength,
		m.PreferenceUpdates,
		m.DomainRecords,
		m.ContextBuildDuration,
		m.ContextSize,
	)

	return m
}
