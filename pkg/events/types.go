// Package events defines the CloudEvent vocabulary of the agent and helpers
// for parsing inbound events and building outbound ones. Both HTTP content
// modes are supported: binary (ce-* headers plus raw body) and structured
// (application/cloudevents+json).
package events

// Inbound event types dispatched by the ingress.
const (
	// TypeAlertFired triggers the remediation workflow.
	TypeAlertFired = "io.homelab.prometheus.alert.fired"

	// TypeAlertResolved is persisted to memory but not acted upon.
	TypeAlertResolved = "io.homelab.prometheus.alert.resolved"

	// TypeLambdaTrigger is a peripheral pass-through type accepted but not
	// routed to the workflow.
	TypeLambdaTrigger = "io.homelab.agent-sre.lambda.trigger"
)

// Outbound event types.
const (
	// TypeRemediationRequest is POSTed to lambda functions.
	TypeRemediationRequest = "io.homelab.agent-sre.remediation.request"
)

// Source is the CloudEvent source attribute on every outbound event.
const Source = "agent-sre"

// SpecVersion is the only CloudEvents version the agent speaks.
const SpecVersion = "1.0"

// PayloadLogLimit bounds how much of an offending payload is logged when
// parsing fails.
const PayloadLogLimit = 500
