// Package workflow runs the remediation state machine: extract the alert,
// select a lambda, optionally gate on approval, execute with retries, verify,
// and record the outcome. State is checkpointed on every step transition so
// a crashed workflow can be resumed or declared orphaned without re-invoking
// its lambda.
package workflow

import (
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
	"github.com/brunovlucena/homelab-sub000/pkg/config"
	"github.com/brunovlucena/homelab-sub000/pkg/lambda"
)

// Step names the workflow's state machine nodes.
type Step string

const (
	StepReceive         Step = "receive_cloudevent"
	StepExtract         Step = "extract_from_cloudevent"
	StepSelect          Step = "extract_lambda_function"
	StepRequestApproval Step = "request_approval"
	StepWaitApproval    Step = "wait_for_approval"
	StepExecute         Step = "execute_lambda_function"
	StepVerify          Step = "verify_remediation"
	StepComplete        Step = "complete"
)

// recordKind tags workflow checkpoints in the shared memory store so sweeps
// and recovery can find them among other working entries.
const recordKind = "workflow_state"

// stateID is the memory key for a checkpoint.
func stateID(correlationID string) string { return "workflow:" + correlationID }

// VerificationResult is the minimal verification contract.
type VerificationResult struct {
	Verified      bool `json:"verified"`
	AlertResolved bool `json:"alert_resolved"`
}

// State is the full workflow record, persisted on every transition.
type State struct {
	RecordKind string `json:"record_kind"`
	OwnerPod   string `json:"owner_pod,omitempty"`

	EventData map[string]any `json:"event_data,omitempty"`
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id"`

	CorrelationID     string            `json:"correlation_id"`
	Alertname         string            `json:"alertname"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
	CommonAnnotations map[string]string `json:"common_annotations,omitempty"`

	LambdaFunction   string         `json:"lambda_function,omitempty"`
	LambdaParameters map[string]any `json:"lambda_parameters,omitempty"`
	// LambdaExecuted marks that an invocation reached the endpoint, so a
	// resumed workflow never invokes twice.
	LambdaExecuted bool `json:"lambda_executed"`

	OperationMode config.OperationMode `json:"operation_mode"`

	ApprovalRequestID string `json:"approval_request_id,omitempty"`
	ApprovalStatus    string `json:"approval_status,omitempty"`

	RemediationResult  *lambda.Result      `json:"remediation_result,omitempty"`
	VerificationResult *VerificationResult `json:"verification_result,omitempty"`
	Success            bool                `json:"success"`

	Confidence float64 `json:"confidence"`
	Method     string  `json:"method,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`

	Step      Step      `json:"step"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Alert reconstructs the extracted alert from the state record.
func (s *State) Alert() *alert.Alert {
	return &alert.Alert{
		Alertname:   s.Alertname,
		Status:      alert.StatusFiring,
		Labels:      s.Labels,
		Annotations: s.Annotations,
		Fingerprint: alert.ComputeFingerprint(s.Alertname, s.Labels),
	}
}

// Terminal reports whether the workflow has completed, in either direction.
func (s *State) Terminal() bool { return s.Step == StepComplete }

// Failed reports a terminal error outcome.
func (s *State) Failed() bool { return s.Terminal() && s.Error != "" }
