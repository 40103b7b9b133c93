// Package approval gates supervised remediations behind human decisions.
// Requests fan out to providers, decisions come back through the callback
// endpoint, and a periodic sweep applies the configured timeout action.
package approval

import (
	"encoding/json"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/config"
)

// Status is an approval request state, global or per provider.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusTimeout || s == StatusCancelled
}

// Decision is a reviewer's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Request is one approval request with its per-provider decision state.
type Request struct {
	RequestID      string            `json:"request_id"`
	CorrelationID  string            `json:"correlation_id"`
	Alertname      string            `json:"alertname"`
	LambdaFunction string            `json:"lambda_function"`
	Parameters     map[string]any    `json:"parameters,omitempty"`
	Confidence     float64           `json:"confidence"`
	Method         string            `json:"method,omitempty"`
	Providers      []string          `json:"providers"`
	ProviderStatus map[string]Status `json:"provider_status"`
	RequireAll     bool              `json:"require_all"`
	TimeoutAction  config.TimeoutAction `json:"timeout_action"`
	Status         Status            `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
	DecidedBy      string            `json:"decided_by,omitempty"`
	DecidedAt      *time.Time        `json:"decided_at,omitempty"`
}

// Quorum recomputes the global status from the per-provider statuses.
//
// require_all: approved iff every provider approved; rejected if any
// rejected; otherwise pending. Otherwise: approved on the first approval;
// rejected only when every provider rejected.
func (r *Request) Quorum() Status {
	if len(r.ProviderStatus) == 0 {
		return StatusPending
	}

	approved, rejected := 0, 0
	for _, s := range r.ProviderStatus {
		switch s {
		case StatusApproved:
			approved++
		case StatusRejected:
			rejected++
		}
	}

	if r.RequireAll {
		switch {
		case rejected > 0:
			return StatusRejected
		case approved == len(r.ProviderStatus):
			return StatusApproved
		default:
			return StatusPending
		}
	}

	switch {
	case approved > 0:
		return StatusApproved
	case rejected == len(r.ProviderStatus):
		return StatusRejected
	default:
		return StatusPending
	}
}

// Response is a provider callback payload.
type Response struct {
	RequestID string    `json:"request_id"`
	Provider  string    `json:"provider"`
	Decision  Decision  `json:"decision"`
	UserID    string    `json:"user_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ParseResponse decodes and validates a callback payload. Every provider
// speaks the same shape, so parsing is shared.
func ParseResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, apperrors.New(apperrors.KindParse, "approval.callback", err)
	}
	if resp.RequestID == "" {
		return nil, apperrors.Newf(apperrors.KindParse, "approval.callback", "missing request_id")
	}
	if resp.Decision != DecisionApprove && resp.Decision != DecisionReject {
		return nil, apperrors.Newf(apperrors.KindParse, "approval.callback",
			"unknown decision %q", resp.Decision)
	}
	if resp.Timestamp.IsZero() {
		resp.Timestamp = time.Now().UTC()
	}
	return &resp, nil
}
