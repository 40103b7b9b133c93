// Package ticket files failure tickets with an external collaborator when a
// remediation fails terminally. The collaborator is an opaque HTTP sink; a
// no-op client stands in when none is configured.
package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
)

// Ticket describes one terminal remediation failure.
type Ticket struct {
	CorrelationID  string    `json:"correlation_id"`
	Alertname      string    `json:"alertname"`
	LambdaFunction string    `json:"lambda_function,omitempty"`
	Error          string    `json:"error"`
	CannotFix      bool      `json:"cannot_fix"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filer is the failure-ticket contract.
type Filer interface {
	File(ctx context.Context, t Ticket) error
}

// HTTPFiler POSTs tickets to a configured endpoint.
type HTTPFiler struct {
	url   string
	httpc *http.Client
}

// NewHTTPFiler creates a filer for the given endpoint.
func NewHTTPFiler(url string, timeout time.Duration) *HTTPFiler {
	return &HTTPFiler{url: url, httpc: &http.Client{Timeout: timeout}}
}

// File sends the ticket. The correlation ID travels in the header as well
// as the body so the collaborator can join traces.
func (f *HTTPFiler) File(ctx context.Context, t Ticket) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(t)
	if err != nil {
		return apperrors.New(apperrors.KindParse, "ticket.file", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return apperrors.New(apperrors.KindTransport, "ticket.file", err)
	}
	req.Header.Set("Content-Type", "application/json")
	observability.InjectHTTP(ctx, req)

	resp, err := f.httpc.Do(req)
	if err != nil {
		return apperrors.New(apperrors.KindTransport, "ticket.file", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 300 {
		return apperrors.Newf(apperrors.KindTransport, "ticket.file",
			"ticket endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// NopFiler drops tickets, logging them so the failure is still visible.
type NopFiler struct{}

// File logs the ticket and succeeds.
func (NopFiler) File(ctx context.Context, t Ticket) error {
	observability.Logger(ctx).Warn("No ticket endpoint configured, dropping failure ticket",
		"alertname", t.Alertname,
		"lambda_function", t.LambdaFunction,
		"error", t.Error)
	return nil
}

var (
	_ Filer = (*HTTPFiler)(nil)
	_ Filer = NopFiler{}
)
