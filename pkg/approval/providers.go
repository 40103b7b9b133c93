package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
	"github.com/brunovlucena/homelab-sub000/pkg/slack"
)

// Provider delivers approval requests to reviewers. Decisions come back
// through the shared callback endpoint, not through the provider.
type Provider interface {
	Name() string
	Send(ctx context.Context, req *Request) error
}

// SlackProvider posts Block Kit approval messages.
type SlackProvider struct {
	notifier    *slack.Notifier
	callbackURL string
}

// NewSlackProvider wraps a notifier.
func NewSlackProvider(notifier *slack.Notifier, callbackURL string) *SlackProvider {
	return &SlackProvider{notifier: notifier, callbackURL: callbackURL}
}

// Name returns "slack", the provider key used in callbacks.
func (p *SlackProvider) Name() string { return "slack" }

// Send posts the approval message. Errors propagate so the manager can
// fail closed.
func (p *SlackProvider) Send(ctx context.Context, req *Request) error {
	err := p.notifier.NotifyApprovalRequested(ctx, slack.ApprovalMessageInput{
		RequestID:      req.RequestID,
		CorrelationID:  req.CorrelationID,
		Alertname:      req.Alertname,
		LambdaFunction: req.LambdaFunction,
		Parameters:     req.Parameters,
		Confidence:     req.Confidence,
		Method:         req.Method,
		CallbackURL:    p.callbackURL,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		return apperrors.New(apperrors.KindTransport, "approval.slack", err)
	}
	return nil
}

// HTTPProvider POSTs the full request to a generic endpoint. The receiving
// system decides however it likes and answers through the callback.
type HTTPProvider struct {
	name  string
	url   string
	httpc *http.Client
}

// NewHTTPProvider creates a generic provider. An empty name defaults to
// "custom".
func NewHTTPProvider(name, url string, timeout time.Duration) *HTTPProvider {
	if name == "" {
		name = "custom"
	}
	return &HTTPProvider{name: name, url: url, httpc: &http.Client{Timeout: timeout}}
}

// Name returns the provider key used in callbacks.
func (p *HTTPProvider) Name() string { return p.name }

// Send POSTs the request as JSON.
func (p *HTTPProvider) Send(ctx context.Context, req *Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return apperrors.New(apperrors.KindParse, "approval.http", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return apperrors.New(apperrors.KindTransport, "approval.http", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	observability.InjectHTTP(ctx, httpReq)

	resp, err := p.httpc.Do(httpReq)
	if err != nil {
		return apperrors.New(apperrors.KindTransport, "approval.http", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 300 {
		return apperrors.Newf(apperrors.KindTransport, "approval.http",
			"provider returned %d", resp.StatusCode)
	}
	return nil
}

var (
	_ Provider = (*SlackProvider)(nil)
	_ Provider = (*HTTPProvider)(nil)
)
