package slack

import (
	"context"
	"log/slog"
)

// Notifier sends the two message kinds the control plane produces.
// Nil-safe: all methods are no-ops when the notifier is nil.
type Notifier struct {
	client *Client
	logger *slog.Logger
}

// NewNotifier wraps a client. A nil client yields a nil notifier.
func NewNotifier(client *Client) *Notifier {
	if client == nil {
		return nil
	}
	return &Notifier{
		client: client,
		logger: slog.Default().With("component", "slack-notifier"),
	}
}

// NotifyApprovalRequested posts an approval request. The error is returned
// because the approval manager fails closed on provider send failures.
func (n *Notifier) NotifyApprovalRequested(ctx context.Context, in ApprovalMessageInput) error {
	if n == nil {
		return nil
	}
	return n.client.PostBlocks(ctx, BuildApprovalMessage(in))
}

// NotifyTerminalFailure posts a failure notice. Fail-open: errors are
// logged, never returned, since the failure is already recorded elsewhere.
func (n *Notifier) NotifyTerminalFailure(ctx context.Context, in FailureMessageInput) {
	if n == nil {
		return
	}
	if err := n.client.PostBlocks(ctx, BuildFailureMessage(in)); err != nil {
		n.logger.Error("Failed to send failure notification",
			"correlation_id", in.CorrelationID,
			"alertname", in.Alertname,
			"error", err)
	}
}
