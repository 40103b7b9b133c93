package slack

import (
	"encoding/json"
	"fmt"
	"time"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

// ApprovalMessageInput carries everything a reviewer needs to decide.
type ApprovalMessageInput struct {
	RequestID      string
	CorrelationID  string
	Alertname      string
	LambdaFunction string
	Parameters     map[string]any
	Confidence     float64
	Method         string
	CallbackURL    string
	ExpiresAt      time.Time
}

// BuildApprovalMessage creates Block Kit blocks asking for a remediation
// approval. Decisions come back through the approval callback endpoint, so
// the message spells out the request ID and callback URL rather than using
// Slack interactivity.
func BuildApprovalMessage(in ApprovalMessageInput) []goslack.Block {
	header := fmt.Sprintf(":vertical_traffic_light: *Remediation approval required*\n*Alert:* %s\n*Action:* `%s`",
		in.Alertname, in.LambdaFunction)

	params, _ := json.Marshal(in.Parameters)
	details := fmt.Sprintf("*Parameters:* `%s`\n*Confidence:* %.2f (%s)\n*Request ID:* `%s`",
		truncateForSlack(string(params)), in.Confidence, in.Method, in.RequestID)
	if !in.ExpiresAt.IsZero() {
		details += fmt.Sprintf("\n*Expires:* %s", in.ExpiresAt.UTC().Format(time.RFC3339))
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, details, false, false),
			nil, nil,
		),
	}

	if in.CallbackURL != "" {
		howTo := fmt.Sprintf(
			"Reply via `POST %s` with `{\"request_id\": \"%s\", \"provider\": \"slack\", \"decision\": \"approve\"|\"reject\"}`",
			in.CallbackURL, in.RequestID)
		blocks = append(blocks, goslack.NewContextBlock("",
			goslack.NewTextBlockObject(goslack.MarkdownType, howTo, false, false),
		))
	}
	return blocks
}

// FailureMessageInput describes a terminal remediation failure.
type FailureMessageInput struct {
	CorrelationID  string
	Alertname      string
	LambdaFunction string
	Error          string
	CannotFix      bool
}

// BuildFailureMessage creates Block Kit blocks for a terminal failure
// notification. The correlation ID is always included for trace joining.
func BuildFailureMessage(in FailureMessageInput) []goslack.Block {
	emoji := ":x:"
	label := "Remediation failed"
	if in.CannotFix {
		emoji = ":no_entry:"
		label = "Remediation impossible (lambda unreachable)"
	}

	header := fmt.Sprintf("%s *%s*\n*Alert:* %s", emoji, label, in.Alertname)
	if in.LambdaFunction != "" {
		header += fmt.Sprintf("\n*Action:* `%s`", in.LambdaFunction)
	}

	body := fmt.Sprintf("*Error:*\n%s\n\n*Correlation ID:* `%s`",
		truncateForSlack(in.Error), in.CorrelationID)

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, body, false, false),
			nil, nil,
		),
	}
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
