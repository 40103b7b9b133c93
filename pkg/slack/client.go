// Package slack delivers approval requests and terminal failure notices to
// a Slack channel, either through an incoming webhook or the Web API.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/brunovlucena/homelab-sub000/pkg/config"
)

// Client is a thin wrapper around the slack-go SDK supporting both delivery
// paths: webhook URL (no token needed) and chat.postMessage.
type Client struct {
	api        *goslack.Client
	webhookURL string
	channelID  string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates a client from Slack configuration. Returns nil when no
// credential is configured; all methods are nil-safe no-ops.
func NewClient(cfg *config.SlackConfig) *Client {
	if !cfg.Enabled() {
		return nil
	}
	c := &Client{
		webhookURL: cfg.WebhookURL,
		channelID:  cfg.Channel,
		timeout:    cfg.SendTimeout,
		logger:     slog.Default().With("component", "slack-client"),
	}
	if cfg.Token != "" {
		c.api = goslack.New(cfg.Token)
	}
	return c
}

// NewClientWithAPIURL creates a token-based client targeting a custom API
// URL. Useful for testing with a mock server.
func NewClientWithAPIURL(token, channelID, apiURL string) *Client {
	return &Client{
		api:       goslack.New(token, goslack.OptionAPIURL(apiURL)),
		channelID: channelID,
		timeout:   10 * time.Second,
		logger:    slog.Default().With("component", "slack-client"),
	}
}

// PostBlocks sends a Block Kit message through whichever path is configured.
// The webhook wins when both are set.
func (c *Client) PostBlocks(ctx context.Context, blocks []goslack.Block) error {
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.webhookURL != "" {
		msg := &goslack.WebhookMessage{
			Blocks: &goslack.Blocks{BlockSet: blocks},
		}
		if err := goslack.PostWebhookContext(ctx, c.webhookURL, msg); err != nil {
			return fmt.Errorf("slack webhook post failed: %w", err)
		}
		return nil
	}

	_, _, err := c.api.PostMessageContext(ctx, c.channelID, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}
