package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every option so tests observe built-in defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"HTTP_PORT", "LOG_LEVEL", "LOG_FORMAT", "AGENT_ID",
		"OPERATION_MODE", "MAX_RETRIES", "WORKFLOW_TIMEOUT_SECONDS", "MAX_CONCURRENT_WORKFLOWS",
		"APPROVAL_REQUIRE_ALL", "APPROVAL_TIMEOUT_SECONDS", "APPROVAL_TIMEOUT_ACTION", "APPROVAL_CALLBACK_URL",
		"MEMORY_FAST_URL", "MEMORY_DURABLE_URL", "MEMORY_RETENTION_INTERVAL", "EXAMPLE_DB_PATH",
		"LLM_PROVIDER", "LLM_MODEL", "ANTHROPIC_API_KEY", "OLLAMA_URL",
		"TRM_URL", "TRM_MODEL_PATH", "TRM_CONFIDENCE_FLOOR",
		"LAMBDA_NAMESPACE", "CLUSTER_DOMAIN",
		"SLACK_WEBHOOK_URL", "SLACK_TOKEN", "SLACK_CHANNEL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestInitializeDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.HTTPPort)
	assert.Equal(t, "json", cfg.Server.LogFormat)
	assert.Equal(t, "agent-sre", cfg.Server.AgentID)

	assert.Equal(t, OperationModeAgentic, cfg.Workflow.OperationMode)
	assert.False(t, cfg.Supervised())
	assert.Equal(t, 3, cfg.Workflow.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Workflow.Timeout)
	assert.Equal(t, 16, cfg.Workflow.MaxConcurrent)

	assert.False(t, cfg.Approval.RequireAll)
	assert.Equal(t, 1*time.Hour, cfg.Approval.Timeout)
	assert.Equal(t, TimeoutActionPending, cfg.Approval.TimeoutAction)

	assert.False(t, cfg.FastStoreEnabled())
	assert.False(t, cfg.DurableStoreEnabled())
	assert.Equal(t, 10*time.Second, cfg.Memory.StoreTimeout)
	assert.Equal(t, "data/remediation_examples.json", cfg.Memory.ExampleDBPath)

	assert.Equal(t, LLMProviderTypeAnthropic, cfg.LLM.Provider)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)

	assert.Equal(t, "lambda-functions", cfg.Lambda.Namespace)
	assert.Equal(t, "svc.cluster.local", cfg.Lambda.ClusterDomain)
	assert.Equal(t, 5*time.Second, cfg.Lambda.ProbeTimeout)
	assert.Equal(t, 60*time.Second, cfg.Lambda.InvokeTimeout)

	assert.False(t, cfg.Slack.Enabled())
}

func TestInitializeOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPERATION_MODE", "supervised")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("WORKFLOW_TIMEOUT_SECONDS", "120")
	t.Setenv("APPROVAL_REQUIRE_ALL", "true")
	t.Setenv("APPROVAL_TIMEOUT_SECONDS", "600")
	t.Setenv("APPROVAL_TIMEOUT_ACTION", "reject")
	t.Setenv("MEMORY_FAST_URL", "redis://localhost:6379/0")
	t.Setenv("MEMORY_DURABLE_URL", "postgres://agent:pw@localhost:5432/memory")
	t.Setenv("MEMORY_RETENTION_INTERVAL", "15m")
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("TRM_MODEL_PATH", "/models/trm.ckpt")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T0/B0/x")

	cfg, err := Initialize(context.Background())
	require.NoError(t, err)

	assert.True(t, cfg.Supervised())
	assert.Equal(t, 5, cfg.Workflow.MaxRetries)
	assert.Equal(t, 2*time.Minute, cfg.Workflow.Timeout)
	assert.True(t, cfg.Approval.RequireAll)
	assert.Equal(t, 10*time.Minute, cfg.Approval.Timeout)
	assert.Equal(t, TimeoutActionReject, cfg.Approval.TimeoutAction)
	assert.True(t, cfg.FastStoreEnabled())
	assert.True(t, cfg.DurableStoreEnabled())
	assert.Equal(t, 15*time.Minute, cfg.Memory.RetentionInterval)
	assert.Equal(t, LLMProviderTypeOllama, cfg.LLM.Provider)
	assert.Equal(t, "/models/trm.ckpt", cfg.LLM.TRMModelPath)
	assert.True(t, cfg.Slack.Enabled())
}

func TestInitializeValidation(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  string
		option string
	}{
		{name: "bad operation mode", key: "OPERATION_MODE", value: "autopilot", option: "OPERATION_MODE"},
		{name: "bad timeout action", key: "APPROVAL_TIMEOUT_ACTION", value: "escalate", option: "APPROVAL_TIMEOUT_ACTION"},
		{name: "bad llm provider", key: "LLM_PROVIDER", value: "openai", option: "LLM_PROVIDER"},
		{name: "bad log format", key: "LOG_FORMAT", value: "xml", option: "LOG_FORMAT"},
		{name: "bad port", key: "HTTP_PORT", value: "http", option: "HTTP_PORT"},
		{name: "confidence floor above one", key: "TRM_CONFIDENCE_FLOOR", value: "1.5", option: "TRM_CONFIDENCE_FLOOR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Initialize(context.Background())
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.option, verr.Option)
			assert.True(t, errors.Is(err, ErrInvalidValue))
		})
	}
}

func TestInitializeParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "non-numeric retries", key: "MAX_RETRIES", value: "many"},
		{name: "non-boolean require all", key: "APPROVAL_REQUIRE_ALL", value: "yep"},
		{name: "bad retention duration", key: "MEMORY_RETENTION_INTERVAL", value: "hourly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Initialize(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestNegativeRetriesRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_RETRIES", "-1")

	_, err := Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidValue))
}
