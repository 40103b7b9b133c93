package config

import "time"

// ServerConfig contains HTTP server and process-level settings.
type ServerConfig struct {
	// HTTPPort is the API listen port.
	HTTPPort string

	// LogLevel is the minimum slog level (debug, info, warn, error).
	LogLevel string

	// LogFormat selects the slog handler: "json" or "text".
	LogFormat string

	// AgentID identifies this agent in memory records and event sources.
	AgentID string
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		HTTPPort:  "8080",
		LogLevel:  "info",
		LogFormat: "json",
		AgentID:   "agent-sre",
	}
}

// WorkflowConfig contains workflow engine and dispatcher settings.
type WorkflowConfig struct {
	// OperationMode selects agentic or supervised execution.
	OperationMode OperationMode

	// MaxRetries is the lambda invocation retry budget per workflow.
	MaxRetries int

	// Timeout is the overall per-workflow budget including approval waits.
	Timeout time.Duration

	// MaxConcurrent is the number of workflows processed in parallel.
	// Additional events queue behind the dispatcher semaphore.
	MaxConcurrent int

	// GracefulShutdownTimeout is the max time to wait for active workflows
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration

	// TicketURL is the failure-ticket collaborator endpoint. Empty disables
	// ticket filing (failures are still logged and notified).
	TicketURL string
}

// DefaultWorkflowConfig returns the built-in workflow defaults.
func DefaultWorkflowConfig() *WorkflowConfig {
	return &WorkflowConfig{
		OperationMode:           OperationModeAgentic,
		MaxRetries:              3,
		Timeout:                 5 * time.Minute,
		MaxConcurrent:           16,
		GracefulShutdownTimeout: 5 * time.Minute,
	}
}

// ApprovalConfig contains human approval settings for supervised mode.
type ApprovalConfig struct {
	// RequireAll is the quorum rule: true requires every provider to
	// approve; false resolves on the first decision.
	RequireAll bool

	// Timeout is how long a request stays pending before the timeout
	// action applies.
	Timeout time.Duration

	// TimeoutAction is applied when Timeout elapses.
	TimeoutAction TimeoutAction

	// CallbackURL is the externally reachable approval callback endpoint
	// advertised in approval messages.
	CallbackURL string

	// SweepInterval is how often pending requests are scanned for expiry.
	SweepInterval time.Duration
}

// DefaultApprovalConfig returns the built-in approval defaults.
func DefaultApprovalConfig() *ApprovalConfig {
	return &ApprovalConfig{
		RequireAll:    false,
		Timeout:       1 * time.Hour,
		TimeoutAction: TimeoutActionPending,
		SweepInterval: 30 * time.Second,
	}
}

// MemoryConfig contains memory store settings.
type MemoryConfig struct {
	// FastURL enables the fast KV store when set (redis URL).
	FastURL string

	// DurableURL enables the durable SQL store when set (postgres DSN).
	DurableURL string

	// StoreTimeout is the per-operation budget for store calls.
	StoreTimeout time.Duration

	// RetentionInterval is the cadence of the expired-entry sweep.
	RetentionInterval time.Duration

	// ExampleDBPath is the remediation example database file.
	ExampleDBPath string
}

// DefaultMemoryConfig returns the built-in memory defaults.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		StoreTimeout:      10 * time.Second,
		RetentionInterval: 1 * time.Hour,
		ExampleDBPath:     "data/remediation_examples.json",
	}
}

// LLMConfig contains LLM provider and recursive-reasoning settings.
type LLMConfig struct {
	// Provider selects the LLM backend for the function-calling phase.
	Provider LLMProviderType

	// Model overrides the provider's default model when set.
	Model string

	// AnthropicAPIKey enables the Anthropic provider.
	AnthropicAPIKey string

	// OllamaURL is the Ollama endpoint.
	OllamaURL string

	// Timeout is the per-call budget for LLM requests.
	Timeout time.Duration

	// TRMURL is the recursive-reasoning sidecar endpoint.
	TRMURL string

	// TRMModelPath gates the recursive-reasoning phase: it runs only when
	// this path is set and readable at startup.
	TRMModelPath string

	// TRMConfidenceFloor discards recursive-reasoning results below this
	// confidence. Zero accepts everything.
	TRMConfidenceFloor float64
}

// DefaultLLMConfig returns the built-in LLM defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Provider:  LLMProviderTypeAnthropic,
		OllamaURL: "http://ollama:11434",
		Timeout:   120 * time.Second,
	}
}

// LambdaConfig contains remediation endpoint settings.
type LambdaConfig struct {
	// Namespace is the cluster namespace hosting lambda functions.
	Namespace string

	// ClusterDomain is the service DNS suffix.
	ClusterDomain string

	// ProbeTimeout is the health probe budget per invocation attempt.
	ProbeTimeout time.Duration

	// InvokeTimeout is the invocation call budget.
	InvokeTimeout time.Duration
}

// DefaultLambdaConfig returns the built-in lambda defaults.
func DefaultLambdaConfig() *LambdaConfig {
	return &LambdaConfig{
		Namespace:     "lambda-functions",
		ClusterDomain: "svc.cluster.local",
		ProbeTimeout:  5 * time.Second,
		InvokeTimeout: 60 * time.Second,
	}
}

// SlackConfig contains Slack notification and approval settings.
type SlackConfig struct {
	// WebhookURL posts approval and failure messages when set.
	WebhookURL string

	// Token enables the Slack Web API client when set.
	Token string

	// Channel is the target channel for API-posted messages.
	Channel string

	// SendTimeout is the budget for posting a message.
	SendTimeout time.Duration
}

// DefaultSlackConfig returns the built-in Slack defaults.
func DefaultSlackConfig() *SlackConfig {
	return &SlackConfig{
		SendTimeout: 10 * time.Second,
	}
}

// Enabled reports whether any Slack credential is configured.
func (c *SlackConfig) Enabled() bool {
	return c.WebhookURL != "" || c.Token != ""
}
