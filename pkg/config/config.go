// Package config loads and validates the agent configuration from the
// environment. Every option has a default; only store URLs and provider
// credentials gate optional subsystems.
package config

// Config is the umbrella configuration object returned by Initialize()
// and used throughout the application.
type Config struct {
	Server   *ServerConfig
	Workflow *WorkflowConfig
	Approval *ApprovalConfig
	Memory   *MemoryConfig
	LLM      *LLMConfig
	Lambda   *LambdaConfig
	Slack    *SlackConfig
}

// Supervised reports whether workflows insert a human approval step.
func (c *Config) Supervised() bool {
	return c.Workflow.OperationMode == OperationModeSupervised
}

// FastStoreEnabled reports whether a fast KV store URL is configured.
func (c *Config) FastStoreEnabled() bool {
	return c.Memory.FastURL != ""
}

// DurableStoreEnabled reports whether a durable SQL store URL is configured.
func (c *Config) DurableStoreEnabled() bool {
	return c.Memory.DurableURL != ""
}
