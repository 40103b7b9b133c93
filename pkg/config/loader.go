package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Build each subsystem config from built-in defaults
//  2. Override with environment variables
//  3. Validate all configuration
//  4. Return Config ready for use
func Initialize(ctx context.Context) (*Config, error) {
	cfg, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	slog.Info("Configuration initialized successfully",
		"operation_mode", cfg.Workflow.OperationMode,
		"fast_store", cfg.FastStoreEnabled(),
		"durable_store", cfg.DurableStoreEnabled(),
		"llm_provider", cfg.LLM.Provider,
		"trm_gated", cfg.LLM.TRMModelPath != "",
		"slack", cfg.Slack.Enabled())

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context) (*Config, error) {
	server := DefaultServerConfig()
	server.HTTPPort = getEnvOrDefault("HTTP_PORT", server.HTTPPort)
	server.LogLevel = getEnvOrDefault("LOG_LEVEL", server.LogLevel)
	server.LogFormat = getEnvOrDefault("LOG_FORMAT", server.LogFormat)
	server.AgentID = getEnvOrDefault("AGENT_ID", server.AgentID)

	workflow := DefaultWorkflowConfig()
	workflow.OperationMode = OperationMode(getEnvOrDefault("OPERATION_MODE", string(workflow.OperationMode)))
	if v, err := getEnvInt("MAX_RETRIES", workflow.MaxRetries); err != nil {
		return nil, err
	} else {
		workflow.MaxRetries = v
	}
	if v, err := getEnvSeconds("WORKFLOW_TIMEOUT_SECONDS", workflow.Timeout); err != nil {
		return nil, err
	} else {
		workflow.Timeout = v
	}
	if v, err := getEnvInt("MAX_CONCURRENT_WORKFLOWS", workflow.MaxConcurrent); err != nil {
		return nil, err
	} else {
		workflow.MaxConcurrent = v
	}
	workflow.GracefulShutdownTimeout = workflow.Timeout
	workflow.TicketURL = os.Getenv("TICKET_URL")

	approval := DefaultApprovalConfig()
	if v, err := getEnvBool("APPROVAL_REQUIRE_ALL", approval.RequireAll); err != nil {
		return nil, err
	} else {
		approval.RequireAll = v
	}
	if v, err := getEnvSeconds("APPROVAL_TIMEOUT_SECONDS", approval.Timeout); err != nil {
		return nil, err
	} else {
		approval.Timeout = v
	}
	approval.TimeoutAction = TimeoutAction(getEnvOrDefault("APPROVAL_TIMEOUT_ACTION", string(approval.TimeoutAction)))
	approval.CallbackURL = os.Getenv("APPROVAL_CALLBACK_URL")

	memory := DefaultMemoryConfig()
	memory.FastURL = os.Getenv("MEMORY_FAST_URL")
	memory.DurableURL = os.Getenv("MEMORY_DURABLE_URL")
	memory.ExampleDBPath = getEnvOrDefault("EXAMPLE_DB_PATH", memory.ExampleDBPath)
	if v, err := getEnvDuration("MEMORY_RETENTION_INTERVAL", memory.RetentionInterval); err != nil {
		return nil, err
	} else {
		memory.RetentionInterval = v
	}

	llm := DefaultLLMConfig()
	llm.Provider = LLMProviderType(getEnvOrDefault("LLM_PROVIDER", string(llm.Provider)))
	llm.Model = os.Getenv("LLM_MODEL")
	llm.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	llm.OllamaURL = getEnvOrDefault("OLLAMA_URL", llm.OllamaURL)
	llm.TRMURL = os.Getenv("TRM_URL")
	llm.TRMModelPath = os.Getenv("TRM_MODEL_PATH")
	if v, err := getEnvFloat("TRM_CONFIDENCE_FLOOR", llm.TRMConfidenceFloor); err != nil {
		return nil, err
	} else {
		llm.TRMConfidenceFloor = v
	}

	lambda := DefaultLambdaConfig()
	lambda.Namespace = getEnvOrDefault("LAMBDA_NAMESPACE", lambda.Namespace)
	lambda.ClusterDomain = getEnvOrDefault("CLUSTER_DOMAIN", lambda.ClusterDomain)

	slack := DefaultSlackConfig()
	slack.WebhookURL = os.Getenv("SLACK_WEBHOOK_URL")
	slack.Token = os.Getenv("SLACK_TOKEN")
	slack.Channel = os.Getenv("SLACK_CHANNEL")

	return &Config{
		Server:   server,
		Workflow: workflow,
		Approval: approval,
		Memory:   memory,
		LLM:      llm,
		Lambda:   lambda,
		Slack:    slack,
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

// getEnvSeconds parses an integer number of seconds.
func getEnvSeconds(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(n) * time.Second, nil
}

// getEnvDuration parses a Go duration string like "1h" or "30m".
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
