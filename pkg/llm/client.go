// Package llm abstracts the LLM providers used for remediation selection.
// Providers expose one operation: complete a prompt, optionally forcing a
// structured tool call. Anthropic supports native tool use; Ollama emulates
// it with JSON-formatted output that the caller parses.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brunovlucena/homelab-sub000/pkg/config"
)

// ToolSchema describes a function-calling tool in JSON-Schema terms.
type ToolSchema struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// ToolCall is a structured tool invocation returned by a provider.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// Request is one completion call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int64

	// Tool forces a structured response matching the schema when the
	// provider supports it.
	Tool *ToolSchema
}

// Response carries the completion. ToolCall is set when the provider
// returned native structured output; otherwise callers parse Text.
type Response struct {
	Text     string
	ToolCall *ToolCall
}

// Client is implemented by every provider.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Provider() string
}

// New builds the configured provider.
func New(cfg *config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case config.LLMProviderTypeAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY required for the anthropic provider")
		}
		return NewAnthropicClient(cfg.AnthropicAPIKey, cfg.Model, cfg.Timeout), nil
	case config.LLMProviderTypeOllama:
		return NewOllamaClient(cfg.OllamaURL, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
