package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
)

// defaultOllamaModel is used when no model override is configured.
const defaultOllamaModel = "llama3.1"

// OllamaClient talks to a local Ollama endpoint. Ollama has no native tool
// use, so when a tool is requested the prompt asks for JSON output matching
// the schema and the response is parsed into a ToolCall.
type OllamaClient struct {
	baseURL string
	model   string
	httpc   *http.Client
}

// NewOllamaClient creates the provider. An empty model selects the default.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Provider returns the provider name.
func (c *OllamaClient) Provider() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete runs one completion against /api/generate.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	body := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
	}
	if req.Tool != nil {
		body.Format = "json"
		body.Prompt = toolPrompt(req.Prompt, req.Tool)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.New(apperrors.KindParse, "llm.ollama", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "llm.ollama", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "llm.ollama", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "llm.ollama", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.KindTransport, "llm.ollama",
			"ollama returned %d: %s", httpResp.StatusCode, truncate(string(raw), 200))
	}

	var gen ollamaGenerateResponse
	if err := json.Unmarshal(raw, &gen); err != nil {
		return nil, apperrors.New(apperrors.KindParse, "llm.ollama", err)
	}
	if gen.Response == "" {
		return nil, apperrors.Newf(apperrors.KindParse, "llm.ollama",
			"empty completion from model %s", c.model)
	}

	resp := &Response{Text: gen.Response}
	if req.Tool != nil {
		args := strings.TrimSpace(gen.Response)
		if json.Valid([]byte(args)) {
			resp.ToolCall = &ToolCall{Name: req.Tool.Name, Arguments: json.RawMessage(args)}
		}
	}
	return resp, nil
}

// toolPrompt appends the tool schema as a JSON output contract. Ollama's
// format=json mode guarantees valid JSON but not the shape, so the schema
// is spelled out in the prompt.
func toolPrompt(prompt string, tool *ToolSchema) string {
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": tool.Properties,
		"required":   tool.Required,
	})
	return fmt.Sprintf("%s\n\nRespond with a single JSON object for the %s call matching this schema:\n%s",
		prompt, tool.Name, schema)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Client = (*OllamaClient)(nil)
