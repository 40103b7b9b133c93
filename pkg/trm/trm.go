// Package trm is the client for the recursive-reasoning sidecar, a small
// model that iteratively refines a {lambda_function, parameters} proposal
// with a calibrated confidence. The phase is optional: it runs only when a
// model path is configured and readable at startup.
package trm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/config"
)

// Proposal is the sidecar's structured output.
type Proposal struct {
	LambdaFunction string         `json:"lambda_function"`
	Parameters     map[string]any `json:"parameters"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning,omitempty"`
}

// Client talks to the sidecar over HTTP.
type Client struct {
	baseURL string
	floor   float64
	httpc   *http.Client
}

// Enabled reports whether the recursive-reasoning phase should run: the
// model path must be set and readable and the sidecar URL configured.
func Enabled(cfg *config.LLMConfig) bool {
	if cfg.TRMModelPath == "" || cfg.TRMURL == "" {
		return false
	}
	f, err := os.Open(cfg.TRMModelPath)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// NewClient creates a sidecar client. Callers gate construction on Enabled.
func NewClient(cfg *config.LLMConfig, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.TRMURL, "/"),
		floor:   cfg.TRMConfidenceFloor,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Alertname   string            `json:"alertname"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
}

// Propose asks the sidecar for a remediation proposal. A proposal below the
// configured confidence floor is discarded with a parse-kind error so the
// selector falls through to the next phase.
func (c *Client) Propose(ctx context.Context, a *alert.Alert) (*Proposal, error) {
	payload, err := json.Marshal(predictRequest{
		Alertname:   a.Alertname,
		Labels:      a.Labels,
		Annotations: a.Annotations,
	})
	if err != nil {
		return nil, apperrors.New(apperrors.KindParse, "trm.propose", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/predict", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "trm.propose", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "trm.propose", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "trm.propose", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.KindTransport, "trm.propose",
			"sidecar returned %d", resp.StatusCode)
	}

	var p Proposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperrors.New(apperrors.KindParse, "trm.propose", err)
	}
	if p.LambdaFunction == "" {
		return nil, apperrors.Newf(apperrors.KindParse, "trm.propose",
			"proposal missing lambda_function")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return nil, apperrors.Newf(apperrors.KindParse, "trm.propose",
			"confidence %v outside [0,1]", p.Confidence)
	}
	if c.floor > 0 && p.Confidence < c.floor {
		return nil, apperrors.Newf(apperrors.KindParse, "trm.propose",
			"confidence %.2f below floor %.2f", p.Confidence, c.floor)
	}
	if p.Parameters == nil {
		p.Parameters = map[string]any{}
	}
	return &p, nil
}
