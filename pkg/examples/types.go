// Package examples stores past (alert → action → outcome) triples and
// retrieves the most similar ones for prompt grounding: a JSON-backed
// example database scored on label overlap and a bounded vector store
// scored on embedding cosine similarity.
package examples

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
)

// RemediationExample is one past remediation with its outcome. Success is
// nil while the outcome is pending verification and patched afterwards.
type RemediationExample struct {
	Alertname      string            `json:"alertname"`
	Labels         map[string]string `json:"labels"`
	LambdaFunction string            `json:"lambda_function"`
	Parameters     map[string]any    `json:"parameters"`
	Success        *bool             `json:"success"`
	Timestamp      time.Time         `json:"timestamp"`
	Reasoning      string            `json:"reasoning,omitempty"`
}

// ID derives the example identity from the alertname and canonical labels.
func (e *RemediationExample) ID() string {
	sum := sha256.Sum256([]byte(e.Alertname + "|" + alert.CanonicalLabels(e.Labels)))
	return hex.EncodeToString(sum[:])
}

// Succeeded reports a verified successful outcome.
func (e *RemediationExample) Succeeded() bool {
	return e.Success != nil && *e.Success
}

// ScoredExample pairs an example with its similarity to a query.
type ScoredExample struct {
	Example    RemediationExample
	Similarity float64
}
