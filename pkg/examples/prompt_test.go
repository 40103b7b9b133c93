package examples

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSimilarIncidents(t *testing.T) {
	assert.Empty(t, FormatSimilarIncidents(nil))

	out := FormatSimilarIncidents([]ScoredExample{
		{
			Example: RemediationExample{
				Alertname:      "PodCrashLooping",
				Labels:         map[string]string{"namespace": "production"},
				LambdaFunction: "pod-restart",
				Success:        boolPtr(true),
				Reasoning:      "restart clears OOM loops",
			},
			Similarity: 0.92,
		},
		{
			Example: RemediationExample{
				Alertname:      "PodCrashLooping",
				LambdaFunction: "pod-check-status",
			},
			Similarity: 0.61,
		},
	})

	assert.Contains(t, out, "## Similar Past Incidents")
	assert.Contains(t, out, "pod-restart, succeeded")
	assert.Contains(t, out, "pod-check-status, unverified")
	assert.Contains(t, out, "similarity 0.92")
	assert.Contains(t, out, "restart clears OOM loops")
}

func TestFormatFewShot(t *testing.T) {
	assert.Empty(t, FormatFewShot(nil))

	out := FormatFewShot([]ScoredExample{{
		Example: RemediationExample{
			Alertname:      "FluxReconciliationFailure",
			Labels:         map[string]string{"name": "homepage", "namespace": "flux-system"},
			LambdaFunction: "flux-reconcile-kustomization",
			Parameters:     map[string]any{"name": "homepage", "namespace": "flux-system"},
		},
	}})

	assert.Contains(t, out, "## Examples")
	assert.Contains(t, out, `"lambda_function": "flux-reconcile-kustomization"`)
	assert.Contains(t, out, "name=homepage")
}
