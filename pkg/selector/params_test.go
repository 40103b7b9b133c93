package selector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnrichParameters_Defaults(t *testing.T) {
	tests := []struct {
		name   string
		fn     string
		params map[string]any
		labels map[string]string
		want   map[string]any
	}{
		{
			name:   "everything missing",
			fn:     "pod-check-status",
			labels: map[string]string{},
			want:   map[string]any{"name": "unknown", "namespace": "flux-system"},
		},
		{
			name:   "name falls back through label chain",
			fn:     "pod-check-status",
			labels: map[string]string{"deployment": "api", "namespace": "production"},
			want:   map[string]any{"name": "api", "namespace": "production"},
		},
		{
			name:   "pod label beats deployment label",
			fn:     "pod-check-status",
			labels: map[string]string{"pod": "api-1", "deployment": "api"},
			want:   map[string]any{"name": "api-1", "namespace": "flux-system"},
		},
		{
			name:   "explicit params win over labels",
			fn:     "pod-check-status",
			params: map[string]any{"name": "explicit", "namespace": "ns"},
			labels: map[string]string{"pod": "api-1", "namespace": "other"},
			want:   map[string]any{"name": "explicit", "namespace": "ns"},
		},
		{
			name:   "scale-deployment replicas from expected label",
			fn:     "scale-deployment",
			labels: map[string]string{"name": "api", "namespace": "prod", "expected": "3"},
			want:   map[string]any{"name": "api", "namespace": "prod", "replicas": 3},
		},
		{
			name:   "pod-restart default type",
			fn:     "pod-restart",
			labels: map[string]string{"pod": "api-1", "namespace": "prod"},
			want:   map[string]any{"name": "api-1", "namespace": "prod", "type": "pod"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnrichParameters(tt.fn, tt.params, tt.labels))
		})
	}
}

func TestConfidence(t *testing.T) {
	longReasoning := strings.Repeat("because the flux kustomization drifted ", 4)
	identity := map[string]any{"name": "api", "namespace": "prod"}

	tests := []struct {
		name       string
		reasoning  string
		hasSimilar bool
		params     map[string]any
		want       float64
	}{
		{"base only", "", false, nil, 0.5},
		{"similar incidents", "", true, nil, 0.7},
		{"medium reasoning", strings.Repeat("x", 60), false, nil, 0.6},
		{"long reasoning", longReasoning, false, nil, 0.7},
		{"identity known", "", false, identity, 0.6},
		{"everything capped below full", longReasoning, true, identity, 0.99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.reasoning, tt.hasSimilar, tt.params, map[string]string{})
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestIsAllowed(t *testing.T) {
	for _, fn := range AllowedFunctions {
		assert.True(t, IsAllowed(fn), fn)
	}
	assert.False(t, IsAllowed("delete-namespace"))
	assert.False(t, IsAllowed(""))
}
