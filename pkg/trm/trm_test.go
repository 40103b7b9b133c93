package trm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/config"
)

func TestEnabled(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "trm.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("weights"), 0o644))

	tests := []struct {
		name string
		cfg  config.LLMConfig
		want bool
	}{
		{"path and url set", config.LLMConfig{TRMModelPath: modelPath, TRMURL: "http://trm:8000"}, true},
		{"missing path", config.LLMConfig{TRMURL: "http://trm:8000"}, false},
		{"missing url", config.LLMConfig{TRMModelPath: modelPath}, false},
		{"unreadable path", config.LLMConfig{TRMModelPath: filepath.Join(t.TempDir(), "absent"), TRMURL: "http://trm:8000"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Enabled(&tt.cfg))
		})
	}
}

func TestPropose(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predict", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(Proposal{
			LambdaFunction: "pod-restart",
			Parameters:     map[string]any{"name": "api-1", "namespace": "production"},
			Confidence:     0.85,
		})
	}))
	defer srv.Close()

	c := NewClient(&config.LLMConfig{TRMURL: srv.URL}, 5*time.Second)
	p, err := c.Propose(context.Background(), &alert.Alert{
		Alertname: "PodCrashLooping",
		Labels:    map[string]string{"pod": "api-1", "namespace": "production"},
	})
	require.NoError(t, err)

	assert.Equal(t, "PodCrashLooping", got.Alertname)
	assert.Equal(t, "pod-restart", p.LambdaFunction)
	assert.Equal(t, 0.85, p.Confidence)
	assert.Equal(t, "production", p.Parameters["namespace"])
}

func TestPropose_ConfidenceFloor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Proposal{LambdaFunction: "pod-restart", Confidence: 0.3})
	}))
	defer srv.Close()

	c := NewClient(&config.LLMConfig{TRMURL: srv.URL, TRMConfidenceFloor: 0.5}, 5*time.Second)
	_, err := c.Propose(context.Background(), &alert.Alert{Alertname: "A"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindParse, apperrors.KindOf(err))
}

func TestPropose_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind apperrors.Kind
	}{
		{"missing function", `{"confidence": 0.9}`, apperrors.KindParse},
		{"confidence out of range", `{"lambda_function": "pod-restart", "confidence": 1.5}`, apperrors.KindParse},
		{"not json", `gibberish`, apperrors.KindParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(&config.LLMConfig{TRMURL: srv.URL}, 5*time.Second)
			_, err := c.Propose(context.Background(), &alert.Alert{Alertname: "A"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}
}

func TestPropose_SidecarDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(&config.LLMConfig{TRMURL: srv.URL}, 5*time.Second)
	_, err := c.Propose(context.Background(), &alert.Alert{Alertname: "A"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
}
