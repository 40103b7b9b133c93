// Package alert defines the firing unit received from Prometheus via
// CloudEvents and the extraction rules that normalize raw event payloads.
package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Status is the alert lifecycle state.
type Status string

const (
	// StatusFiring marks an active alert.
	StatusFiring Status = "firing"
	// StatusResolved marks a cleared alert.
	StatusResolved Status = "resolved"
)

// Alert is the firing unit. Fields are immutable once extracted;
// Fingerprint is stable across retransmissions of the same alert.
type Alert struct {
	Alertname   string            `json:"alertname"`
	Status      Status            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt,omitempty"`
	Fingerprint string            `json:"fingerprint"`
}

// FromPayload extracts an Alert from a decoded CloudEvent data payload.
//
// Extraction rules:
//   - alertname: data.alertname, then data.subject, then data.labels.alertname,
//     then "unknown"
//   - labels: data.labels
//   - annotations: data.commonAnnotations merged with data.annotations,
//     alert-specific values winning
//   - fingerprint: data.fingerprint, computed from alertname and labels
//     when absent
func FromPayload(payload map[string]any) *Alert {
	labels := stringMap(payload["labels"])
	annotations := mergeAnnotations(
		stringMap(payload["commonAnnotations"]),
		stringMap(payload["annotations"]),
	)

	name := stringValue(payload["alertname"])
	if name == "" {
		name = stringValue(payload["subject"])
	}
	if name == "" {
		name = labels["alertname"]
	}
	if name == "" {
		name = "unknown"
	}

	a := &Alert{
		Alertname:   name,
		Status:      StatusFiring,
		Labels:      labels,
		Annotations: annotations,
		Fingerprint: stringValue(payload["fingerprint"]),
	}

	if s := stringValue(payload["status"]); s == string(StatusResolved) {
		a.Status = StatusResolved
	}
	if raw := stringValue(payload["startsAt"]); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			a.StartsAt = ts
		}
	}
	if a.Fingerprint == "" {
		a.Fingerprint = ComputeFingerprint(a.Alertname, a.Labels)
	}

	return a
}

// ComputeFingerprint derives a stable identity from the alertname and the
// canonical form of the labels.
func ComputeFingerprint(alertname string, labels map[string]string) string {
	sum := sha256.Sum256([]byte(alertname + "|" + CanonicalLabels(labels)))
	return hex.EncodeToString(sum[:])
}

// CanonicalLabels renders labels as a deterministic "k=v,k=v" string with
// keys sorted.
func CanonicalLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

// mergeAnnotations overlays alert-specific annotations on common ones.
func mergeAnnotations(common, specific map[string]string) map[string]string {
	merged := make(map[string]string, len(common)+len(specific))
	for k, v := range common {
		merged[k] = v
	}
	for k, v := range specific {
		merged[k] = v
	}
	return merged
}

// stringMap converts a decoded JSON object into a string map, skipping
// non-string values.
func stringMap(v any) map[string]string {
	out := make(map[string]string)
	switch m := v.(type) {
	case map[string]any:
		for k, val := range m {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		for k, val := range m {
			out[k] = val
		}
	}
	return out
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
