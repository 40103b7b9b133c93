package examples

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
)

// FormatSimilarIncidents renders retrieved incidents as a prompt section.
// Empty input yields an empty string so callers can concatenate blindly.
func FormatSimilarIncidents(incidents []ScoredExample) string {
	if len(incidents) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Similar Past Incidents\n")
	for i, inc := range incidents {
		outcome := "unverified"
		if inc.Example.Success != nil {
			if *inc.Example.Success {
				outcome = "succeeded"
			} else {
				outcome = "failed"
			}
		}
		fmt.Fprintf(&b, "%d. %s (similarity %.2f): ran %s, %s\n",
			i+1, inc.Example.Alertname, inc.Similarity, inc.Example.LambdaFunction, outcome)
		if labels := alert.CanonicalLabels(inc.Example.Labels); labels != "" {
			fmt.Fprintf(&b, "   labels: %s\n", labels)
		}
		if inc.Example.Reasoning != "" {
			fmt.Fprintf(&b, "   reasoning: %s\n", inc.Example.Reasoning)
		}
	}
	return b.String()
}

// FormatFewShot renders examples as labeled input/output pairs to bias the
// model toward the known-good output shape.
func FormatFewShot(fewShot []ScoredExample) string {
	if len(fewShot) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Examples\n")
	for _, ex := range fewShot {
		params, err := json.Marshal(ex.Example.Parameters)
		if err != nil {
			params = []byte("{}")
		}
		fmt.Fprintf(&b, "Alert: %s {%s}\n", ex.Example.Alertname, alert.CanonicalLabels(ex.Example.Labels))
		fmt.Fprintf(&b, "Action: {\"lambda_function\": %q, \"parameters\": %s}\n",
			ex.Example.LambdaFunction, params)
	}
	return b.String()
}
