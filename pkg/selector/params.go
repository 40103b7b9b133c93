package selector

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
	"github.com/brunovlucena/homelab-sub000/pkg/examples"
	"github.com/brunovlucena/homelab-sub000/pkg/llm"
)

// Label fallback chains for parameter defaulting.
var (
	nameLabels      = []string{"name", "resource_name", "pod", "deployment", "kustomization"}
	namespaceLabels = []string{"namespace", "resource_namespace"}
	replicasLabels  = []string{"expected", "replicas"}
)

// EnrichParameters guarantees every selection carries the parameters its
// lambda needs. Missing values fall back to alert labels, then to the
// defaults "unknown" and "flux-system".
func EnrichParameters(fn string, params map[string]any, labels map[string]string) map[string]any {
	out := make(map[string]any, len(params)+3)
	for k, v := range params {
		out[k] = v
	}

	if stringParam(out, "name") == "" {
		out["name"] = labelFallback(labels, nameLabels, "unknown")
	}
	if stringParam(out, "namespace") == "" {
		out["namespace"] = labelFallback(labels, namespaceLabels, "flux-system")
	}

	switch fn {
	case "scale-deployment":
		if _, ok := out["replicas"]; !ok {
			if raw := labelFallback(labels, replicasLabels, ""); raw != "" {
				if n, err := strconv.Atoi(raw); err == nil {
					out["replicas"] = n
				} else {
					out["replicas"] = raw
				}
			}
		}
	case "pod-restart":
		if stringParam(out, "type") == "" {
			out["type"] = "pod"
		}
	}
	return out
}

// Confidence calibrates an LLM selection: a 0.5 base, raised by retrieved
// context, substantive reasoning, and explicitly known target identity.
// Full confidence is reserved for operator annotations.
func Confidence(reasoning string, hasSimilar bool, params map[string]any, labels map[string]string) float64 {
	c := 0.5
	if hasSimilar {
		c += 0.2
	}
	if len(reasoning) > 50 {
		c += 0.1
	}
	if len(reasoning) > 100 {
		c += 0.1
	}
	if hasIdentity(params, labels) {
		c += 0.1
	}
	// Float accumulation can land just under 1.0; clamp anything above the
	// ceiling so only annotations ever report full confidence.
	if c > 0.99 {
		c = 0.99
	}
	return c
}

// hasIdentity reports whether name and namespace were actually known rather
// than defaulted.
func hasIdentity(params map[string]any, labels map[string]string) bool {
	name := stringParam(params, "name")
	if name == "" {
		name = labelFallback(labels, nameLabels, "")
	}
	namespace := stringParam(params, "namespace")
	if namespace == "" {
		namespace = labelFallback(labels, namespaceLabels, "")
	}
	return name != "" && name != "unknown" && namespace != ""
}

func labelFallback(labels map[string]string, keys []string, def string) string {
	for _, k := range keys {
		if v := labels[k]; v != "" {
			return v
		}
	}
	return def
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

const systemPrompt = `You are an SRE remediation selector for a Kubernetes homelab.
Given a firing Prometheus alert, select exactly one remediation lambda
function from the allowed set and provide its parameters. Prefer the least
invasive action that addresses the alert.`

// LambdaFunctionSchema is the tool schema forced on the LLM so the
// completion comes back as a structured call.
func LambdaFunctionSchema() *llm.ToolSchema {
	return &llm.ToolSchema{
		Name:        "select_lambda_function",
		Description: "Select the remediation lambda function for a firing alert.",
		Properties: map[string]any{
			"lambda_function": map[string]any{
				"type": "string",
				"enum": AllowedFunctions,
			},
			"parameters": map[string]any{
				"type":        "object",
				"description": "Function parameters; always include name and namespace.",
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "Why this function addresses the alert.",
			},
		},
		Required: []string{"lambda_function", "parameters"},
	}
}

// BuildPrompt assembles the selection prompt: the alert, then similar past
// incidents, then few-shot examples.
func BuildPrompt(a *alert.Alert, similar, fewShot []examples.ScoredExample) string {
	var b strings.Builder

	b.WriteString("## Firing Alert\n")
	fmt.Fprintf(&b, "alertname: %s\n", a.Alertname)
	if len(a.Labels) > 0 {
		labels, _ := json.Marshal(a.Labels)
		fmt.Fprintf(&b, "labels: %s\n", labels)
	}
	if len(a.Annotations) > 0 {
		annotations, _ := json.Marshal(a.Annotations)
		fmt.Fprintf(&b, "annotations: %s\n", annotations)
	}

	if section := examples.FormatSimilarIncidents(similar); section != "" {
		b.WriteString("\n")
		b.WriteString(section)
	}
	if section := examples.FormatFewShot(fewShot); section != "" {
		b.WriteString("\n")
		b.WriteString(section)
	}

	b.WriteString("\nSelect the remediation.")
	return b.String()
}
