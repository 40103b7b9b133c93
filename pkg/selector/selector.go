// Package selector picks a remediation lambda for an alert through a
// cascading pipeline: static annotation, recursive reasoning, retrieval of
// similar incidents, LLM function calling, then deterministic validation and
// confidence calibration. Every emitted selection names a function from the
// closed allowed set.
package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/examples"
	"github.com/brunovlucena/homelab-sub000/pkg/llm"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
	"github.com/brunovlucena/homelab-sub000/pkg/trm"
)

// Selection methods, from most to least trusted.
const (
	MethodStaticAnnotation   = "static_annotation"
	MethodRecursiveReasoning = "trm_recursive_reasoning"
	MethodFunctionCalling    = "ai_function_calling"
	MethodRuleBased          = "rule_based"
)

// AllowedFunctions is the closed set of invocable lambda functions. Any
// selector output outside this set is rejected.
var AllowedFunctions = []string{
	"flux-reconcile-kustomization",
	"flux-reconcile-gitrepository",
	"flux-reconcile-helmrelease",
	"pod-restart",
	"pod-check-status",
	"scale-deployment",
	"check-pvc-status",
}

// IsAllowed reports whether name is an invocable lambda function.
func IsAllowed(name string) bool {
	for _, fn := range AllowedFunctions {
		if fn == name {
			return true
		}
	}
	return false
}

// functionPattern matches any allowed function name in free text, used as
// the fallback when the LLM ignores the tool schema.
var functionPattern = regexp.MustCompile(strings.Join(AllowedFunctions, "|"))

// Selection is the pipeline's output.
type Selection struct {
	LambdaFunction string         `json:"lambda_function"`
	Parameters     map[string]any `json:"parameters"`
	Confidence     float64        `json:"confidence"`
	Method         string         `json:"method"`
	Reasoning      string         `json:"reasoning,omitempty"`
}

// Reasoner is the recursive-reasoning phase. *trm.Client implements it.
type Reasoner interface {
	Propose(ctx context.Context, a *alert.Alert) (*trm.Proposal, error)
}

// Selector runs the pipeline. The reasoner and LLM client are optional;
// a nil index disables retrieval and outcome indexing.
type Selector struct {
	llm      llm.Client
	reasoner Reasoner
	index    *examples.Index
	metrics  *observability.Metrics
}

// New creates a selector. Any collaborator may be nil; the corresponding
// phase is skipped.
func New(llmClient llm.Client, reasoner Reasoner, index *examples.Index, metrics *observability.Metrics) *Selector {
	return &Selector{llm: llmClient, reasoner: reasoner, index: index, metrics: metrics}
}

// Select runs phases 0-6 and returns the first selection a phase produces.
// When every phase fails it returns ErrSelectionFailed and the workflow
// ends the task terminally.
func (s *Selector) Select(ctx context.Context, a *alert.Alert) (*Selection, error) {
	log := observability.Logger(ctx)

	if sel := s.fromAnnotation(ctx, a); sel != nil {
		return s.emit(ctx, a, sel)
	}

	if sel := s.fromReasoner(ctx, a); sel != nil {
		return s.emit(ctx, a, sel)
	}

	similar, fewShot := s.retrieve(ctx, a)

	sel, err := s.fromLLM(ctx, a, similar, fewShot)
	if err != nil {
		log.Error("All selector phases failed",
			"alertname", a.Alertname, "error", err)
		return nil, fmt.Errorf("selecting remediation for %s: %w",
			a.Alertname, apperrors.ErrSelectionFailed)
	}
	return s.emit(ctx, a, sel)
}

// fromAnnotation is phase 0: an operator-pinned lambda_function annotation
// wins outright with full confidence.
func (s *Selector) fromAnnotation(ctx context.Context, a *alert.Alert) *Selection {
	fn := a.Annotations["lambda_function"]
	if fn == "" {
		return nil
	}
	if !IsAllowed(fn) {
		observability.Logger(ctx).Warn("Annotation names unknown lambda function, ignoring",
			"lambda_function", fn)
		return nil
	}

	params := map[string]any{}
	if raw := a.Annotations["lambda_parameters"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			observability.Logger(ctx).Warn("Malformed lambda_parameters annotation, using defaults",
				"error", err)
			params = map[string]any{}
		}
	}

	return &Selection{
		LambdaFunction: fn,
		Parameters:     EnrichParameters(fn, params, a.Labels),
		Confidence:     1.0,
		Method:         MethodStaticAnnotation,
	}
}

// fromReasoner is phase 1: the recursive-reasoning sidecar, when loaded.
func (s *Selector) fromReasoner(ctx context.Context, a *alert.Alert) *Selection {
	if s.reasoner == nil {
		return nil
	}

	p, err := s.reasoner.Propose(ctx, a)
	if err != nil {
		observability.Logger(ctx).Warn("Recursive reasoning phase failed, falling through",
			"error", err)
		return nil
	}
	if !IsAllowed(p.LambdaFunction) {
		observability.Logger(ctx).Warn("Recursive reasoning proposed unknown function, falling through",
			"lambda_function", p.LambdaFunction)
		return nil
	}

	confidence := p.Confidence
	if confidence >= 1.0 {
		// Full confidence is reserved for operator annotations.
		confidence = 0.99
	}

	return &Selection{
		LambdaFunction: p.LambdaFunction,
		Parameters:     EnrichParameters(p.LambdaFunction, p.Parameters, a.Labels),
		Confidence:     confidence,
		Method:         MethodRecursiveReasoning,
		Reasoning:      p.Reasoning,
	}
}

// retrieve is phase 2: similar incidents by embedding and few-shot examples
// from the example DB. Retrieval failures degrade the prompt, never the
// selection.
func (s *Selector) retrieve(ctx context.Context, a *alert.Alert) (similar, fewShot []examples.ScoredExample) {
	if s.index == nil {
		return nil, nil
	}

	similar, err := s.index.Vectors.SimilaritySearch(ctx, examples.SimilarQuery{
		Alertname:     a.Alertname,
		Labels:        a.Labels,
		TopK:          3,
		MinSimilarity: 0.5,
	})
	if err != nil {
		observability.Logger(ctx).Warn("Similar incident retrieval failed", "error", err)
	}

	fewShot = s.index.DB.FindSimilarExamples(examples.SimilarQuery{
		Alertname:      a.Alertname,
		Labels:         a.Labels,
		TopK:           5,
		MinSimilarity:  0.3,
		OnlySuccessful: true,
	})
	return similar, fewShot
}

// llmSelection is the expected shape of the function-call arguments.
type llmSelection struct {
	LambdaFunction string         `json:"lambda_function"`
	Parameters     map[string]any `json:"parameters"`
	Reasoning      string         `json:"reasoning"`
}

// fromLLM is phases 3-5: a function-calling completion with retrieved
// context, a regex fallback when structured output fails, then parameter
// enrichment and confidence calibration.
func (s *Selector) fromLLM(ctx context.Context, a *alert.Alert, similar, fewShot []examples.ScoredExample) (*Selection, error) {
	if s.llm == nil {
		return nil, apperrors.Newf(apperrors.KindWorkflow, "selector.llm", "no LLM provider configured")
	}

	resp, err := s.llm.Complete(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    BuildPrompt(a, similar, fewShot),
		MaxTokens: 1024,
		Tool:      LambdaFunctionSchema(),
	})
	if err != nil {
		return nil, err
	}

	parsed, method := parseCompletion(ctx, resp)
	if parsed == nil {
		return nil, apperrors.Newf(apperrors.KindParse, "selector.llm",
			"no lambda function in completion")
	}
	if !IsAllowed(parsed.LambdaFunction) {
		return nil, apperrors.Newf(apperrors.KindParse, "selector.llm",
			"function %q outside allowed set", parsed.LambdaFunction)
	}

	params := EnrichParameters(parsed.LambdaFunction, parsed.Parameters, a.Labels)
	return &Selection{
		LambdaFunction: parsed.LambdaFunction,
		Parameters:     params,
		Confidence:     Confidence(parsed.Reasoning, len(similar) > 0, parsed.Parameters, a.Labels),
		Method:         method,
		Reasoning:      parsed.Reasoning,
	}, nil
}

// parseCompletion decodes the structured tool call, falling back to regex
// extraction of a function name from free text.
func parseCompletion(ctx context.Context, resp *llm.Response) (*llmSelection, string) {
	if resp.ToolCall != nil {
		var parsed llmSelection
		if err := json.Unmarshal(resp.ToolCall.Arguments, &parsed); err == nil && parsed.LambdaFunction != "" {
			return &parsed, MethodFunctionCalling
		}
		observability.Logger(ctx).Warn("Malformed tool call arguments, trying text extraction")
	}

	if fn := functionPattern.FindString(resp.Text); fn != "" {
		return &llmSelection{LambdaFunction: fn}, MethodRuleBased
	}
	return nil, ""
}

// emit is phase 6: record the decision metric and index the selection with
// a pending outcome; verification patches it later.
func (s *Selector) emit(ctx context.Context, a *alert.Alert, sel *Selection) (*Selection, error) {
	if s.metrics != nil {
		s.metrics.SelectorDecisions.WithLabelValues(sel.Method).Inc()
	}

	observability.Logger(ctx).Info("Remediation selected",
		"lambda_function", sel.LambdaFunction,
		"method", sel.Method,
		"confidence", sel.Confidence)

	if s.index != nil {
		if err := s.index.IndexAlert(ctx, a, sel.LambdaFunction, sel.Parameters, nil, sel.Reasoning); err != nil {
			observability.Logger(ctx).Warn("Failed to index selection", "error", err)
		}
	}
	return sel, nil
}
