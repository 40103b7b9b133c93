// Package domain implements the two-phase Initializer→Worker pattern: the
// Initializer extracts explicit goals, requirements, constraints, and
// planned steps from a free-form request; the Worker executes against the
// resulting schema, mutating only status, progress, decisions, and
// artifacts.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/memory"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
)

// requestPrefixLen bounds the request excerpt in the default goal.
const requestPrefixLen = 60

// Analysis is what an analyzer extracts from a free-form request.
type Analysis struct {
	Goals        []memory.Goal
	Requirements []memory.Requirement
	Constraints  []memory.Constraint
	Steps        []string
}

// Analyzer extracts an Analysis from a request, typically via an LLM. A
// failing or absent analyzer falls back to the rule-based tables.
type Analyzer func(ctx context.Context, request string) (*Analysis, error)

// Persister stores task schemas. The memory Manager satisfies this.
type Persister interface {
	SaveSchema(ctx context.Context, schema *memory.DomainMemorySchema) error
}

// Factory creates and maintains task schemas for one agent.
type Factory struct {
	store     Persister
	agentID   string
	agentType string
	domain    string
	analyzer  Analyzer

	// defaultConstraints are merged into every schema regardless of what
	// the analyzer produces.
	defaultConstraints []memory.Constraint
}

// Option configures a Factory.
type Option func(*Factory)

// WithAnalyzer installs an LLM-backed analyzer tried before the rule-based
// tables.
func WithAnalyzer(a Analyzer) Option {
	return func(f *Factory) { f.analyzer = a }
}

// WithDefaultConstraints adds factory-level constraints merged into every
// schema.
func WithDefaultConstraints(constraints ...memory.Constraint) Option {
	return func(f *Factory) {
		f.defaultConstraints = append(f.defaultConstraints, constraints...)
	}
}

// NewFactory creates a factory for one agent identity.
func NewFactory(store Persister, agentID, agentType, domain string, opts ...Option) *Factory {
	f := &Factory{
		store:     store,
		agentID:   agentID,
		agentType: agentType,
		domain:    domain,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// InitRequest carries the Initializer inputs. Caller-supplied goals,
// requirements, and constraints are used verbatim, skipping analysis.
type InitRequest struct {
	Request   string
	UserID    string
	SessionID string
	Context   map[string]any

	Goals        []memory.Goal
	Requirements []memory.Requirement
	Constraints  []memory.Constraint
}

// Initialize runs the Initializer phase: create a schema, populate goals,
// requirements, constraints, and planned steps, and persist it.
func (f *Factory) Initialize(ctx context.Context, req InitRequest) (*memory.DomainMemorySchema, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}

	schema := memory.NewSchema(f.agentID, f.agentType, f.domain, sessionID)
	schema.UserID = req.UserID
	schema.State.Context["original_request"] = req.Request
	for k, v := range req.Context {
		schema.State.Context[k] = v
	}

	var steps []string
	switch {
	case len(req.Goals) > 0 || len(req.Requirements) > 0 || len(req.Constraints) > 0:
		schema.Goals = req.Goals
		schema.Requirements = req.Requirements
		schema.Constraints = req.Constraints
	default:
		analysis := f.analyze(ctx, req.Request)
		schema.Goals = analysis.Goals
		schema.Requirements = analysis.Requirements
		schema.Constraints = analysis.Constraints
		steps = analysis.Steps
	}

	for i := range schema.Goals {
		if schema.Goals[i].Status == "" {
			schema.Goals[i].Status = memory.GoalPending
		}
	}
	for i := range schema.Requirements {
		if schema.Requirements[i].Status == "" {
			schema.Requirements[i].Status = memory.GoalPending
		}
	}
	schema.Constraints = mergeConstraints(schema.Constraints, f.defaultConstraints)

	if len(steps) > 0 {
		schema.Progress = memory.Progress{
			StepsTotal:   len(steps),
			PlannedSteps: steps,
		}
	}

	if err := f.store.SaveSchema(ctx, schema); err != nil {
		return nil, err
	}

	observability.Logger(ctx).Info("Task schema initialized",
		"schema_id", schema.SchemaID,
		"task_id", schema.TaskID,
		"session_id", schema.SessionID,
		"goals", len(schema.Goals))
	return schema, nil
}

// analyze runs the LLM analyzer when installed and falls back to the
// rule-based tables on absence or failure.
func (f *Factory) analyze(ctx context.Context, request string) *Analysis {
	if f.analyzer != nil {
		analysis, err := f.analyzer(ctx, request)
		if err == nil && analysis != nil && len(analysis.Goals) > 0 {
			return analysis
		}
		if err != nil {
			observability.Logger(ctx).Warn("LLM analyzer failed, using rule-based analysis",
				"agent_type", f.agentType, "error", err)
		}
	}
	return ruleBasedAnalysis(f.agentType, request)
}

// Update stamps updated_at and persists the schema.
func (f *Factory) Update(ctx context.Context, schema *memory.DomainMemorySchema) error {
	schema.UpdatedAt = time.Now().UTC()
	return f.store.SaveSchema(ctx, schema)
}

// Complete transitions every non-terminal goal and requirement to its
// terminal status, marks the state, appends a completion_summary artifact,
// and persists. Terminal transitions are monotone: already-terminal items
// keep their status.
func (f *Factory) Complete(ctx context.Context, schema *memory.DomainMemorySchema, summary string, success bool, learnings []string) error {
	terminal := memory.GoalCompleted
	step := "completed"
	if !success {
		terminal = memory.GoalFailed
		step = "failed"
	}

	for i := range schema.Goals {
		if !schema.Goals[i].Status.Terminal() {
			schema.Goals[i].Status = terminal
		}
	}
	for i := range schema.Requirements {
		if !schema.Requirements[i].Status.Terminal() {
			schema.Requirements[i].Status = terminal
		}
	}

	if success {
		schema.Progress.StepsCompleted = schema.Progress.StepsTotal
	}
	schema.State.CurrentStep = step
	schema.AddArtifact("completion_summary", summary)
	for _, l := range learnings {
		schema.AddArtifact("learning", l)
	}

	return f.Update(ctx, schema)
}

// Fail mirrors Complete for unrecoverable errors: goals transition to
// failed, a failure_record artifact is appended, and the error lands in
// state.last_error.
func (f *Factory) Fail(ctx context.Context, schema *memory.DomainMemorySchema, taskErr error, recoverable bool) error {
	for i := range schema.Goals {
		if !schema.Goals[i].Status.Terminal() {
			schema.Goals[i].Status = memory.GoalFailed
		}
	}

	schema.State.CurrentStep = "failed"
	schema.State.LastError = taskErr.Error()
	schema.AddArtifact("failure_record",
		fmt.Sprintf("error: %v (recoverable: %t)", taskErr, recoverable))

	return f.Update(ctx, schema)
}

// mergeConstraints appends defaults not already present by description.
func mergeConstraints(base, defaults []memory.Constraint) []memory.Constraint {
	seen := make(map[string]bool, len(base))
	for _, c := range base {
		seen[c.Description] = true
	}
	for _, c := range defaults {
		if !seen[c.Description] {
			base = append(base, c)
		}
	}
	return base
}

func newSessionID() string {
	return fmt.Sprintf("session-%d", time.Now().UnixNano())
}
