package memory

import (
	"time"

	"github.com/google/uuid"
)

// GoalStatus tracks a goal, requirement, or similar schema item.
type GoalStatus string

const (
	GoalPending    GoalStatus = "pending"
	GoalInProgress GoalStatus = "in_progress"
	GoalCompleted  GoalStatus = "completed"
	GoalFailed     GoalStatus = "failed"
)

// Terminal reports whether the status is final.
func (s GoalStatus) Terminal() bool {
	return s == GoalCompleted || s == GoalFailed
}

// Goal is an explicit objective extracted by the Initializer.
// Priority runs 1 (highest) to 5.
type Goal struct {
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Status      GoalStatus `json:"status"`
}

// Requirement is a condition the task must satisfy.
type Requirement struct {
	Description string     `json:"description"`
	Status      GoalStatus `json:"status"`
}

// Constraint bounds how the task may be executed. Hard constraints must
// never be violated.
type Constraint struct {
	Description string `json:"description"`
	Hard        bool   `json:"hard"`
	Category    string `json:"category"`
}

// Progress tracks step completion against the planned steps.
type Progress struct {
	StepsTotal     int      `json:"steps_total"`
	StepsCompleted int      `json:"steps_completed"`
	PlannedSteps   []string `json:"planned_steps,omitempty"`
}

// State is the mutable execution pointer of a schema.
type State struct {
	CurrentStep string         `json:"current_step"`
	Context     map[string]any `json:"context,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
}

// Decision records a choice made while executing the task.
type Decision struct {
	Description string    `json:"description"`
	Rationale   string    `json:"rationale,omitempty"`
	DecidedAt   time.Time `json:"decided_at"`
}

// Artifact is an output attached to the schema.
type Artifact struct {
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// DomainMemorySchema is the Initializer output and Worker input: every task
// carries explicit goals, requirements, constraints, progress, decisions,
// and artifacts. Once created, goals, requirements, and constraints may
// change status but are never removed.
type DomainMemorySchema struct {
	SchemaID     string         `json:"schema_id"`
	AgentID      string         `json:"agent_id"`
	AgentType    string         `json:"agent_type"`
	Domain       string         `json:"domain"`
	SessionID    string         `json:"session_id"`
	TaskID       string         `json:"task_id"`
	UserID       string         `json:"user_id,omitempty"`
	Goals        []Goal         `json:"goals"`
	Requirements []Requirement  `json:"requirements"`
	Constraints  []Constraint   `json:"constraints"`
	Progress     Progress       `json:"progress"`
	State        State          `json:"state"`
	Decisions    []Decision     `json:"decisions"`
	Artifacts    []Artifact     `json:"artifacts"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewSchema creates an empty schema with fresh identifiers.
func NewSchema(agentID, agentType, domain, sessionID string) *DomainMemorySchema {
	now := time.Now().UTC()
	return &DomainMemorySchema{
		SchemaID:  uuid.NewString(),
		TaskID:    uuid.NewString(),
		AgentID:   agentID,
		AgentType: agentType,
		Domain:    domain,
		SessionID: sessionID,
		State:     State{CurrentStep: "initialized", Context: map[string]any{}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddDecision appends a decision to the schema.
func (s *DomainMemorySchema) AddDecision(description, rationale string) {
	s.Decisions = append(s.Decisions, Decision{
		Description: description,
		Rationale:   rationale,
		DecidedAt:   time.Now().UTC(),
	})
}

// AddArtifact appends a named artifact to the schema.
func (s *DomainMemorySchema) AddArtifact(name, content string) {
	s.Artifacts = append(s.Artifacts, Artifact{
		Name:      name,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

// CompleteStep advances progress, clamped at steps_total.
func (s *DomainMemorySchema) CompleteStep(step string) {
	if s.Progress.StepsCompleted < s.Progress.StepsTotal {
		s.Progress.StepsCompleted++
	}
	s.State.CurrentStep = step
}

// ActiveGoals returns goals not yet in a terminal status.
func (s *DomainMemorySchema) ActiveGoals() []Goal {
	var active []Goal
	for _, g := range s.Goals {
		if !g.Status.Terminal() {
			active = append(active, g)
		}
	}
	return active
}

// Completed reports whether every goal reached a terminal status.
func (s *DomainMemorySchema) Completed() bool {
	for _, g := range s.Goals {
		if !g.Status.Terminal() {
			return false
		}
	}
	return true
}
