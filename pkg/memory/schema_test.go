package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchema(t *testing.T) {
	s := NewSchema("agent-sre", "sre", "sre", "session-1")

	assert.NotEmpty(t, s.SchemaID)
	assert.NotEmpty(t, s.TaskID)
	assert.NotEqual(t, s.SchemaID, s.TaskID)
	assert.Equal(t, "initialized", s.State.CurrentStep)
	assert.Equal(t, "session-1", s.SessionID)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestGoalStatusTerminal(t *testing.T) {
	assert.False(t, GoalPending.Terminal())
	assert.False(t, GoalInProgress.Terminal())
	assert.True(t, GoalCompleted.Terminal())
	assert.True(t, GoalFailed.Terminal())
}

func TestActiveGoalsAndCompleted(t *testing.T) {
	s := NewSchema("agent-sre", "sre", "sre", "session-1")
	s.Goals = []Goal{
		{Description: "restore service", Priority: 1, Status: GoalInProgress},
		{Description: "record outcome", Priority: 3, Status: GoalPending},
	}

	require.Len(t, s.ActiveGoals(), 2)
	assert.False(t, s.Completed())

	s.Goals[0].Status = GoalCompleted
	s.Goals[1].Status = GoalFailed

	assert.Empty(t, s.ActiveGoals())
	assert.True(t, s.Completed())
}

func TestCompleteStepClampsProgress(t *testing.T) {
	s := NewSchema("agent-sre", "sre", "sre", "session-1")
	s.Progress = Progress{StepsTotal: 2, PlannedSteps: []string{"select", "execute"}}

	s.CompleteStep("select")
	s.CompleteStep("execute")
	s.CompleteStep("execute")

	assert.Equal(t, 2, s.Progress.StepsCompleted)
	assert.Equal(t, "execute", s.State.CurrentStep)
	assert.LessOrEqual(t, s.Progress.StepsCompleted, s.Progress.StepsTotal)
}

func TestAddDecisionAndArtifact(t *testing.T) {
	s := NewSchema("agent-sre", "sre", "sre", "session-1")

	s.AddDecision("invoke pod-restart", "crash loop with matching past incident")
	s.AddArtifact("completion_summary", "restarted pod web-1")

	require.Len(t, s.Decisions, 1)
	require.Len(t, s.Artifacts, 1)
	assert.Equal(t, "completion_summary", s.Artifacts[0].Name)
	assert.False(t, s.Decisions[0].DecidedAt.IsZero())
}
