package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
)

func newID() string { return uuid.NewString() }

// summaryPrefixLen bounds each message excerpt in the extractive summary.
const summaryPrefixLen = 50

// ExtractiveSummary is the deterministic fallback summarizer: the first
// two, middle, and last two messages, each truncated to a 50-char prefix.
func ExtractiveSummary(messages []memory.Message) string {
	if len(messages) == 0 {
		return ""
	}

	picked := make([]int, 0, 5)
	add := func(i int) {
		for _, p := range picked {
			if p == i {
				return
			}
		}
		picked = append(picked, i)
	}

	add(0)
	if len(messages) > 1 {
		add(1)
	}
	add(len(messages) / 2)
	if len(messages) > 3 {
		add(len(messages) - 2)
	}
	if len(messages) > 2 {
		add(len(messages) - 1)
	}

	parts := make([]string, 0, len(picked))
	for _, i := range picked {
		content := messages[i].Content
		if len(content) > summaryPrefixLen {
			content = content[:summaryPrefixLen]
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", messages[i].Role, content))
	}
	return strings.Join(parts, " | ")
}

// ContextParams selects what goes into an assembled context.
type ContextParams struct {
	UserID         string
	ConversationID string
	SessionID      string
	Domain         string

	// ConversationLimit caps how many recent messages are included.
	ConversationLimit int

	// PatternLimit caps how many domain patterns are included.
	PatternLimit int
}

// Context is the prompt-ready aggregate the manager assembles for a task.
type Context struct {
	UserPreferences map[string]any
	UserFacts       []memory.UserFact
	Instructions    []string
	TaskSummary     string
	RecentMessages  []memory.Message
	Patterns        []memory.Pattern
	ErrorPatterns   []memory.ErrorPattern
}

// Render flattens the context into a prompt section.
func (c *Context) Render() string {
	var b strings.Builder

	if len(c.UserPreferences) > 0 {
		b.WriteString("## User Preferences\n")
		for k, v := range c.UserPreferences {
			fmt.Fprintf(&b, "- %s: %v\n", k, v)
		}
	}
	if len(c.UserFacts) > 0 {
		b.WriteString("## Known Facts\n")
		for _, f := range c.UserFacts {
			fmt.Fprintf(&b, "- %s (confidence %.1f)\n", f.Fact, f.Confidence)
		}
	}
	if len(c.Instructions) > 0 {
		b.WriteString("## Standing Instructions\n")
		for _, in := range c.Instructions {
			fmt.Fprintf(&b, "- %s\n", in)
		}
	}
	if c.TaskSummary != "" {
		b.WriteString("## Current Task\n")
		b.WriteString(c.TaskSummary)
		b.WriteByte('\n')
	}
	if len(c.RecentMessages) > 0 {
		b.WriteString("## Recent Conversation\n")
		for _, msg := range c.RecentMessages {
			fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
		}
	}
	if len(c.Patterns) > 0 {
		b.WriteString("## Known Patterns\n")
		for _, p := range c.Patterns {
			fmt.Fprintf(&b, "- %s: %s (seen %d times)\n", p.Name, p.Description, p.Occurrences)
		}
	}
	if len(c.ErrorPatterns) > 0 {
		b.WriteString("## Known Failure Modes\n")
		for _, p := range c.ErrorPatterns {
			fmt.Fprintf(&b, "- %s: %s", p.ErrorType, p.Description)
			if p.Mitigation != "" {
				fmt.Fprintf(&b, " (mitigation: %s)", p.Mitigation)
			}
			b.WriteByte('\n')
		}
	}

	return b.String()
}

// BuildContext aggregates user memory, the session's task schema excerpt,
// recent conversation messages, and selected domain patterns into a single
// prompt-ready object.
func (m *Manager) BuildContext(ctx context.Context, params ContextParams) (*Context, error) {
	start := time.Now()
	out := &Context{}

	if params.ConversationLimit <= 0 {
		params.ConversationLimit = 10
	}
	if params.PatternLimit <= 0 {
		params.PatternLimit = 5
	}

	if params.UserID != "" {
		um, err := m.GetOrCreateUserMemory(ctx, params.UserID)
		if err != nil {
			return nil, err
		}
		out.UserPreferences = um.Preferences
		out.UserFacts = um.Facts
		out.Instructions = um.Instructions
	}

	if params.SessionID != "" {
		schema, err := m.GetSchemaByAgent(ctx, m.agentID, params.SessionID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		if schema != nil {
			out.TaskSummary = schemaExcerpt(schema)
		}
	}

	if params.ConversationID != "" {
		conv, err := m.GetConversation(ctx, params.ConversationID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		if conv != nil {
			msgs := conv.Messages
			if len(msgs) > params.ConversationLimit {
				msgs = msgs[len(msgs)-params.ConversationLimit:]
			}
			out.RecentMessages = msgs
		}
	}

	if params.Domain != "" {
		dm, err := m.GetDomainMemory(ctx, params.Domain)
		if err != nil {
			return nil, err
		}
		out.Patterns = topPatterns(dm.Patterns, params.PatternLimit)
		if len(dm.ErrorPatterns) > params.PatternLimit {
			out.ErrorPatterns = dm.ErrorPatterns[len(dm.ErrorPatterns)-params.PatternLimit:]
		} else {
			out.ErrorPatterns = dm.ErrorPatterns
		}
	}

	m.metrics.ContextBuildDuration.Observe(time.Since(start).Seconds())
	m.metrics.ContextSize.Observe(float64(len(out.Render())))
	return out, nil
}

// schemaExcerpt renders the task schema's goals and progress for prompts.
func schemaExcerpt(s *memory.DomainMemorySchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s (%s), step %q, progress %d/%d.",
		s.TaskID, s.Domain, s.State.CurrentStep,
		s.Progress.StepsCompleted, s.Progress.StepsTotal)
	for _, g := range s.Goals {
		fmt.Fprintf(&b, "\n- goal [%s, p%d]: %s", g.Status, g.Priority, g.Description)
	}
	for _, c := range s.Constraints {
		if c.Hard {
			fmt.Fprintf(&b, "\n- hard constraint (%s): %s", c.Category, c.Description)
		}
	}
	return b.String()
}

// topPatterns returns the most frequently seen patterns.
func topPatterns(patterns []memory.Pattern, limit int) []memory.Pattern {
	if len(patterns) <= limit {
		return patterns
	}
	sorted := append([]memory.Pattern(nil), patterns...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Occurrences > sorted[i].Occurrences {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	return sorted[:limit]
}
