// Package memory defines the multi-tier memory model shared by every store
// backend: tagged entries for conversations, working notes, entities, user
// memory, and domain knowledge, plus the Initializer→Worker task schema.
//
// Stores persist entries opaquely; the payload shape is owned by the type
// tag. Components never instantiate stores directly; the Manager owns all
// store handles.
package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type tags a memory entry with its tier.
type Type string

const (
	// TypeShortTerm holds conversation records. Fast-store TTL 1h.
	TypeShortTerm Type = "short_term"
	// TypeWorking holds task scratchpads. Fast-store TTL 24h.
	TypeWorking Type = "working"
	// TypeEpisodic holds episode summaries. Fast-store TTL 7d.
	TypeEpisodic Type = "episodic"
	// TypeEntity holds typed domain objects. Durable.
	TypeEntity Type = "entity"
	// TypeUser holds user preferences and facts. Durable.
	TypeUser Type = "user"
	// TypeDomain holds long-term knowledge, patterns, and task history.
	// Durable.
	TypeDomain Type = "domain"
)

// DefaultTTL applies to tiers without a specific one.
const DefaultTTL = 24 * time.Hour

// TTLFor returns the fast-store TTL for a tier.
func TTLFor(t Type) time.Duration {
	switch t {
	case TypeShortTerm:
		return 1 * time.Hour
	case TypeWorking:
		return 24 * time.Hour
	case TypeEpisodic:
		return 7 * 24 * time.Hour
	default:
		return DefaultTTL
	}
}

// Durable reports whether a tier belongs in the durable store.
func (t Type) Durable() bool {
	switch t {
	case TypeEntity, TypeUser, TypeDomain:
		return true
	default:
		return false
	}
}

// Entry is a stored memory record. Data carries the tier-specific payload;
// UpdatedAt is refreshed by the store on every save.
type Entry struct {
	ID        string          `json:"id"`
	Type      Type            `json:"memory_type"`
	AgentID   string          `json:"agent_id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// NewEntry builds an entry around a typed payload.
func NewEntry(id string, t Type, agentID string, payload any) (*Entry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	now := time.Now().UTC()
	e := &Entry{
		ID:        id,
		Type:      t,
		AgentID:   agentID,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !t.Durable() {
		expires := now.Add(TTLFor(t))
		e.ExpiresAt = &expires
	}
	return e, nil
}

// Decode unmarshals the payload into target.
func (e *Entry) Decode(target any) error {
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// SetPayload replaces the payload, used on read-modify-write updates.
func (e *Entry) SetPayload(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", e.Type, err)
	}
	e.Data = data
	return nil
}

// Message is one turn in a conversation.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Conversation is the short-term memory payload.
type Conversation struct {
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id,omitempty"`
	Messages       []Message      `json:"messages"`
	Summary        string         `json:"summary,omitempty"`
	MessageCount   int            `json:"message_count"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
}

// UserFact is a learned statement about a user.
type UserFact struct {
	Fact       string    `json:"fact"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	AddedAt    time.Time `json:"added_at"`
}

// UserMemory is the user-tier payload: preferences, facts, and standing
// instructions. Facts are append-only and never deduplicated automatically.
type UserMemory struct {
	UserID       string         `json:"user_id"`
	Preferences  map[string]any `json:"preferences"`
	Facts        []UserFact     `json:"facts"`
	Instructions []string       `json:"instructions,omitempty"`
}

// Entity is a typed domain object with merged attributes and a tag union.
type Entity struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Attributes map[string]any `json:"attributes"`
	Tags       []string       `json:"tags,omitempty"`
}

// Learning is an accumulated piece of domain knowledge.
type Learning struct {
	Topic      string    `json:"topic,omitempty"`
	Content    string    `json:"content"`
	Source     string    `json:"source,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Pattern is a recurring behaviour worth reusing.
type Pattern struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Occurrences int       `json:"occurrences"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ErrorPattern is a recurring failure mode and its mitigation.
type ErrorPattern struct {
	ErrorType   string    `json:"error_type"`
	Description string    `json:"description"`
	Mitigation  string    `json:"mitigation,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// TaskCompletion is a finished task summary kept for history.
type TaskCompletion struct {
	TaskID      string    `json:"task_id"`
	Summary     string    `json:"summary"`
	Success     bool      `json:"success"`
	CompletedAt time.Time `json:"completed_at"`
}

// DomainMemory is the long-term payload: append-only sub-lists with
// per-category counters.
type DomainMemory struct {
	Domain          string           `json:"domain"`
	Learnings       []Learning       `json:"learnings"`
	Patterns        []Pattern        `json:"patterns"`
	ErrorPatterns   []ErrorPattern   `json:"error_patterns"`
	TaskCompletions []TaskCompletion `json:"task_completions"`
	Counters        map[string]int   `json:"counters"`
}
