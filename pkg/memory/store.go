package memory

import (
	"context"
)

// Query selects entries of one tier, optionally filtered by payload fields.
// Filter values are compared against top-level string fields of the payload.
type Query struct {
	Type    Type
	AgentID string
	Filters map[string]string
	Limit   int
}

// Store is the polymorphic persistence interface implemented by the
// volatile, fast KV, and durable SQL backends. Get returns
// apperrors.ErrNotFound when the id is unknown; Delete of an unknown id is
// a no-op.
type Store interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Save(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, id string, t Type) (*Entry, error)
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, q Query) ([]*Entry, error)

	SaveSchema(ctx context.Context, schema *DomainMemorySchema) error
	GetSchema(ctx context.Context, id string) (*DomainMemorySchema, error)
	GetSchemaByAgent(ctx context.Context, agentID, sessionID string) (*DomainMemorySchema, error)
}

// MatchesFilters reports whether an entry's payload satisfies every filter.
// Used by backends without native payload querying.
func MatchesFilters(e *Entry, filters map[string]string) bool {
	if len(filters) == 0 {
		return true
	}
	var payload map[string]any
	if err := e.Decode(&payload); err != nil {
		return false
	}
	for k, want := range filters {
		got, ok := payload[k].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}
