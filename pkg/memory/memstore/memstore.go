// Package memstore is the process-local memory backend. State is lost at
// shutdown; it backs tests and development when no store URLs are
// configured.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
)

// Store holds entries and schemas in maps guarded by a single mutex.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*memory.Entry
	schemas    map[string]*memory.DomainMemorySchema
	sessionIdx map[string]string // agent+session pointer -> schema id
}

// New creates an empty volatile store.
func New() *Store {
	return &Store{
		entries:    make(map[string]*memory.Entry),
		schemas:    make(map[string]*memory.DomainMemorySchema),
		sessionIdx: make(map[string]string),
	}
}

// Connect is a no-op for the volatile backend.
func (s *Store) Connect(_ context.Context) error { return nil }

// Disconnect drops all state.
func (s *Store) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*memory.Entry)
	s.schemas = make(map[string]*memory.DomainMemorySchema)
	s.sessionIdx = make(map[string]string)
	return nil
}

// Save stores a copy of the entry, refreshing updated_at.
func (s *Store) Save(_ context.Context, entry *memory.Entry) error {
	c := cloneEntry(entry)
	c.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[c.ID] = c
	return nil
}

// Get returns a copy of the entry, honoring expiry passively.
func (s *Store) Get(_ context.Context, id string, t memory.Type) (*memory.Entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok || e.Type != t || expired(e, time.Now().UTC()) {
		return nil, apperrors.ErrNotFound
	}
	return cloneEntry(e), nil
}

// Delete removes the entry; unknown ids are a no-op.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Query returns matching entries, newest first.
func (s *Store) Query(_ context.Context, q memory.Query) ([]*memory.Entry, error) {
	now := time.Now().UTC()

	s.mu.RLock()
	matched := make([]*memory.Entry, 0)
	for _, e := range s.entries {
		if e.Type != q.Type || expired(e, now) {
			continue
		}
		if q.AgentID != "" && e.AgentID != q.AgentID {
			continue
		}
		if !memory.MatchesFilters(e, q.Filters) {
			continue
		}
		matched = append(matched, cloneEntry(e))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// SaveSchema stores a copy of the schema and repoints the agent+session
// index at it.
func (s *Store) SaveSchema(_ context.Context, schema *memory.DomainMemorySchema) error {
	c, err := cloneSchema(schema)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[c.SchemaID] = c
	s.sessionIdx[sessionKey(c.AgentID, c.SessionID)] = c.SchemaID
	return nil
}

// GetSchema returns a copy of the schema by id.
func (s *Store) GetSchema(_ context.Context, id string) (*memory.DomainMemorySchema, error) {
	s.mu.RLock()
	schema, ok := s.schemas[id]
	s.mu.RUnlock()

	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneSchema(schema)
}

// GetSchemaByAgent resolves the current schema for a session, or the
// agent's most recently updated schema when sessionID is empty.
func (s *Store) GetSchemaByAgent(_ context.Context, agentID, sessionID string) (*memory.DomainMemorySchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sessionID != "" {
		id, ok := s.sessionIdx[sessionKey(agentID, sessionID)]
		if !ok {
			return nil, apperrors.ErrNotFound
		}
		return cloneSchema(s.schemas[id])
	}

	var latest *memory.DomainMemorySchema
	for _, schema := range s.schemas {
		if schema.AgentID != agentID {
			continue
		}
		if latest == nil || schema.UpdatedAt.After(latest.UpdatedAt) {
			latest = schema
		}
	}
	if latest == nil {
		return nil, apperrors.ErrNotFound
	}
	return cloneSchema(latest)
}

// DeleteExpired removes entries past their expiry. The retention sweep
// calls this when the volatile store backs a tier.
func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if expired(e, now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func sessionKey(agentID, sessionID string) string {
	return agentID + "\x00" + sessionID
}

func expired(e *memory.Entry, now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

func cloneEntry(e *memory.Entry) *memory.Entry {
	c := *e
	c.Data = append([]byte(nil), e.Data...)
	if e.ExpiresAt != nil {
		expires := *e.ExpiresAt
		c.ExpiresAt = &expires
	}
	return &c
}

// cloneSchema deep-copies via JSON; schemas are small and this backend is
// not on the hot path.
func cloneSchema(schema *memory.DomainMemorySchema) (*memory.DomainMemorySchema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var c memory.DomainMemorySchema
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
