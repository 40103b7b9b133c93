// Package manager is the unified facade over the memory stores. It routes
// tier-appropriate operations (fast KV for short-term and working memory,
// durable SQL for entity, user, and domain memory), serializes writes per
// record, and assembles prompt-ready context.
//
// The Manager is a long-lived singleton initialized at startup and injected
// into handlers; components receive a reference and never instantiate
// stores directly.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
)

// Summarizer reduces a message list to a bounded summary string. The
// Manager falls back to a deterministic extractive rule when nil.
type Summarizer func(ctx context.Context, messages []memory.Message) (string, error)

// Manager composes the fast and durable stores behind the tier routing
// rules. Either store may be nil; operations fall through to the other.
type Manager struct {
	fast    memory.Store
	durable memory.Store
	agentID string
	metrics *observability.Metrics

	// locks serializes read-modify-write cycles on a single record id.
	locks sync.Map // record id -> *sync.Mutex
}

// New creates the Manager. At least one store must be non-nil.
func New(fast, durable memory.Store, agentID string, metrics *observability.Metrics) (*Manager, error) {
	if fast == nil && durable == nil {
		return nil, fmt.Errorf("memory manager requires at least one store")
	}
	return &Manager{fast: fast, durable: durable, agentID: agentID, metrics: metrics}, nil
}

// Connect connects every configured store.
func (m *Manager) Connect(ctx context.Context) error {
	for _, s := range m.stores() {
		if err := s.Connect(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect disconnects every configured store.
func (m *Manager) Disconnect(ctx context.Context) error {
	var errs []error
	for _, s := range m.stores() {
		if err := s.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AgentID returns the identity stamped on every record this manager owns.
func (m *Manager) AgentID() string { return m.agentID }

func (m *Manager) stores() []memory.Store {
	var out []memory.Store
	if m.fast != nil {
		out = append(out, m.fast)
	}
	if m.durable != nil {
		out = append(out, m.durable)
	}
	return out
}

// storeFor routes a tier to its backend: durable tiers go to the SQL store,
// volatile tiers to the fast KV store, with fallback when one is absent.
func (m *Manager) storeFor(t memory.Type) memory.Store {
	if t.Durable() {
		if m.durable != nil {
			return m.durable
		}
		return m.fast
	}
	if m.fast != nil {
		return m.fast
	}
	return m.durable
}

// schemaStore holds persistent task schemas: the durable store when
// configured, otherwise the fast store.
func (m *Manager) schemaStore() memory.Store {
	if m.durable != nil {
		return m.durable
	}
	return m.fast
}

// lock acquires the per-record mutex for a read-modify-write cycle.
func (m *Manager) lock(id string) func() {
	mu, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

// Record id conventions. Keys are namespaced by kind so approval records,
// conversations, and entities never collide.
func conversationID(id string) string        { return "conversation:" + id }
func userID(id string) string                { return "user:" + id }
func entityID(entityType, id string) string  { return "entity:" + entityType + ":" + id }
func domainID(domain string) string          { return "domain:" + domain }
func workingID(sessionID, key string) string { return "working:" + sessionID + ":" + key }

// --- Conversations (short-term tier) ---

// StartConversation returns the existing conversation when conversationID is
// known, otherwise creates and persists a new one.
func (m *Manager) StartConversation(ctx context.Context, uid, convID, initialMessage string) (*memory.Conversation, error) {
	store := m.storeFor(memory.TypeShortTerm)

	if convID != "" {
		if entry, err := store.Get(ctx, conversationID(convID), memory.TypeShortTerm); err == nil {
			var conv memory.Conversation
			if err := entry.Decode(&conv); err != nil {
				return nil, err
			}
			m.metrics.ConversationCacheHits.Inc()
			return &conv, nil
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
	}
	if convID == "" {
		convID = newID()
	}

	conv := &memory.Conversation{
		ConversationID: convID,
		UserID:         uid,
		Messages:       []memory.Message{},
		StartedAt:      time.Now().UTC(),
	}
	if initialMessage != "" {
		conv.Messages = append(conv.Messages, memory.Message{
			Role:      "user",
			Content:   initialMessage,
			Timestamp: time.Now().UTC(),
		})
		conv.MessageCount = 1
	}

	entry, err := memory.NewEntry(conversationID(convID), memory.TypeShortTerm, m.agentID, conv)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, entry); err != nil {
		return nil, err
	}

	observability.Logger(ctx).Info("conversation.started",
		"conversation_id", convID, "user_id", uid)
	return conv, nil
}

// AddMessage appends a message in arrival order. Appends on the same
// conversation are serialized by a per-record mutex around the
// read-modify-write cycle.
func (m *Manager) AddMessage(ctx context.Context, convID, role, content string, metadata map[string]any) error {
	id := conversationID(convID)
	unlock := m.lock(id)
	defer unlock()

	store := m.storeFor(memory.TypeShortTerm)
	entry, err := store.Get(ctx, id, memory.TypeShortTerm)
	if err != nil {
		return err
	}

	var conv memory.Conversation
	if err := entry.Decode(&conv); err != nil {
		return err
	}
	conv.Messages = append(conv.Messages, memory.Message{
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	})
	conv.MessageCount = len(conv.Messages)

	if err := entry.SetPayload(&conv); err != nil {
		return err
	}
	if err := store.Save(ctx, entry); err != nil {
		return err
	}

	m.metrics.MessageLength.Observe(float64(len(content)))
	return nil
}

// GetConversation returns the conversation by id.
func (m *Manager) GetConversation(ctx context.Context, convID string) (*memory.Conversation, error) {
	entry, err := m.storeFor(memory.TypeShortTerm).Get(ctx, conversationID(convID), memory.TypeShortTerm)
	if err != nil {
		return nil, err
	}
	var conv memory.Conversation
	if err := entry.Decode(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// SummarizeConversation reduces the message list to a bounded summary and
// writes it to the conversation record. A nil summarizer uses the
// deterministic extractive rule.
func (m *Manager) SummarizeConversation(ctx context.Context, convID string, summarizer Summarizer) (string, error) {
	id := conversationID(convID)
	unlock := m.lock(id)
	defer unlock()

	store := m.storeFor(memory.TypeShortTerm)
	entry, err := store.Get(ctx, id, memory.TypeShortTerm)
	if err != nil {
		return "", err
	}
	var conv memory.Conversation
	if err := entry.Decode(&conv); err != nil {
		return "", err
	}

	var summary string
	if summarizer != nil {
		summary, err = summarizer(ctx, conv.Messages)
		if err != nil {
			return "", err
		}
	} else {
		summary = ExtractiveSummary(conv.Messages)
	}

	conv.Summary = summary
	if err := entry.SetPayload(&conv); err != nil {
		return "", err
	}
	if err := store.Save(ctx, entry); err != nil {
		return "", err
	}
	return summary, nil
}

// --- User memory (durable tier) ---

// GetOrCreateUserMemory is a read-through: a miss creates a record with
// empty preferences and facts.
func (m *Manager) GetOrCreateUserMemory(ctx context.Context, uid string) (*memory.UserMemory, error) {
	store := m.storeFor(memory.TypeUser)

	entry, err := store.Get(ctx, userID(uid), memory.TypeUser)
	if err == nil {
		var um memory.UserMemory
		if err := entry.Decode(&um); err != nil {
			return nil, err
		}
		return &um, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	um := &memory.UserMemory{
		UserID:      uid,
		Preferences: map[string]any{},
		Facts:       []memory.UserFact{},
	}
	entry, err = memory.NewEntry(userID(uid), memory.TypeUser, m.agentID, um)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, entry); err != nil {
		return nil, err
	}
	return um, nil
}

// UpdateUserPreference upserts one preference key.
func (m *Manager) UpdateUserPreference(ctx context.Context, uid, key string, value any, explicit bool) error {
	id := userID(uid)
	unlock := m.lock(id)
	defer unlock()

	um, err := m.GetOrCreateUserMemory(ctx, uid)
	if err != nil {
		return err
	}
	um.Preferences[key] = value
	if err := m.saveUser(ctx, um); err != nil {
		return err
	}

	m.metrics.PreferenceUpdates.WithLabelValues(fmt.Sprintf("%t", explicit)).Inc()
	return nil
}

// AddUserFact appends a fact. Facts are never deduplicated automatically.
func (m *Manager) AddUserFact(ctx context.Context, uid, fact, source string, confidence float64) error {
	id := userID(uid)
	unlock := m.lock(id)
	defer unlock()

	if confidence == 0 {
		confidence = 0.8
	}

	um, err := m.GetOrCreateUserMemory(ctx, uid)
	if err != nil {
		return err
	}
	um.Facts = append(um.Facts, memory.UserFact{
		Fact:       fact,
		Source:     source,
		Confidence: confidence,
		AddedAt:    time.Now().UTC(),
	})
	return m.saveUser(ctx, um)
}

func (m *Manager) saveUser(ctx context.Context, um *memory.UserMemory) error {
	entry, err := memory.NewEntry(userID(um.UserID), memory.TypeUser, m.agentID, um)
	if err != nil {
		return err
	}
	return m.storeFor(memory.TypeUser).Save(ctx, entry)
}

// --- Entities (durable tier) ---

// CreateOrUpdateEntity read-modify-writes the entity record, merging the
// attribute map and taking the union of tags.
func (m *Manager) CreateOrUpdateEntity(ctx context.Context, entityType, eid string, attributes map[string]any, tags []string) (*memory.Entity, error) {
	id := entityID(entityType, eid)
	unlock := m.lock(id)
	defer unlock()

	store := m.storeFor(memory.TypeEntity)
	entity := &memory.Entity{
		EntityType: entityType,
		EntityID:   eid,
		Attributes: map[string]any{},
	}

	if entry, err := store.Get(ctx, id, memory.TypeEntity); err == nil {
		if err := entry.Decode(entity); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	for k, v := range attributes {
		entity.Attributes[k] = v
	}
	entity.Tags = unionTags(entity.Tags, tags)

	entry, err := memory.NewEntry(id, memory.TypeEntity, m.agentID, entity)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, entry); err != nil {
		return nil, err
	}
	return entity, nil
}

func unionTags(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	out := existing
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range extra {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// --- Working memory (fast tier) ---

// SetWorking writes a per-session scratchpad value.
func (m *Manager) SetWorking(ctx context.Context, sessionID, key string, value any) error {
	entry, err := memory.NewEntry(workingID(sessionID, key), memory.TypeWorking, m.agentID,
		map[string]any{"session_id": sessionID, "key": key, "value": value})
	if err != nil {
		return err
	}
	return m.storeFor(memory.TypeWorking).Save(ctx, entry)
}

// GetWorking reads a per-session scratchpad value.
func (m *Manager) GetWorking(ctx context.Context, sessionID, key string) (any, error) {
	entry, err := m.storeFor(memory.TypeWorking).Get(ctx, workingID(sessionID, key), memory.TypeWorking)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := entry.Decode(&payload); err != nil {
		return nil, err
	}
	return payload["value"], nil
}

// --- Domain memory (durable tier) ---

// RecordLearning appends a learning to the domain record.
func (m *Manager) RecordLearning(ctx context.Context, domain, topic, content, source string) error {
	return m.updateDomain(ctx, domain, "learnings", func(dm *memory.DomainMemory) {
		dm.Learnings = append(dm.Learnings, memory.Learning{
			Topic: topic, Content: content, Source: source, RecordedAt: time.Now().UTC(),
		})
	})
}

// RecordPattern appends a pattern, bumping the occurrence count when the
// name is already known.
func (m *Manager) RecordPattern(ctx context.Context, domain, name, description string) error {
	return m.updateDomain(ctx, domain, "patterns", func(dm *memory.DomainMemory) {
		for i := range dm.Patterns {
			if dm.Patterns[i].Name == name {
				dm.Patterns[i].Occurrences++
				dm.Patterns[i].RecordedAt = time.Now().UTC()
				return
			}
		}
		dm.Patterns = append(dm.Patterns, memory.Pattern{
			Name: name, Description: description, Occurrences: 1, RecordedAt: time.Now().UTC(),
		})
	})
}

// RecordErrorPattern appends a failure mode and its mitigation.
func (m *Manager) RecordErrorPattern(ctx context.Context, domain, errorType, description, mitigation string) error {
	return m.updateDomain(ctx, domain, "error_patterns", func(dm *memory.DomainMemory) {
		dm.ErrorPatterns = append(dm.ErrorPatterns, memory.ErrorPattern{
			ErrorType: errorType, Description: description, Mitigation: mitigation,
			RecordedAt: time.Now().UTC(),
		})
	})
}

// RecordTaskCompletion appends a finished task to the domain history.
func (m *Manager) RecordTaskCompletion(ctx context.Context, domain, taskID, summary string, success bool) error {
	return m.updateDomain(ctx, domain, "task_completions", func(dm *memory.DomainMemory) {
		dm.TaskCompletions = append(dm.TaskCompletions, memory.TaskCompletion{
			TaskID: taskID, Summary: summary, Success: success, CompletedAt: time.Now().UTC(),
		})
	})
}

// GetDomainMemory returns the domain record, or an empty one when absent.
func (m *Manager) GetDomainMemory(ctx context.Context, domain string) (*memory.DomainMemory, error) {
	entry, err := m.storeFor(memory.TypeDomain).Get(ctx, domainID(domain), memory.TypeDomain)
	if errors.Is(err, apperrors.ErrNotFound) {
		return emptyDomain(domain), nil
	}
	if err != nil {
		return nil, err
	}
	var dm memory.DomainMemory
	if err := entry.Decode(&dm); err != nil {
		return nil, err
	}
	return &dm, nil
}

func emptyDomain(domain string) *memory.DomainMemory {
	return &memory.DomainMemory{
		Domain:          domain,
		Learnings:       []memory.Learning{},
		Patterns:        []memory.Pattern{},
		ErrorPatterns:   []memory.ErrorPattern{},
		TaskCompletions: []memory.TaskCompletion{},
		Counters:        map[string]int{},
	}
}

func (m *Manager) updateDomain(ctx context.Context, domain, category string, mutate func(*memory.DomainMemory)) error {
	id := domainID(domain)
	unlock := m.lock(id)
	defer unlock()

	dm, err := m.GetDomainMemory(ctx, domain)
	if err != nil {
		return err
	}
	mutate(dm)
	dm.Counters[category]++

	entry, err := memory.NewEntry(id, memory.TypeDomain, m.agentID, dm)
	if err != nil {
		return err
	}
	if err := m.storeFor(memory.TypeDomain).Save(ctx, entry); err != nil {
		return err
	}

	m.metrics.DomainRecords.WithLabelValues(category).Inc()
	return nil
}

// --- Generic entries (approval records, workflow checkpoints) ---

// SaveEntry persists a caller-shaped entry through tier routing. The
// approval manager and workflow engine use this for their scoped records.
func (m *Manager) SaveEntry(ctx context.Context, entry *memory.Entry) error {
	return m.storeFor(entry.Type).Save(ctx, entry)
}

// GetEntry reads an entry through tier routing.
func (m *Manager) GetEntry(ctx context.Context, id string, t memory.Type) (*memory.Entry, error) {
	return m.storeFor(t).Get(ctx, id, t)
}

// DeleteEntry removes an entry through tier routing.
func (m *Manager) DeleteEntry(ctx context.Context, id string, t memory.Type) error {
	return m.storeFor(t).Delete(ctx, id)
}

// QueryEntries lists entries through tier routing.
func (m *Manager) QueryEntries(ctx context.Context, q memory.Query) ([]*memory.Entry, error) {
	return m.storeFor(q.Type).Query(ctx, q)
}

// --- Task schemas ---

// SaveSchema persists a task schema. The fast store additionally mirrors it
// when configured, keeping the session pointer warm for sibling agents.
func (m *Manager) SaveSchema(ctx context.Context, schema *memory.DomainMemorySchema) error {
	if err := m.schemaStore().SaveSchema(ctx, schema); err != nil {
		return err
	}
	if m.fast != nil && m.fast != m.schemaStore() {
		if err := m.fast.SaveSchema(ctx, schema); err != nil {
			observability.Logger(ctx).Warn("Fast-store schema mirror failed",
				"schema_id", schema.SchemaID, "error", err)
		}
	}
	return nil
}

// GetSchema returns a task schema by id.
func (m *Manager) GetSchema(ctx context.Context, id string) (*memory.DomainMemorySchema, error) {
	return m.schemaStore().GetSchema(ctx, id)
}

// GetSchemaByAgent resolves the current schema for an agent session.
func (m *Manager) GetSchemaByAgent(ctx context.Context, agentID, sessionID string) (*memory.DomainMemorySchema, error) {
	return m.schemaStore().GetSchemaByAgent(ctx, agentID, sessionID)
}
