// Package redisstore is the fast KV memory backend with per-tier TTLs. It
// keeps entries under "agent_memory:{id}", secondary index sets under
// "agent_memory:index:{agent}:{tier}", schemas under
// "agent_memory:schema:{id}", and a per-session pointer under
// "agent_memory:agent:{agent}:session:{session}" that always resolves to
// the current schema.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
)

const keyPrefix = "agent_memory"

// Store is the redis-backed fast memory store.
type Store struct {
	client *redis.Client
}

// New creates a store from a redis URL (redis://host:port/db).
func New(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "redisstore.new", err)
	}
	return &Store{client: redis.NewClient(opts)}, nil
}

// NewWithClient wraps an existing client. Tests use this with miniredis.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Connect verifies the server is reachable.
func (s *Store) Connect(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return apperrors.New(apperrors.KindTransport, "redisstore.connect", err)
	}
	return nil
}

// Disconnect closes the client.
func (s *Store) Disconnect(_ context.Context) error {
	return s.client.Close()
}

// Save stores the entry under its key and adds it to the agent+tier index.
// Non-durable tiers get their tier TTL; the index set slides along with the
// longest-lived member.
func (s *Store) Save(ctx context.Context, entry *memory.Entry) error {
	e := *entry
	e.UpdatedAt = time.Now().UTC()

	ttl := time.Duration(0)
	if e.ExpiresAt != nil {
		ttl = time.Until(*e.ExpiresAt)
		if ttl <= 0 {
			// Already expired; make sure no stale copy lingers.
			return s.Delete(ctx, e.ID)
		}
	} else if !e.Type.Durable() {
		ttl = memory.TTLFor(e.Type)
	}

	data, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", e.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, entryKey(e.ID), data, ttl)
	idx := indexKey(e.AgentID, e.Type)
	pipe.SAdd(ctx, idx, e.ID)
	if ttl > 0 {
		pipe.Expire(ctx, idx, memory.TTLFor(e.Type))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.New(apperrors.KindTransport, "redisstore.save", err)
	}

	entry.UpdatedAt = e.UpdatedAt
	return nil
}

// Get returns the entry, or apperrors.ErrNotFound when missing, expired, or
// of a different tier.
func (s *Store) Get(ctx context.Context, id string, t memory.Type) (*memory.Entry, error) {
	data, err := s.client.Get(ctx, entryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "redisstore.get", err)
	}

	var e memory.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode entry %s: %w", id, err)
	}
	if e.Type != t {
		return nil, apperrors.ErrNotFound
	}
	return &e, nil
}

// Delete removes the entry and its index membership, a no-op when unknown.
func (s *Store) Delete(ctx context.Context, id string) error {
	data, err := s.client.Get(ctx, entryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return apperrors.New(apperrors.KindTransport, "redisstore.delete", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entryKey(id))
	var e memory.Entry
	if err := json.Unmarshal(data, &e); err == nil {
		pipe.SRem(ctx, indexKey(e.AgentID, e.Type), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.New(apperrors.KindTransport, "redisstore.delete", err)
	}
	return nil
}

// Query resolves the agent+tier index set, fetches members, and filters.
// An empty AgentID queries the tier across all agents. Stale index members
// (expired entries) are pruned opportunistically on per-agent queries.
func (s *Store) Query(ctx context.Context, q memory.Query) ([]*memory.Entry, error) {
	ids, err := s.indexMembers(ctx, q)
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "redisstore.query", err)
	}
	if len(ids) == 0 {
		return []*memory.Entry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = entryKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "redisstore.query", err)
	}

	matched := make([]*memory.Entry, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var e memory.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if e.Type != q.Type || !memory.MatchesFilters(&e, q.Filters) {
			continue
		}
		matched = append(matched, &e)
	}
	if len(stale) > 0 && q.AgentID != "" {
		s.client.SRem(ctx, indexKey(q.AgentID, q.Type), stale...)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// indexMembers resolves the candidate entry ids for a query. With an
// AgentID it is a single index-set read; without one it scans every agent's
// index set for the tier, which startup orphan recovery relies on.
func (s *Store) indexMembers(ctx context.Context, q memory.Query) ([]string, error) {
	if q.AgentID != "" {
		return s.client.SMembers(ctx, indexKey(q.AgentID, q.Type)).Result()
	}

	pattern := fmt.Sprintf("%s:index:*:%s", keyPrefix, q.Type)
	seen := make(map[string]struct{})
	var ids []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		members, err := s.client.SMembers(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		for _, id := range members {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// SaveSchema writes the schema and its session pointer in one transaction,
// so the pointer always resolves to the latest saved schema.
func (s *Store) SaveSchema(ctx context.Context, schema *memory.DomainMemorySchema) error {
	schema.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to encode schema %s: %w", schema.SchemaID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, schemaKey(schema.SchemaID), data, 0)
	pipe.Set(ctx, sessionPointerKey(schema.AgentID, schema.SessionID), schema.SchemaID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.New(apperrors.KindTransport, "redisstore.save_schema", err)
	}
	return nil
}

// GetSchema returns the schema by id.
func (s *Store) GetSchema(ctx context.Context, id string) (*memory.DomainMemorySchema, error) {
	data, err := s.client.Get(ctx, schemaKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "redisstore.get_schema", err)
	}

	var schema memory.DomainMemorySchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to decode schema %s: %w", id, err)
	}
	return &schema, nil
}

// GetSchemaByAgent resolves the session pointer, or scans the agent's
// sessions for the most recently updated schema when sessionID is empty.
func (s *Store) GetSchemaByAgent(ctx context.Context, agentID, sessionID string) (*memory.DomainMemorySchema, error) {
	if sessionID != "" {
		id, err := s.client.Get(ctx, sessionPointerKey(agentID, sessionID)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		if err != nil {
			return nil, apperrors.New(apperrors.KindTransport, "redisstore.get_schema_by_agent", err)
		}
		return s.GetSchema(ctx, id)
	}

	pattern := fmt.Sprintf("%s:agent:%s:session:*", keyPrefix, agentID)
	var latest *memory.DomainMemorySchema
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		id, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		schema, err := s.GetSchema(ctx, id)
		if err != nil {
			continue
		}
		if latest == nil || schema.UpdatedAt.After(latest.UpdatedAt) {
			latest = schema
		}
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "redisstore.get_schema_by_agent", err)
	}
	if latest == nil {
		return nil, apperrors.ErrNotFound
	}
	return latest, nil
}

func entryKey(id string) string {
	return keyPrefix + ":" + id
}

func indexKey(agentID string, t memory.Type) string {
	return fmt.Sprintf("%s:index:%s:%s", keyPrefix, agentID, t)
}

func schemaKey(id string) string {
	return keyPrefix + ":schema:" + id
}

func sessionPointerKey(agentID, sessionID string) string {
	return fmt.Sprintf("%s:agent:%s:session:%s", keyPrefix, agentID, sessionID)
}
