// Package sqlstore is the durable memory backend over PostgreSQL. It holds
// the long-term tiers (entity, user, domain) and persistent task schemas in
// the memory_entries and domain_schemas tables.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/database"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
)

// Store is the PostgreSQL-backed durable memory store.
type Store struct {
	client *database.Client
}

// New wraps a connected database client. The client owns the pool; the
// store never closes it on Disconnect unless it connected itself.
func New(client *database.Client) *Store {
	return &Store{client: client}
}

// Connect verifies the pool is reachable.
func (s *Store) Connect(ctx context.Context) error {
	if err := s.client.DB().PingContext(ctx); err != nil {
		return apperrors.New(apperrors.KindTransport, "sqlstore.connect", err)
	}
	return nil
}

// Disconnect is a no-op; the database client owns pool shutdown.
func (s *Store) Disconnect(_ context.Context) error { return nil }

// entryRow mirrors the memory_entries table.
type entryRow struct {
	ID         string          `db:"id"`
	MemoryType string          `db:"memory_type"`
	AgentID    string          `db:"agent_id"`
	Data       json.RawMessage `db:"data"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
	ExpiresAt  *time.Time      `db:"expires_at"`
}

func (r *entryRow) toEntry() *memory.Entry {
	return &memory.Entry{
		ID:        r.ID,
		Type:      memory.Type(r.MemoryType),
		AgentID:   r.AgentID,
		Data:      r.Data,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

// Save upserts the entry, refreshing updated_at.
func (s *Store) Save(ctx context.Context, entry *memory.Entry) error {
	entry.UpdatedAt = time.Now().UTC()

	_, err := s.client.DB().ExecContext(ctx, `
		INSERT INTO memory_entries (id, memory_type, agent_id, data, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			memory_type = EXCLUDED.memory_type,
			agent_id    = EXCLUDED.agent_id,
			data        = EXCLUDED.data,
			updated_at  = EXCLUDED.updated_at,
			expires_at  = EXCLUDED.expires_at`,
		entry.ID, string(entry.Type), entry.AgentID, []byte(entry.Data),
		entry.CreatedAt, entry.UpdatedAt, entry.ExpiresAt)
	if err != nil {
		return apperrors.New(apperrors.KindTransport, "sqlstore.save", err)
	}
	return nil
}

// Get returns the entry, or apperrors.ErrNotFound when absent or expired.
func (s *Store) Get(ctx context.Context, id string, t memory.Type) (*memory.Entry, error) {
	var row entryRow
	err := s.client.DB().GetContext(ctx, &row, `
		SELECT id, memory_type, agent_id, data, created_at, updated_at, expires_at
		FROM memory_entries
		WHERE id = $1 AND memory_type = $2
		  AND (expires_at IS NULL OR expires_at > NOW())`,
		id, string(t))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "sqlstore.get", err)
	}
	return row.toEntry(), nil
}

// Delete removes the entry; unknown ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.client.DB().ExecContext(ctx,
		`DELETE FROM memory_entries WHERE id = $1`, id); err != nil {
		return apperrors.New(apperrors.KindTransport, "sqlstore.delete", err)
	}
	return nil
}

// Query returns matching live entries, newest first. Filters match
// top-level string fields of the JSONB payload.
func (s *Store) Query(ctx context.Context, q memory.Query) ([]*memory.Entry, error) {
	query := `
		SELECT id, memory_type, agent_id, data, created_at, updated_at, expires_at
		FROM memory_entries
		WHERE memory_type = $1
		  AND (expires_at IS NULL OR expires_at > NOW())`
	args := []any{string(q.Type)}

	if q.AgentID != "" {
		args = append(args, q.AgentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	for k, v := range q.Filters {
		args = append(args, k, v)
		query += fmt.Sprintf(" AND data->>$%d = $%d", len(args)-1, len(args))
	}
	query += " ORDER BY updated_at DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []entryRow
	if err := s.client.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "sqlstore.query", err)
	}

	entries := make([]*memory.Entry, len(rows))
	for i := range rows {
		entries[i] = rows[i].toEntry()
	}
	return entries, nil
}

// SaveSchema upserts the schema row. The (agent_id, session_id) index
// resolves "the current schema for this session": the row with the latest
// updated_at wins, which the upsert refreshes atomically.
func (s *Store) SaveSchema(ctx context.Context, schema *memory.DomainMemorySchema) error {
	schema.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to encode schema %s: %w", schema.SchemaID, err)
	}

	_, err = s.client.DB().ExecContext(ctx, `
		INSERT INTO domain_schemas (id, agent_id, agent_type, session_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			data       = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		schema.SchemaID, schema.AgentID, schema.AgentType, schema.SessionID,
		data, schema.CreatedAt, schema.UpdatedAt)
	if err != nil {
		return apperrors.New(apperrors.KindTransport, "sqlstore.save_schema", err)
	}
	return nil
}

// GetSchema returns the schema by id.
func (s *Store) GetSchema(ctx context.Context, id string) (*memory.DomainMemorySchema, error) {
	var data []byte
	err := s.client.DB().GetContext(ctx, &data,
		`SELECT data FROM domain_schemas WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "sqlstore.get_schema", err)
	}
	return decodeSchema(data)
}

// GetSchemaByAgent returns the most recently updated schema for the agent,
// scoped to a session when sessionID is non-empty.
func (s *Store) GetSchemaByAgent(ctx context.Context, agentID, sessionID string) (*memory.DomainMemorySchema, error) {
	query := `SELECT data FROM domain_schemas WHERE agent_id = $1`
	args := []any{agentID}
	if sessionID != "" {
		args = append(args, sessionID)
		query += " AND session_id = $2"
	}
	query += " ORDER BY updated_at DESC LIMIT 1"

	var data []byte
	err := s.client.DB().GetContext(ctx, &data, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "sqlstore.get_schema_by_agent", err)
	}
	return decodeSchema(data)
}

// DeleteExpired removes entries past their expiry; the retention sweep
// calls this periodically.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.client.DB().ExecContext(ctx,
		`DELETE FROM memory_entries WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, apperrors.New(apperrors.KindTransport, "sqlstore.delete_expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func decodeSchema(data []byte) (*memory.DomainMemorySchema, error) {
	var schema memory.DomainMemorySchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	return &schema, nil
}
