package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
)

func TestSaveGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	entry, err := memory.NewEntry("user:alice", memory.TypeUser, "agent-sre", memory.UserMemory{
		UserID:      "alice",
		Preferences: map[string]any{"notify": "slack"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, entry))

	got, err := s.Get(ctx, "user:alice", memory.TypeUser)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)

	var um memory.UserMemory
	require.NoError(t, got.Decode(&um))
	assert.Equal(t, "slack", um.Preferences["notify"])
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	s := New()

	_, err := s.Get(context.Background(), "missing", memory.TypeUser)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestGetWrongTypeReturnsNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	entry, err := memory.NewEntry("conv-1", memory.TypeShortTerm, "agent-sre", memory.Conversation{ConversationID: "conv-1"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, entry))

	_, err = s.Get(ctx, "conv-1", memory.TypeUser)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestGetHonorsExpiry(t *testing.T) {
	s := New()
	ctx := context.Background()

	entry, err := memory.NewEntry("conv-2", memory.TypeShortTerm, "agent-sre", memory.Conversation{ConversationID: "conv-2"})
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Minute)
	entry.ExpiresAt = &past
	require.NoError(t, s.Save(ctx, entry))

	_, err = s.Get(ctx, "conv-2", memory.TypeShortTerm)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	entry, err := memory.NewEntry("conv-3", memory.TypeShortTerm, "agent-sre", memory.Conversation{ConversationID: "conv-3"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, entry))

	require.NoError(t, s.Delete(ctx, "conv-3"))
	require.NoError(t, s.Delete(ctx, "conv-3"))

	_, err = s.Get(ctx, "conv-3", memory.TypeShortTerm)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestQueryFiltersAndOrders(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, id := range []string{"entity:pod:a", "entity:pod:b"} {
		e, err := memory.NewEntry(id, memory.TypeEntity, "agent-sre", memory.Entity{
			EntityType: "pod",
			EntityID:   id,
		})
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, e))
		time.Sleep(2 * time.Millisecond)
	}
	other, err := memory.NewEntry("entity:deploy:c", memory.TypeEntity, "other-agent", memory.Entity{EntityType: "deployment"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, other))

	got, err := s.Query(ctx, memory.Query{
		Type:    memory.TypeEntity,
		AgentID: "agent-sre",
		Filters: map[string]string{"entity_type": "pod"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "entity:pod:b", got[0].ID, "newest first")

	limited, err := s.Query(ctx, memory.Query{Type: memory.TypeEntity, AgentID: "agent-sre", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSaveGetSchema(t *testing.T) {
	s := New()
	ctx := context.Background()

	schema := memory.NewSchema("agent-sre", "sre", "sre", "session-1")
	schema.Goals = []memory.Goal{{Description: "restore service", Priority: 1, Status: memory.GoalPending}}
	require.NoError(t, s.SaveSchema(ctx, schema))

	got, err := s.GetSchema(ctx, schema.SchemaID)
	require.NoError(t, err)
	assert.Equal(t, schema.SchemaID, got.SchemaID)

	bySession, err := s.GetSchemaByAgent(ctx, "agent-sre", "session-1")
	require.NoError(t, err)
	assert.Equal(t, schema.SchemaID, bySession.SchemaID)
}

func TestGetSchemaByAgentLatestWhenNoSession(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := memory.NewSchema("agent-sre", "sre", "sre", "session-1")
	require.NoError(t, s.SaveSchema(ctx, first))
	time.Sleep(2 * time.Millisecond)
	second := memory.NewSchema("agent-sre", "sre", "sre", "session-2")
	require.NoError(t, s.SaveSchema(ctx, second))

	got, err := s.GetSchemaByAgent(ctx, "agent-sre", "")
	require.NoError(t, err)
	assert.Equal(t, second.SchemaID, got.SchemaID)

	_, err = s.GetSchemaByAgent(ctx, "nobody", "")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSchemaPointerRepointsOnSave(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := memory.NewSchema("agent-sre", "sre", "sre", "session-1")
	require.NoError(t, s.SaveSchema(ctx, first))

	second := memory.NewSchema("agent-sre", "sre", "sre", "session-1")
	require.NoError(t, s.SaveSchema(ctx, second))

	got, err := s.GetSchemaByAgent(ctx, "agent-sre", "session-1")
	require.NoError(t, err)
	assert.Equal(t, second.SchemaID, got.SchemaID)
}

func TestDeleteExpired(t *testing.T) {
	s := New()
	ctx := context.Background()

	live, err := memory.NewEntry("conv-live", memory.TypeShortTerm, "agent-sre", memory.Conversation{})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, live))

	dead, err := memory.NewEntry("conv-dead", memory.TypeShortTerm, "agent-sre", memory.Conversation{})
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	dead.ExpiresAt = &past
	require.NoError(t, s.Save(ctx, dead))

	removed, err := s.DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(ctx, "conv-live", memory.TypeShortTerm)
	assert.NoError(t, err)
}

func TestSavedEntryIsIsolatedFromCaller(t *testing.T) {
	s := New()
	ctx := context.Background()

	entry, err := memory.NewEntry("user:carol", memory.TypeUser, "agent-sre", memory.UserMemory{UserID: "carol"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, entry))

	// Mutating the caller's copy must not affect the stored one.
	entry.Data[0] = 'X'

	got, err := s.Get(ctx, "user:carol", memory.TypeUser)
	require.NoError(t, err)

	var um memory.UserMemory
	require.NoError(t, got.Decode(&um))
	assert.Equal(t, "carol", um.UserID)
}

func TestDisconnectClearsState(t *testing.T) {
	s := New()
	ctx := context.Background()

	entry, err := memory.NewEntry("user:dave", memory.TypeUser, "agent-sre", memory.UserMemory{UserID: "dave"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, entry))
	require.NoError(t, s.Disconnect(ctx))

	_, err = s.Get(ctx, "user:dave", memory.TypeUser)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
