package sqlstore

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/database"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
)

// newIntegrationStore spins up a PostgreSQL testcontainer and applies the
// embedded migrations. Skipped unless AGENT_SRE_INTEGRATION is set.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("AGENT_SRE_INTEGRATION") == "" {
		t.Skip("set AGENT_SRE_INTEGRATION to run database integration tests")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("agent_sre"),
		tcpostgres.WithUsername("agent"),
		tcpostgres.WithPassword("agent"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := database.NewClientFromDSN(ctx, dsn, database.Config{
		Database:     "agent_sre",
		MaxOpenConns: 5,
		MaxIdleConns: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return New(client)
}

func TestIntegration_EntryRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	entry, err := memory.NewEntry("user:u1", memory.TypeUser, "agent-sre", memory.UserMemory{
		UserID:      "u1",
		Preferences: map[string]any{"notify": "slack"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, entry))

	got, err := store.Get(ctx, "user:u1", memory.TypeUser)
	require.NoError(t, err)

	var um memory.UserMemory
	require.NoError(t, got.Decode(&um))
	assert.Equal(t, "u1", um.UserID)
	assert.Equal(t, "slack", um.Preferences["notify"])

	require.NoError(t, store.Delete(ctx, "user:u1"))
	_, err = store.Get(ctx, "user:u1", memory.TypeUser)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestIntegration_SchemaSessionPointer(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	first := memory.NewSchema("agent-sre", "sre", "sre_operations", "sess-1")
	require.NoError(t, store.SaveSchema(ctx, first))

	second := memory.NewSchema("agent-sre", "sre", "sre_operations", "sess-1")
	require.NoError(t, store.SaveSchema(ctx, second))

	// Latest save wins the session pointer.
	got, err := store.GetSchemaByAgent(ctx, "agent-sre", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, second.SchemaID, got.SchemaID)
}

func TestIntegration_DeleteExpired(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	entry, err := memory.NewEntry("wm:1", memory.TypeWorking, "agent-sre", map[string]any{"k": "v"})
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	entry.ExpiresAt = &past
	require.NoError(t, store.Save(ctx, entry))

	n, err := store.DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
