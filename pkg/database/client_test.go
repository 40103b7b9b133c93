package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "agent", cfg.User)
	assert.Equal(t, "agent_sre", cfg.Database)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 5, cfg.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime)
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_HOST", "pg.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_USER", "sre")
	t.Setenv("DB_NAME", "memory")
	t.Setenv("DB_MAX_OPEN_CONNS", "12")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "pg.internal", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, "sre", cfg.User)
	assert.Equal(t, "memory", cfg.Database)
	assert.Equal(t, 12, cfg.MaxOpenConns)
}

func TestLoadConfigFromEnv_InvalidPort(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	_, err := LoadConfigFromEnv()
	assert.ErrorContains(t, err, "invalid DB_PORT")
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		Host:     "db",
		Port:     5432,
		User:     "agent",
		Password: "secret",
		Database: "agent_sre",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db port=5432 user=agent password=secret dbname=agent_sre sslmode=require",
		cfg.DSN())
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"keyword form", "host=db port=5432 dbname=memory sslmode=disable", "memory"},
		{"url form", "postgres://agent:pw@db:5432/agent_sre?sslmode=disable", "agent_sre"},
		{"url form no query", "postgres://agent@db/mem", "mem"},
		{"fallback to config", "host=db", "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := databaseName(tt.dsn, Config{Database: "fallback"})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasEmbeddedMigrations(t *testing.T) {
	ok, err := hasEmbeddedMigrations()
	require.NoError(t, err)
	assert.True(t, ok, "migration files must be embedded into the binary")
}
