package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Development, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 90*time.Second, cfg.Realtime.LockTTL)
	assert.True(t, cfg.IsDevelopment())
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9000")
	t.Setenv("TABLE_NAME", "flopods-test")
	t.Setenv("LOCK_TTL", "2m")
	t.Setenv("DB_IN_MEMORY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "flopods-test", cfg.Database.TableName)
	assert.Equal(t, 2*time.Minute, cfg.Realtime.LockTTL)
	assert.True(t, cfg.Database.InMemory)
}

func TestYAMLOverlayThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("log_level: debug\nserver:\n  address: \":7070\"\nrealtime:\n  lock_ttl: 45s\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_ADDRESS", ":6060")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.Realtime.LockTTL)
	// Environment beats the file
	assert.Equal(t, ":6060", cfg.Server.Address)
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", Production)
	t.Setenv("TABLE_NAME", "flopods")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "super-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestProductionRejectsInMemoryStore(t *testing.T) {
	t.Setenv("ENVIRONMENT", Production)
	t.Setenv("JWT_SECRET", "super-secret")
	t.Setenv("DB_IN_MEMORY", "1")

	_, err := Load()
	require.Error(t, err)
}
