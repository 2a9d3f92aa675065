package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Init(path))

	assert.Equal(t, "http://localhost:8686", GetString("api.base_url"))
	assert.Equal(t, 15000, GetInt("socket.connect_timeout_ms"))
	assert.Equal(t, -1, GetInt("socket.max_reconnect_attempts"))
	assert.Equal(t, 2000, GetInt("realtime.typing_timeout_ms"))
	assert.Equal(t, 50, GetInt("realtime.backfill_limit"))
	assert.False(t, GetBool("socket.use_tls"))
}

func TestInitReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := []byte("[api]\nbase_url = \"https://chorus.example\"\n\n[socket]\nuse_tls = true\n")
	require.NoError(t, os.WriteFile(path, content, 0600))

	require.NoError(t, Init(path))
	assert.Equal(t, "https://chorus.example", GetString("api.base_url"))
	assert.True(t, GetBool("socket.use_tls"))

	// Keys absent from the file keep their defaults
	assert.Equal(t, 30000, GetInt("socket.heartbeat_interval_ms"))
}

func TestEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv("CHORUS_API_BASE_URL", "https://env.example")

	require.NoError(t, Init(path))
	assert.Equal(t, "https://env.example", GetString("api.base_url"))
}

func TestSetAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, Init(path))

	Set("realtime.backfill_limit", 100)
	assert.Equal(t, 100, GetInt("realtime.backfill_limit"))

	require.NoError(t, Save())

	// A fresh load sees the persisted value
	require.NoError(t, Init(path))
	assert.Equal(t, 100, GetInt("realtime.backfill_limit"))
}
