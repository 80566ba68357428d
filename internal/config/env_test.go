package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "local", env.Env)
	assert.Equal(t, 500*time.Millisecond, env.TickInterval)
	assert.Equal(t, 60*time.Second, env.RefreshInterval)
	assert.Equal(t, "paplay {file}", env.Player)
	assert.Equal(t, "local", env.StorageEnv.Type)
	assert.Equal(t, slog.LevelInfo, env.SlogLevel())
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("INFINITASK_TICK_INTERVAL", "1s")
	t.Setenv("INFINITASK_API_OWNER_KEY", "token-1")
	t.Setenv("INFINITASK_LOG_LEVEL", "debug")

	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, time.Second, env.TickInterval)
	assert.Equal(t, "token-1", env.OwnerKey)
	assert.Equal(t, slog.LevelDebug, env.SlogLevel())
	assert.NoError(t, env.RequireOwnerKey())
}

func TestLoadEnv_Validation(t *testing.T) {
	t.Run("bad env name", func(t *testing.T) {
		t.Setenv("INFINITASK_ENV", "staging")
		_, err := LoadEnv()
		assert.Error(t, err)
	})
	t.Run("s3 without bucket", func(t *testing.T) {
		t.Setenv("INFINITASK_STORAGE_TYPE", "s3")
		_, err := LoadEnv()
		assert.Error(t, err)
	})
	t.Run("non-positive interval", func(t *testing.T) {
		t.Setenv("INFINITASK_REFRESH_INTERVAL", "0s")
		_, err := LoadEnv()
		assert.Error(t, err)
	})
}

func TestLoadEnv_Dotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("INFINITASK_API_OWNER_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("INFINITASK_API_OWNER_KEY") })

	env, err := LoadEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from-file", env.OwnerKey)
}

func TestLocation(t *testing.T) {
	b := &BaseEnv{Timezone: "Asia/Manila"}
	loc, err := b.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Manila", loc.String())

	_, err = (&BaseEnv{Timezone: "Nowhere/City"}).Location()
	assert.Error(t, err)
}
