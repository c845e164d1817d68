package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerPort)
	assert.Equal(t, "qbank", cfg.JWT.Issuer)
	assert.Equal(t, "", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, 10*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 1, cfg.Generation.AttemptsPerVersion)
	assert.Equal(t, 50, cfg.Generation.MaxVersions)
	assert.Equal(t, time.Duration(0), cfg.IngestionInterval)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
SERVER_PORT: ":9090"
REDIS:
  ADDR: "localhost:6379"
  TTL: "1m"
GENERATION:
  TIMEOUT: "3s"
  ATTEMPTS_PER_VERSION: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))

	cfg, err := load(viper.New(), dir)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ServerPort)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Redis.TTL)
	assert.Equal(t, 3*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 5, cfg.Generation.AttemptsPerVersion)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("QBANK_SERVER_PORT", ":7070")
	t.Setenv("QBANK_GENERATION_TIMEOUT", "250ms")

	cfg, err := load(viper.New(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ServerPort)
	assert.Equal(t, 250*time.Millisecond, cfg.Generation.Timeout)
}

func TestLoadRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("SERVER_PORT: [unclosed"), 0o600))
	_, err := load(viper.New(), dir)
	assert.Error(t, err)
}
