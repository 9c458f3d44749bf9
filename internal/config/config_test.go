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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 1053, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Resolver.MaxDepth)
	assert.Equal(t, "3s", cfg.Resolver.ExchangeTimeout)
	assert.Equal(t, 4096, cfg.Resolver.EDNSUDPSize)
	assert.True(t, cfg.Resolver.CacheEnabled)
	assert.Empty(t, cfg.Resolver.Roots)
	assert.False(t, cfg.API.Enabled)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rootwalk.yaml")
	yaml := `
server:
  host: 0.0.0.0
  port: 53
resolver:
  roots:
    - 198.41.0.4
  max_depth: 10
  cache_enabled: false
logging:
  level: DEBUG
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 53, cfg.Server.Port)
	assert.Equal(t, []string{"198.41.0.4"}, cfg.Resolver.Roots)
	assert.Equal(t, 10, cfg.Resolver.MaxDepth)
	assert.False(t, cfg.Resolver.CacheEnabled)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Server.Port = 0
	assert.Error(t, Validate(cfg))

	cfg = base()
	cfg.Resolver.MaxDepth = 0
	assert.Error(t, Validate(cfg))

	cfg = base()
	cfg.Resolver.Roots = []string{"not-an-ip"}
	assert.Error(t, Validate(cfg))

	cfg = base()
	cfg.Resolver.ExchangeTimeout = "soon"
	assert.Error(t, Validate(cfg))

	cfg = base()
	cfg.API.Enabled = true
	cfg.API.Port = -1
	assert.Error(t, Validate(cfg))
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = ParseDuration("250ms", 0)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = ParseDuration("nope", 0)
	assert.Error(t, err)
}
