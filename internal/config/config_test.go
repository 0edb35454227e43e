package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("VETSECURE_ENCRYPTION_KEY", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "vetsecure", cfg.JWT.Issuer)
	assert.Equal(t, "vetsecure-api", cfg.JWT.Audience)
	assert.Equal(t, 15*time.Minute, ParseTTL(cfg.JWT.AccessTTL, 0))
	assert.Equal(t, 14*24*time.Hour, ParseTTL(cfg.JWT.RefreshTTL, 0))
	assert.Equal(t, 2*time.Minute, ParseTTL(cfg.JWT.MFATTL, 0))
	assert.True(t, cfg.Rate.Enabled)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("VETSECURE_ENCRYPTION_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("SERVER_ADDR", ":9999")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
app:
  env: prod
server:
  addr: ":8081"
storage:
  driver: memory
rate:
  login:
    limit: 3
    window: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.App.Env)
	// env pisa YAML
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Rate.Login.Limit)
	assert.Equal(t, 30*time.Second, ParseTTL(cfg.Rate.Login.Window, 0))
}

func TestPostgresRequiresDSN(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_DSN", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_DSN")
}

func TestSecretsNeverComeFromYAML(t *testing.T) {
	setRequiredSecrets(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
jwt:
  secret: "from-yaml-should-be-ignored"
encryption:
  key: "from-yaml-should-be-ignored"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.JWT.Secret)
	assert.NotEqual(t, "from-yaml-should-be-ignored", cfg.Encryption.Key)
}
