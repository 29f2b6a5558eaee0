package authd_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":9100", cfg.Server.MetricsAddr)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "trackhire", cfg.Auth.Issuer)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
	assert.NotEmpty(t, cfg.DB.DSN)
}

func TestLoadRequiresSecret(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  jwt_secret: file-secret
  access_ttl: 5m
server:
  http_addr: ":9999"
`), 0o600))
	t.Setenv("AUTH_ACCESS_TTL", "7m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, ":9999", cfg.Server.HTTPAddr)
	// Environment wins over the file.
	assert.Equal(t, 7*time.Minute, cfg.Auth.AccessTTL)
}
