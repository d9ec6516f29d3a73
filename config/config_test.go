package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.HTTPAddr)
	assert.True(t, cfg.Server.StdioEnabled)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.False(t, cfg.Remote.Enabled)
}

func TestLoadYAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_FHIR_URL", "https://fhir.example.org")
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	data := `
server:
  http_addr: ":9999"
  stdio_enabled: false
connectors:
  records_base_url: "${TEST_FHIR_URL}"
cache_ttl: 90s
session_ttl: 10m
connector_timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.HTTPAddr)
	assert.False(t, cfg.Server.StdioEnabled)
	assert.Equal(t, "https://fhir.example.org", cfg.Connectors.RecordsBaseURL)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("MEDGATE_HTTP_ADDR", ":7777")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.HTTPAddr)
}

func TestRemoteEnabledByEnvKey(t *testing.T) {
	t.Setenv("MEDGATE_REMOTE_API_KEY", "sk-test")
	t.Setenv("MEDGATE_REMOTE_MODEL", "gpt-4o-mini")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Remote.Enabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.CacheTTL = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Remote.Enabled = true
	assert.Error(t, cfg.Validate(), "remote without API key")
}
