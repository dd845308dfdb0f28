package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  host: 127.0.0.1
  port: 9090
  readTimeout: 15s
pipeline:
  defaultTimeout: 10s
  tenantHeader: X-Tenant-ID
upstreams:
  - id: users-1
    url: http://users-1.internal:8080
    weight: 2
  - id: users-2
    url: http://users-2.internal:8080
routes:
  - id: users
    path: /api/users
    matchKind: prefix
    methods: [GET, POST]
    upstreams: [users-1, users-2]
    priority: 10
    loadBalancing: weighted_round_robin
    timeout: 5s
rateLimit:
  enabled: true
  algorithm: token_bucket
  rules:
    - scope: per_client
      requests: 100
      window: 1m
      burst: 120
auth:
  enabled: true
  required: true
  bearer:
    secret: test-secret
    issuer: gatepipe-test
cache:
  enabled: true
  backend: memory
  defaultTtl: 30s
`

func TestLoadConfigFromReader(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.Duration())

	require.Len(t, cfg.Upstreams, 2)
	assert.Equal(t, "users-1", cfg.Upstreams[0].ID)
	assert.Equal(t, 2, cfg.Upstreams[0].Weight)

	require.Len(t, cfg.Routes, 1)
	route := cfg.Routes[0]
	assert.Equal(t, "users", route.ID)
	assert.Equal(t, "prefix", route.MatchKind)
	assert.Equal(t, []string{"GET", "POST"}, route.Methods)
	assert.Equal(t, 5*time.Second, route.Timeout.Duration())
	assert.True(t, route.IsEnabled())

	assert.True(t, cfg.RateLimit.Enabled)
	require.Len(t, cfg.RateLimit.Rules, 1)
	assert.Equal(t, "per_client", cfg.RateLimit.Rules[0].Scope)
	assert.Equal(t, 100, cfg.RateLimit.Rules[0].Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Rules[0].Window.Duration())

	require.NotNil(t, cfg.Auth.Bearer)
	assert.Equal(t, "test-secret", cfg.Auth.Bearer.Secret)

	assert.Equal(t, 30*time.Second, cfg.Cache.DefaultTTL.Duration())
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/gateway.yaml")
	require.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader("server: [not a map"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestEnvVarSubstitution(t *testing.T) {
	t.Setenv("GATEPIPE_TEST_PORT", "8181")
	t.Setenv("GATEPIPE_TEST_SECRET", "env-secret")

	input := `
server:
  port: ${GATEPIPE_TEST_PORT}
auth:
  enabled: true
  bearer:
    secret: ${GATEPIPE_TEST_SECRET}
    issuer: ${GATEPIPE_TEST_MISSING:-fallback-issuer}
`
	cfg, err := LoadConfigFromReader(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	require.NotNil(t, cfg.Auth.Bearer)
	assert.Equal(t, "env-secret", cfg.Auth.Bearer.Secret)
	assert.Equal(t, "fallback-issuer", cfg.Auth.Bearer.Issuer)
}

func TestEnvVarSubstitutionMissingNoDefault(t *testing.T) {
	result := substituteEnvVars("value: ${GATEPIPE_DEFINITELY_MISSING}")
	assert.Equal(t, "value: ", result)
}

func TestEnvVarSubstitutionEscapedDollar(t *testing.T) {
	result := substituteEnvVars("password: a$$b")
	assert.Equal(t, "password: a$b", result)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.Equal(t, DefaultForwardTimeout, cfg.Pipeline.DefaultTimeout.Duration())
	assert.Equal(t, DefaultTenantHeader, cfg.Pipeline.TenantHeader)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.False(t, cfg.Cache.Enabled)

	require.NoError(t, ValidateConfig(cfg))
}
