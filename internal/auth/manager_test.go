package auth

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
)

func newTestManager(t *testing.T, cfg *config.AuthConfig) *Manager {
	t.Helper()
	m, err := NewManager(cfg, nil, NewMetricsWithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func apikeyAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		Enabled:  true,
		Required: true,
		APIKey: &config.APIKeyConfig{
			Keys: []config.APIKeyEntry{{
				Key:      "valid-key",
				Subject:  "orders-service",
				TenantID: "acme",
				Roles:    []string{"service"},
				Scopes:   []string{"orders:read"},
			}},
		},
	}
}

func authRequest() *core.Request {
	return &core.Request{
		Method:   "GET",
		Path:     "/api/orders",
		ClientIP: "203.0.113.7",
		TenantID: "acme",
	}
}

func TestManagerDisabledAllowsAnonymous(t *testing.T) {
	m := newTestManager(t, &config.AuthConfig{})

	outcome := m.Authenticate(context.Background(), authRequest())
	require.True(t, outcome.Authenticated)
	assert.Equal(t, StatusOK, outcome.Status)
	assert.Nil(t, outcome.Identity)
}

func TestManagerAPIKeySuccess(t *testing.T) {
	m := newTestManager(t, apikeyAuthConfig())

	req := authRequest()
	req.SetHeader("X-API-Key", "valid-key")

	outcome := m.Authenticate(context.Background(), req)
	require.True(t, outcome.Authenticated)
	require.NotNil(t, outcome.Identity)
	assert.Equal(t, "orders-service", outcome.Identity.Subject)
	assert.Equal(t, core.AuthMethodAPIKey, outcome.Identity.Method)
}

func TestManagerAPIKeyFromQuery(t *testing.T) {
	m := newTestManager(t, apikeyAuthConfig())

	req := authRequest()
	req.Query = map[string][]string{"api_key": {"valid-key"}}

	outcome := m.Authenticate(context.Background(), req)
	assert.True(t, outcome.Authenticated)
}

func TestManagerInvalidKeyDenied(t *testing.T) {
	m := newTestManager(t, apikeyAuthConfig())

	req := authRequest()
	req.SetHeader("X-API-Key", "wrong-key")

	outcome := m.Authenticate(context.Background(), req)
	require.False(t, outcome.Authenticated)
	assert.Equal(t, StatusInvalidCredentials, outcome.Status)
	assert.Equal(t, "invalid api key", outcome.Message)
}

func TestManagerMissingCredentialsRequired(t *testing.T) {
	m := newTestManager(t, apikeyAuthConfig())

	outcome := m.Authenticate(context.Background(), authRequest())
	require.False(t, outcome.Authenticated)
	assert.Equal(t, StatusMissingCredentials, outcome.Status)
}

func TestManagerMissingCredentialsOptional(t *testing.T) {
	cfg := apikeyAuthConfig()
	cfg.Required = false
	m := newTestManager(t, cfg)

	outcome := m.Authenticate(context.Background(), authRequest())
	require.True(t, outcome.Authenticated)
	assert.Equal(t, StatusOK, outcome.Status)
	assert.Nil(t, outcome.Identity)
}

func TestManagerPresentButInvalidStillDeniedWhenOptional(t *testing.T) {
	cfg := apikeyAuthConfig()
	cfg.Required = false
	m := newTestManager(t, cfg)

	req := authRequest()
	req.SetHeader("X-API-Key", "wrong-key")

	outcome := m.Authenticate(context.Background(), req)
	require.False(t, outcome.Authenticated)
	assert.Equal(t, StatusInvalidCredentials, outcome.Status)
}

func TestManagerDispatchesAcrossMethods(t *testing.T) {
	cfg := apikeyAuthConfig()
	cfg.Bearer = &config.BearerConfig{Secret: bearerTestSecret}
	m := newTestManager(t, cfg)

	tok, err := jwt.NewBuilder().
		Subject("alice").
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(bearerTestSecret)))
	require.NoError(t, err)

	req := authRequest()
	req.SetHeader("Authorization", "Bearer "+string(signed))

	outcome := m.Authenticate(context.Background(), req)
	require.True(t, outcome.Authenticated)
	assert.Equal(t, core.AuthMethodBearer, outcome.Identity.Method)
	assert.Equal(t, "alice", outcome.Identity.Subject)
}

func TestManagerBearerExpiredOutcome(t *testing.T) {
	m := newTestManager(t, &config.AuthConfig{
		Enabled:  true,
		Required: true,
		Bearer:   &config.BearerConfig{Secret: bearerTestSecret},
	})

	tok, err := jwt.NewBuilder().
		Subject("alice").
		Expiration(time.Now().Add(-time.Minute)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(bearerTestSecret)))
	require.NoError(t, err)

	req := authRequest()
	req.SetHeader("Authorization", "Bearer "+string(signed))

	outcome := m.Authenticate(context.Background(), req)
	require.False(t, outcome.Authenticated)
	assert.Equal(t, StatusExpired, outcome.Status)
}

func TestManagerBasicSuccess(t *testing.T) {
	m := newTestManager(t, &config.AuthConfig{
		Enabled:  true,
		Required: true,
		Basic: &config.BasicConfig{
			Users: []config.BasicUserEntry{{Username: "alice", Password: "wonderland"}},
		},
	})

	req := authRequest()
	req.SetHeader("Authorization", "Basic "+basicCredentials("alice", "wonderland"))

	outcome := m.Authenticate(context.Background(), req)
	require.True(t, outcome.Authenticated)
	assert.Equal(t, "alice", outcome.Identity.Subject)
	assert.Equal(t, core.AuthMethodBasic, outcome.Identity.Method)
}

func TestManagerMethodValidation(t *testing.T) {
	_, err := NewManager(&config.AuthConfig{
		Enabled: true,
		Methods: []string{"kerberos"},
	}, nil, NewMetricsWithRegisterer(prometheus.NewRegistry()))
	assert.Error(t, err)

	_, err = NewManager(&config.AuthConfig{
		Enabled: true,
		Methods: []string{core.AuthMethodAPIKey},
	}, nil, NewMetricsWithRegisterer(prometheus.NewRegistry()))
	assert.Error(t, err)
}

func TestManagerFailureLockout(t *testing.T) {
	cfg := apikeyAuthConfig()
	cfg.FailureTracking = &config.FailureTrackingConfig{
		Enabled:   true,
		Threshold: 3,
		Window:    config.Duration(time.Minute),
	}
	m := newTestManager(t, cfg)

	req := authRequest()
	req.SetHeader("X-API-Key", "wrong-key")

	for i := 0; i < 3; i++ {
		outcome := m.Authenticate(context.Background(), req)
		assert.Equal(t, StatusInvalidCredentials, outcome.Status)
	}

	outcome := m.Authenticate(context.Background(), req)
	require.Equal(t, StatusRateLimited, outcome.Status)
	assert.Greater(t, outcome.RetryAfter, time.Duration(0))

	// The lockout also rejects valid credentials.
	req.SetHeader("X-API-Key", "valid-key")
	outcome = m.Authenticate(context.Background(), req)
	assert.Equal(t, StatusRateLimited, outcome.Status)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.metrics.lockoutsTotal))
}

func TestManagerLockoutClears(t *testing.T) {
	cfg := apikeyAuthConfig()
	cfg.FailureTracking = &config.FailureTrackingConfig{
		Enabled:   true,
		Threshold: 2,
		Window:    config.Duration(60 * time.Millisecond),
	}
	m := newTestManager(t, cfg)

	req := authRequest()
	req.SetHeader("X-API-Key", "wrong-key")
	m.Authenticate(context.Background(), req)
	m.Authenticate(context.Background(), req)

	outcome := m.Authenticate(context.Background(), req)
	require.Equal(t, StatusRateLimited, outcome.Status)

	time.Sleep(100 * time.Millisecond)

	req.SetHeader("X-API-Key", "valid-key")
	outcome = m.Authenticate(context.Background(), req)
	assert.True(t, outcome.Authenticated)
}

func TestManagerSuccessClearsFailures(t *testing.T) {
	cfg := apikeyAuthConfig()
	cfg.FailureTracking = &config.FailureTrackingConfig{
		Enabled:   true,
		Threshold: 3,
		Window:    config.Duration(time.Minute),
	}
	m := newTestManager(t, cfg)

	bad := authRequest()
	bad.SetHeader("X-API-Key", "wrong-key")
	good := authRequest()
	good.SetHeader("X-API-Key", "valid-key")

	m.Authenticate(context.Background(), bad)
	m.Authenticate(context.Background(), bad)
	require.True(t, m.Authenticate(context.Background(), good).Authenticated)

	m.Authenticate(context.Background(), bad)
	m.Authenticate(context.Background(), bad)
	outcome := m.Authenticate(context.Background(), bad)
	assert.Equal(t, StatusInvalidCredentials, outcome.Status)
}

func TestManagerLockoutIsPerClient(t *testing.T) {
	cfg := apikeyAuthConfig()
	cfg.FailureTracking = &config.FailureTrackingConfig{
		Enabled:   true,
		Threshold: 2,
		Window:    config.Duration(time.Minute),
	}
	m := newTestManager(t, cfg)

	req := authRequest()
	req.SetHeader("X-API-Key", "wrong-key")
	m.Authenticate(context.Background(), req)
	m.Authenticate(context.Background(), req)

	other := authRequest()
	other.ClientIP = "198.51.100.4"
	other.SetHeader("X-API-Key", "valid-key")

	outcome := m.Authenticate(context.Background(), other)
	assert.True(t, outcome.Authenticated)
}

func TestManagerMultiTenant(t *testing.T) {
	cfg := apikeyAuthConfig()
	cfg.MultiTenant = true
	m := newTestManager(t, cfg)

	t.Run("matching tenant", func(t *testing.T) {
		req := authRequest()
		req.SetHeader("X-API-Key", "valid-key")

		outcome := m.Authenticate(context.Background(), req)
		assert.True(t, outcome.Authenticated)
	})

	t.Run("mismatched tenant", func(t *testing.T) {
		req := authRequest()
		req.TenantID = "globex"
		req.SetHeader("X-API-Key", "valid-key")

		outcome := m.Authenticate(context.Background(), req)
		require.False(t, outcome.Authenticated)
		assert.Equal(t, StatusForbidden, outcome.Status)
	})

	t.Run("unscoped credential", func(t *testing.T) {
		unscoped := &config.AuthConfig{
			Enabled:     true,
			Required:    true,
			MultiTenant: true,
			APIKey: &config.APIKeyConfig{
				Keys: []config.APIKeyEntry{{Key: "global-key", Subject: "admin-service"}},
			},
		}
		mgr := newTestManager(t, unscoped)

		req := authRequest()
		req.TenantID = "globex"
		req.SetHeader("X-API-Key", "global-key")

		outcome := mgr.Authenticate(context.Background(), req)
		assert.True(t, outcome.Authenticated)
	})
}

func TestManagerPolicy(t *testing.T) {
	cfg := apikeyAuthConfig()
	cfg.Policy = &config.PolicyConfig{Expression: `"service" in roles && method == "GET"`}
	m := newTestManager(t, cfg)

	req := authRequest()
	req.SetHeader("X-API-Key", "valid-key")

	outcome := m.Authenticate(context.Background(), req)
	assert.True(t, outcome.Authenticated)

	denied := authRequest()
	denied.Method = "DELETE"
	denied.SetHeader("X-API-Key", "valid-key")

	outcome = m.Authenticate(context.Background(), denied)
	require.False(t, outcome.Authenticated)
	assert.Equal(t, StatusForbidden, outcome.Status)
	assert.Equal(t, "denied by policy", outcome.Message)
}

func TestManagerPolicyAppliesToAnonymous(t *testing.T) {
	cfg := apikeyAuthConfig()
	cfg.Required = false
	cfg.Policy = &config.PolicyConfig{Expression: `subject != ""`}
	m := newTestManager(t, cfg)

	outcome := m.Authenticate(context.Background(), authRequest())
	require.False(t, outcome.Authenticated)
	assert.Equal(t, StatusForbidden, outcome.Status)
}

func TestManagerPolicyCompileErrorIsFatal(t *testing.T) {
	cfg := apikeyAuthConfig()
	cfg.Policy = &config.PolicyConfig{Expression: `not valid CEL at all`}

	_, err := NewManager(cfg, nil, NewMetricsWithRegisterer(prometheus.NewRegistry()))
	assert.Error(t, err)
}

func TestManagerAuthorize(t *testing.T) {
	m := newTestManager(t, apikeyAuthConfig())
	identity := &core.Identity{
		Subject: "alice",
		Roles:   []string{"editor"},
		Scopes:  []string{"orders:read", "orders:write"},
	}

	t.Run("no requirements", func(t *testing.T) {
		outcome := m.Authorize(identity, nil, nil)
		assert.True(t, outcome.Authenticated)
	})

	t.Run("role matches", func(t *testing.T) {
		outcome := m.Authorize(identity, []string{"admin", "editor"}, nil)
		assert.True(t, outcome.Authenticated)
	})

	t.Run("role missing", func(t *testing.T) {
		outcome := m.Authorize(identity, []string{"admin"}, nil)
		require.False(t, outcome.Authenticated)
		assert.Equal(t, StatusForbidden, outcome.Status)
		assert.Contains(t, outcome.Message, "admin")
	})

	t.Run("scopes all present", func(t *testing.T) {
		outcome := m.Authorize(identity, nil, []string{"orders:read", "orders:write"})
		assert.True(t, outcome.Authenticated)
	})

	t.Run("scope missing", func(t *testing.T) {
		outcome := m.Authorize(identity, nil, []string{"orders:read", "orders:delete"})
		require.False(t, outcome.Authenticated)
		assert.Equal(t, StatusForbidden, outcome.Status)
		assert.Contains(t, outcome.Message, "orders:delete")
	})

	t.Run("anonymous with requirements", func(t *testing.T) {
		outcome := m.Authorize(nil, []string{"admin"}, nil)
		require.False(t, outcome.Authenticated)
		assert.Equal(t, StatusForbidden, outcome.Status)

		outcome = m.Authorize(nil, nil, []string{"orders:read"})
		assert.False(t, outcome.Authenticated)
	})

	t.Run("anonymous without requirements", func(t *testing.T) {
		outcome := m.Authorize(nil, nil, nil)
		assert.True(t, outcome.Authenticated)
	})
}

func TestManagerChallenge(t *testing.T) {
	m := newTestManager(t, &config.AuthConfig{
		Enabled: true,
		Bearer:  &config.BearerConfig{Secret: "s"},
	})
	assert.Equal(t, "Bearer", m.Challenge())

	m = newTestManager(t, &config.AuthConfig{
		Enabled: true,
		Basic: &config.BasicConfig{
			Users: []config.BasicUserEntry{{Username: "a", Password: "b"}},
		},
	})
	assert.Equal(t, `Basic realm="restricted"`, m.Challenge())

	m = newTestManager(t, &config.AuthConfig{Enabled: true})
	assert.Equal(t, "", m.Challenge())
}

func TestManagerAttemptMetrics(t *testing.T) {
	m := newTestManager(t, apikeyAuthConfig())

	req := authRequest()
	req.SetHeader("X-API-Key", "valid-key")
	m.Authenticate(context.Background(), req)

	req.SetHeader("X-API-Key", "wrong-key")
	m.Authenticate(context.Background(), req)

	ok := testutil.ToFloat64(m.metrics.attemptsTotal.WithLabelValues(core.AuthMethodAPIKey, string(StatusOK)))
	invalid := testutil.ToFloat64(m.metrics.attemptsTotal.WithLabelValues(core.AuthMethodAPIKey, string(StatusInvalidCredentials)))
	assert.Equal(t, float64(1), ok)
	assert.Equal(t, float64(1), invalid)
}
