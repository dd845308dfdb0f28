package auth

import (
	"crypto/sha256"
	"encoding/hex"
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

const bearerTestSecret = "bearer-test-secret"

func newTestBearer(t *testing.T, cfg *config.BearerConfig) *bearerProvider {
	t.Helper()
	if cfg == nil {
		cfg = &config.BearerConfig{Secret: bearerTestSecret}
	}
	p, err := newBearerProvider(cfg, nil)
	require.NoError(t, err)
	return p
}

func signTokenWith(t *testing.T, tok jwt.Token, alg jwa.SignatureAlgorithm, secret string) string {
	t.Helper()
	signed, err := jwt.Sign(tok, jwt.WithKey(alg, []byte(secret)))
	require.NoError(t, err)
	return string(signed)
}

func signToken(t *testing.T, tok jwt.Token) string {
	t.Helper()
	return signTokenWith(t, tok, jwa.HS256, bearerTestSecret)
}

func TestBearerProviderValidToken(t *testing.T) {
	tok, err := jwt.NewBuilder().
		Issuer("gatepipe-tests").
		Subject("alice").
		Expiration(time.Now().Add(time.Hour)).
		Claim("roles", []string{"admin", "ops"}).
		Claim("scope", "orders:read orders:write").
		Claim("tenant", "acme").
		Build()
	require.NoError(t, err)

	p := newTestBearer(t, nil)
	identity, status, message := p.verify(signToken(t, tok))

	require.Equal(t, StatusOK, status)
	require.Empty(t, message)
	assert.Equal(t, "alice", identity.Subject)
	assert.Equal(t, "acme", identity.TenantID)
	assert.Equal(t, core.AuthMethodBearer, identity.Method)
	assert.Equal(t, []string{"admin", "ops"}, identity.Roles)
	assert.Equal(t, []string{"orders:read", "orders:write"}, identity.Scopes)
	assert.Equal(t, "gatepipe-tests", identity.Claims["iss"])
}

func TestBearerProviderExpiredToken(t *testing.T) {
	tok, err := jwt.NewBuilder().
		Subject("alice").
		Expiration(time.Now().Add(-time.Minute)).
		Build()
	require.NoError(t, err)

	p := newTestBearer(t, nil)
	identity, status, message := p.verify(signToken(t, tok))

	assert.Nil(t, identity)
	assert.Equal(t, StatusExpired, status)
	assert.Equal(t, "token expired", message)
}

func TestBearerProviderLeeway(t *testing.T) {
	tok, err := jwt.NewBuilder().
		Subject("alice").
		Expiration(time.Now().Add(-2 * time.Second)).
		Build()
	require.NoError(t, err)

	p := newTestBearer(t, &config.BearerConfig{
		Secret: bearerTestSecret,
		Leeway: config.Duration(10 * time.Second),
	})
	_, status, _ := p.verify(signToken(t, tok))
	assert.Equal(t, StatusOK, status)
}

func TestBearerProviderWrongSecret(t *testing.T) {
	tok, err := jwt.NewBuilder().
		Subject("alice").
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)

	p := newTestBearer(t, nil)
	identity, status, message := p.verify(signTokenWith(t, tok, jwa.HS256, "other-secret"))

	assert.Nil(t, identity)
	assert.Equal(t, StatusInvalidCredentials, status)
	assert.Equal(t, "invalid token signature", message)
}

func TestBearerProviderUnsupportedAlgorithm(t *testing.T) {
	tok, err := jwt.NewBuilder().
		Subject("alice").
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)

	p := newTestBearer(t, nil)
	_, status, message := p.verify(signTokenWith(t, tok, jwa.HS384, bearerTestSecret))

	assert.Equal(t, StatusInvalidCredentials, status)
	assert.Equal(t, "unsupported signing algorithm", message)
}

func TestBearerProviderMalformed(t *testing.T) {
	p := newTestBearer(t, nil)

	tests := []struct {
		name  string
		token string
	}{
		{"not a token", "garbage"},
		{"two parts", "part1.part2"},
		{"four parts", "a.b.c.d"},
		{"invalid header encoding", "!!!.payload.signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, status, _ := p.verify(tt.token)
			assert.Nil(t, identity)
			assert.Equal(t, StatusInvalidCredentials, status)
		})
	}
}

func TestBearerProviderNotYetValid(t *testing.T) {
	tok, err := jwt.NewBuilder().
		Subject("alice").
		NotBefore(time.Now().Add(time.Hour)).
		Expiration(time.Now().Add(2 * time.Hour)).
		Build()
	require.NoError(t, err)

	p := newTestBearer(t, nil)
	_, status, message := p.verify(signToken(t, tok))

	assert.Equal(t, StatusInvalidCredentials, status)
	assert.Equal(t, "token not yet valid", message)
}

func TestBearerProviderIssuerCheck(t *testing.T) {
	p := newTestBearer(t, &config.BearerConfig{
		Secret: bearerTestSecret,
		Issuer: "expected-issuer",
	})

	tok, err := jwt.NewBuilder().
		Issuer("other-issuer").
		Subject("alice").
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)

	_, status, message := p.verify(signToken(t, tok))
	assert.Equal(t, StatusInvalidCredentials, status)
	assert.Equal(t, "invalid token issuer", message)

	tok, err = jwt.NewBuilder().
		Issuer("expected-issuer").
		Subject("alice").
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)

	_, status, _ = p.verify(signToken(t, tok))
	assert.Equal(t, StatusOK, status)
}

func TestBearerProviderAudienceCheck(t *testing.T) {
	p := newTestBearer(t, &config.BearerConfig{
		Secret:   bearerTestSecret,
		Audience: []string{"gateway"},
	})

	tok, err := jwt.NewBuilder().
		Subject("alice").
		Audience([]string{"other"}).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)

	_, status, message := p.verify(signToken(t, tok))
	assert.Equal(t, StatusInvalidCredentials, status)
	assert.Equal(t, "invalid token audience", message)

	tok, err = jwt.NewBuilder().
		Subject("alice").
		Audience([]string{"other", "gateway"}).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)

	_, status, _ = p.verify(signToken(t, tok))
	assert.Equal(t, StatusOK, status)
}

func TestBearerProviderCustomClaimNames(t *testing.T) {
	p := newTestBearer(t, &config.BearerConfig{
		Secret:      bearerTestSecret,
		RolesClaim:  "groups",
		ScopesClaim: "permissions",
		TenantClaim: "org",
	})

	tok, err := jwt.NewBuilder().
		Subject("alice").
		Expiration(time.Now().Add(time.Hour)).
		Claim("groups", []string{"admins"}).
		Claim("permissions", []string{"read", "write"}).
		Claim("org", "acme").
		Build()
	require.NoError(t, err)

	identity, status, _ := p.verify(signToken(t, tok))
	require.Equal(t, StatusOK, status)
	assert.Equal(t, []string{"admins"}, identity.Roles)
	assert.Equal(t, []string{"read", "write"}, identity.Scopes)
	assert.Equal(t, "acme", identity.TenantID)
}

func TestBearerProviderNoExpiry(t *testing.T) {
	tok, err := jwt.NewBuilder().
		Subject("alice").
		Build()
	require.NoError(t, err)

	p := newTestBearer(t, nil)
	_, status, _ := p.verify(signToken(t, tok))
	assert.Equal(t, StatusOK, status)
}

func TestBearerProviderTokenCache(t *testing.T) {
	tok, err := jwt.NewBuilder().
		Subject("alice").
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)

	metrics := NewMetricsWithRegisterer(prometheus.NewRegistry())
	p, err := newBearerProvider(&config.BearerConfig{Secret: bearerTestSecret}, metrics)
	require.NoError(t, err)

	token := signToken(t, tok)

	_, status, _ := p.verify(token)
	require.Equal(t, StatusOK, status)
	assert.Equal(t, 1, p.cacheLen())

	_, status, _ = p.verify(token)
	require.Equal(t, StatusOK, status)
	assert.Equal(t, 1, p.cacheLen())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.tokenCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.tokenCacheTotal.WithLabelValues("miss")))
}

func TestBearerProviderCacheRespectsTokenExpiry(t *testing.T) {
	tok, err := jwt.NewBuilder().
		Subject("alice").
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)

	p := newTestBearer(t, nil)
	token := signToken(t, tok)

	_, status, _ := p.verify(token)
	require.Equal(t, StatusOK, status)

	// Age the cached entry past the token's lifetime.
	digest := sha256.Sum256([]byte(token))
	cacheKey := hex.EncodeToString(digest[:])
	cached, ok := p.cache.Get(cacheKey)
	require.True(t, ok)
	p.cache.Add(cacheKey, &cachedToken{
		identity:  cached.identity,
		expiresAt: time.Now().Add(-time.Minute),
	})

	identity, status, _ := p.verify(token)
	assert.Nil(t, identity)
	assert.Equal(t, StatusExpired, status)
}

func TestBearerProviderCachedIdentityIsolation(t *testing.T) {
	tok, err := jwt.NewBuilder().
		Subject("alice").
		Expiration(time.Now().Add(time.Hour)).
		Claim("roles", []string{"admin"}).
		Build()
	require.NoError(t, err)

	p := newTestBearer(t, nil)
	token := signToken(t, tok)

	first, status, _ := p.verify(token)
	require.Equal(t, StatusOK, status)
	first.Roles[0] = "mutated"

	second, status, _ := p.verify(token)
	require.Equal(t, StatusOK, status)
	assert.Equal(t, []string{"admin"}, second.Roles)
}

func TestBearerProviderExtract(t *testing.T) {
	p := newTestBearer(t, nil)

	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"standard scheme", "Bearer abc123", "abc123", true},
		{"lowercase scheme", "bearer abc123", "abc123", true},
		{"extra whitespace", "Bearer   abc123", "abc123", true},
		{"basic scheme", "Basic abc123", "", false},
		{"empty token", "Bearer   ", "", false},
		{"missing header", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &core.Request{Method: "GET", Path: "/"}
			if tt.header != "" {
				req.SetHeader("Authorization", tt.header)
			}

			token, ok := p.extract(req)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestBearerProviderEmptySecret(t *testing.T) {
	_, err := newBearerProvider(&config.BearerConfig{}, nil)
	assert.Error(t, err)
}
