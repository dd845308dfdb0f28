package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
)

// Bearer token defaults.
const (
	bearerScheme          = "Bearer "
	DefaultTokenCacheSize = 1024
	DefaultTokenCacheTTL  = 5 * time.Minute
	DefaultRolesClaim     = "roles"
	DefaultScopesClaim    = "scope"
	DefaultTenantClaim    = "tenant"
)

// tokenHeader is the decoded JOSE header. Only HS256 is accepted;
// there is no key or algorithm agility.
type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// cachedToken remembers a verified token's identity until the token
// itself expires.
type cachedToken struct {
	identity *core.Identity
	// expiresAt is the token's exp claim. Zero for tokens without one.
	expiresAt time.Time
}

// bearerProvider verifies HMAC-SHA256 signed bearer tokens. Verified
// tokens are cached by digest so repeated requests skip signature and
// claim checks until the cache entry or the token expires.
type bearerProvider struct {
	secret      []byte
	issuer      string
	audience    []string
	leeway      time.Duration
	rolesClaim  string
	scopesClaim string
	tenantClaim string

	cache   *expirable.LRU[string, *cachedToken]
	metrics *Metrics
}

func newBearerProvider(cfg *config.BearerConfig, metrics *Metrics) (*bearerProvider, error) {
	if cfg.Secret == "" {
		return nil, errors.New("bearer: empty signing secret")
	}

	p := &bearerProvider{
		secret:      []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		audience:    append([]string(nil), cfg.Audience...),
		leeway:      cfg.Leeway.Duration(),
		rolesClaim:  cfg.RolesClaim,
		scopesClaim: cfg.ScopesClaim,
		tenantClaim: cfg.TenantClaim,
		metrics:     metrics,
	}
	if p.rolesClaim == "" {
		p.rolesClaim = DefaultRolesClaim
	}
	if p.scopesClaim == "" {
		p.scopesClaim = DefaultScopesClaim
	}
	if p.tenantClaim == "" {
		p.tenantClaim = DefaultTenantClaim
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultTokenCacheSize
	}
	ttl := cfg.CacheTTL.Duration()
	if ttl <= 0 {
		ttl = DefaultTokenCacheTTL
	}
	p.cache = expirable.NewLRU[string, *cachedToken](size, nil, ttl)

	return p, nil
}

// extract returns the bearer token carried by the Authorization
// header, if any. The scheme comparison is case-insensitive.
func (p *bearerProvider) extract(req *core.Request) (string, bool) {
	header := req.Header("Authorization")
	if len(header) < len(bearerScheme) {
		return "", false
	}
	if !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	return token, token != ""
}

// verify validates the token signature and claims and resolves the
// identity. Expired tokens are reported distinctly from malformed or
// incorrectly signed ones.
func (p *bearerProvider) verify(token string) (*core.Identity, Status, string) {
	digest := sha256.Sum256([]byte(token))
	cacheKey := hex.EncodeToString(digest[:])

	now := time.Now()
	if cached, ok := p.cache.Get(cacheKey); ok {
		if cached.expiresAt.IsZero() || now.Before(cached.expiresAt.Add(p.leeway)) {
			if p.metrics != nil {
				p.metrics.RecordTokenCache(true)
			}
			return cloneIdentity(cached.identity), StatusOK, ""
		}
		p.cache.Remove(cacheKey)
		return nil, StatusExpired, "token expired"
	}
	if p.metrics != nil {
		p.metrics.RecordTokenCache(false)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, StatusInvalidCredentials, "malformed token"
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, StatusInvalidCredentials, "malformed token header"
	}
	var header tokenHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, StatusInvalidCredentials, "malformed token header"
	}
	if header.Alg != "HS256" {
		return nil, StatusInvalidCredentials, "unsupported signing algorithm"
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, StatusInvalidCredentials, "malformed token signature"
	}
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(parts[0]))
	mac.Write([]byte("."))
	mac.Write([]byte(parts[1]))
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return nil, StatusInvalidCredentials, "invalid token signature"
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, StatusInvalidCredentials, "malformed token payload"
	}
	claims, err := parseClaims(payloadJSON)
	if err != nil {
		return nil, StatusInvalidCredentials, "malformed token payload"
	}

	if !claims.ExpiresAt.IsZero() && now.After(claims.ExpiresAt.Add(p.leeway)) {
		return nil, StatusExpired, "token expired"
	}
	if !claims.NotBefore.IsZero() && now.Before(claims.NotBefore.Add(-p.leeway)) {
		return nil, StatusInvalidCredentials, "token not yet valid"
	}
	if p.issuer != "" && claims.Issuer != p.issuer {
		return nil, StatusInvalidCredentials, "invalid token issuer"
	}
	if len(p.audience) > 0 && !claims.Audience.ContainsAny(p.audience...) {
		return nil, StatusInvalidCredentials, "invalid token audience"
	}

	identity := &core.Identity{
		Subject:  claims.Subject,
		TenantID: claims.stringClaim(p.tenantClaim),
		Method:   core.AuthMethodBearer,
		Roles:    claims.stringSliceClaim(p.rolesClaim),
		Scopes:   claims.stringSliceClaim(p.scopesClaim),
		Claims:   claims.raw,
	}

	p.cache.Add(cacheKey, &cachedToken{
		identity:  identity,
		expiresAt: claims.ExpiresAt,
	})

	return cloneIdentity(identity), StatusOK, ""
}

// cacheLen reports the number of cached verified tokens.
func (p *bearerProvider) cacheLen() int {
	return p.cache.Len()
}

// cloneIdentity copies an identity so callers cannot mutate the cached
// one through shared slices.
func cloneIdentity(identity *core.Identity) *core.Identity {
	if identity == nil {
		return nil
	}
	clone := *identity
	clone.Roles = append([]string(nil), identity.Roles...)
	clone.Scopes = append([]string(nil), identity.Scopes...)
	return &clone
}
