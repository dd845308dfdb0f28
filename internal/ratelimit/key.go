package ratelimit

import (
	"github.com/calmisko/gatepipe/internal/core"
)

// Scope selects how rate limit keys are composed from a request.
type Scope string

const (
	// ScopeGlobal shares one budget across all traffic.
	ScopeGlobal Scope = "global"

	// ScopePerClient keys by the client identifier header, falling back
	// to the client IP.
	ScopePerClient Scope = "per_client"

	// ScopePerUser keys by the authenticated subject.
	ScopePerUser Scope = "per_user"

	// ScopePerTenant keys by the request tenant.
	ScopePerTenant Scope = "per_tenant"

	// ScopePerEndpoint keys by client identifier plus method and path.
	ScopePerEndpoint Scope = "per_endpoint"
)

// ScopeOrder is the fixed evaluation order for configured rules: the
// broadest budget is checked first, the narrowest last.
var ScopeOrder = []Scope{ScopeGlobal, ScopePerTenant, ScopePerClient, ScopePerUser, ScopePerEndpoint}

// ValidScope reports whether s names a known scope.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeGlobal, ScopePerClient, ScopePerUser, ScopePerTenant, ScopePerEndpoint:
		return true
	}
	return false
}

// KeyBuilder composes per-scope rate limit keys.
type KeyBuilder struct {
	clientIDHeader string
}

// NewKeyBuilder creates a key builder using the given client identifier
// header.
func NewKeyBuilder(clientIDHeader string) *KeyBuilder {
	if clientIDHeader == "" {
		clientIDHeader = "X-Client-ID"
	}
	return &KeyBuilder{clientIDHeader: clientIDHeader}
}

// ClientID returns the client identifier: the configured header value
// when present, otherwise the client IP.
func (b *KeyBuilder) ClientID(req *core.Request) string {
	if id := req.Header(b.clientIDHeader); id != "" {
		return id
	}
	if req.ClientIP != "" {
		return req.ClientIP
	}
	return "unknown"
}

// Build composes the key for the given scope.
func (b *KeyBuilder) Build(scope Scope, req *core.Request, identity *core.Identity) string {
	switch scope {
	case ScopePerClient:
		return "client:" + b.ClientID(req)
	case ScopePerUser:
		subject := "anonymous"
		if identity != nil && identity.Subject != "" {
			subject = identity.Subject
		}
		return "user:" + subject
	case ScopePerTenant:
		tenant := req.TenantID
		if tenant == "" {
			tenant = "default"
		}
		return "tenant:" + tenant
	case ScopePerEndpoint:
		return "endpoint:" + b.ClientID(req) + ":" + req.Method + ":" + req.Path
	default:
		return "global"
	}
}
