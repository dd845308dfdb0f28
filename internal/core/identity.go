package core

// Authentication methods recorded on a resolved identity.
const (
	AuthMethodAPIKey    = "api_key"
	AuthMethodBearer    = "bearer"
	AuthMethodBasic     = "basic"
	AuthMethodAnonymous = "anonymous"
)

// Identity describes the authenticated principal attached to a request
// after credential verification succeeds.
type Identity struct {
	Subject  string
	TenantID string
	Method   string
	Roles    []string
	Scopes   []string
	Claims   map[string]any
}

// Anonymous returns the identity attached to requests on routes that do
// not require authentication.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", Method: AuthMethodAnonymous}
}

// HasRole reports whether the identity carries the given role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasScope reports whether the identity carries the given scope.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Claim returns the named claim, or nil if absent.
func (i *Identity) Claim(name string) any {
	if i.Claims == nil {
		return nil
	}
	return i.Claims[name]
}
