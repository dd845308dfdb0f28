package auth

import (
	"encoding/json"
	"strings"
	"time"
)

// tokenClaims holds the registered claims of a decoded bearer token
// alongside the raw claim set.
type tokenClaims struct {
	Issuer    string
	Subject   string
	Audience  audience
	ExpiresAt time.Time
	NotBefore time.Time
	IssuedAt  time.Time

	raw map[string]any
}

// audience is the aud claim, which may be encoded as a single string
// or an array of strings.
type audience []string

// Contains checks if the audience contains a specific value.
func (a audience) Contains(aud string) bool {
	for _, v := range a {
		if v == aud {
			return true
		}
	}
	return false
}

// ContainsAny checks if the audience contains any of the specified values.
func (a audience) ContainsAny(auds ...string) bool {
	for _, aud := range auds {
		if a.Contains(aud) {
			return true
		}
	}
	return false
}

// parseClaims decodes a JSON claim set and lifts the registered claims
// into typed fields. The raw map is retained for custom claims.
func parseClaims(payload []byte) (*tokenClaims, error) {
	raw := make(map[string]any)
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	claims := &tokenClaims{raw: raw}
	for key, value := range raw {
		switch key {
		case "iss":
			if s, ok := value.(string); ok {
				claims.Issuer = s
			}
		case "sub":
			if s, ok := value.(string); ok {
				claims.Subject = s
			}
		case "aud":
			claims.Audience = parseAudience(value)
		case "exp":
			claims.ExpiresAt = parseNumericDate(value)
		case "nbf":
			claims.NotBefore = parseNumericDate(value)
		case "iat":
			claims.IssuedAt = parseNumericDate(value)
		}
	}
	return claims, nil
}

// parseAudience parses the audience claim.
func parseAudience(value any) audience {
	switch v := value.(type) {
	case string:
		return audience{v}
	case []string:
		return audience(v)
	case []any:
		result := make(audience, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}

// parseNumericDate parses a NumericDate claim value. Returns the zero
// time when the value is absent or not numeric.
func parseNumericDate(value any) time.Time {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	}
	return time.Time{}
}

// stringClaim returns the named claim as a string, or "" when absent
// or not a string.
func (c *tokenClaims) stringClaim(name string) string {
	if s, ok := c.raw[name].(string); ok {
		return s
	}
	return ""
}

// stringSliceClaim returns the named claim as a string slice. String
// values are split on whitespace, the common encoding for scopes.
func (c *tokenClaims) stringSliceClaim(name string) []string {
	switch v := c.raw[name].(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	case string:
		return strings.Fields(v)
	default:
		return nil
	}
}
