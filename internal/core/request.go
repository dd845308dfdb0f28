package core

import (
	"net/textproto"
	"strings"
	"time"
)

// Request is the transport-independent descriptor of an inbound request.
// The transport adapter constructs it once per request; pipeline stages
// never mutate it. Forwarding to an upstream operates on a Clone.
type Request struct {
	// Method is the HTTP method, upper case.
	Method string

	// Path is the URL path component, without query string.
	Path string

	// Headers holds the request headers with canonical MIME keys.
	Headers map[string][]string

	// Query holds the decoded query parameters.
	Query map[string][]string

	// Body is the raw request body. May be nil.
	Body []byte

	// ClientIP is the originating client address, already resolved
	// through trusted forwarding headers by the transport adapter.
	ClientIP string

	// UserAgent is the User-Agent header value.
	UserAgent string

	// TenantID is the declared tenant, empty when single-tenant.
	TenantID string

	// Identity is the authenticated identity. Pre-populated by the
	// transport layer when an outer system already authenticated the
	// caller, otherwise set by the auth stage.
	Identity *Identity

	// RequestID identifies the request across logs, traces and events.
	// Assigned by the pipeline when empty.
	RequestID string

	// ReceivedAt is the time the transport adapter accepted the request.
	ReceivedAt time.Time

	// Per-request bypass flags.
	SkipRateLimit  bool
	SkipAuth       bool
	SkipCache      bool
	SkipValidation bool
}

// Header returns the first value for the given header key, using
// canonical-key lookup. Empty string when absent.
func (r *Request) Header(key string) string {
	if r.Headers == nil {
		return ""
	}
	values := r.Headers[textproto.CanonicalMIMEHeaderKey(key)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// SetHeader replaces the values for the given header key on this request.
// Only used on clones; the pipeline never calls it on the original.
func (r *Request) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string][]string)
	}
	r.Headers[textproto.CanonicalMIMEHeaderKey(key)] = []string{value}
}

// DelHeader removes the given header key. Only used on clones.
func (r *Request) DelHeader(key string) {
	delete(r.Headers, textproto.CanonicalMIMEHeaderKey(key))
}

// QueryParam returns the first value of the given query parameter.
func (r *Request) QueryParam(key string) string {
	if r.Query == nil {
		return ""
	}
	values := r.Query[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Endpoint returns "METHOD path", the endpoint discriminator used by
// per-endpoint rate limiting and metrics.
func (r *Request) Endpoint() string {
	return r.Method + " " + r.Path
}

// ContentLength returns the body length in bytes.
func (r *Request) ContentLength() int {
	return len(r.Body)
}

// Clone returns a deep copy of the request suitable for mutation before
// upstream forwarding. Header and query maps are copied; the body slice
// is shared because no stage writes into it.
func (r *Request) Clone() *Request {
	clone := *r

	clone.Headers = make(map[string][]string, len(r.Headers))
	for k, v := range r.Headers {
		vv := make([]string, len(v))
		copy(vv, v)
		clone.Headers[k] = vv
	}

	clone.Query = make(map[string][]string, len(r.Query))
	for k, v := range r.Query {
		vv := make([]string, len(v))
		copy(vv, v)
		clone.Query[k] = vv
	}

	return &clone
}

// NormalizeMethod upper-cases and trims an HTTP method string.
func NormalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}
