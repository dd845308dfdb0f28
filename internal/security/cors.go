package security

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
	"github.com/calmisko/gatepipe/internal/observability"
)

// DefaultCORSMaxAge bounds how long browsers may cache a preflight
// grant when no maxAge is configured.
const DefaultCORSMaxAge = 10 * time.Minute

// originRegexPrefix marks an allow-origin entry as a regular
// expression.
const originRegexPrefix = "regex:"

// defaultAllowMethods is granted when the configuration lists no
// methods.
var defaultAllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

// defaultAllowHeaders is granted when the configuration lists no
// request headers.
var defaultAllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}

// corsPolicy holds pre-computed CORS grants. Origin entries are split
// at construction into exact matches, "*.domain" wildcards and
// compiled regex patterns; header values that never change per
// request are pre-joined.
type corsPolicy struct {
	exactOrigins    map[string]struct{}
	wildcardOrigins []string
	regexOrigins    []*regexp.Regexp
	allowAllOrigins bool

	allowMethods map[string]struct{}
	allowHeaders map[string]struct{}

	methodsHeader    string
	headersHeader    string
	exposeHeader     string
	maxAgeHeader     string
	allowCredentials bool
}

// newCORSPolicy compiles the configured allow-lists into a policy.
func newCORSPolicy(cfg *config.CORSConfig) (*corsPolicy, error) {
	p := &corsPolicy{
		exactOrigins:     make(map[string]struct{}),
		allowMethods:     make(map[string]struct{}),
		allowHeaders:     make(map[string]struct{}),
		allowCredentials: cfg.AllowCredentials,
	}

	for _, origin := range cfg.AllowOrigins {
		switch {
		case origin == "*":
			p.allowAllOrigins = true
		case strings.HasPrefix(origin, originRegexPrefix):
			pattern := strings.TrimPrefix(origin, originRegexPrefix)
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("compile cors origin pattern %q: %w", pattern, err)
			}
			p.regexOrigins = append(p.regexOrigins, re)
		case strings.HasPrefix(origin, "*."):
			p.wildcardOrigins = append(p.wildcardOrigins, origin)
		default:
			p.exactOrigins[origin] = struct{}{}
		}
	}

	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = defaultAllowMethods
	}
	normalized := make([]string, 0, len(methods))
	for _, method := range methods {
		method = core.NormalizeMethod(method)
		p.allowMethods[method] = struct{}{}
		normalized = append(normalized, method)
	}
	p.methodsHeader = strings.Join(normalized, ", ")

	headers := cfg.AllowHeaders
	if len(headers) == 0 {
		headers = defaultAllowHeaders
	}
	for _, header := range headers {
		p.allowHeaders[strings.ToLower(header)] = struct{}{}
	}
	p.headersHeader = strings.Join(headers, ", ")

	p.exposeHeader = strings.Join(cfg.ExposeHeaders, ", ")

	maxAge := cfg.MaxAge.Duration()
	if maxAge <= 0 {
		maxAge = DefaultCORSMaxAge
	}
	p.maxAgeHeader = strconv.Itoa(int(maxAge.Seconds()))

	return p, nil
}

// originAllowed checks the origin against the allow-list.
func (p *corsPolicy) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if p.allowAllOrigins {
		return true
	}
	if _, ok := p.exactOrigins[origin]; ok {
		return true
	}
	for _, pattern := range p.wildcardOrigins {
		if matchWildcardOrigin(origin, pattern) {
			return true
		}
	}
	for _, re := range p.regexOrigins {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

// allowOriginValue returns the Access-Control-Allow-Origin value for
// an allowed origin: the literal "*" when a wildcard is configured
// and credentials are disabled, the echoed origin otherwise.
func (p *corsPolicy) allowOriginValue(origin string) string {
	if p.allowAllOrigins && !p.allowCredentials {
		return "*"
	}
	return origin
}

func (p *corsPolicy) methodAllowed(method string) bool {
	_, ok := p.allowMethods[core.NormalizeMethod(method)]
	return ok
}

// headersAllowed checks a comma-separated Access-Control-Request-Headers
// value against the allow-set. It returns the first header that is
// not allowed.
func (p *corsPolicy) headersAllowed(requested string) (bool, string) {
	if requested == "" {
		return true, ""
	}
	for _, header := range strings.Split(requested, ",") {
		header = strings.TrimSpace(header)
		if header == "" {
			continue
		}
		if _, ok := p.allowHeaders[strings.ToLower(header)]; !ok {
			return false, header
		}
	}
	return true, ""
}

// apply attaches CORS headers to a non-preflight response when the
// request origin is allowed. The Vary entry is appended so upstream
// Vary values survive.
func (p *corsPolicy) apply(resp *core.Response, origin string) {
	if !p.originAllowed(origin) {
		return
	}
	resp.SetHeader("Access-Control-Allow-Origin", p.allowOriginValue(origin))
	resp.AddHeader("Vary", "Origin")
	if p.exposeHeader != "" {
		resp.SetHeader("Access-Control-Expose-Headers", p.exposeHeader)
	}
	if p.allowCredentials {
		resp.SetHeader("Access-Control-Allow-Credentials", "true")
	}
}

// matchWildcardOrigin checks an origin against a "*.domain" pattern.
// The scheme and port are stripped before matching, and the host must
// carry at least one label before the suffix: "*.example.com" matches
// "https://api.example.com" but not "https://example.com".
func matchWildcardOrigin(origin, pattern string) bool {
	if !strings.HasPrefix(pattern, "*.") {
		return false
	}
	suffix := pattern[1:]

	host := origin
	if idx := strings.Index(host, "://"); idx != -1 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
}

// Preflight short-circuits CORS preflight requests. It returns nil
// when CORS handling is disabled or the request is not a preflight
// (OPTIONS with Origin and Access-Control-Request-Method). An allowed
// preflight yields a 204 carrying the granted Access-Control headers;
// a denied one yields a 403 with a machine-readable reason and never
// an Access-Control-Allow-Origin header.
func (m *Manager) Preflight(req *core.Request) *core.Response {
	if m.cors == nil || req == nil {
		return nil
	}
	origin := req.Header("Origin")
	requestedMethod := req.Header("Access-Control-Request-Method")
	if req.Method != http.MethodOptions || origin == "" || requestedMethod == "" {
		return nil
	}

	if !m.cors.originAllowed(origin) {
		return m.denyPreflight(req, "cors_origin_denied",
			fmt.Sprintf("origin %q is not allowed", origin))
	}
	if !m.cors.methodAllowed(requestedMethod) {
		return m.denyPreflight(req, "cors_method_denied",
			fmt.Sprintf("method %q is not allowed", requestedMethod))
	}
	if ok, header := m.cors.headersAllowed(req.Header("Access-Control-Request-Headers")); !ok {
		return m.denyPreflight(req, "cors_header_denied",
			fmt.Sprintf("header %q is not allowed", header))
	}

	resp := core.NewResponse(http.StatusNoContent, core.StatusSuccess)
	resp.SetHeader("Access-Control-Allow-Origin", m.cors.allowOriginValue(origin))
	resp.SetHeader("Access-Control-Allow-Methods", m.cors.methodsHeader)
	if m.cors.headersHeader != "" {
		resp.SetHeader("Access-Control-Allow-Headers", m.cors.headersHeader)
	}
	resp.SetHeader("Access-Control-Max-Age", m.cors.maxAgeHeader)
	if m.cors.allowCredentials {
		resp.SetHeader("Access-Control-Allow-Credentials", "true")
	}
	resp.SetHeader("Vary", "Origin")

	m.metrics.RecordPreflight(true)
	return resp
}

func (m *Manager) denyPreflight(req *core.Request, reason, detail string) *core.Response {
	m.metrics.RecordPreflight(false)
	m.logger.Warn("cors preflight denied",
		observability.String("origin", req.Header("Origin")),
		observability.String("path", req.Path),
		observability.String("reason", reason),
	)
	return core.ErrorResponse(http.StatusForbidden, core.StatusForbidden, reason, detail)
}
