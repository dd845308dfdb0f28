package security

import (
	"fmt"
	"sort"
	"strings"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
)

// Security header defaults.
const (
	DefaultHSTSMaxAge         = 31536000
	DefaultFrameOptions       = "DENY"
	DefaultContentTypeOptions = "nosniff"
	DefaultXSSProtection      = "1; mode=block"
)

// headerSet holds pre-computed response security header values.
// Empty values are not emitted.
type headerSet struct {
	hsts               string
	csp                string
	frameOptions       string
	contentTypeOptions string
	xssProtection      string
	referrerPolicy     string
	permissionsPolicy  string
	custom             map[string]string
}

func newHeaderSet(cfg *config.SecurityHeadersConfig) *headerSet {
	h := &headerSet{
		csp:                buildCSP(cfg.ContentSecurityPolicy),
		frameOptions:       cfg.FrameOptions,
		contentTypeOptions: cfg.ContentTypeOptions,
		xssProtection:      cfg.XSSProtection,
		referrerPolicy:     cfg.ReferrerPolicy,
		permissionsPolicy:  buildPermissionsPolicy(cfg.PermissionsPolicy),
		custom:             cfg.Custom,
	}

	if hsts := cfg.HSTS; hsts != nil && hsts.Enabled {
		h.hsts = buildHSTS(hsts)
	}
	if h.frameOptions == "" {
		h.frameOptions = DefaultFrameOptions
	}
	if h.contentTypeOptions == "" {
		h.contentTypeOptions = DefaultContentTypeOptions
	}
	if h.xssProtection == "" {
		h.xssProtection = DefaultXSSProtection
	}

	return h
}

// buildHSTS assembles the Strict-Transport-Security value.
func buildHSTS(cfg *config.HSTSConfig) string {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultHSTSMaxAge
	}

	var b strings.Builder
	fmt.Fprintf(&b, "max-age=%d", maxAge)
	if cfg.IncludeSubDomains {
		b.WriteString("; includeSubDomains")
	}
	if cfg.Preload {
		b.WriteString("; preload")
	}
	return b.String()
}

// buildCSP assembles a Content-Security-Policy value from the
// directive map. Directives are emitted in sorted order so the value
// is stable across restarts; a directive with no sources is emitted
// bare.
func buildCSP(directives map[string][]string) string {
	if len(directives) == 0 {
		return ""
	}

	names := make([]string, 0, len(directives))
	for name := range directives {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		sources := directives[name]
		if len(sources) == 0 {
			parts = append(parts, name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", name, strings.Join(sources, " ")))
	}
	return strings.Join(parts, "; ")
}

// buildPermissionsPolicy assembles a Permissions-Policy value from the
// feature map. A feature with no origins is denied outright with an
// empty allow-list.
func buildPermissionsPolicy(features map[string][]string) string {
	if len(features) == 0 {
		return ""
	}

	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		allowlist := features[name]
		if len(allowlist) == 0 {
			parts = append(parts, fmt.Sprintf("%s=()", name))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=(%s)", name, strings.Join(allowlist, " ")))
	}
	return strings.Join(parts, ", ")
}

// apply sets the configured security headers on the response,
// overwriting any values the upstream supplied for them.
func (h *headerSet) apply(resp *core.Response) {
	if h.hsts != "" {
		resp.SetHeader("Strict-Transport-Security", h.hsts)
	}
	if h.csp != "" {
		resp.SetHeader("Content-Security-Policy", h.csp)
	}
	resp.SetHeader("X-Frame-Options", h.frameOptions)
	resp.SetHeader("X-Content-Type-Options", h.contentTypeOptions)
	resp.SetHeader("X-XSS-Protection", h.xssProtection)
	if h.referrerPolicy != "" {
		resp.SetHeader("Referrer-Policy", h.referrerPolicy)
	}
	if h.permissionsPolicy != "" {
		resp.SetHeader("Permissions-Policy", h.permissionsPolicy)
	}
	for name, value := range h.custom {
		resp.SetHeader(name, value)
	}
}

// ApplyHeaders decorates an outbound response. CORS headers are
// attached when the request carries an allowed Origin, then the
// configured security headers are set. Disabled concerns leave the
// response untouched.
func (m *Manager) ApplyHeaders(resp *core.Response, req *core.Request) {
	if resp == nil {
		return
	}
	if m.cors != nil && req != nil {
		m.cors.apply(resp, req.Header("Origin"))
	}
	if m.headers != nil {
		m.headers.apply(resp)
		m.metrics.RecordHeadersApplied()
	}
}
