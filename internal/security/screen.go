package security

import (
	"fmt"
	"net"
	"regexp"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
	"github.com/calmisko/gatepipe/internal/observability"
)

// DefaultMaxBodyBytes is the screening body-size ceiling when none is
// configured.
const DefaultMaxBodyBytes = 10 << 20

// Severity grades a screening violation.
type Severity string

// Violation severities, in ascending order.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Violation kinds.
const (
	KindBodySize         = "body_size"
	KindSuspiciousAgent  = "suspicious_user_agent"
	KindBlockedIP        = "blocked_ip"
	KindIPNotAllowed     = "ip_not_allowed"
	KindPathTraversal    = "path_traversal"
	KindScriptInjection  = "script_injection"
	KindSQLInjection     = "sql_injection"
	KindCommandInjection = "command_injection"
)

// Violation describes a single screening finding.
type Violation struct {
	// Kind identifies the check that fired.
	Kind string

	// Severity grades the finding.
	Severity Severity

	// Detail explains the finding in human-readable form.
	Detail string
}

// Path attack signatures, checked on every screened request. The
// traversal pattern covers URL-encoded variants that decode to "../".
var (
	traversalPattern = regexp.MustCompile(`(?i)(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.\.%2f|%2e%2e%5c|\.\.%5c)`)
	scriptPattern    = regexp.MustCompile(`(?i)(<script|%3cscript|javascript:|onerror\s*=|onload\s*=)`)
	sqlPattern       = regexp.MustCompile(`(?i)(\bunion\s+select\b|\bselect\s+.+\s+from\b|\binsert\s+into\b|\bdelete\s+from\b|\bdrop\s+table\b|\bor\s+1\s*=\s*1\b)`)
	commandPattern   = regexp.MustCompile(`(?i)([;&|]\s*(cat|ls|rm|wget|curl|nc|bash|sh)\b|\$\(|` + "`" + `)`)
)

// screener evaluates inbound requests against the configured
// screening rules.
type screener struct {
	maxBodyBytes int64
	suspiciousUA []*regexp.Regexp
	blocked      *ipSet
	allowed      *ipSet
	trusted      *ipSet
}

func newScreener(cfg *config.ScreeningConfig) (*screener, error) {
	s := &screener{
		maxBodyBytes: cfg.MaxBodyBytes,
		blocked:      newIPSet(cfg.BlockedIPs),
		allowed:      newIPSet(cfg.AllowedIPs),
		trusted:      newIPSet(cfg.TrustedProxies),
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = DefaultMaxBodyBytes
	}

	for _, pattern := range cfg.SuspiciousUserAgents {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile suspicious user agent pattern %q: %w", pattern, err)
		}
		s.suspiciousUA = append(s.suspiciousUA, re)
	}
	return s, nil
}

func (s *screener) screen(req *core.Request) []Violation {
	var violations []Violation

	if size := int64(len(req.Body)); size > s.maxBodyBytes {
		violations = append(violations, Violation{
			Kind:     KindBodySize,
			Severity: SeverityHigh,
			Detail:   fmt.Sprintf("body size %d exceeds limit %d", size, s.maxBodyBytes),
		})
	}

	for _, re := range s.suspiciousUA {
		if re.MatchString(req.UserAgent) {
			violations = append(violations, Violation{
				Kind:     KindSuspiciousAgent,
				Severity: SeverityMedium,
				Detail:   fmt.Sprintf("user agent matches pattern %q", re.String()),
			})
			break
		}
	}

	violations = append(violations, s.screenIP(req.ClientIP)...)
	violations = append(violations, screenPath(req.Path)...)

	return violations
}

// screenIP checks the client IP against the block and allow lists.
// Trusted proxy addresses are exempt from both.
func (s *screener) screenIP(clientIP string) []Violation {
	if s.trusted.contains(clientIP) {
		return nil
	}

	var violations []Violation
	if s.blocked.contains(clientIP) {
		violations = append(violations, Violation{
			Kind:     KindBlockedIP,
			Severity: SeverityCritical,
			Detail:   fmt.Sprintf("client ip %s is on the block-list", clientIP),
		})
	}
	if !s.allowed.empty() && !s.allowed.contains(clientIP) {
		violations = append(violations, Violation{
			Kind:     KindIPNotAllowed,
			Severity: SeverityHigh,
			Detail:   fmt.Sprintf("client ip %s is not on the allow-list", clientIP),
		})
	}
	return violations
}

// screenPath checks the request path against the attack signatures.
func screenPath(path string) []Violation {
	var violations []Violation
	if traversalPattern.MatchString(path) {
		violations = append(violations, Violation{
			Kind:     KindPathTraversal,
			Severity: SeverityCritical,
			Detail:   "path contains a traversal sequence",
		})
	}
	if scriptPattern.MatchString(path) {
		violations = append(violations, Violation{
			Kind:     KindScriptInjection,
			Severity: SeverityHigh,
			Detail:   "path contains a script injection pattern",
		})
	}
	if sqlPattern.MatchString(path) {
		violations = append(violations, Violation{
			Kind:     KindSQLInjection,
			Severity: SeverityHigh,
			Detail:   "path contains SQL keywords",
		})
	}
	if commandPattern.MatchString(path) {
		violations = append(violations, Violation{
			Kind:     KindCommandInjection,
			Severity: SeverityCritical,
			Detail:   "path contains a command injection pattern",
		})
	}
	return violations
}

// Blocked reports whether the violations warrant rejecting the
// request: any critical violation, or two or more high ones.
func Blocked(violations []Violation) bool {
	high := 0
	for _, v := range violations {
		switch v.Severity {
		case SeverityCritical:
			return true
		case SeverityHigh:
			high++
		}
	}
	return high >= 2
}

// Screen evaluates the request against the configured screening rules
// and returns the violations found, each one logged and counted. A
// disabled screening configuration yields none.
func (m *Manager) Screen(req *core.Request) []Violation {
	if m.screener == nil || req == nil {
		return nil
	}

	violations := m.screener.screen(req)
	for _, v := range violations {
		m.metrics.RecordViolation(v.Kind, v.Severity)
		m.logger.Warn("screening violation",
			observability.String("kind", v.Kind),
			observability.String("severity", string(v.Severity)),
			observability.String("detail", v.Detail),
			observability.String("client", req.ClientIP),
			observability.String("path", req.Path),
		)
	}
	if Blocked(violations) {
		m.metrics.RecordBlocked()
	}
	return violations
}

// ipSet matches IP addresses against a list of CIDR blocks or single
// addresses. Invalid entries are skipped.
type ipSet struct {
	cidrs []*net.IPNet
}

func newIPSet(entries []string) *ipSet {
	s := &ipSet{}
	for _, entry := range entries {
		_, cidr, err := net.ParseCIDR(entry)
		if err != nil {
			ip := net.ParseIP(entry)
			if ip == nil {
				continue
			}
			cidr = singleIPToCIDR(ip)
		}
		s.cidrs = append(s.cidrs, cidr)
	}
	return s
}

// singleIPToCIDR converts a single IP address to a /32 or /128 CIDR.
func singleIPToCIDR(ip net.IP) *net.IPNet {
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{
		IP:   ip,
		Mask: net.CIDRMask(bits, bits),
	}
}

func (s *ipSet) empty() bool { return len(s.cidrs) == 0 }

func (s *ipSet) contains(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range s.cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
