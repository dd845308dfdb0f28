package routing

import (
	"fmt"
	"regexp"
	"strings"
)

// Match kinds accepted in route configuration.
const (
	MatchExact    = "exact"
	MatchPrefix   = "prefix"
	MatchRegex    = "regex"
	MatchWildcard = "wildcard"
)

// pathMatcher is implemented by the compiled per-kind matchers.
type pathMatcher interface {
	matches(path string) bool
	kind() string
}

type exactMatcher struct {
	path string
}

func (m *exactMatcher) matches(path string) bool { return path == m.path }
func (m *exactMatcher) kind() string             { return MatchExact }

// prefixMatcher matches at path segment boundaries: /api matches /api
// and /api/v1 but not /apidocs.
type prefixMatcher struct {
	prefix string
}

func (m *prefixMatcher) matches(path string) bool {
	if !strings.HasPrefix(path, m.prefix) {
		return false
	}
	if len(path) == len(m.prefix) {
		return true
	}
	return strings.HasSuffix(m.prefix, "/") || path[len(m.prefix)] == '/'
}

func (m *prefixMatcher) kind() string { return MatchPrefix }

// regexMatcher matches full or partial depending on the pattern's own
// anchors.
type regexMatcher struct {
	expr *regexp.Regexp
}

func (m *regexMatcher) matches(path string) bool { return m.expr.MatchString(path) }
func (m *regexMatcher) kind() string             { return MatchRegex }

type wildcardMatcher struct {
	expr *regexp.Regexp
}

func (m *wildcardMatcher) matches(path string) bool { return m.expr.MatchString(path) }
func (m *wildcardMatcher) kind() string             { return MatchWildcard }

// newPathMatcher compiles a pattern under the given match kind. An
// empty kind is inferred from the pattern: anything containing a
// wildcard character compiles as wildcard, the rest as exact.
func newPathMatcher(matchKind, pattern string) (pathMatcher, error) {
	if matchKind == "" {
		matchKind = inferMatchKind(pattern)
	}

	switch matchKind {
	case MatchExact:
		return &exactMatcher{path: pattern}, nil

	case MatchPrefix:
		return &prefixMatcher{prefix: pattern}, nil

	case MatchRegex:
		expr, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile path regex %q: %w", pattern, err)
		}
		return &regexMatcher{expr: expr}, nil

	case MatchWildcard:
		expr, err := regexp.Compile(wildcardToRegex(pattern))
		if err != nil {
			return nil, fmt.Errorf("compile wildcard pattern %q: %w", pattern, err)
		}
		return &wildcardMatcher{expr: expr}, nil

	default:
		return nil, fmt.Errorf("unknown match kind %q", matchKind)
	}
}

func inferMatchKind(pattern string) string {
	if strings.ContainsAny(pattern, "*?") {
		return MatchWildcard
	}
	return MatchExact
}

// wildcardToRegex translates a wildcard pattern to an anchored regex:
// ** crosses path segments, * and ? stay within one.
func wildcardToRegex(pattern string) string {
	var result strings.Builder
	result.WriteString("^")

	i := 0
	for i < len(pattern) {
		switch {
		case i+1 < len(pattern) && pattern[i:i+2] == "**":
			result.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			result.WriteString("[^/]*")
			i++
		case pattern[i] == '?':
			result.WriteString("[^/]")
			i++
		default:
			result.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}

	result.WriteString("$")
	return result.String()
}
