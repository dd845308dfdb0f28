package routing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
)

// headerRegexPrefix marks a header constraint value as a regular
// expression instead of an exact match.
const headerRegexPrefix = "regex:"

// headerConstraint is one compiled header requirement.
type headerConstraint struct {
	name  string
	exact string
	expr  *regexp.Regexp
}

func (c *headerConstraint) satisfied(req *core.Request) bool {
	value := req.Header(c.name)
	if value == "" {
		return false
	}
	if c.expr != nil {
		return c.expr.MatchString(value)
	}
	return value == c.exact
}

// Route is a compiled route: the configuration plus its matcher,
// resolved upstreams and balancer. Routes are immutable after
// compilation.
type Route struct {
	// ID uniquely identifies the route.
	ID string

	// Config is the configuration the route was compiled from.
	Config config.RouteConfig

	matcher   pathMatcher
	methods   map[string]struct{}
	headers   []headerConstraint
	upstreams []*Upstream
	balancer  Balancer

	seq uint64
}

// compileRoute compiles a route configuration, resolving upstream
// references against the known upstream set.
func compileRoute(cfg config.RouteConfig, upstreams map[string]*Upstream) (*Route, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("route id is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("route %s: path is required", cfg.ID)
	}
	if len(cfg.Upstreams) == 0 {
		return nil, fmt.Errorf("route %s: at least one upstream is required", cfg.ID)
	}

	matcher, err := newPathMatcher(cfg.MatchKind, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", cfg.ID, err)
	}

	balancer, err := NewBalancer(cfg.LoadBalancing)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", cfg.ID, err)
	}

	route := &Route{
		ID:       cfg.ID,
		Config:   cfg,
		matcher:  matcher,
		balancer: balancer,
	}

	// A bare "*" opens the route to every method, same as an empty
	// list.
	methods := make(map[string]struct{}, len(cfg.Methods))
	for _, method := range cfg.Methods {
		if method == "*" {
			methods = nil
			break
		}
		methods[core.NormalizeMethod(method)] = struct{}{}
	}
	if len(methods) > 0 {
		route.methods = methods
	}

	for name, value := range cfg.Headers {
		constraint := headerConstraint{name: name}
		if pattern, ok := strings.CutPrefix(value, headerRegexPrefix); ok {
			expr, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("route %s: compile header constraint %s: %w", cfg.ID, name, err)
			}
			constraint.expr = expr
		} else {
			constraint.exact = value
		}
		route.headers = append(route.headers, constraint)
	}

	seen := make(map[string]struct{}, len(cfg.Upstreams))
	for _, id := range cfg.Upstreams {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("route %s: upstream %q listed twice", cfg.ID, id)
		}
		seen[id] = struct{}{}

		upstream, ok := upstreams[id]
		if !ok {
			return nil, fmt.Errorf("route %s: unknown upstream %q", cfg.ID, id)
		}
		route.upstreams = append(route.upstreams, upstream)
	}

	return route, nil
}

// Matches reports whether the request satisfies the route's method,
// path, header and tenant constraints. Disabled routes never match.
func (r *Route) Matches(req *core.Request) bool {
	if !r.Config.IsEnabled() {
		return false
	}

	if r.methods != nil {
		if _, ok := r.methods[req.Method]; !ok {
			return false
		}
	}

	if !r.matcher.matches(req.Path) {
		return false
	}

	for i := range r.headers {
		if !r.headers[i].satisfied(req) {
			return false
		}
	}

	if r.Config.TenantID != "" && r.Config.TenantID != req.TenantID {
		return false
	}

	return true
}

// Priority returns the configured priority. Lower values win.
func (r *Route) Priority() int {
	return r.Config.Priority
}

// MatchKind returns the compiled matcher kind.
func (r *Route) MatchKind() string {
	return r.matcher.kind()
}

// Upstreams returns the route's resolved upstreams.
func (r *Route) Upstreams() []*Upstream {
	result := make([]*Upstream, len(r.upstreams))
	copy(result, r.upstreams)
	return result
}

// Balancer returns the route's load balancing algorithm name.
func (r *Route) Balancer() string {
	return r.balancer.Name()
}
