package ratelimit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/calmisko/gatepipe/internal/core"
	"github.com/calmisko/gatepipe/internal/observability"
	"github.com/calmisko/gatepipe/internal/ratelimit/store"
)

// Denial reasons reported on decisions.
const (
	ReasonLimitExceeded = "limit_exceeded"
	ReasonBlacklisted   = "blacklisted"
	ReasonAllowlisted   = "allowlisted"
)

var _ io.Closer = (*Manager)(nil)

// Decision is the outcome of a rate limit check. Denial is a value,
// never an error.
type Decision struct {
	// Allowed indicates whether the request is admitted.
	Allowed bool

	// Limit, Remaining, ResetAfter and RetryAfter describe the rule
	// that produced the decision: the denying rule, or the most
	// restrictive allowing rule.
	Limit      int
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration

	// Reason explains denials and list bypasses.
	Reason string

	// Key is the composed key of the deciding rule.
	Key string

	// Scope is the scope of the deciding rule.
	Scope Scope
}

// ruleState pairs a configured rule with its limiter.
type ruleState struct {
	rule    Rule
	limiter Limiter
}

// Manager evaluates configured rate limit rules against requests.
// Rules are checked in ScopeOrder and the first denial wins; when every
// rule allows, the decision reflects the most restrictive remaining
// budget. Store failures fail open: availability is preferred over
// strict admission control.
type Manager struct {
	rules   []ruleState
	allow   map[string]struct{}
	deny    map[string]struct{}
	keys    *KeyBuilder
	logger  observability.Logger
	metrics *Metrics
	store   store.Store
}

// ManagerOption is a functional option for the manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger observability.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerMetrics sets the manager metrics.
func WithManagerMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithStore backs all limiters with the given store for distributed
// rate limiting.
func WithStore(s store.Store) ManagerOption {
	return func(m *Manager) {
		m.store = s
	}
}

// NewManager creates a rate limit manager from the given configuration.
func NewManager(cfg *Config, opts ...ManagerOption) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	m := &Manager{
		allow:  make(map[string]struct{}, len(cfg.AllowList)),
		deny:   make(map[string]struct{}, len(cfg.DenyList)),
		keys:   NewKeyBuilder(cfg.ClientIDHeader),
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	for _, id := range cfg.AllowList {
		m.allow[id] = struct{}{}
	}
	for _, id := range cfg.DenyList {
		m.deny[id] = struct{}{}
	}

	byScope := make(map[Scope]Rule, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		if !ValidScope(rule.Scope) {
			return nil, fmt.Errorf("invalid rate limit scope %q", rule.Scope)
		}
		if rule.Requests <= 0 || rule.Window <= 0 {
			return nil, fmt.Errorf("scope %q: requests and window must be positive", rule.Scope)
		}
		byScope[rule.Scope] = rule
	}

	// Fixed evaluation order regardless of configuration order.
	for _, scope := range ScopeOrder {
		rule, ok := byScope[scope]
		if !ok {
			continue
		}
		limiter, err := m.newLimiter(cfg, rule)
		if err != nil {
			m.closeLimiters()
			return nil, err
		}
		m.rules = append(m.rules, ruleState{rule: rule, limiter: limiter})
	}

	return m, nil
}

// newLimiter builds the limiter for one rule per the configured
// algorithm.
func (m *Manager) newLimiter(cfg *Config, rule Rule) (Limiter, error) {
	switch cfg.Algorithm {
	case AlgorithmTokenBucket, "":
		return NewTokenBucketLimiterWithCleanup(
			m.store, rule.Requests, rule.Window, rule.Burst, cfg.CleanupInterval, m.logger,
		), nil
	case AlgorithmSlidingWindow:
		return NewSlidingWindowLimiterWithCleanup(
			m.store, rule.Requests, rule.Window, cfg.CleanupInterval, m.logger,
		), nil
	default:
		return nil, fmt.Errorf("unknown rate limit algorithm %q", cfg.Algorithm)
	}
}

// Check evaluates all configured rules for the request and returns the
// decision.
func (m *Manager) Check(ctx context.Context, req *core.Request, identity *core.Identity) *Decision {
	clientID := m.keys.ClientID(req)

	if _, denied := m.deny[clientID]; denied {
		m.recordDecision(ScopePerClient, false)
		return &Decision{
			Allowed: false,
			Reason:  ReasonBlacklisted,
			Key:     clientID,
			Scope:   ScopePerClient,
		}
	}

	if _, allowed := m.allow[clientID]; allowed {
		m.recordDecision(ScopePerClient, true)
		return &Decision{
			Allowed: true,
			Reason:  ReasonAllowlisted,
			Key:     clientID,
			Scope:   ScopePerClient,
		}
	}

	var tightest *Decision

	for _, rs := range m.rules {
		key := m.keys.Build(rs.rule.Scope, req, identity)

		result, err := rs.limiter.Allow(ctx, key)
		if err != nil {
			// Fail open on store errors.
			m.logger.Warn("rate limit store error, admitting request",
				observability.String("scope", string(rs.rule.Scope)),
				observability.String("key", key),
				observability.Error(err),
			)
			if m.metrics != nil {
				m.metrics.RecordStoreError()
			}
			continue
		}

		if !result.Allowed {
			m.recordDecision(rs.rule.Scope, false)
			return &Decision{
				Allowed:    false,
				Limit:      result.Limit,
				Remaining:  result.Remaining,
				ResetAfter: result.ResetAfter,
				RetryAfter: result.RetryAfter,
				Reason:     ReasonLimitExceeded,
				Key:        key,
				Scope:      rs.rule.Scope,
			}
		}

		if tightest == nil || result.Remaining < tightest.Remaining {
			tightest = &Decision{
				Allowed:    true,
				Limit:      result.Limit,
				Remaining:  result.Remaining,
				ResetAfter: result.ResetAfter,
				RetryAfter: 0,
				Key:        key,
				Scope:      rs.rule.Scope,
			}
		}
	}

	if tightest == nil {
		// No rules configured, or every rule failed open.
		tightest = &Decision{Allowed: true}
	}

	m.recordDecision(tightest.Scope, true)
	return tightest
}

// Reset clears rate limit state for the given identifier across every
// rule. The identifier is matched against each scope's key form.
func (m *Manager) Reset(ctx context.Context, id string) error {
	prefixes := []string{
		"client:" + id,
		"user:" + id,
		"tenant:" + id,
		"endpoint:" + id,
	}
	if id == "global" {
		prefixes = append(prefixes, "global")
	}

	for _, rs := range m.rules {
		for _, prefix := range prefixes {
			if err := rs.limiter.Reset(ctx, prefix); err != nil {
				return fmt.Errorf("reset %q: %w", prefix, err)
			}
		}
	}
	return nil
}

// ResetAll clears all rate limit state across every rule.
func (m *Manager) ResetAll(ctx context.Context) error {
	for _, rs := range m.rules {
		if err := rs.limiter.ResetAll(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Rules returns the configured rules in evaluation order.
func (m *Manager) Rules() []Rule {
	rules := make([]Rule, 0, len(m.rules))
	for _, rs := range m.rules {
		rules = append(rules, rs.rule)
	}
	return rules
}

// Close implements io.Closer, stopping limiter maintenance and the
// store.
func (m *Manager) Close() error {
	m.closeLimiters()
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

func (m *Manager) closeLimiters() {
	for _, rs := range m.rules {
		_ = rs.limiter.Close()
	}
}

func (m *Manager) recordDecision(scope Scope, allowed bool) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordDecision(string(scope), allowed)
}
