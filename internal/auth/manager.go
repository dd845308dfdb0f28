package auth

import (
	"context"
	"fmt"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/core"
	"github.com/calmisko/gatepipe/internal/observability"
)

// Manager authenticates requests by dispatching to the configured
// credential providers in order, tracks credential failures per
// client, and applies the optional authorization policy.
type Manager struct {
	config  *config.AuthConfig
	logger  observability.Logger
	metrics *Metrics

	apikey *apikeyProvider
	bearer *bearerProvider
	basic  *basicProvider

	tracker *failureTracker
	policy  *policyEvaluator

	methods []string
}

// NewManager creates an authentication manager from configuration.
// Provider construction and policy compilation errors are fatal.
func NewManager(cfg *config.AuthConfig, logger observability.Logger, metrics *Metrics) (*Manager, error) {
	if cfg == nil {
		cfg = &config.AuthConfig{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	m := &Manager{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}

	var err error
	if cfg.APIKey != nil {
		if m.apikey, err = newAPIKeyProvider(cfg.APIKey); err != nil {
			return nil, err
		}
	}
	if cfg.Bearer != nil {
		if m.bearer, err = newBearerProvider(cfg.Bearer, metrics); err != nil {
			return nil, err
		}
	}
	if cfg.Basic != nil {
		if m.basic, err = newBasicProvider(cfg.Basic); err != nil {
			return nil, err
		}
	}

	if m.methods, err = m.resolveMethods(cfg.Methods); err != nil {
		return nil, err
	}

	if ft := cfg.FailureTracking; ft != nil && ft.Enabled {
		m.tracker = newFailureTracker(ft.Threshold, ft.Window.Duration())
	}

	if cfg.Policy != nil && cfg.Policy.Expression != "" {
		if m.policy, err = newPolicyEvaluator(cfg.Policy.Expression); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// resolveMethods validates the configured dispatch order and fills in
// the default order when none is configured.
func (m *Manager) resolveMethods(configured []string) ([]string, error) {
	if len(configured) == 0 {
		var methods []string
		if m.apikey != nil {
			methods = append(methods, core.AuthMethodAPIKey)
		}
		if m.bearer != nil {
			methods = append(methods, core.AuthMethodBearer)
		}
		if m.basic != nil {
			methods = append(methods, core.AuthMethodBasic)
		}
		return methods, nil
	}

	methods := make([]string, 0, len(configured))
	for _, method := range configured {
		switch method {
		case core.AuthMethodAPIKey:
			if m.apikey == nil {
				return nil, fmt.Errorf("auth method %q enabled but apiKey not configured", method)
			}
		case core.AuthMethodBearer:
			if m.bearer == nil {
				return nil, fmt.Errorf("auth method %q enabled but bearer not configured", method)
			}
		case core.AuthMethodBasic:
			if m.basic == nil {
				return nil, fmt.Errorf("auth method %q enabled but basic not configured", method)
			}
		default:
			return nil, fmt.Errorf("unknown auth method %q", method)
		}
		methods = append(methods, method)
	}
	return methods, nil
}

// Authenticate resolves the request's credentials into an identity.
// Denial is expressed in the Outcome, never as an error.
func (m *Manager) Authenticate(ctx context.Context, req *core.Request) *Outcome {
	if !m.config.Enabled {
		return okOutcome(nil)
	}

	client := req.ClientIP
	if client == "" {
		client = "unknown"
	}

	if m.tracker != nil {
		if locked, retryAfter := m.tracker.locked(client); locked {
			m.metrics.RecordLockout()
			m.logger.Warn("client locked out after repeated auth failures",
				observability.String("client", client),
				observability.Duration("retryAfter", retryAfter),
			)
			return &Outcome{
				Status:     StatusRateLimited,
				Message:    "too many failed authentication attempts",
				RetryAfter: retryAfter,
			}
		}
	}

	for _, method := range m.methods {
		switch method {
		case core.AuthMethodAPIKey:
			key, present := m.apikey.extract(req)
			if !present {
				continue
			}
			identity, valid := m.apikey.verify(key)
			if !valid {
				m.recordFailure(method, client)
				return deniedOutcome(StatusInvalidCredentials, "invalid api key")
			}
			return m.admit(method, client, identity, req)

		case core.AuthMethodBearer:
			token, present := m.bearer.extract(req)
			if !present {
				continue
			}
			identity, status, message := m.bearer.verify(token)
			if status != StatusOK {
				m.metrics.RecordAttempt(method, status)
				return deniedOutcome(status, message)
			}
			return m.admit(method, client, identity, req)

		case core.AuthMethodBasic:
			encoded, present := m.basic.extract(req)
			if !present {
				continue
			}
			identity, valid := m.basic.verify(encoded)
			if !valid {
				m.recordFailure(method, client)
				return deniedOutcome(StatusInvalidCredentials, "invalid credentials")
			}
			return m.admit(method, client, identity, req)
		}
	}

	if !m.config.Required {
		if outcome := m.applyPolicy(core.AuthMethodAnonymous, nil, req); outcome != nil {
			return outcome
		}
		m.metrics.RecordAttempt(core.AuthMethodAnonymous, StatusOK)
		return okOutcome(nil)
	}

	m.metrics.RecordAttempt("none", StatusMissingCredentials)
	return deniedOutcome(StatusMissingCredentials, "missing credentials")
}

// admit finishes a successful credential verification: tenant check,
// policy evaluation, bookkeeping.
func (m *Manager) admit(method, client string, identity *core.Identity, req *core.Request) *Outcome {
	if m.tracker != nil {
		m.tracker.clear(client)
	}

	// An unscoped credential is valid for any tenant.
	if m.config.MultiTenant && identity.TenantID != "" && identity.TenantID != req.TenantID {
		m.metrics.RecordAttempt(method, StatusForbidden)
		return deniedOutcome(StatusForbidden, "credential not valid for tenant")
	}

	if outcome := m.applyPolicy(method, identity, req); outcome != nil {
		return outcome
	}

	m.metrics.RecordAttempt(method, StatusOK)
	m.logger.Debug("authentication succeeded",
		observability.String("method", method),
		observability.String("subject", identity.Subject),
	)
	return okOutcome(identity)
}

// applyPolicy evaluates the authorization policy, if configured.
// Returns nil when the request passes.
func (m *Manager) applyPolicy(method string, identity *core.Identity, req *core.Request) *Outcome {
	if m.policy == nil {
		return nil
	}

	allowed, err := m.policy.evaluate(identity, req)
	if err != nil {
		m.metrics.RecordAttempt(method, StatusForbidden)
		m.logger.Warn("authorization policy evaluation failed",
			observability.Error(err),
			observability.String("method", req.Method),
			observability.String("path", req.Path),
		)
		return deniedOutcome(StatusForbidden, "denied by policy")
	}
	if !allowed {
		m.metrics.RecordAttempt(method, StatusForbidden)
		return deniedOutcome(StatusForbidden, "denied by policy")
	}
	return nil
}

// recordFailure records an invalid-credential attempt for lockout
// tracking.
func (m *Manager) recordFailure(method, client string) {
	m.metrics.RecordAttempt(method, StatusInvalidCredentials)
	if m.tracker != nil {
		m.tracker.record(client)
	}
}

// Authorize checks route-level requirements against the identity.
// allowedRoles requires at least one matching role; requiredScopes
// must all be present.
func (m *Manager) Authorize(identity *core.Identity, allowedRoles, requiredScopes []string) *Outcome {
	if len(allowedRoles) > 0 {
		var matched bool
		if identity != nil {
			for _, role := range allowedRoles {
				if identity.HasRole(role) {
					matched = true
					break
				}
			}
		}
		if !matched {
			return deniedOutcome(StatusForbidden,
				fmt.Sprintf("requires one of roles %v", allowedRoles))
		}
	}

	for _, scope := range requiredScopes {
		if identity == nil || !identity.HasScope(scope) {
			return deniedOutcome(StatusForbidden,
				fmt.Sprintf("missing required scope %q", scope))
		}
	}

	return okOutcome(identity)
}

// Challenge returns the WWW-Authenticate value for 401 responses,
// derived from the first configured method.
func (m *Manager) Challenge() string {
	if len(m.methods) == 0 {
		return ""
	}
	switch m.methods[0] {
	case core.AuthMethodBearer:
		return "Bearer"
	case core.AuthMethodBasic:
		return fmt.Sprintf("Basic realm=%q", m.basic.Realm())
	default:
		return ""
	}
}

// Close releases the failure tracker's cleanup goroutine.
func (m *Manager) Close() error {
	if m.tracker != nil {
		return m.tracker.Close()
	}
	return nil
}
