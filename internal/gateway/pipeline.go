package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/calmisko/gatepipe/internal/analytics"
	"github.com/calmisko/gatepipe/internal/auth"
	"github.com/calmisko/gatepipe/internal/cache"
	"github.com/calmisko/gatepipe/internal/core"
	"github.com/calmisko/gatepipe/internal/observability"
	"github.com/calmisko/gatepipe/internal/proxy"
	"github.com/calmisko/gatepipe/internal/ratelimit"
	"github.com/calmisko/gatepipe/internal/routing"
	"github.com/calmisko/gatepipe/internal/security"
)

// Machine-readable reasons on terminal error responses.
const (
	reasonSecurityViolation = "security_violation"
	reasonValidation        = "validation_failed"
	reasonRouteNotFound     = "route_not_found"
	reasonNoUpstream        = "no_upstream_available"
	reasonUpstreamTimeout   = "upstream_timeout"
	reasonUpstreamDown      = "upstream_unreachable"
	reasonInternal          = "internal_error"
)

// Pipeline runs every inbound request through the policy stages in
// order and assembles the terminal response. Collaborators are
// attached through options; a stage whose collaborator is absent is
// recorded as skipped.
type Pipeline struct {
	engine    *routing.Engine
	forwarder *proxy.Forwarder
	limiter   *ratelimit.Manager
	auth      *auth.Manager
	cache     *cache.Manager
	security  *security.Manager
	analytics *analytics.Emitter
	validator Validator
	tracer    *observability.Tracer
	logger    observability.Logger
	metrics   *Metrics

	counters  *statusCounters
	startedAt time.Time
}

// Option is a functional option for the pipeline.
type Option func(*Pipeline)

// WithRateLimiter attaches the admission-control stage.
func WithRateLimiter(manager *ratelimit.Manager) Option {
	return func(p *Pipeline) {
		p.limiter = manager
	}
}

// WithAuth attaches the authentication stage.
func WithAuth(manager *auth.Manager) Option {
	return func(p *Pipeline) {
		p.auth = manager
	}
}

// WithCache attaches the response cache.
func WithCache(manager *cache.Manager) Option {
	return func(p *Pipeline) {
		p.cache = manager
	}
}

// WithSecurity attaches screening, CORS and security headers.
func WithSecurity(manager *security.Manager) Option {
	return func(p *Pipeline) {
		p.security = manager
	}
}

// WithAnalytics attaches the event emitter.
func WithAnalytics(emitter *analytics.Emitter) Option {
	return func(p *Pipeline) {
		p.analytics = emitter
	}
}

// WithValidator replaces the default NopValidator.
func WithValidator(validator Validator) Option {
	return func(p *Pipeline) {
		p.validator = validator
	}
}

// WithTracer sets the tracer for per-request spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// NewPipeline creates a pipeline around the routing engine and the
// upstream forwarder, which every deployment needs. Policy stages are
// optional and attached through options.
func NewPipeline(engine *routing.Engine, forwarder *proxy.Forwarder, opts ...Option) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("routing engine is required")
	}
	if forwarder == nil {
		return nil, fmt.Errorf("upstream forwarder is required")
	}

	p := &Pipeline{
		engine:    engine,
		forwarder: forwarder,
		logger:    observability.NopLogger(),
		counters:  newStatusCounters(),
		startedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.metrics == nil {
		p.metrics = NewMetrics()
	}
	if p.validator == nil {
		p.validator = NopValidator{}
	}
	if p.tracer == nil {
		p.tracer = observability.NopTracer()
	}

	return p, nil
}

// Process runs the request through the pipeline and returns the
// terminal response.
func (p *Pipeline) Process(ctx context.Context, req *core.Request) *core.Response {
	return p.Execute(ctx, req).Response
}

// Execute runs the request through the pipeline and returns the full
// result including the stage trace. The response is never nil: panics
// anywhere in the stages are recovered here and answered as a gateway
// error with the original cause retained in the log.
func (p *Pipeline) Execute(ctx context.Context, req *core.Request) (result *Result) {
	start := time.Now()
	result = &Result{}

	if req == nil {
		result.Response = core.ErrorResponse(http.StatusInternalServerError,
			core.StatusGatewayError, reasonInternal, "nil request")
		result.Latency = time.Since(start)
		p.metrics.RecordRequest(core.StatusGatewayError, result.Latency)
		p.counters.record(core.StatusGatewayError)
		return result
	}

	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = start
	}

	ctx = observability.ContextWithRequestID(ctx, req.RequestID)
	if req.TenantID != "" {
		ctx = observability.ContextWithTenantID(ctx, req.TenantID)
	}
	logger := p.logger.WithContext(ctx)

	ctx, span := p.tracer.Start(ctx, req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.target", req.Path),
		attribute.String("request.id", req.RequestID),
	)
	if req.TenantID != "" {
		span.SetAttributes(attribute.String("tenant.id", req.TenantID))
	}

	e := &execution{p: p, req: req, result: result, span: span, logger: logger}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic recovered",
				observability.String("method", req.Method),
				observability.String("path", req.Path),
				observability.Any("error", r),
				observability.String("stack", string(debug.Stack())),
			)
			p.metrics.RecordPanic()
			p.analytics.Emit(analytics.ErrorEvent(req, http.StatusInternalServerError, reasonInternal))
			result.Response = core.ErrorResponse(http.StatusInternalServerError,
				core.StatusGatewayError, reasonInternal, "")
		}
		p.finish(e, start)
	}()

	p.analytics.Emit(analytics.RequestStartEvent(req))

	result.Response = e.run(ctx)
	return result
}

// finish records the terminal outcome: metrics, admin counters, span
// attributes, the request_end event and the access log line.
func (p *Pipeline) finish(e *execution, start time.Time) {
	result, req, resp := e.result, e.req, e.result.Response
	result.Latency = time.Since(start)

	p.metrics.RecordRequest(resp.GatewayStatus, result.Latency)
	p.counters.record(resp.GatewayStatus)

	e.span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("gateway.status", string(resp.GatewayStatus)),
	)

	p.analytics.Emit(analytics.RequestEndEvent(req, resp.StatusCode, result.Latency))

	fields := []observability.Field{
		observability.String("method", req.Method),
		observability.String("path", req.Path),
		observability.Int("status", resp.StatusCode),
		observability.String("gateway_status", string(resp.GatewayStatus)),
		observability.Duration("latency", result.Latency),
	}
	if req.ClientIP != "" {
		fields = append(fields, observability.String("client", req.ClientIP))
	}
	if result.Route != "" {
		fields = append(fields, observability.String("route", result.Route))
	}
	if result.Upstream != "" {
		fields = append(fields, observability.String("upstream", result.Upstream))
	}
	if resp.CacheHit {
		fields = append(fields, observability.Bool("cache_hit", true))
	}
	e.logger.Info("request completed", fields...)
}

// Close releases the pipeline's collaborators: limiter state, the auth
// failure tracker, cache backends and the analytics worker.
func (p *Pipeline) Close() error {
	var errs []error
	if p.limiter != nil {
		errs = append(errs, p.limiter.Close())
	}
	if p.auth != nil {
		errs = append(errs, p.auth.Close())
	}
	if p.cache != nil {
		errs = append(errs, p.cache.Close())
	}
	if p.analytics != nil {
		errs = append(errs, p.analytics.Close())
	}
	return errors.Join(errs...)
}

// execution carries one request's state across the stages.
type execution struct {
	p      *Pipeline
	req    *core.Request
	result *Result
	span   trace.Span
	logger observability.Logger

	route       *routing.Route
	upstream    *routing.Upstream
	corsApplied bool
}

// observe appends a stage record to the trace and mirrors it to the
// stage histogram and the request span.
func (e *execution) observe(stage, outcome string, start time.Time) {
	elapsed := time.Since(start)
	e.result.Stages = append(e.result.Stages, Stage{Name: stage, Outcome: outcome, Duration: elapsed})
	e.p.metrics.RecordStage(stage, elapsed)
	e.span.AddEvent(stage, trace.WithAttributes(attribute.String("outcome", outcome)))
}

// run executes the stage sequence. Whatever terminal response comes
// out, the security headers are applied last.
func (e *execution) run(ctx context.Context) *core.Response {
	resp := e.advance(ctx)
	e.applyHeaders(resp)
	return resp
}

// advance walks the stages in order until one produces a terminal
// response.
func (e *execution) advance(ctx context.Context) *core.Response {
	if resp := e.screen(); resp != nil {
		return resp
	}
	if resp := e.rateLimit(ctx); resp != nil {
		return resp
	}
	if resp := e.authenticate(ctx); resp != nil {
		return resp
	}
	if resp := e.validateRequest(); resp != nil {
		return resp
	}
	if resp := e.cacheLookup(ctx); resp != nil {
		return resp
	}
	if resp := e.findRoute(); resp != nil {
		return resp
	}

	resp := e.forward(ctx)
	if resp.GatewayStatus == core.StatusSuccess {
		e.validateResponse(resp)
		e.cacheStore(ctx, resp)
	}
	return resp
}

// screen runs request screening and the CORS preflight shortcut.
// Screening fails closed: a blocked request is answered 403 before any
// other stage sees it.
func (e *execution) screen() *core.Response {
	start := time.Now()
	if e.p.security == nil {
		e.observe(StageSecurity, outcomeSkipped, start)
		return nil
	}

	violations := e.p.security.Screen(e.req)
	if security.Blocked(violations) {
		e.observe(StageSecurity, outcomeBlocked, start)
		detail := blockingKind(violations)
		e.p.analytics.Emit(analytics.ErrorEvent(e.req, http.StatusForbidden, detail))
		return core.ErrorResponse(http.StatusForbidden, core.StatusForbidden,
			reasonSecurityViolation, detail)
	}

	if resp := e.p.security.Preflight(e.req); resp != nil {
		e.corsApplied = true
		e.observe(StageSecurity, outcomePreflight, start)
		return resp
	}

	e.observe(StageSecurity, outcomeOK, start)
	return nil
}

// rateLimit checks the request against the configured budgets. A
// denial carries the standard rate-limit headers.
func (e *execution) rateLimit(ctx context.Context) *core.Response {
	start := time.Now()
	if e.p.limiter == nil || e.req.SkipRateLimit {
		e.observe(StageRateLimit, outcomeSkipped, start)
		return nil
	}

	decision := e.p.limiter.Check(ctx, e.req, e.req.Identity)
	e.p.analytics.Emit(analytics.RateLimitEvent(e.req, decision.Allowed))
	if decision.Allowed {
		e.observe(StageRateLimit, outcomeOK, start)
		return nil
	}

	e.observe(StageRateLimit, outcomeDenied, start)
	resp := core.ErrorResponse(http.StatusTooManyRequests, core.StatusRateLimited,
		decision.Reason, string(decision.Scope))
	resp.SetHeader("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	resp.SetHeader("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if decision.ResetAfter > 0 {
		resp.SetHeader("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(decision.ResetAfter)))
	}
	if decision.RetryAfter > 0 {
		resp.SetHeader("Retry-After", strconv.Itoa(ceilSeconds(decision.RetryAfter)))
	}
	return resp
}

// authenticate resolves credentials into an identity on the request.
func (e *execution) authenticate(ctx context.Context) *core.Response {
	start := time.Now()
	if e.p.auth == nil || e.req.SkipAuth {
		e.observe(StageAuth, outcomeSkipped, start)
		return nil
	}

	outcome := e.p.auth.Authenticate(ctx, e.req)
	e.p.analytics.Emit(analytics.AuthEvent(e.req, string(outcome.Status), outcome.Message))
	if outcome.Authenticated {
		e.req.Identity = outcome.Identity
		e.observe(StageAuth, outcomeOK, start)
		return nil
	}

	e.observe(StageAuth, outcomeDenied, start)
	return e.authDenial(outcome)
}

// authDenial maps a denied auth outcome onto its terminal response.
func (e *execution) authDenial(outcome *auth.Outcome) *core.Response {
	switch outcome.Status {
	case auth.StatusForbidden:
		return core.ErrorResponse(http.StatusForbidden, core.StatusForbidden,
			string(outcome.Status), outcome.Message)

	case auth.StatusRateLimited:
		resp := core.ErrorResponse(http.StatusTooManyRequests, core.StatusRateLimited,
			string(outcome.Status), outcome.Message)
		if outcome.RetryAfter > 0 {
			resp.SetHeader("Retry-After", strconv.Itoa(ceilSeconds(outcome.RetryAfter)))
		}
		return resp

	default:
		resp := core.ErrorResponse(http.StatusUnauthorized, core.StatusUnauthorized,
			string(outcome.Status), outcome.Message)
		if challenge := e.p.auth.Challenge(); challenge != "" {
			resp.SetHeader("WWW-Authenticate", challenge)
		}
		return resp
	}
}

// validateRequest runs the request-side validator checks. The first
// failure is fatal and answered 400.
func (e *execution) validateRequest() *core.Response {
	start := time.Now()
	if e.req.SkipValidation {
		e.observe(StageValidate, outcomeSkipped, start)
		return nil
	}

	checks := []func(*core.Request) ValidationResult{
		e.p.validator.ValidateRequestPath,
		e.p.validator.ValidateRequestHeaders,
		e.p.validator.ValidateRequestQuery,
		e.p.validator.ValidateRequestBody,
	}
	for i := 0; i < len(checks); i++ {
		result := checks[i](e.req)
		if result.Valid {
			continue
		}
		e.observe(StageValidate, outcomeInvalid, start)
		e.logger.Warn("request validation failed",
			observability.String("method", e.req.Method),
			observability.String("path", e.req.Path),
			observability.Strings("errors", result.Errors),
		)
		return core.ErrorResponse(http.StatusBadRequest, core.StatusValidationFailed,
			reasonValidation, strings.Join(result.Errors, "; "))
	}

	e.observe(StageValidate, outcomeOK, start)
	return nil
}

// cacheLookup serves the response from cache when a live entry exists.
func (e *execution) cacheLookup(ctx context.Context) *core.Response {
	start := time.Now()
	if e.p.cache == nil || e.req.SkipCache {
		e.observe(StageCacheLookup, outcomeSkipped, start)
		return nil
	}

	entry, ok := e.p.cache.Lookup(ctx, e.req, e.req.Identity)
	if e.p.cache.Enabled() {
		e.p.analytics.Emit(analytics.CacheEvent(e.req, ok))
	}
	if !ok {
		e.observe(StageCacheLookup, outcomeMiss, start)
		return nil
	}

	e.observe(StageCacheLookup, outcomeHit, start)
	resp := core.NewResponse(entry.StatusCode, core.StatusSuccess)
	for key, values := range entry.Headers {
		resp.Headers[key] = append([]string(nil), values...)
	}
	resp.Body = entry.Body
	resp.CacheHit = true
	resp.SetHeader("X-Cache", "HIT")
	return resp
}

// findRoute matches the request to a route, enforces the route's auth
// overrides and selects an upstream.
func (e *execution) findRoute() *core.Response {
	start := time.Now()

	route := e.p.engine.FindRoute(e.req)
	if route == nil {
		e.observe(StageRouting, outcomeNoRoute, start)
		return core.ErrorResponse(http.StatusNotFound, core.StatusRoutingFailed,
			reasonRouteNotFound, fmt.Sprintf("no route matches %s %s", e.req.Method, e.req.Path))
	}
	e.result.Route = route.ID

	if resp := e.authorizeRoute(route); resp != nil {
		e.observe(StageRouting, outcomeDenied, start)
		return resp
	}

	upstream := e.p.engine.SelectUpstream(route, e.req)
	if upstream == nil {
		e.observe(StageRouting, outcomeNoUpstream, start)
		e.p.analytics.Emit(analytics.ErrorEvent(e.req, http.StatusServiceUnavailable, reasonNoUpstream))
		return core.ErrorResponse(http.StatusServiceUnavailable, core.StatusUpstreamError,
			reasonNoUpstream, fmt.Sprintf("route %s has no eligible upstream", route.ID))
	}

	e.route = route
	e.upstream = upstream
	e.result.Upstream = upstream.ID
	e.observe(StageRouting, outcomeOK, start)
	return nil
}

// authorizeRoute enforces the matched route's requirements: an
// authentication override and role/scope restrictions. The override
// only tightens the global policy; it cannot re-admit a request the
// auth stage already denied.
func (e *execution) authorizeRoute(route *routing.Route) *core.Response {
	if e.req.SkipAuth {
		return nil
	}

	cfg := route.Config
	if cfg.AuthRequired != nil && *cfg.AuthRequired && e.req.Identity == nil {
		resp := core.ErrorResponse(http.StatusUnauthorized, core.StatusUnauthorized,
			string(auth.StatusMissingCredentials), "route requires authentication")
		if e.p.auth != nil {
			if challenge := e.p.auth.Challenge(); challenge != "" {
				resp.SetHeader("WWW-Authenticate", challenge)
			}
		}
		return resp
	}

	if len(cfg.AllowedRoles) == 0 && len(cfg.RequiredScopes) == 0 {
		return nil
	}
	if e.p.auth == nil {
		// Without an authenticator no identity can satisfy the
		// restriction.
		return core.ErrorResponse(http.StatusForbidden, core.StatusForbidden,
			string(auth.StatusForbidden), "route restricts roles or scopes")
	}

	outcome := e.p.auth.Authorize(e.req.Identity, cfg.AllowedRoles, cfg.RequiredScopes)
	if !outcome.Authenticated {
		return core.ErrorResponse(http.StatusForbidden, core.StatusForbidden,
			string(outcome.Status), outcome.Message)
	}
	return nil
}

// forward issues the upstream call and feeds the outcome back into the
// engine exactly once. The active-connection counter is paired in a
// defer so cancellation cannot leak it.
func (e *execution) forward(ctx context.Context) *core.Response {
	start := time.Now()
	e.upstream.BeginRequest()
	defer e.upstream.EndRequest()

	resp, err := e.p.forwarder.Forward(ctx, e.req, e.route, e.upstream)
	latency := time.Since(start)
	if err != nil {
		e.p.engine.RecordResult(e.upstream, false, latency)
		e.observe(StageForward, outcomeError, start)

		status := http.StatusBadGateway
		gatewayStatus := core.StatusUpstreamError
		reason := reasonUpstreamDown
		if proxy.IsTimeout(err) {
			status = http.StatusGatewayTimeout
			gatewayStatus = core.StatusGatewayError
			reason = reasonUpstreamTimeout
		}
		e.p.analytics.Emit(analytics.ErrorEvent(e.req, status, reason))
		return core.ErrorResponse(status, gatewayStatus, reason,
			fmt.Sprintf("upstream %s", e.upstream.ID))
	}

	e.p.engine.RecordResult(e.upstream, resp.StatusCode < http.StatusInternalServerError, latency)
	e.observe(StageForward, outcomeOK, start)
	return resp
}

// validateResponse runs the response-side validator checks. Failures
// are logged; the response is served regardless.
func (e *execution) validateResponse(resp *core.Response) {
	start := time.Now()
	if e.req.SkipValidation {
		e.observe(StageValidateResponse, outcomeSkipped, start)
		return
	}

	result := e.p.validator.ValidateResponseHeaders(resp)
	if result.Valid {
		result = e.p.validator.ValidateResponseBody(resp)
	}
	if !result.Valid {
		e.observe(StageValidateResponse, outcomeInvalid, start)
		e.logger.Warn("response validation failed",
			observability.String("route", e.result.Route),
			observability.String("upstream", e.result.Upstream),
			observability.Strings("errors", result.Errors),
		)
		return
	}

	e.observe(StageValidateResponse, outcomeOK, start)
}

// cacheStore offers the response to the cache. The manager decides
// cacheability; the route's TTL override is passed through.
func (e *execution) cacheStore(ctx context.Context, resp *core.Response) {
	start := time.Now()
	if e.p.cache == nil || e.req.SkipCache {
		e.observe(StageCacheStore, outcomeSkipped, start)
		return
	}

	if e.p.cache.Store(ctx, e.req, resp, e.req.Identity, e.route.Config.CacheTTL.Duration()) {
		e.observe(StageCacheStore, outcomeStored, start)
		return
	}
	e.observe(StageCacheStore, outcomeDeclined, start)
}

// applyHeaders attaches CORS and security headers as the final step of
// response assembly. Preflight responses already carry their CORS
// headers, so only the static set is applied on top of them.
func (e *execution) applyHeaders(resp *core.Response) {
	start := time.Now()
	if e.p.security == nil {
		e.observe(StageHeaders, outcomeSkipped, start)
		return
	}

	req := e.req
	if e.corsApplied {
		req = nil
	}
	e.p.security.ApplyHeaders(resp, req)
	e.observe(StageHeaders, outcomeOK, start)
}

// blockingKind names the violation that tripped the block: the first
// critical finding, else the first high one.
func blockingKind(violations []security.Violation) string {
	var high string
	for i := 0; i < len(violations); i++ {
		switch violations[i].Severity {
		case security.SeverityCritical:
			return violations[i].Kind
		case security.SeverityHigh:
			if high == "" {
				high = violations[i].Kind
			}
		}
	}
	return high
}

// ceilSeconds rounds a duration up to whole seconds for header values.
func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
