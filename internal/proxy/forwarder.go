package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calmisko/gatepipe/internal/core"
	"github.com/calmisko/gatepipe/internal/observability"
	"github.com/calmisko/gatepipe/internal/routing"
)

// hopHeaders are dropped from the upstream copy per RFC 9110 §7.6.1.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder issues upstream HTTP calls for the pipeline.
type Forwarder struct {
	client         *http.Client
	logger         observability.Logger
	metrics        *Metrics
	defaultTimeout time.Duration
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(metrics *Metrics) Option {
	return func(f *Forwarder) {
		f.metrics = metrics
	}
}

// WithTransport replaces the pooled transport. Mainly for tests.
func WithTransport(transport http.RoundTripper) Option {
	return func(f *Forwarder) {
		f.client.Transport = transport
	}
}

// WithPoolConfig rebuilds the transport with the given pool settings.
func WithPoolConfig(cfg PoolConfig) Option {
	return func(f *Forwarder) {
		f.client.Transport = newTransport(cfg)
	}
}

// WithDefaultTimeout sets the deadline for routes without their own
// timeout.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(f *Forwarder) {
		if timeout > 0 {
			f.defaultTimeout = timeout
		}
	}
}

// NewForwarder creates a forwarder with a pooled transport.
func NewForwarder(opts ...Option) *Forwarder {
	f := &Forwarder{
		client: &http.Client{
			Transport: newTransport(DefaultPoolConfig()),
			// Redirects come back to the caller untouched.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:         observability.NopLogger(),
		defaultTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.metrics == nil {
		f.metrics = NewMetrics()
	}

	return f
}

// Forward issues the request against the chosen upstream and returns
// the upstream's answer as a response descriptor. The original request
// is never mutated; all transforms apply to a copy. A timeout surfaces
// as ErrUpstreamTimeout, any other transport failure as
// ErrUpstreamUnreachable, both wrapped in a ForwardError.
func (f *Forwarder) Forward(ctx context.Context, req *core.Request, route *routing.Route, upstream *routing.Upstream) (*core.Response, error) {
	timeout := route.Config.Timeout.Duration()
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := f.buildRequest(ctx, req, route, upstream)
	if err != nil {
		f.metrics.RecordError(upstream.ID, "build_request")
		return nil, &ForwardError{Route: route.ID, Upstream: upstream.ID, Cause: err}
	}

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, f.failure(route, upstream, time.Since(start), err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, f.failure(route, upstream, time.Since(start), err)
	}
	latency := time.Since(start)

	f.metrics.RecordRequest(upstream.ID, latency)
	f.logger.Debug("forwarded request",
		observability.String("route", route.ID),
		observability.String("upstream", upstream.ID),
		observability.Int("status", httpResp.StatusCode),
		observability.Duration("latency", latency),
	)

	resp := core.NewResponse(httpResp.StatusCode, core.StatusSuccess)
	for key, values := range httpResp.Header {
		resp.Headers[key] = append([]string(nil), values...)
	}
	resp.Body = body
	resp.Upstream = &core.UpstreamInfo{
		URL:        upstream.URL.String(),
		UpstreamID: upstream.ID,
		StatusCode: httpResp.StatusCode,
		Latency:    latency,
	}

	return resp, nil
}

// buildRequest assembles the transformed upstream copy of the request.
func (f *Forwarder) buildRequest(ctx context.Context, req *core.Request, route *routing.Route, upstream *routing.Upstream) (*http.Request, error) {
	clone := req.Clone()

	if rewrite := route.Config.RequestHeaders; rewrite != nil {
		for _, name := range rewrite.Remove {
			clone.DelHeader(name)
		}
		for name, value := range rewrite.Add {
			clone.SetHeader(name, value)
		}
	}

	for _, name := range hopHeaders {
		clone.DelHeader(name)
	}

	if clone.ClientIP != "" {
		forwarded := clone.ClientIP
		if prior := clone.Header("X-Forwarded-For"); prior != "" {
			forwarded = prior + ", " + clone.ClientIP
		}
		clone.SetHeader("X-Forwarded-For", forwarded)
	}
	if host := clone.Header("Host"); host != "" {
		clone.SetHeader("X-Forwarded-Host", host)
	}
	clone.DelHeader("Host")

	target := *upstream.URL
	target.Path = joinURLPath(upstream.URL.Path, clone.Path)
	target.RawQuery = url.Values(clone.Query).Encode()

	var body io.Reader
	if len(clone.Body) > 0 {
		body = bytes.NewReader(clone.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, clone.Method, target.String(), body)
	if err != nil {
		return nil, err
	}

	for key, values := range clone.Headers {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	httpReq.Host = upstream.URL.Host
	httpReq.ContentLength = int64(len(clone.Body))

	return httpReq, nil
}

// failure classifies a transport error, records it and wraps it.
func (f *Forwarder) failure(route *routing.Route, upstream *routing.Upstream, latency time.Duration, err error) error {
	cause := ErrUpstreamUnreachable
	reason := "transport"
	if isTimeoutError(err) {
		cause = ErrUpstreamTimeout
		reason = "timeout"
	}

	f.metrics.RecordError(upstream.ID, reason)
	f.logger.Warn("upstream request failed",
		observability.String("route", route.ID),
		observability.String("upstream", upstream.ID),
		observability.String("reason", reason),
		observability.Duration("latency", latency),
		observability.Error(err),
	)

	return &ForwardError{
		Route:    route.ID,
		Upstream: upstream.ID,
		Cause:    errors.Join(cause, err),
	}
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// joinURLPath joins the upstream base path and the request path with a
// single slash, the way httputil's single-host director does.
func joinURLPath(base, path string) string {
	if base == "" {
		return path
	}
	baseSlash := strings.HasSuffix(base, "/")
	pathSlash := strings.HasPrefix(path, "/")
	switch {
	case baseSlash && pathSlash:
		return base + path[1:]
	case !baseSlash && !pathSlash:
		return base + "/" + path
	}
	return base + path
}
