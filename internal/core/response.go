package core

import (
	"encoding/json"
	"net/textproto"
	"time"
)

// GatewayStatus classifies the terminal outcome of a request as seen by
// the gateway, independent of the HTTP status code sent downstream.
type GatewayStatus string

const (
	// StatusSuccess indicates the request completed normally.
	StatusSuccess GatewayStatus = "success"

	// StatusRateLimited indicates admission control denied the request.
	StatusRateLimited GatewayStatus = "rate_limited"

	// StatusUnauthorized indicates missing or invalid credentials.
	StatusUnauthorized GatewayStatus = "unauthorized"

	// StatusForbidden indicates the caller is authenticated but not allowed.
	StatusForbidden GatewayStatus = "forbidden"

	// StatusValidationFailed indicates the request failed schema validation.
	StatusValidationFailed GatewayStatus = "validation_failed"

	// StatusRoutingFailed indicates no route matched the request.
	StatusRoutingFailed GatewayStatus = "routing_failed"

	// StatusUpstreamError indicates the upstream call failed or no
	// upstream was available.
	StatusUpstreamError GatewayStatus = "upstream_error"

	// StatusGatewayError indicates an internal engine failure.
	StatusGatewayError GatewayStatus = "gateway_error"
)

// UpstreamInfo carries metadata about the upstream call that produced a
// response.
type UpstreamInfo struct {
	URL        string
	UpstreamID string
	StatusCode int
	Latency    time.Duration
}

// Response is the transport-independent descriptor of the gateway's
// answer to a request. Ownership transfers to the transport adapter when
// the pipeline returns.
type Response struct {
	StatusCode    int
	Headers       map[string][]string
	Body          []byte
	GatewayStatus GatewayStatus
	CacheHit      bool
	Upstream      *UpstreamInfo
}

// NewResponse creates an empty response with the given status code and
// gateway status.
func NewResponse(statusCode int, status GatewayStatus) *Response {
	return &Response{
		StatusCode:    statusCode,
		Headers:       make(map[string][]string),
		GatewayStatus: status,
	}
}

// ErrorResponse builds a terminal response with a machine-readable JSON
// body of the form {"error": reason, "detail": detail}.
func ErrorResponse(statusCode int, status GatewayStatus, reason, detail string) *Response {
	resp := NewResponse(statusCode, status)
	payload := map[string]string{"error": reason}
	if detail != "" {
		payload["detail"] = detail
	}
	body, _ := json.Marshal(payload)
	resp.Body = body
	resp.SetHeader("Content-Type", "application/json")
	return resp
}

// Header returns the first value for the given header key.
func (r *Response) Header(key string) string {
	if r.Headers == nil {
		return ""
	}
	values := r.Headers[textproto.CanonicalMIMEHeaderKey(key)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// SetHeader replaces the values for the given header key.
func (r *Response) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string][]string)
	}
	r.Headers[textproto.CanonicalMIMEHeaderKey(key)] = []string{value}
}

// AddHeader appends a value for the given header key.
func (r *Response) AddHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string][]string)
	}
	ck := textproto.CanonicalMIMEHeaderKey(key)
	r.Headers[ck] = append(r.Headers[ck], value)
}

// DelHeader removes the given header key.
func (r *Response) DelHeader(key string) {
	delete(r.Headers, textproto.CanonicalMIMEHeaderKey(key))
}

// IsError reports whether the response carries an error status code.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}
