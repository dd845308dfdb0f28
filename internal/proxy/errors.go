package proxy

import (
	"errors"
	"fmt"
)

// Sentinel errors for forwarding failures.
var (
	// ErrUpstreamTimeout indicates the upstream did not answer within the
	// route's deadline.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamUnreachable indicates the transport could not complete
	// the call.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
)

// ForwardError wraps a forwarding failure with its route and upstream.
type ForwardError struct {
	Route    string
	Upstream string
	Cause    error
}

// Error implements the error interface.
func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward route=%s upstream=%s: %v", e.Route, e.Upstream, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ForwardError) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether the error is an upstream timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout)
}
