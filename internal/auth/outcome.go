package auth

import (
	"time"

	"github.com/calmisko/gatepipe/internal/core"
)

// Status classifies the result of an authentication attempt.
type Status string

const (
	// StatusOK means the request is authenticated (or anonymous access
	// is permitted).
	StatusOK Status = "ok"

	// StatusMissingCredentials means no credentials were presented and
	// authentication is required.
	StatusMissingCredentials Status = "missing_credentials"

	// StatusInvalidCredentials means credentials were presented but
	// failed verification.
	StatusInvalidCredentials Status = "invalid_credentials"

	// StatusExpired means a bearer token was well-formed and correctly
	// signed but past its expiry.
	StatusExpired Status = "expired"

	// StatusRateLimited means the client is locked out after repeated
	// credential failures.
	StatusRateLimited Status = "rate_limited"

	// StatusForbidden means the identity is authenticated but not
	// authorized for the request.
	StatusForbidden Status = "forbidden"
)

// Outcome is the result of authenticating or authorizing a request.
// Denial is expressed through Status and Message, never through an
// error.
type Outcome struct {
	// Authenticated reports whether the request may proceed.
	Authenticated bool

	// Identity is the resolved principal. Nil for anonymous access.
	Identity *core.Identity

	// Status classifies the outcome.
	Status Status

	// Message carries a human-readable reason for denials.
	Message string

	// RetryAfter is set on rate_limited outcomes: how long until the
	// lockout clears.
	RetryAfter time.Duration
}

func okOutcome(identity *core.Identity) *Outcome {
	return &Outcome{Authenticated: true, Identity: identity, Status: StatusOK}
}

func deniedOutcome(status Status, message string) *Outcome {
	return &Outcome{Status: status, Message: message}
}
