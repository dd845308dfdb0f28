package gateway

import (
	"github.com/calmisko/gatepipe/internal/core"
)

// ValidationResult is the outcome of one validation check.
type ValidationResult struct {
	// Valid reports whether the checked part passed.
	Valid bool

	// Errors lists the individual findings when Valid is false.
	Errors []string
}

// Valid is the passing validation result.
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid builds a failing validation result from the given findings.
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Errors: errs}
}

// Validator checks requests before forwarding and responses after.
// Request-side failures are fatal and answered with 400; response-side
// failures are logged and the response is served anyway. The pipeline
// calls the request-side methods in the order path, headers, query,
// body and stops at the first failure.
type Validator interface {
	ValidateRequestPath(req *core.Request) ValidationResult
	ValidateRequestHeaders(req *core.Request) ValidationResult
	ValidateRequestQuery(req *core.Request) ValidationResult
	ValidateRequestBody(req *core.Request) ValidationResult

	ValidateResponseHeaders(resp *core.Response) ValidationResult
	ValidateResponseBody(resp *core.Response) ValidationResult
}

// NopValidator accepts everything. It is the default when no validator
// is configured.
type NopValidator struct{}

// ValidateRequestPath always passes.
func (NopValidator) ValidateRequestPath(*core.Request) ValidationResult { return Valid() }

// ValidateRequestHeaders always passes.
func (NopValidator) ValidateRequestHeaders(*core.Request) ValidationResult { return Valid() }

// ValidateRequestQuery always passes.
func (NopValidator) ValidateRequestQuery(*core.Request) ValidationResult { return Valid() }

// ValidateRequestBody always passes.
func (NopValidator) ValidateRequestBody(*core.Request) ValidationResult { return Valid() }

// ValidateResponseHeaders always passes.
func (NopValidator) ValidateResponseHeaders(*core.Response) ValidationResult { return Valid() }

// ValidateResponseBody always passes.
func (NopValidator) ValidateResponseBody(*core.Response) ValidationResult { return Valid() }
