package gateway

import (
	"time"

	"github.com/calmisko/gatepipe/internal/core"
)

// Stage names as recorded in the per-request trace.
const (
	StageSecurity         = "security"
	StageRateLimit        = "ratelimit"
	StageAuth             = "auth"
	StageValidate         = "validate"
	StageCacheLookup      = "cache_lookup"
	StageRouting          = "routing"
	StageForward          = "forward"
	StageValidateResponse = "validate_response"
	StageCacheStore       = "cache_store"
	StageHeaders          = "headers"
)

// Stage outcomes. Stages reached by a request record exactly one.
const (
	outcomeOK        = "ok"
	outcomeSkipped   = "skipped"
	outcomeBlocked   = "blocked"
	outcomePreflight = "preflight"
	outcomeDenied    = "denied"
	outcomeInvalid   = "invalid"
	outcomeHit        = "hit"
	outcomeMiss       = "miss"
	outcomeStored     = "stored"
	outcomeDeclined   = "declined"
	outcomeNoRoute    = "no_route"
	outcomeNoUpstream = "no_upstream"
	outcomeError      = "error"
)

// Stage is one entry in the per-request stage trace: which stage ran,
// how it concluded, and how long it took.
type Stage struct {
	// Name identifies the stage.
	Name string

	// Outcome is the stage's conclusion, e.g. "ok", "denied", "hit".
	Outcome string

	// Duration is the wall time the stage consumed.
	Duration time.Duration
}

// Result is the full record of one pipeline run: the response handed
// to the transport adapter plus the trace of the stages that produced
// it.
type Result struct {
	// Response is the terminal response. Never nil.
	Response *core.Response

	// Stages lists the stages that ran, in execution order.
	Stages []Stage

	// Route is the matched route ID. Empty when routing was not
	// reached or nothing matched.
	Route string

	// Upstream is the selected upstream ID. Empty when no upstream
	// call was made.
	Upstream string

	// Latency is the total pipeline time for the request.
	Latency time.Duration
}

// StageOutcome returns the recorded outcome for the named stage, or
// the empty string when the stage was never reached.
func (r *Result) StageOutcome(name string) string {
	for i := 0; i < len(r.Stages); i++ {
		if r.Stages[i].Name == name {
			return r.Stages[i].Outcome
		}
	}
	return ""
}
