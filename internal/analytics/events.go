package analytics

import (
	"time"

	"github.com/google/uuid"

	"github.com/calmisko/gatepipe/internal/core"
)

// EventType identifies an analytics event.
type EventType string

// Event types.
const (
	EventRequestStart EventType = "request_start"
	EventRequestEnd   EventType = "request_end"
	EventAuth         EventType = "auth_event"
	EventRateLimit    EventType = "ratelimit_event"
	EventCache        EventType = "cache_event"
	EventError        EventType = "error_event"
)

// Event is a single analytics record.
type Event struct {
	// ID is a unique identifier for the event.
	ID string `json:"id"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RequestID ties the event to a gateway request.
	RequestID string `json:"request_id,omitempty"`

	// TenantID is the tenant the request belonged to.
	TenantID string `json:"tenant_id,omitempty"`

	// Method is the request method.
	Method string `json:"method,omitempty"`

	// Path is the request path.
	Path string `json:"path,omitempty"`

	// Status is the response status code, when known.
	Status int `json:"status,omitempty"`

	// Latency is how long the request took, when known.
	Latency time.Duration `json:"latency,omitempty"`

	// Outcome qualifies the event: success, failure, hit, miss,
	// allowed, limited.
	Outcome string `json:"outcome,omitempty"`

	// Detail explains the event in human-readable form.
	Detail string `json:"detail,omitempty"`
}

// NewEvent creates an event of the given type with an ID and
// timestamp assigned.
func NewEvent(eventType EventType) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// WithRequest captures the request identity fields.
func (e *Event) WithRequest(req *core.Request) *Event {
	if req == nil {
		return e
	}
	e.RequestID = req.RequestID
	e.TenantID = req.TenantID
	e.Method = req.Method
	e.Path = req.Path
	return e
}

// WithStatus sets the response status code.
func (e *Event) WithStatus(status int) *Event {
	e.Status = status
	return e
}

// WithLatency sets the request latency.
func (e *Event) WithLatency(latency time.Duration) *Event {
	e.Latency = latency
	return e
}

// WithOutcome sets the outcome qualifier.
func (e *Event) WithOutcome(outcome string) *Event {
	e.Outcome = outcome
	return e
}

// WithDetail sets the human-readable detail.
func (e *Event) WithDetail(detail string) *Event {
	e.Detail = detail
	return e
}

// RequestStartEvent marks a request entering the pipeline.
func RequestStartEvent(req *core.Request) *Event {
	return NewEvent(EventRequestStart).WithRequest(req)
}

// RequestEndEvent marks a request leaving the pipeline.
func RequestEndEvent(req *core.Request, status int, latency time.Duration) *Event {
	return NewEvent(EventRequestEnd).
		WithRequest(req).
		WithStatus(status).
		WithLatency(latency)
}

// AuthEvent records an authentication decision.
func AuthEvent(req *core.Request, outcome, detail string) *Event {
	return NewEvent(EventAuth).
		WithRequest(req).
		WithOutcome(outcome).
		WithDetail(detail)
}

// RateLimitEvent records a rate limiting decision.
func RateLimitEvent(req *core.Request, allowed bool) *Event {
	outcome := "allowed"
	if !allowed {
		outcome = "limited"
	}
	return NewEvent(EventRateLimit).
		WithRequest(req).
		WithOutcome(outcome)
}

// CacheEvent records a cache lookup.
func CacheEvent(req *core.Request, hit bool) *Event {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	return NewEvent(EventCache).
		WithRequest(req).
		WithOutcome(outcome)
}

// ErrorEvent records a request that ended in an error.
func ErrorEvent(req *core.Request, status int, detail string) *Event {
	return NewEvent(EventError).
		WithRequest(req).
		WithStatus(status).
		WithDetail(detail)
}
