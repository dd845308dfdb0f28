// Package gateway orchestrates request processing. The Pipeline runs
// every inbound request through an ordered sequence of policy stages
// (screening, rate limiting, authentication, validation, caching,
// routing, forwarding) and assembles the terminal response. Any stage
// that denies the request short-circuits straight to response assembly
// with that stage's status; a panic anywhere in the sequence is
// recovered at the pipeline boundary and answered as a gateway error.
//
// The pipeline also carries the admin surface: route mutation, limiter
// resets, and snapshot reads of counters, upstream health and breaker
// state, all safe to call concurrently with request processing.
package gateway
