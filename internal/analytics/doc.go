// Package analytics emits fire-and-forget usage events.
//
// The Emitter accepts events through a buffered channel and delivers
// them to a Sink on a single background goroutine. Emit never blocks:
// when the buffer is full the event is dropped and counted. Sink
// delivery runs behind a circuit breaker so a dead sink stops being
// called, and delivery failure logs are rate-limited.
//
// Two sinks ship with the package: a log sink that writes events
// through the structured logger and an HTTP sink that POSTs them as
// JSON.
package analytics
