// Package observability provides logging, metrics, and tracing support
// for the gateway engine.
//
// Logging is exposed through the Logger interface backed by zap. Metrics
// are Prometheus collectors registered on an engine-owned registry.
// Tracing is OpenTelemetry with an optional OTLP gRPC exporter.
package observability
