// Package server exposes the pipeline over HTTP. It owns the gin
// listener, translates between the wire and the transport-neutral
// request/response descriptors, and serves the operational endpoints:
// health, prometheus metrics and the admin surface.
//
// The pipeline handle is swappable at runtime, which is how config
// reloads take effect without restarting the listener.
package server
