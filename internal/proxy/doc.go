// Package proxy forwards requests to upstream services.
//
// The Forwarder takes the pipeline's request descriptor, builds a
// transformed HTTP request (header rewrites, forwarding headers, host
// substitution) and issues it over a pooled transport. The caller owns
// retry and failover decisions; a Forwarder never reissues a request.
package proxy
