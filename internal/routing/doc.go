// Package routing matches requests to routes and selects upstreams.
// Route match patterns are compiled once at load. Upstream selection
// filters candidates through health flags and per-upstream circuit
// breakers, then applies the route's load balancing algorithm; call
// results feed back into breaker state and rolling latency averages.
package routing
