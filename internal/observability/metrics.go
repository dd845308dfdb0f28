package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// NewRegistry creates a Prometheus registry pre-loaded with the standard
// process and Go runtime collectors. All engine components register their
// metrics here so a single /metrics endpoint covers the whole gateway.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Namespace is the metric namespace shared by all gateway components.
const Namespace = "gatepipe"
