// Package metrics provides Prometheus metrics for persistence operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the collectors of one process.
type Registry struct {
	reg *prometheus.Registry
}

type registryOptions struct {
	runtime bool
}

// RegistryOption configures NewRegistry.
type RegistryOption func(*registryOptions)

// WithoutRuntimeCollectors leaves out the Go runtime and process collectors,
// so only entity metrics are gathered.
func WithoutRuntimeCollectors() RegistryOption {
	return func(o *registryOptions) { o.runtime = false }
}

// NewRegistry creates a registry. The Go runtime and process collectors are
// registered unless WithoutRuntimeCollectors is given.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{runtime: true}
	for _, opt := range opts {
		opt(&o)
	}
	reg := prometheus.NewRegistry()
	if o.runtime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &Registry{reg: reg}
}

// Registerer is what promauto.With expects.
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus text or OpenMetrics format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
