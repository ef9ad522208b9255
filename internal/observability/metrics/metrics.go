// Package metrics exposes prometheus metrics for the edge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gopos_edge"

// Metrics groups every collector the edge registers.
type Metrics struct {
	registry *prometheus.Registry
	Cache    *CacheMetrics
	Push     *PushMetrics
}

// New creates a private registry with process and Go runtime collectors
// plus the edge's own metrics.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	cache, err := NewCacheMetrics(reg)
	if err != nil {
		return nil, err
	}
	push, err := NewPushMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &Metrics{registry: reg, Cache: cache, Push: push}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func registerAll(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
