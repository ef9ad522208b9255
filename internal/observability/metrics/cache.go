package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics covers fetch interception and the worker lifecycle. A nil
// *CacheMetrics records nothing.
type CacheMetrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	writes        *prometheus.CounterVec
	installs      *prometheus.CounterVec
	activations   prometheus.Counter
	storesDeleted prometheus.Counter
}

// NewCacheMetrics registers cache metrics on reg.
func NewCacheMetrics(reg prometheus.Registerer) (*CacheMetrics, error) {
	m := &CacheMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Intercepted requests by the source that answered them.",
		}, []string{"source"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Time to answer an intercepted request.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"source"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Runtime cache writes by result.",
		}, []string{"result"}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "installs_total",
			Help:      "Worker installs by result.",
		}, []string{"result"}),
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "activations_total",
			Help:      "Worker versions activated.",
		}),
		storesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "stores_deleted_total",
			Help:      "Stale cache stores deleted on activation.",
		}),
	}
	if err := registerAll(reg, m.requests, m.duration, m.writes, m.installs, m.activations, m.storesDeleted); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRequest counts an answered request.
func (m *CacheMetrics) RecordRequest(source string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(source).Inc()
	m.duration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// RecordWrite counts a runtime cache write: "ok", "error" or "skipped".
func (m *CacheMetrics) RecordWrite(result string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(result).Inc()
}

// RecordInstall counts an install attempt.
func (m *CacheMetrics) RecordInstall(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.installs.WithLabelValues(result).Inc()
}

// RecordActivation counts an activation and the stores it removed.
func (m *CacheMetrics) RecordActivation(deletedStores int) {
	if m == nil {
		return
	}
	m.activations.Inc()
	m.storesDeleted.Add(float64(deletedStores))
}
