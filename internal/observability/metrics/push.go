package metrics

import "github.com/prometheus/client_golang/prometheus"

// PushMetrics covers notification ingestion and delivery. A nil
// *PushMetrics records nothing.
type PushMetrics struct {
	received    *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	dropped     prometheus.Counter
	clicks      prometheus.Counter
	rateLimited prometheus.Counter
}

// NewPushMetrics registers push metrics on reg.
func NewPushMetrics(reg prometheus.Registerer) (*PushMetrics, error) {
	m := &PushMetrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "received_total",
			Help:      "Push messages received by source.",
		}, []string{"source"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by notifier and result.",
		}, []string{"notifier", "result"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "dropped_total",
			Help:      "Notifications dropped because the delivery queue was full.",
		}),
		clicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "clicks_total",
			Help:      "Notification clicks.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "rate_limited_total",
			Help:      "Push messages rejected by the ingestion rate limit.",
		}),
	}
	if err := registerAll(reg, m.received, m.delivered, m.dropped, m.clicks, m.rateLimited); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordReceived counts an accepted push message.
func (m *PushMetrics) RecordReceived(source string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(source).Inc()
}

// RecordDelivery counts one notifier delivery.
func (m *PushMetrics) RecordDelivery(notifier string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.delivered.WithLabelValues(notifier, result).Inc()
}

// RecordDropped counts a notification that never reached the bus.
func (m *PushMetrics) RecordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// RecordClick counts a notification click.
func (m *PushMetrics) RecordClick() {
	if m == nil {
		return
	}
	m.clicks.Inc()
}

// RecordRateLimited counts a rejected push message.
func (m *PushMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
