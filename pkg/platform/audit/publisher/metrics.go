package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit delivery.
type Metrics struct {
	Emitted             prometheus.Counter
	Dropped             *prometheus.CounterVec
	DeliveryFailures    prometheus.Counter
	CircuitBreakerState prometheus.Gauge
	QueueDepth          prometheus.Gauge
}

// NewMetrics registers audit delivery metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounter(prometheus.CounterOpts{
			Name: "freightdesk_audit_events_emitted_total",
			Help: "Total number of audit events delivered to the sink",
		}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freightdesk_audit_events_dropped_total",
			Help: "Total number of audit events dropped before delivery",
		}, []string{"reason"}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "freightdesk_audit_delivery_failures_total",
			Help: "Total number of failed audit deliveries",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "freightdesk_audit_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "freightdesk_audit_queue_depth",
			Help: "Audit events buffered and waiting for delivery",
		}),
	}
}

func (m *Metrics) incEmitted() {
	if m != nil {
		m.Emitted.Inc()
	}
}

func (m *Metrics) incDropped(reason string) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) incDeliveryFailures() {
	if m != nil {
		m.DeliveryFailures.Inc()
	}
}

func (m *Metrics) setCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}
