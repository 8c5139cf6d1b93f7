package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the warehouse reconciliation core.
// Tracks operation outcomes and durations, contention on container scopes
// and lifecycle overrides (forced closes, acknowledged unrouted invoices).
type Metrics struct {
	Operations          *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	ConflictRetries     *prometheus.CounterVec
	ForcedCloses        prometheus.Counter
	UnroutedWorked      prometheus.Counter
	ContainerTransition *prometheus.CounterVec
	ItemsMarked         prometheus.Counter
}

// New registers the warehouse metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freightdesk_operations_total",
			Help: "Coordinator operations by name and outcome (ok or error code)",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "freightdesk_operation_duration_seconds",
			Help:    "Duration of coordinator operations including lock wait",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		ConflictRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freightdesk_conflict_retries_total",
			Help: "Units of work retried after losing an optimistic write",
		}, []string{"operation"}),
		ForcedCloses: f.NewCounter(prometheus.CounterOpts{
			Name: "freightdesk_forced_closes_total",
			Help: "Containers closed with incomplete invoices",
		}),
		UnroutedWorked: f.NewCounter(prometheus.CounterOpts{
			Name: "freightdesk_unrouted_worked_total",
			Help: "Containers marked worked with acknowledged unrouted invoices",
		}),
		ContainerTransition: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freightdesk_container_transitions_total",
			Help: "Container lifecycle transitions by target state",
		}, []string{"state"}),
		ItemsMarked: f.NewCounter(prometheus.CounterOpts{
			Name: "freightdesk_item_mark_changes_total",
			Help: "Item mark flips (no-op re-marks are not counted)",
		}),
	}
}

// ObserveOperation records the outcome and duration of one operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementConflictRetry(operation string) {
	if m == nil {
		return
	}
	m.ConflictRetries.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementForcedClose() {
	if m == nil {
		return
	}
	m.ForcedCloses.Inc()
}

func (m *Metrics) IncrementUnroutedWorked() {
	if m == nil {
		return
	}
	m.UnroutedWorked.Inc()
}

func (m *Metrics) IncrementTransition(state string) {
	if m == nil {
		return
	}
	m.ContainerTransition.WithLabelValues(state).Inc()
}

func (m *Metrics) IncrementItemMarked() {
	if m == nil {
		return
	}
	m.ItemsMarked.Inc()
}
