package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for reconciliation and role assignment.
type Metrics struct {
	// Reconcile outcomes by outcome label
	Outcomes *prometheus.CounterVec

	// Provider round trips, successful or not
	ProviderLatency prometheus.Histogram

	// Role grants and revokes by op and result
	RoleOps *prometheus.CounterVec

	// Requests the queue could not take
	QueueDropped prometheus.Counter

	SweepDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_reconcile_outcomes_total",
			Help: "Reconcile results by outcome",
		}, []string{"outcome"}),

		ProviderLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "argus_reconcile_provider_duration_seconds",
			Help:    "Duration of provider role lookups",
			Buckets: prometheus.DefBuckets,
		}),

		RoleOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_reconcile_role_ops_total",
			Help: "Provider role grants and revokes by op and result",
		}, []string{"op", "result"}),

		QueueDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "argus_reconcile_queue_dropped_total",
			Help: "Reconcile requests dropped because the queue was full",
		}),

		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "argus_reconcile_sweep_duration_seconds",
			Help:    "Duration of a full reconcile sweep",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
}

func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveProviderLatency(d time.Duration) {
	if m != nil {
		m.ProviderLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRoleOp(op string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.RoleOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) IncrementQueueDropped() {
	if m != nil {
		m.QueueDropped.Inc()
	}
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m != nil {
		m.SweepDuration.Observe(d.Seconds())
	}
}
