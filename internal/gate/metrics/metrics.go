package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the connect-time gate.
type Metrics struct {
	// Decisions by kind and reason
	Decisions *prometheus.CounterVec

	// Time spent inside Decide
	DecideLatency prometheus.Histogram

	// Deny nudges the reconciliation queue could not take
	NudgesDropped prometheus.Counter
}

// New registers the gate metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_gate_decisions_total",
			Help: "Connect decisions by kind and reason",
		}, []string{"kind", "reason"}),

		DecideLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "argus_gate_decide_duration_seconds",
			Help:    "Duration of a connect decision",
			Buckets: []float64{0.000005, 0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001},
		}),

		NudgesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "argus_gate_reconcile_nudges_dropped_total",
			Help: "Deny-triggered reconcile requests dropped because the queue was full",
		}),
	}
}

func (m *Metrics) IncrementDecision(kind, reason string) {
	if m != nil {
		m.Decisions.WithLabelValues(kind, reason).Inc()
	}
}

func (m *Metrics) ObserveDecideLatency(d time.Duration) {
	if m != nil {
		m.DecideLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementNudgesDropped() {
	if m != nil {
		m.NudgesDropped.Inc()
	}
}
