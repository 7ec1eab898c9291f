package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics observes event log traffic.
type Metrics struct {
	// Append attempts by result: ok, conflict, exists, error
	Appends *prometheus.CounterVec

	// Events written
	EventsAppended prometheus.Counter

	AppendLatency prometheus.Histogram

	ReadLatency *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Appends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_eventstore_appends_total",
			Help: "Append attempts by result",
		}, []string{"result"}),

		EventsAppended: f.NewCounter(prometheus.CounterOpts{
			Name: "argus_eventstore_events_appended_total",
			Help: "Events written to the log",
		}),

		AppendLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "argus_eventstore_append_duration_seconds",
			Help:    "Duration of an append",
			Buckets: prometheus.DefBuckets,
		}),

		ReadLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "argus_eventstore_read_duration_seconds",
			Help:    "Duration of stream and log reads",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

func (m *Metrics) ObserveAppend(result string, events int, d time.Duration) {
	if m == nil {
		return
	}
	m.Appends.WithLabelValues(result).Inc()
	m.AppendLatency.Observe(d.Seconds())
	if result == "ok" {
		m.EventsAppended.Add(float64(events))
	}
}

func (m *Metrics) ObserveRead(op string, d time.Duration) {
	if m != nil {
		m.ReadLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}
