package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors updated by the tracker.
type Metrics struct {
	EventsRecorded     prometheus.Counter
	EventsDuplicate    prometheus.Counter
	TxConflicts        prometheus.Counter
	RetriesExhausted   prometheus.Counter
	ExperimentsDeleted prometheus.Counter
	RecordDuration     prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lamed",
			Name:      "events_recorded_total",
			Help:      "Events that incremented a counter.",
		}),
		EventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lamed",
			Name:      "events_duplicate_total",
			Help:      "Events dropped because their dedup marker was present.",
		}),
		TxConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lamed",
			Name:      "tx_conflicts_total",
			Help:      "Optimistic transactions aborted by a concurrent writer.",
		}),
		RetriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lamed",
			Name:      "tx_retries_exhausted_total",
			Help:      "Events given up on after the retry budget ran out.",
		}),
		ExperimentsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lamed",
			Name:      "experiments_deleted_total",
			Help:      "Experiments removed with all of their counters.",
		}),
		RecordDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lamed",
			Name:      "record_duration_seconds",
			Help:      "Time taken to record one event, retries included.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.EventsRecorded,
			m.EventsDuplicate,
			m.TxConflicts,
			m.RetriesExhausted,
			m.ExperimentsDeleted,
			m.RecordDuration,
		)
	}
	return m
}
