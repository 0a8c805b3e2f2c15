package natsstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// storeMetrics holds Prometheus instrumentation for store operations. All
// record methods are nil-safe so call sites never branch on whether metrics
// are enabled.
type storeMetrics struct {
	ops       *prometheus.CounterVec // operations by kind
	opErrors  *prometheus.CounterVec // failed operations by kind
	conflicts prometheus.Counter     // CAS revision conflicts
	rejected  prometheus.Counter     // writes rejected as obsolete
	events    prometheus.Counter     // events delivered to streams
	skipped   prometheus.Counter     // watch entries skipped as foreign
}

// newStoreMetrics creates and registers store metrics with the registerer.
func newStoreMetrics(reg prometheus.Registerer) (*storeMetrics, error) {
	m := &storeMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "earthstar",
			Subsystem: "natsstore",
			Name:      "operations_total",
			Help:      "Store operations by kind",
		}, []string{"operation"}),

		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "earthstar",
			Subsystem: "natsstore",
			Name:      "operation_errors_total",
			Help:      "Failed store operations by kind",
		}, []string{"operation"}),

		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "earthstar",
			Subsystem: "natsstore",
			Name:      "cas_conflicts_total",
			Help:      "Revision conflicts hit by the ingest loop",
		}),

		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "earthstar",
			Subsystem: "natsstore",
			Name:      "writes_rejected_total",
			Help:      "Writes rejected as obsolete",
		}),

		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "earthstar",
			Subsystem: "natsstore",
			Name:      "watch_events_total",
			Help:      "Events delivered to event streams",
		}),

		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "earthstar",
			Subsystem: "natsstore",
			Name:      "watch_entries_skipped_total",
			Help:      "Watch entries skipped as foreign or undecodable",
		}),
	}

	collectors := []prometheus.Collector{
		m.ops, m.opErrors, m.conflicts, m.rejected, m.events, m.skipped,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *storeMetrics) recordOp(operation string) {
	if m != nil {
		m.ops.WithLabelValues(operation).Inc()
	}
}

func (m *storeMetrics) recordError(operation string) {
	if m != nil {
		m.opErrors.WithLabelValues(operation).Inc()
	}
}

func (m *storeMetrics) recordConflict() {
	if m != nil {
		m.conflicts.Inc()
	}
}

func (m *storeMetrics) recordRejected() {
	if m != nil {
		m.rejected.Inc()
	}
}

func (m *storeMetrics) recordEvent() {
	if m != nil {
		m.events.Inc()
	}
}

func (m *storeMetrics) recordSkipped() {
	if m != nil {
		m.skipped.Inc()
	}
}
