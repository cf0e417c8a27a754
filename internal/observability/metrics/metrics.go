package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the scheduling core.
// All observe methods are nil-safe so tests can pass a nil receiver.
type SchedulingMetrics struct {
	transitionsTotal *prometheus.CounterVec
	conflictsTotal   *prometheus.CounterVec
	denialsTotal     *prometheus.CounterVec
	remindersTotal   prometheus.Counter
	sweepDuration    prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabsched",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Applied status transitions",
		}, []string{"from", "to", "trigger"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabsched",
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Rejected bookings and reschedules by cause",
		}, []string{"cause"}),
		denialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabsched",
			Subsystem: "access",
			Name:      "denials_total",
			Help:      "Authorization denials by resource",
		}, []string{"resource"}),
		remindersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cabsched",
			Subsystem: "reminder",
			Name:      "emitted_total",
			Help:      "Reminder notifications emitted",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cabsched",
			Subsystem: "reminder",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one full sweep tick",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.conflictsTotal, m.denialsTotal, m.remindersTotal, m.sweepDuration)
	return m
}

func (m *SchedulingMetrics) ObserveTransition(from, to, trigger string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to, trigger).Inc()
}

func (m *SchedulingMetrics) ObserveConflict(cause string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(cause).Inc()
}

func (m *SchedulingMetrics) ObserveDenial(resource string) {
	if m == nil {
		return
	}
	m.denialsTotal.WithLabelValues(resource).Inc()
}

func (m *SchedulingMetrics) ObserveReminder() {
	if m == nil {
		return
	}
	m.remindersTotal.Inc()
}

func (m *SchedulingMetrics) ObserveSweepDuration(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}
