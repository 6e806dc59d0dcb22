package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts submissions and their outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	submissions prometheus.Counter
	outcomes    *prometheus.CounterVec
	discarded   prometheus.Counter
	duration    prometheus.Histogram
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notegen",
			Subsystem: "pipeline",
			Name:      "submissions_total",
			Help:      "Queries accepted by the pipeline.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notegen",
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Settled submissions by terminal status.",
		}, []string{"status"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notegen",
			Subsystem: "pipeline",
			Name:      "stale_resolutions_total",
			Help:      "Responses dropped because a newer submission or teardown superseded them.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "notegen",
			Subsystem: "pipeline",
			Name:      "request_duration_seconds",
			Help:      "Latency of /generate calls that were applied.",
			Buckets:   []float64{1, 5, 15, 30, 60, 90, 120, 180, 300},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submissions, m.outcomes, m.discarded, m.duration)
	}
	return m
}

func (m *Metrics) submitted() {
	if m == nil {
		return
	}
	m.submissions.Inc()
}

func (m *Metrics) settled(status Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(status.String()).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}
