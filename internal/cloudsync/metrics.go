package cloudsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts cloud sync traffic. A nil *Metrics records nothing.
type Metrics struct {
	Attempts    *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Transitions *prometheus.CounterVec
	Refreshes   *prometheus.CounterVec
}

// NewMetrics registers the cloud sync collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemagraph_cloudsync_attempts_total",
				Help: "Cloud sync calls by operation, path and result",
			},
			[]string{"op", "path", "result"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schemagraph_cloudsync_duration_seconds",
				Help:    "Cloud sync call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "path"},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemagraph_cloudsync_transitions_total",
				Help: "Write state machine transitions",
			},
			[]string{"from", "to"},
		),
		Refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemagraph_cloudsync_refreshes_total",
				Help: "Session refresh attempts by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) observe(op, path string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Attempts.WithLabelValues(op, path, result).Inc()
	m.Duration.WithLabelValues(op, path).Observe(time.Since(start).Seconds())
}

func (m *Metrics) transition(from, to State) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *Metrics) refresh(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Refreshes.WithLabelValues(result).Inc()
}
