package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records authorization decisions. A nil *Metrics records nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the gate metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "coffeeshop"
	}

	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "authz",
				Name:      "decisions_total",
				Help:      "Total number of authorization decisions",
			},
			[]string{"permission", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "authz",
				Name:      "duration_seconds",
				Help:      "Authorization latency in seconds",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"permission"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.decisions, m.duration)
	}
	return m
}

func (m *Metrics) observe(permission, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(permission, result).Inc()
	m.duration.WithLabelValues(permission).Observe(d.Seconds())
}
