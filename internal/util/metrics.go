package util

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// KeySetMetrics holds Prometheus metrics for key set fetches. A nil
// *KeySetMetrics records nothing.
type KeySetMetrics struct {
	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	keys            prometheus.Gauge
}

// NewKeySetMetrics creates the metrics and registers them with reg.
func NewKeySetMetrics(namespace string, reg prometheus.Registerer) *KeySetMetrics {
	if namespace == "" {
		namespace = "coffeeshop"
	}

	m := &KeySetMetrics{
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jwks",
				Name:      "refresh_total",
				Help:      "Total number of JWKS fetch attempts",
			},
			[]string{"status"},
		),
		refreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jwks",
				Name:      "refresh_duration_seconds",
				Help:      "JWKS fetch duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		keys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "jwks",
				Name:      "keys",
				Help:      "Number of signing keys in the cached key set",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.refreshTotal, m.refreshDuration, m.keys)
	}
	for _, status := range []string{"success", "error"} {
		m.refreshTotal.WithLabelValues(status)
	}
	return m
}

func (m *KeySetMetrics) observeRefresh(err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.refreshTotal.WithLabelValues(status).Inc()
	m.refreshDuration.Observe(d.Seconds())
}

func (m *KeySetMetrics) setKeys(n int) {
	if m == nil {
		return
	}
	m.keys.Set(float64(n))
}
