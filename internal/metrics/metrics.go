package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shopfront"

// Metrics groups the collectors used by the checkout workflow.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	checkouts        *prometheus.CounterVec
	checkoutDuration *prometheus.HistogramVec
	compensations    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Checkout attempts by entry path and outcome.",
		}, []string{"path", "outcome"}),
		checkoutDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_seconds",
			Help:      "Duration of checkout execution in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_compensations_total",
			Help:      "Resolved reservation expiries by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.checkouts, m.checkoutDuration, m.compensations)
	}
	return m
}

func (m *Metrics) ObserveCheckout(path, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(path, outcome).Inc()
	m.checkoutDuration.WithLabelValues(path).Observe(took.Seconds())
}

func (m *Metrics) ObserveCompensation(outcome string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(outcome).Inc()
}
