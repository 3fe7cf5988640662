package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics counts checkout state transitions and how long commits take.
type CheckoutMetrics struct {
	transitions *prometheus.CounterVec
	duration    prometheus.Histogram
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_transitions_total",
		Help: "Checkout attempts reaching each state.",
	}, []string{"state"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Time from cart load to committed invoice.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(transitions, duration)
	return &CheckoutMetrics{transitions: transitions, duration: duration}
}

func (m *CheckoutMetrics) Transition(state string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *CheckoutMetrics) ObserveDuration(d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
