package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// BreakerState exposes the current breaker state per carrier:
	// 0=closed, 1=open, 2=half-open.
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts breaker state transitions.
	BreakerTransitions *prometheus.CounterVec
	// BreakerOpenedTotal counts transitions into the open state.
	BreakerOpenedTotal *prometheus.CounterVec
)

// MustRegisterMetrics initialises and registers breaker collectors. Safe to
// call once per process; collectors stay nil when never called, which
// disables recording.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "carrier_breaker_state",
			Help:      "Current carrier breaker state: 0=closed, 1=open, 2=half-open.",
		}, []string{"carrier"})
		BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carrier_breaker_transition_total",
			Help:      "Count of carrier breaker state transitions.",
		}, []string{"carrier", "from", "to"})
		BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carrier_breaker_open_total",
			Help:      "Number of times the carrier breaker opened.",
		}, []string{"carrier"})

		reg.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
	})
}
