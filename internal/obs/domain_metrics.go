package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ScrapeTotal counts tracking scrape outcomes by engine and result.
	ScrapeTotal *prometheus.CounterVec
	// ScrapeDuration records end-to-end scrape latency in milliseconds.
	ScrapeDuration *prometheus.HistogramVec
	// SessionsInUse tracks live browser sessions held by in-flight requests.
	SessionsInUse prometheus.Gauge
	// SessionWait records how long requests waited for pool admission.
	SessionWait prometheus.Histogram
	// SessionsRejected counts requests refused because the pool stayed full
	// past the queue timeout.
	SessionsRejected prometheus.Counter
	// SessionFailures counts browser sessions that failed to start.
	SessionFailures prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ScrapeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_total",
			Help:      "Count of tracking scrape outcomes.",
		}, []string{"engine", "result"})
		ScrapeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_ms",
			Help:      "Latency of tracking scrapes in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 20000, 30000},
		}, []string{"result"})
		SessionsInUse = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_sessions_in_use",
			Help:      "Current number of browser sessions held by requests.",
		})
		SessionWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "browser_session_wait_ms",
			Help:      "Time spent waiting for browser pool admission in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 2500, 5000},
		})
		SessionsRejected = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browser_sessions_rejected_total",
			Help:      "Requests rejected because the session pool stayed exhausted.",
		})
		SessionFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browser_session_failures_total",
			Help:      "Browser sessions that failed to start or crashed on acquire.",
		})

		mustRegisterCollector(reg, ScrapeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ScrapeTotal = v
			}
		})
		mustRegisterCollector(reg, ScrapeDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ScrapeDuration = v
			}
		})
		mustRegisterCollector(reg, SessionsInUse, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				SessionsInUse = v
			}
		})
		mustRegisterCollector(reg, SessionWait, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				SessionWait = v
			}
		})
		mustRegisterCollector(reg, SessionsRejected, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SessionsRejected = v
			}
		})
		mustRegisterCollector(reg, SessionFailures, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SessionFailures = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			reuse(are.ExistingCollector)
			return
		}
		panic(fmt.Errorf("register collector: %w", err))
	}
}
