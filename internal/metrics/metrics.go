// Package metrics exposes Prometheus instrumentation for the polling core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamwatch_fetches_total",
			Help: "Total number of listing fetch attempts",
		},
		[]string{"source", "result"},
	)

	itemsYieldedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamwatch_items_yielded_total",
			Help: "Total number of new items yielded to the caller",
		},
		[]string{"source"},
	)

	pollDelaySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamwatch_poll_delay_seconds",
			Help:    "Computed inter-poll delay in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	pollerHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamwatch_poller_health",
			Help: "Poller health state (0=healthy, 1=degraded, 2=dead)",
		},
		[]string{"source"},
	)

	rateRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamwatch_rate_remaining",
			Help: "Remaining calls in the current rate-limit window",
		},
	)

	rateExternalObserved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamwatch_rate_external_observed",
			Help: "Calls attributed to external consumers in the current window",
		},
	)

	pollersRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamwatch_pollers_registered",
			Help: "Number of pollers sharing the rate budget",
		},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(fetchesTotal)
	prometheus.MustRegister(itemsYieldedTotal)
	prometheus.MustRegister(pollDelaySeconds)
	prometheus.MustRegister(pollerHealth)
	prometheus.MustRegister(rateRemaining)
	prometheus.MustRegister(rateExternalObserved)
	prometheus.MustRegister(pollersRegistered)
}

// ObserveFetch records the outcome of one fetch attempt.
func ObserveFetch(source, result string) {
	fetchesTotal.WithLabelValues(source, result).Inc()
}

// ObserveItems records items yielded to the caller.
func ObserveItems(source string, count int) {
	if count > 0 {
		itemsYieldedTotal.WithLabelValues(source).Add(float64(count))
	}
}

// ObserveDelay records a computed inter-poll delay.
func ObserveDelay(d time.Duration) {
	pollDelaySeconds.Observe(d.Seconds())
}

// SetPollerHealth records a poller's health state.
func SetPollerHealth(source string, state int) {
	pollerHealth.WithLabelValues(source).Set(float64(state))
}

// SetBudget records the shared counter's view of the rate window.
func SetBudget(remaining, externalObserved, registered int) {
	rateRemaining.Set(float64(remaining))
	rateExternalObserved.Set(float64(externalObserved))
	pollersRegistered.Set(float64(registered))
}
