// Package metrics exposes Prometheus collectors for the lead pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	filterVerdictsTotal        *prometheus.CounterVec
	sendsTotal                 *prometheus.CounterVec
	pauseTransitionsTotal      *prometheus.CounterVec
	itemsScannedTotal          *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	runActive                  prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		filterVerdictsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_filter_verdicts_total",
				Help: "Filter chain decisions, labeled by verdict and reason.",
			},
			[]string{"verdict", "reason"},
		)

		sendsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_sends_total",
				Help: "Delivery attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pauseTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_pause_transitions_total",
				Help: "Checkpoint state transitions, labeled by target state.",
			},
			[]string{"to"},
		)

		itemsScannedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_items_scanned_total",
				Help: "Items captured from source pages, labeled by source.",
			},
			[]string{"source"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_runs_total",
				Help: "Pipeline runs, labeled by final status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		runActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadscout_run_active",
				Help: "1 while a pipeline run is in progress.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFilter records one filter chain decision.
func ObserveFilter(accepted bool, reason string) {
	if filterVerdictsTotal == nil {
		return
	}
	verdict := "rejected"
	if accepted {
		verdict = "accepted"
	}
	if reason == "" {
		reason = "none"
	}
	filterVerdictsTotal.WithLabelValues(verdict, reason).Inc()
}

// ObserveSend records one delivery attempt outcome
// ("delivered", "duplicate", "failed" or "suppressed").
func ObserveSend(outcome string) {
	if sendsTotal == nil {
		return
	}
	sendsTotal.WithLabelValues(outcome).Inc()
}

// ObservePauseTransition records a checkpoint transition to the given state.
func ObservePauseTransition(to string) {
	if pauseTransitionsTotal == nil {
		return
	}
	pauseTransitionsTotal.WithLabelValues(to).Inc()
}

// ObserveItemsScanned adds captured item counts for a source.
func ObserveItemsScanned(source string, n int) {
	if itemsScannedTotal == nil || n <= 0 {
		return
	}
	itemsScannedTotal.WithLabelValues(source).Add(float64(n))
}

// ObserveRun records a completed run with its final status.
func ObserveRun(status string) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
}

// SetRunActive flips the active-run gauge.
func SetRunActive(active bool) {
	if runActive == nil {
		return
	}
	if active {
		runActive.Set(1)
	} else {
		runActive.Set(0)
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
