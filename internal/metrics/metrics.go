// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leads"

var (
	RequestsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_submitted_total",
		Help:      "Scrape requests accepted.",
	})

	// Transitions counts successful stage writes by target status.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_transitions_total",
		Help:      "Scrape request status transitions.",
	}, []string{"to"})

	RunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pipeline_runs_in_flight",
		Help:      "Pipeline runs executing in this process.",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Time spent in each pipeline stage.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900},
	}, []string{"stage"})

	Leads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leads_total",
		Help:      "Leads seen per pipeline outcome.",
	}, []string{"outcome"})

	StaleSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_requests_failed_total",
		Help:      "Requests failed by the sweeper after exceeding the run budget.",
	})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_sent_total",
		Help:      "Application emails sent per channel.",
	}, []string{"channel"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credential_refreshes_total",
		Help:      "Delegated credential refresh attempts by result.",
	}, []string{"result"})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
