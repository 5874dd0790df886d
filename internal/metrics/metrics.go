package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the outreach service
type Metrics struct {
	// Delivery counters
	EmailsSentTotal   prometheus.Counter
	EmailsFailedTotal prometheus.Counter
	EmailsOpenedTotal prometheus.Counter

	// Delivery timing
	DispatchDuration prometheus.Histogram

	// Campaign lifecycle
	CampaignsStartedTotal   prometheus.Counter
	CampaignsCompletedTotal prometheus.Counter
	CampaignsSendingGauge   prometheus.Gauge

	// Worker rounds
	WorkerRunsTotal    prometheus.Counter
	WorkerRunDuration  prometheus.Histogram
	WorkerSkippedTotal prometheus.Counter

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_emails_sent_total",
				Help: "Total number of successfully delivered emails",
			},
		),
		EmailsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_emails_failed_total",
				Help: "Total number of failed delivery attempts",
			},
		),
		EmailsOpenedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_emails_opened_total",
				Help: "Total number of tracking pixel hits",
			},
		),

		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "outreach_dispatch_duration_seconds",
				Help:    "Time spent delivering one email",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),

		CampaignsStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_campaigns_started_total",
				Help: "Total number of campaign activations",
			},
		),
		CampaignsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_campaigns_completed_total",
				Help: "Total number of campaigns that reached completion",
			},
		),
		CampaignsSendingGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreach_campaigns_sending",
				Help: "Number of campaigns currently in sending state",
			},
		),

		WorkerRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_worker_runs_total",
				Help: "Total number of periodic processing rounds",
			},
		),
		WorkerRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "outreach_worker_run_duration_seconds",
				Help:    "Duration of one periodic processing round",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),
		WorkerSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_worker_skipped_total",
				Help: "Rounds skipped because the previous round was still running",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outreach_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.EmailsOpenedTotal,
		m.DispatchDuration,
		m.CampaignsStartedTotal,
		m.CampaignsCompletedTotal,
		m.CampaignsSendingGauge,
		m.WorkerRunsTotal,
		m.WorkerRunDuration,
		m.WorkerSkippedTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
