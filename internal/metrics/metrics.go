package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IndexJobs counts re-index jobs by result (ok, retry, failed, dropped)
	IndexJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kb_index_jobs_total",
			Help: "Total number of article re-index jobs",
		},
		[]string{"result"},
	)

	IndexJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kb_index_job_duration_seconds",
			Help:    "Article re-index job duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	IndexQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kb_index_queue_depth",
			Help: "Number of re-index jobs waiting or running",
		},
	)

	ReferenceRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kb_reference_allocation_retries_total",
			Help: "Article creations retried after a reference collision",
		},
	)

	// Notifications counts assignment notifications by result (sent, failed, dropped)
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kb_notifications_total",
			Help: "Total number of assignment notifications",
		},
		[]string{"result"},
	)
)
