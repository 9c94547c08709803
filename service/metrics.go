package service

import "github.com/prometheus/client_golang/prometheus"

var (
	// BatchRequestsTotal counts batches handled by the gateway by response status.
	BatchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odatabatch_batch_requests_total",
			Help: "Batches handled",
		},
		[]string{"status"},
	)

	// BatchItemsTotal counts batch operations by where their result came from.
	BatchItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odatabatch_batch_items_total",
			Help: "Batch operations answered",
		},
		[]string{"source"},
	)

	// BatchDuration records how long a batch took to answer, in seconds.
	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "odatabatch_batch_duration_seconds",
			Help:    "Batch duration",
			Buckets: prometheus.DefBuckets,
		},
	)

	// UpstreamErrorsTotal counts upstream batch exchanges that failed.
	UpstreamErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "odatabatch_upstream_errors_total",
			Help: "Failed upstream batches",
		},
	)
)

func init() {
	prometheus.MustRegister(
		BatchRequestsTotal,
		BatchItemsTotal,
		BatchDuration,
		UpstreamErrorsTotal,
	)
}
