package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "modelhub"

var (
	RunStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_started_total",
			Help:      "Total number of job runs that entered Processing.",
		},
		[]string{"model"},
	)

	RunFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_finished_total",
			Help:      "Total number of job runs that settled, labeled by terminal state.",
		},
		[]string{"model", "state"},
	)

	RunLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_latency_seconds",
			Help:      "Time from submit to settle (seconds).",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"model", "state"},
	)

	SubmitBlockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_blocked_total",
			Help:      "Submits rejected client-side before any network call, labeled by reason.",
		},
		[]string{"reason"},
	)

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Image uploads, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	DescriptorFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "descriptor_fetch_total",
			Help:      "Model descriptor lookups, labeled by source (cache, api) and outcome.",
		},
		[]string{"source", "outcome"},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Requests sent to the API, labeled by operation and status class.",
		},
		[]string{"op", "status"},
	)

	WorkflowsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows_active",
			Help:      "Workflow instances currently started and not stopped.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RunStartedTotal,
		RunFinishedTotal,
		RunLatencySeconds,
		SubmitBlockedTotal,
		UploadsTotal,
		DescriptorFetchTotal,
		APIRequestsTotal,
		WorkflowsActive,
	)
}
