// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Ingest pipeline
var (
	IngestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_ingest_runs_total",
			Help: "Pipeline runs by final outcome (error code or ok)",
		},
		[]string{"outcome"},
	)

	IngestRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "template_ingest_run_duration_seconds",
			Help:    "End-to-end pipeline run duration",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	IngestStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "template_ingest_stage_duration_seconds",
			Help:    "Time spent in each pipeline state",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	IngestAssets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_ingest_assets_total",
			Help: "Archive entries handled during relocation",
		},
		[]string{"kind", "result"},
	)

	IngestArchiveBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "template_ingest_archive_bytes",
			Help:    "Size of downloaded template archives",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)

	IngestRunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "template_ingest_runs_active",
			Help: "Pipeline runs currently in flight",
		},
	)
)
