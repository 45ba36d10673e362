package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsindex_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsindex_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Store metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsindex_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsindex_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsindex_db_transaction_duration_seconds",
			Help:    "Batch transaction duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"outcome"}, // "commit", "rollback"
	)
)

// Crawler / build metrics
var (
	BuildRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsindex_build_runs_total",
			Help: "Total number of index builds started",
		},
	)

	BuildLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fsindex_build_last_run_timestamp",
			Help: "Unix timestamp of the last completed build",
		},
	)

	BuildLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fsindex_build_last_run_duration_seconds",
			Help: "Duration of the last completed build in seconds",
		},
	)

	BuildRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fsindex_build_running",
			Help: "Whether a build is currently running (1 = running, 0 = idle)",
		},
	)

	CrawlFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsindex_crawl_files_total",
			Help: "Total number of files discovered by the crawler",
		},
	)

	CrawlDirsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsindex_crawl_dirs_total",
			Help: "Total number of directories discovered by the crawler",
		},
	)

	CrawlErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsindex_crawl_errors_total",
			Help: "Total number of crawl errors by kind",
		},
		[]string{"kind"}, // "access", "other"
	)
)

// Pipeline metrics
var (
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fsindex_pipeline_queue_depth",
			Help: "Number of operations waiting in the batch pipeline queue",
		},
	)

	BatchesCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsindex_pipeline_batches_committed_total",
			Help: "Total number of committed batches",
		},
	)

	BatchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsindex_pipeline_batch_retries_total",
			Help: "Total number of batch commit retries",
		},
	)

	OpsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsindex_pipeline_ops_total",
			Help: "Total number of pipeline operations applied",
		},
		[]string{"kind"}, // "upsert", "delete", "delete_tree"
	)

	OpsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsindex_pipeline_ops_failed_total",
			Help: "Total number of operations lost after a failed retry",
		},
	)
)

// Monitor metrics
var (
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsindex_monitor_events_total",
			Help: "Total number of raw filesystem events received",
		},
		[]string{"kind"}, // "created", "modified", "deleted", "renamed"
	)

	EventsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsindex_monitor_events_suppressed_total",
			Help: "Total number of events suppressed by debouncing",
		},
	)

	EventsCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsindex_monitor_events_coalesced_total",
			Help: "Total number of parent events coalesced with recent child activity",
		},
	)

	RescanTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsindex_monitor_rescans_total",
			Help: "Total number of scoped rescans by trigger",
		},
		[]string{"trigger"}, // "parent_event", "reconcile"
	)

	ReconcileChecksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsindex_monitor_reconcile_checks_total",
			Help: "Total number of reconciliation sweeps",
		},
	)

	ReconcileChangesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsindex_monitor_reconcile_changes_total",
			Help: "Total number of reconciliation sweeps that detected drift",
		},
	)
)
