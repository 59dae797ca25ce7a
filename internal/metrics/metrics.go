package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WatcherTicks counts poll ticks by result (ok, idle, skipped, error).
	WatcherTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputesync_watcher_ticks_total",
			Help: "Total number of log watcher poll ticks",
		},
		[]string{"result"},
	)

	// WatcherEvents counts events dispatched to handlers.
	WatcherEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputesync_watcher_events_total",
			Help: "Total number of ledger events dispatched",
		},
		[]string{"event"},
	)

	// WatcherDuplicates counts events dropped as already seen.
	WatcherDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "disputesync_watcher_duplicate_events_total",
			Help: "Total number of ledger events dropped as duplicates",
		},
	)

	// WatcherHandlerErrors counts handler failures.
	WatcherHandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputesync_watcher_handler_errors_total",
			Help: "Total number of event handler failures",
		},
		[]string{"event"},
	)

	// WatcherLastBlock is the last block covered by a completed tick.
	WatcherLastBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "disputesync_watcher_last_block",
			Help: "Last ledger block scanned by the log watcher",
		},
	)

	// SequencerDepth is the number of queued write operations.
	SequencerDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "disputesync_sequencer_depth",
			Help: "Queued store write operations",
		},
		[]string{"sequencer"},
	)

	// SequencerLatency tracks the execution time of write operations.
	SequencerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "disputesync_sequencer_op_seconds",
			Help:    "Store write operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sequencer"},
	)

	// SequencerErrors counts failed write operations.
	SequencerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputesync_sequencer_errors_total",
			Help: "Total number of failed store write operations",
		},
		[]string{"sequencer"},
	)

	// CacheLookups counts projection cache lookups by result (hit, miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputesync_projection_cache_lookups_total",
			Help: "Total number of projection cache lookups",
		},
		[]string{"result"},
	)

	// ReconcileRuns counts reconciliation calls by path (idle, current, synced, error).
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputesync_reconcile_runs_total",
			Help: "Total number of dispute reconciliation runs",
		},
		[]string{"path"},
	)
)
