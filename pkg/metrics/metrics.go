package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Page allocator metrics
	PagesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ridge_pages_total",
			Help: "Total number of allocated pages across all tables",
		},
	)

	PagesFree = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ridge_pages_free",
			Help: "Total number of free row slots across all pages",
		},
	)

	// Blob store metrics
	BlobsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ridge_blobs_total",
			Help: "Total number of distinct content-addressed blobs stored",
		},
	)

	BlobBytesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ridge_blob_bytes_total",
			Help: "Total bytes held by the blob store",
		},
	)

	// Table metrics
	TablesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ridge_tables_total",
			Help: "Total number of tables in committed state",
		},
	)

	RowsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridge_rows_total",
			Help: "Total number of live rows, by table",
		},
		[]string{"table"},
	)

	// Commit log / transaction metrics
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ridge_commits_total",
			Help: "Total number of transactions committed",
		},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ridge_rollbacks_total",
			Help: "Total number of transactions rolled back",
		},
	)

	CommitConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ridge_commit_conflicts_total",
			Help: "Total number of commits rejected by a deferred unique-constraint violation",
		},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridge_commit_duration_seconds",
			Help:    "Time taken to commit a transaction, from Commit() to durability hand-off",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Durability metrics
	DurableOffset = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ridge_durable_offset",
			Help: "Highest transaction offset known to be fsynced to the commit log",
		},
	)

	// Replay metrics
	ReplayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridge_replay_duration_seconds",
			Help:    "Time taken to replay the commit log on open",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	ReplayedTxTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ridge_replayed_tx_total",
			Help: "Total number of transactions applied during the last replay",
		},
	)
)

func init() {
	prometheus.MustRegister(PagesTotal)
	prometheus.MustRegister(PagesFree)
	prometheus.MustRegister(BlobsTotal)
	prometheus.MustRegister(BlobBytesTotal)
	prometheus.MustRegister(TablesTotal)
	prometheus.MustRegister(RowsTotal)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(CommitConflictsTotal)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(DurableOffset)
	prometheus.MustRegister(ReplayDuration)
	prometheus.MustRegister(ReplayedTxTotal)
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
