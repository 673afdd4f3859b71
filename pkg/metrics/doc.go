/*
Package metrics provides Prometheus metrics collection for the storage
and transaction core.

The metrics package defines and registers gauges, counters, and histograms
tracking page allocation, the blob store, table sizes, commit/rollback
activity, and durability progress. Metrics are package-level variables,
registered once at init, and updated directly by the datastore and by the
Collector's periodic poll.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Pages: total pages, free slots             │          │
	│  │  Blobs: count, total bytes                  │          │
	│  │  Tables: table count, rows per table        │          │
	│  │  Transactions: commits, rollbacks, conflicts│          │
	│  │  Durability: durable offset                 │          │
	│  │  Replay: last replay duration, tx count     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │   datastore.Collector (pkg/datastore)       │          │
	│  │  - Polls committed state on a ticker        │          │
	│  │  - Sets the gauges this package defines     │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

The collector itself lives in pkg/datastore rather than here: it needs
direct access to committed state, and this package must not import
pkg/datastore (pkg/datastore imports this package to update counters and
histograms inline, at commit and replay time — the reverse import would
cycle).

# Metrics Catalog

ridge_pages_total / ridge_pages_free:
  - Type: Gauge
  - Page allocator occupancy across all tables.

ridge_blobs_total / ridge_blob_bytes_total:
  - Type: Gauge
  - Blob store size, by blob count and total bytes held.

ridge_tables_total:
  - Type: Gauge
  - Number of tables currently defined in committed state.

ridge_rows_total{table}:
  - Type: Gauge
  - Live row count, labeled by table name.

ridge_commits_total / ridge_rollbacks_total / ridge_commit_conflicts_total:
  - Type: Counter
  - Transaction outcomes: committed, rolled back, or rejected by a
    deferred unique-constraint violation.

ridge_commit_duration_seconds:
  - Type: Histogram
  - Time from MutTx.Commit() to durability hand-off.

ridge_durable_offset:
  - Type: Gauge
  - The durability actor's fsynced transaction offset, as last observed by
    the Collector's poll of DurableOffset.LastSeen.

ridge_replay_duration_seconds / ridge_replayed_tx_total:
  - Type: Histogram / Counter
  - Time taken and transaction count for the commit log replay performed
    on Open.

# Usage

	import "github.com/ridgedb/ridge/pkg/metrics"

	metrics.CommitsTotal.Inc()
	metrics.RowsTotal.WithLabelValues("people").Set(42)

	timer := metrics.NewTimer()
	// ... commit a transaction ...
	timer.ObserveDuration(metrics.CommitDuration)

Starting the periodic collector (pkg/datastore):

	collector := datastore.NewCollector(ds)
	collector.Start()
	defer collector.Stop()

# Design Patterns

Package Init Registration:
  - All metrics registered in init(), panicking on duplicate registration
    (MustRegister) so a naming collision fails fast at startup.

Timer Pattern:
  - Create a Timer at operation start, call ObserveDuration (or
    ObserveDurationVec for labeled histograms) when it completes.

Collector Pattern:
  - One ticker goroutine, stopped via a close-only stopCh, matching the
    teacher's cluster Collector shape.

Exposing metrics over HTTP (registering promhttp.Handler on a mux) is left
to the caller — this package only defines and updates the metrics
themselves.
*/
package metrics
