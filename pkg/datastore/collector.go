package datastore

import (
	"time"

	"github.com/ridgedb/ridge/pkg/metrics"
)

// Collector polls a Datastore's committed state on a fixed interval and
// republishes page, blob, table, and durability counts as metrics gauges
// — the same ticker-goroutine-stopCh shape the teacher's manager package
// uses for its own metrics collector. It lives here rather than in
// pkg/metrics because it needs direct access to committed state, and
// pkg/metrics must not import pkg/datastore (this package already imports
// pkg/metrics to update counters and histograms inline at commit and
// replay time, so the reverse import would cycle).
type Collector struct {
	ds     *Datastore
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector for ds.
func NewCollector(ds *Datastore) *Collector {
	return &Collector{ds: ds, stopCh: make(chan struct{})}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	snap := c.ds.Snapshot()

	metrics.PagesTotal.Set(float64(snap.Pages))
	metrics.PagesFree.Set(float64(snap.FreeSlots))
	metrics.TablesTotal.Set(float64(snap.Tables))
	for name, rows := range snap.RowsByTable {
		metrics.RowsTotal.WithLabelValues(name).Set(float64(rows))
	}

	metrics.BlobsTotal.Set(float64(snap.Blobs))
	metrics.BlobBytesTotal.Set(float64(snap.BlobBytes))

	if snap.DurableOffsetKnown {
		metrics.DurableOffset.Set(float64(snap.DurableOffset))
	}
}

// Snapshot is a point-in-time read of committed-state sizing and
// durability progress, shared by the metrics collector and by callers
// (the CLI's stats command) that just want the numbers without going
// through Prometheus.
type Snapshot struct {
	Pages              int
	FreeSlots          uint32
	Tables             int
	RowsByTable        map[string]int
	Blobs              int
	BlobBytes          int64
	DurableOffset      uint64
	DurableOffsetKnown bool
}

// Snapshot reads the current sizing and durability state of ds.
func (ds *Datastore) Snapshot() Snapshot {
	committed := ds.committed
	committed.mu.RLock()
	defer committed.mu.RUnlock()

	snap := Snapshot{RowsByTable: make(map[string]int, len(committed.byName))}
	for name, id := range committed.byName {
		tbl := committed.tables[id]
		snap.Pages += tbl.PageCount()
		snap.FreeSlots += tbl.FreeSlots()
		if rows, err := tbl.Scan(); err == nil {
			snap.RowsByTable[name] = len(rows)
		}
	}
	snap.Tables = len(committed.tables)

	snap.Blobs, snap.BlobBytes = ds.blobs.Stats()

	if offset, ok := ds.durability.DurableOffsetHandle().LastSeen(); ok {
		snap.DurableOffset = offset
		snap.DurableOffsetKnown = true
	}
	return snap
}
