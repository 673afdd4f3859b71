package datastore

import (
	"errors"
	"fmt"

	"github.com/ridgedb/ridge/pkg/commitlog"
	"github.com/ridgedb/ridge/pkg/errkind"
	"github.com/ridgedb/ridge/pkg/metrics"
	"github.com/ridgedb/ridge/pkg/schema"
)

// replay applies every transaction recorded in the commit log directly to
// committed state (spec §4.9), the way the teacher's FSM replays raft log
// entries into its owned state on startup: read each record in order,
// apply its inserts and deletes straight to the committed table (bypassing
// the tx-state overlay entirely — a MutTx's union-and-subtract semantics
// exist to isolate concurrent transactions, and replay is the single
// writer reconstructing history one entry at a time), and track the
// highest transaction offset seen so the durability actor resumes
// numbering right after it.
//
// The commit log itself already tells a clean end-of-log (a short or
// checksum-mismatched tail frame) apart from a fatal decode error (a
// checksum-valid frame with an undecodable payload): Reader.Next reports
// the former as (zero value, false, nil) and the latter as a non-nil
// error. Replay only needs to loop until ok is false, then check err once.
func replay(committed *CommittedState, dir string) (uint64, error) {
	r, err := commitlog.TransactionsFrom(dir, 0)
	if err != nil {
		return 0, fmt.Errorf("datastore: replay: %w", err)
	}

	timer := metrics.NewTimer()
	var applied uint64
	defer func() {
		timer.ObserveDuration(metrics.ReplayDuration)
		metrics.ReplayedTxTotal.Add(float64(applied))
	}()

	var next uint64
	for {
		rec, ok, err := r.Next()
		if err != nil {
			return 0, fmt.Errorf("datastore: replay: %w", err)
		}
		if !ok {
			break
		}

		for _, delta := range rec.Tx.Tables {
			tbl, found := committed.tables[delta.TableID]
			if !found {
				return 0, fmt.Errorf("datastore: replay: %w: table id %d", errkind.ErrTableNotFound, delta.TableID)
			}

			// Deletes are logged as row bytes, not pointers (a RowPointer
			// is not stable across the committed/tx boundary), so replay
			// locates each one by content rather than trusting a literal
			// pointer value. Applying deletes before inserts matches
			// Commit's own order.
			for _, wire := range delta.DeleteRows {
				row, _, err := schema.DecodeWire(tbl.Layout, wire)
				if err != nil {
					return 0, fmt.Errorf("datastore: replay: %w", err)
				}
				if err := tbl.DeleteMatching(row); err != nil && !errors.Is(err, errkind.ErrRowPointerMismatch) {
					return 0, fmt.Errorf("datastore: replay: %w", err)
				}
			}
			for _, wire := range delta.InsertRows {
				row, _, err := schema.DecodeWire(tbl.Layout, wire)
				if err != nil {
					return 0, fmt.Errorf("datastore: replay: %w", err)
				}
				if _, _, err := tbl.Insert(row); err != nil {
					return 0, fmt.Errorf("datastore: replay: %w", err)
				}
			}
		}

		next = rec.TxOffset + 1
		applied++
	}
	return next, nil
}
