package datastore

import (
	"github.com/ridgedb/ridge/pkg/rowptr"
	"github.com/ridgedb/ridge/pkg/table"
)

// txOverlay holds one table's provisional inserts for the lifetime of a
// single MutTx. It mirrors the committed table's schema and index
// definitions so inserts within the transaction observe the same
// uniqueness behavior (against each other; conflicts against already-
// committed rows are deferred to commit, see MutTx.validateUniqueConstraints).
type txOverlay struct {
	table *table.Table
}

// TxState is the tx-local overlay spec §4.8 describes: inserted rows live
// in per-table overlay tables (tagged rowptr.Uncommitted so a stray read
// against the wrong epoch fails fast), and deletes of already-committed
// rows are recorded as a pending set rather than applied immediately, so a
// rolled-back transaction never touches committed state at all.
type TxState struct {
	committed *CommittedState

	overlays map[uint32]*txOverlay
	deleted  map[uint32]map[rowptr.RowPointer]struct{}
}

func newTxState(committed *CommittedState) *TxState {
	return &TxState{
		committed: committed,
		overlays:  make(map[uint32]*txOverlay),
		deleted:   make(map[uint32]map[rowptr.RowPointer]struct{}),
	}
}

// overlayFor returns (creating if necessary) the tx-local overlay table
// for tableID, mirroring the committed table's current index definitions.
func (ts *TxState) overlayFor(tableID uint32) (*txOverlay, error) {
	if ov, ok := ts.overlays[tableID]; ok {
		return ov, nil
	}
	committedTbl, ok := ts.committed.tables[tableID]
	if !ok {
		return nil, errTableIDNotFound(tableID)
	}
	tbl, err := table.New(committedTbl.Schema, ts.committed.blobs, rowptr.Uncommitted)
	if err != nil {
		return nil, err
	}
	for _, spec := range committedTbl.IndexSpecs() {
		if err := tbl.CreateIndex(spec); err != nil {
			return nil, err
		}
	}
	ov := &txOverlay{table: tbl}
	ts.overlays[tableID] = ov
	return ov, nil
}

func (ts *TxState) markDeleted(tableID uint32, ptr rowptr.RowPointer) {
	set, ok := ts.deleted[tableID]
	if !ok {
		set = make(map[rowptr.RowPointer]struct{})
		ts.deleted[tableID] = set
	}
	set[ptr] = struct{}{}
}

func (ts *TxState) isDeleted(tableID uint32, ptr rowptr.RowPointer) bool {
	set, ok := ts.deleted[tableID]
	if !ok {
		return false
	}
	_, deleted := set[ptr]
	return deleted
}

// discard releases every provisional blob reference an overlay table's
// inserts took out, by deleting each row from its own overlay table (the
// same path a live Delete takes, which already knows how to release
// granule chains and decrement blob refcounts). Used by Rollback and by
// the rollback after a failed commit (the rows never existed). A
// successful Commit does not call it: moveInsertsIntoCommitted deletes
// each overlay row itself as it moves it into committed state.
func (ts *TxState) discard() error {
	for _, ov := range ts.overlays {
		rows, err := ov.table.Scan()
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := ov.table.Delete(r.Ptr); err != nil {
				return err
			}
		}
	}
	return nil
}
