package datastore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ridgedb/ridge/pkg/commitlog"
	"github.com/ridgedb/ridge/pkg/errkind"
	"github.com/ridgedb/ridge/pkg/index"
	"github.com/ridgedb/ridge/pkg/metrics"
	"github.com/ridgedb/ridge/pkg/rowptr"
	"github.com/ridgedb/ridge/pkg/schema"
	"github.com/ridgedb/ridge/pkg/table"
)

type txPhase uint8

const (
	phaseOpen txPhase = iota
	phaseCommitted
	phaseRolledBack
)

// MutTx is a read-write transaction. It holds the datastore's write lock
// for its entire lifetime (spec §5: at most one mutating transaction at a
// time), so its reads of committed state never race a concurrent writer.
// Its own writes are invisible to every other transaction until Commit.
type MutTx struct {
	ds    *Datastore
	tx    *TxState
	phase txPhase
}

func (m *MutTx) requireOpen() {
	if m.phase != phaseOpen {
		panic("datastore: operation on a transaction that already committed or rolled back")
	}
}

// Insert adds row to tableName's tx-local overlay. A unique-index
// collision against another row inserted earlier in this same
// transaction is reported immediately (via the overlay's own index);
// a collision against an already-committed row is deferred to Commit,
// since this transaction's own pending deletes may resolve it.
func (m *MutTx) Insert(tableName string, row schema.Row) (rowptr.RowPointer, error) {
	m.requireOpen()
	id, _, err := m.ds.committed.lookupByName(tableName)
	if err != nil {
		return 0, err
	}
	ov, err := m.tx.overlayFor(id)
	if err != nil {
		return 0, err
	}
	ptr, conflict, err := ov.table.Insert(row)
	if err != nil {
		if errors.Is(err, errkind.ErrUniqueViolation) {
			return conflict, err
		}
		return 0, err
	}
	return ptr, nil
}

// Delete removes a row, which may belong to either committed state or
// this transaction's own overlay (distinguished by the pointer's epoch).
// Deleting an uncommitted row discards it immediately; deleting a
// committed row only records it as pending — committed state isn't
// touched until Commit.
func (m *MutTx) Delete(tableName string, ptr rowptr.RowPointer) error {
	m.requireOpen()
	id, ctbl, err := m.ds.committed.lookupByName(tableName)
	if err != nil {
		return err
	}
	if ptr.Epoch() == rowptr.Uncommitted {
		ov, ok := m.tx.overlays[id]
		if !ok {
			return errkind.ErrRowPointerMismatch
		}
		return ov.table.Delete(ptr)
	}
	if _, err := ctbl.GetRow(ptr); err != nil {
		return err
	}
	m.tx.markDeleted(id, ptr)
	return nil
}

// GetRow reads a row from whichever state (committed or this
// transaction's overlay) its pointer's epoch says it belongs to. A
// committed row already marked for deletion by this same transaction
// reads as not found, matching what Commit will make permanent.
func (m *MutTx) GetRow(tableName string, ptr rowptr.RowPointer) (schema.Row, error) {
	m.requireOpen()
	id, ctbl, err := m.ds.committed.lookupByName(tableName)
	if err != nil {
		return nil, err
	}
	if ptr.Epoch() == rowptr.Uncommitted {
		ov, ok := m.tx.overlays[id]
		if !ok {
			return nil, errkind.ErrRowPointerMismatch
		}
		return ov.table.GetRow(ptr)
	}
	if m.tx.isDeleted(id, ptr) {
		return nil, errkind.ErrRowPointerMismatch
	}
	return ctbl.GetRow(ptr)
}

// Scan is committed state's rows minus this transaction's pending
// deletes, union this transaction's own overlay inserts.
func (m *MutTx) Scan(tableName string) ([]table.ScannedRow, error) {
	m.requireOpen()
	id, ctbl, err := m.ds.committed.lookupByName(tableName)
	if err != nil {
		return nil, err
	}
	committedRows, err := ctbl.Scan()
	if err != nil {
		return nil, err
	}
	var out []table.ScannedRow
	for _, r := range committedRows {
		if !m.tx.isDeleted(id, r.Ptr) {
			out = append(out, r)
		}
	}
	if ov, ok := m.tx.overlays[id]; ok {
		ovRows, err := ov.table.Scan()
		if err != nil {
			return nil, err
		}
		out = append(out, ovRows...)
	}
	return out, nil
}

// SeekBTreeRange merges a committed-table range seek (minus pending
// deletes) with the same seek against this transaction's overlay.
func (m *MutTx) SeekBTreeRange(tableName, indexName string, lower, upper index.Bound) ([]rowptr.RowPointer, error) {
	m.requireOpen()
	id, ctbl, err := m.ds.committed.lookupByName(tableName)
	if err != nil {
		return nil, err
	}
	committedPtrs, err := ctbl.SeekBTreeRange(indexName, lower, upper)
	if err != nil {
		return nil, err
	}
	var out []rowptr.RowPointer
	for _, p := range committedPtrs {
		if !m.tx.isDeleted(id, p) {
			out = append(out, p)
		}
	}
	if ov, ok := m.tx.overlays[id]; ok {
		ovPtrs, err := ov.table.SeekBTreeRange(indexName, lower, upper)
		if err != nil {
			return nil, err
		}
		out = append(out, ovPtrs...)
	}
	return out, nil
}

// SeekDirectPoint checks this transaction's overlay first (a row it just
// inserted shadows anything committed under the same key), then falls
// back to committed state, treating a pending delete as absence.
func (m *MutTx) SeekDirectPoint(tableName, indexName string, key uint64) (rowptr.RowPointer, bool, error) {
	m.requireOpen()
	id, ctbl, err := m.ds.committed.lookupByName(tableName)
	if err != nil {
		return 0, false, err
	}
	if ov, ok := m.tx.overlays[id]; ok {
		if p, found, err := ov.table.SeekDirectPoint(indexName, key); err != nil {
			return 0, false, err
		} else if found {
			return p, true, nil
		}
	}
	p, found, err := ctbl.SeekDirectPoint(indexName, key)
	if err != nil {
		return 0, false, err
	}
	if found && m.tx.isDeleted(id, p) {
		return 0, false, nil
	}
	return p, found, nil
}

// Rollback discards every provisional insert and pending delete, releases
// the write lock, and leaves committed state untouched.
func (m *MutTx) Rollback() error {
	m.requireOpen()
	metrics.RollbacksTotal.Inc()
	if err := m.tx.discard(); err != nil {
		m.phase = phaseRolledBack
		m.ds.committed.mu.Unlock()
		return err
	}
	m.phase = phaseRolledBack
	m.ds.committed.mu.Unlock()
	return nil
}

// Commit runs spec §4.8's five-step algorithm: validate deferred unique
// constraints across the merged state, remove deleted rows from committed
// indexes and storage, move inserted rows into committed pages, emit a
// single TxData record covering every table this transaction touched, and
// hand it to the durability actor in one call — so the whole transaction
// becomes durable as one atomic unit, never as several independently
// offset, independently flushed per-table records. If synchronous is
// true, Commit blocks until the returned transaction offset is durable
// before returning. It always releases the write lock, even on error — a
// failed commit rolls back.
func (m *MutTx) Commit(ctx context.Context, synchronous bool) (uint64, error) {
	m.requireOpen()
	defer m.ds.committed.mu.Unlock()
	timer := metrics.NewTimer()

	if err := m.validateUniqueConstraints(); err != nil {
		if errors.Is(err, errkind.ErrUniqueViolation) {
			metrics.CommitConflictsTotal.Inc()
		}
		m.rollbackAfterFailedCommit()
		return 0, err
	}

	wireDeletes, err := m.applyDeletes()
	if err != nil {
		m.rollbackAfterFailedCommit()
		return 0, err
	}

	wireInserts, err := m.moveInsertsIntoCommitted()
	if err != nil {
		m.rollbackAfterFailedCommit()
		return 0, err
	}

	m.phase = phaseCommitted
	metrics.CommitsTotal.Inc()
	timer.ObserveDuration(metrics.CommitDuration)

	tx := buildTxData(wireInserts, wireDeletes)
	if len(tx.Tables) == 0 {
		return 0, nil
	}

	offset := m.ds.durability.AppendTx(tx)

	if synchronous {
		if err := m.ds.durability.DurableOffsetHandle().WaitFor(ctx, offset); err != nil {
			return offset, err
		}
	}
	return offset, nil
}

// applyDeletes removes every pending delete from committed storage,
// capturing each deleted row's wire-encoded bytes before the row is gone
// (its bytes, not its pointer, are what the commit log durably records —
// see commitlog.TableDelta). It covers every table this transaction
// marked a delete against, independent of whether that table was also
// touched by an insert.
func (m *MutTx) applyDeletes() (map[uint32][][]byte, error) {
	wireDeletes := make(map[uint32][][]byte)
	for tableID, set := range m.tx.deleted {
		ctbl := m.ds.committed.tables[tableID]
		for ptr := range set {
			row, err := ctbl.GetRow(ptr)
			if err != nil {
				if errors.Is(err, errkind.ErrRowPointerMismatch) {
					continue
				}
				return nil, err
			}
			wire, err := schema.EncodeWire(ctbl.Layout, row)
			if err != nil {
				return nil, err
			}
			if err := ctbl.Delete(ptr); err != nil && !errors.Is(err, errkind.ErrRowPointerMismatch) {
				return nil, err
			}
			wireDeletes[tableID] = append(wireDeletes[tableID], wire)
		}
	}
	return wireDeletes, nil
}

// moveInsertsIntoCommitted copies every overlay row into its committed
// table (releasing the overlay's own provisional blob references first,
// so the move nets to exactly one live reference), returning each table's
// inserted rows as wire-encoded bytes for the commit log.
func (m *MutTx) moveInsertsIntoCommitted() (map[uint32][][]byte, error) {
	wireInserts := make(map[uint32][][]byte)
	for tableID, ov := range m.tx.overlays {
		ctbl := m.ds.committed.tables[tableID]
		rows, err := ov.table.Scan()
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if err := ov.table.Delete(r.Ptr); err != nil {
				return nil, err
			}
		}
		if len(rows) == 0 {
			continue
		}

		wires := make([][]byte, 0, len(rows))
		for _, r := range rows {
			if _, _, err := ctbl.Insert(r.Row); err != nil {
				return nil, err
			}
			wire, err := schema.EncodeWire(ctbl.Layout, r.Row)
			if err != nil {
				return nil, err
			}
			wires = append(wires, wire)
		}
		wireInserts[tableID] = wires
	}
	return wireInserts, nil
}

// buildTxData merges per-table insert and delete byte sections into a
// single TxData spanning every table either map touched, in ascending
// table-id order for deterministic encoding.
func buildTxData(inserts, deletes map[uint32][][]byte) commitlog.TxData {
	touched := make(map[uint32]struct{}, len(inserts)+len(deletes))
	for id := range inserts {
		touched[id] = struct{}{}
	}
	for id := range deletes {
		touched[id] = struct{}{}
	}
	ids := make([]uint32, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var tx commitlog.TxData
	for _, id := range ids {
		tx.Tables = append(tx.Tables, commitlog.TableDelta{
			TableID:    id,
			InsertRows: inserts[id],
			DeleteRows: deletes[id],
		})
	}
	return tx
}

// validateUniqueConstraints checks every unique index on every table this
// transaction touched: a newly-inserted row must not collide with an
// already-committed row, unless that committed row is itself among this
// transaction's pending deletes. Collisions among this transaction's own
// inserts were already caught at Insert time by the overlay's own index.
func (m *MutTx) validateUniqueConstraints() error {
	for tableID, ov := range m.tx.overlays {
		ctbl, ok := m.ds.committed.tables[tableID]
		if !ok {
			return errTableIDNotFound(tableID)
		}
		rows, err := ov.table.Scan()
		if err != nil {
			return err
		}
		for _, spec := range ctbl.IndexSpecs() {
			if !spec.Unique {
				continue
			}
			for _, r := range rows {
				conflict, err := m.committedConflict(ctbl, tableID, spec, r.Row)
				if err != nil {
					return err
				}
				if conflict {
					return fmt.Errorf("datastore: table %q: %w", ctbl.Schema.TableName, errkind.ErrUniqueViolation)
				}
			}
		}
	}
	return nil
}

func (m *MutTx) committedConflict(ctbl *table.Table, tableID uint32, spec table.IndexSpec, row schema.Row) (bool, error) {
	idx := ctbl.Schema.ColumnIndex(spec.Column)
	if idx < 0 {
		return false, nil
	}
	value := row[idx]

	switch spec.Kind {
	case table.BTreeIndex:
		existing, err := ctbl.SeekBTreePoint(spec.Name, value)
		if err != nil {
			return false, err
		}
		for _, p := range existing {
			if !m.tx.isDeleted(tableID, p) {
				return true, nil
			}
		}
		return false, nil
	case table.DirectIndex:
		u, ok := scalarAsUint64(value)
		if !ok {
			return false, nil
		}
		p, found, err := ctbl.SeekDirectPoint(spec.Name, u)
		if err != nil {
			return false, err
		}
		return found && !m.tx.isDeleted(tableID, p), nil
	default:
		return false, nil
	}
}

func scalarAsUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		return uint64(n), true
	case int:
		return uint64(n), true
	default:
		return 0, false
	}
}

// rollbackAfterFailedCommit releases the overlay's provisional blob
// references the same way an explicit Rollback would; the write lock is
// released by Commit's own deferred Unlock.
func (m *MutTx) rollbackAfterFailedCommit() {
	m.phase = phaseRolledBack
	_ = m.tx.discard()
}
