package datastore

import (
	"github.com/ridgedb/ridge/pkg/index"
	"github.com/ridgedb/ridge/pkg/rowptr"
	"github.com/ridgedb/ridge/pkg/schema"
	"github.com/ridgedb/ridge/pkg/table"
)

// Tx is a read-only transaction: a snapshot of committed state held for as
// long as the caller keeps it open. Any number of Tx instances can be open
// concurrently with each other; none can be open while a MutTx holds the
// write lock, and vice versa.
type Tx struct {
	ds     *Datastore
	closed bool
}

func (tx *Tx) requireOpen() {
	if tx.closed {
		panic("datastore: operation on a transaction that is already closed")
	}
}

// Close releases the read lock. It is idempotent.
func (tx *Tx) Close() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.ds.committed.mu.RUnlock()
}

// TableNames returns every table name currently defined.
func (tx *Tx) TableNames() []string {
	tx.requireOpen()
	return tx.ds.committed.tableNames()
}

// GetRow reads one row by pointer from a committed table.
func (tx *Tx) GetRow(tableName string, ptr rowptr.RowPointer) (schema.Row, error) {
	tx.requireOpen()
	_, tbl, err := tx.ds.committed.lookupByName(tableName)
	if err != nil {
		return nil, err
	}
	return tbl.GetRow(ptr)
}

// Scan visits every row currently present in a committed table.
func (tx *Tx) Scan(tableName string) ([]table.ScannedRow, error) {
	tx.requireOpen()
	_, tbl, err := tx.ds.committed.lookupByName(tableName)
	if err != nil {
		return nil, err
	}
	return tbl.Scan()
}

// SeekBTreeRange performs an ordered range seek against a committed
// table's btree index.
func (tx *Tx) SeekBTreeRange(tableName, indexName string, lower, upper index.Bound) ([]rowptr.RowPointer, error) {
	tx.requireOpen()
	_, tbl, err := tx.ds.committed.lookupByName(tableName)
	if err != nil {
		return nil, err
	}
	return tbl.SeekBTreeRange(indexName, lower, upper)
}

// SeekDirectPoint performs a point lookup against a committed table's
// direct index.
func (tx *Tx) SeekDirectPoint(tableName, indexName string, key uint64) (rowptr.RowPointer, bool, error) {
	tx.requireOpen()
	_, tbl, err := tx.ds.committed.lookupByName(tableName)
	if err != nil {
		return 0, false, err
	}
	return tbl.SeekDirectPoint(indexName, key)
}
