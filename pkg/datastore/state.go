// Package datastore implements the committed-state / tx-state split spec
// §4.8 describes: a single writer at a time mutates a transaction-local
// overlay, which is merged into committed state only on commit, and every
// commit is handed to the durability actor for logging. A synchronous
// commit returns once its offset is durable; an asynchronous one returns
// before that.
package datastore

import (
	"fmt"
	"sync"

	"github.com/ridgedb/ridge/pkg/blob"
	"github.com/ridgedb/ridge/pkg/errkind"
	"github.com/ridgedb/ridge/pkg/rowptr"
	"github.com/ridgedb/ridge/pkg/schema"
	"github.com/ridgedb/ridge/pkg/table"
)

// CommittedState holds the tables visible to every reader once their
// writes have committed. It is guarded by a single reader-writer lock, the
// way the teacher's WarrenFSM guards its applied cluster state: at most one
// mutating transaction holds the write lock at a time, and any number of
// read-only transactions can hold the read lock concurrently with each
// other (never with a writer).
type CommittedState struct {
	mu sync.RWMutex

	blobs *blob.Store

	tables  map[uint32]*table.Table
	schemas map[uint32]schema.Schema
	byName  map[string]uint32

	nextID uint32
}

func newCommittedState(bs *blob.Store) *CommittedState {
	return &CommittedState{
		blobs:   bs,
		tables:  make(map[uint32]*table.Table),
		schemas: make(map[uint32]schema.Schema),
		byName:  make(map[string]uint32),
	}
}

// createTableWithIndexes builds a table and every index on it as one
// locked step, so the table is never visible to another goroutine with
// some indexes missing. It is a DDL operation: table definitions are
// loaded from the catalog at Open (or during replay bootstrap), never
// created mid-transaction.
func (s *CommittedState) createTableWithIndexes(sch schema.Schema, indexSpecs []table.IndexSpec) (uint32, *table.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[sch.TableName]; exists {
		return 0, nil, fmt.Errorf("datastore: table %q: %w", sch.TableName, errkind.ErrTableExists)
	}
	tbl, err := table.New(sch, s.blobs, rowptr.Committed)
	if err != nil {
		return 0, nil, err
	}
	for _, spec := range indexSpecs {
		if err := tbl.CreateIndex(spec); err != nil {
			return 0, nil, err
		}
	}

	id := s.nextID
	s.nextID++
	s.tables[id] = tbl
	s.schemas[id] = sch
	s.byName[sch.TableName] = id
	return id, tbl, nil
}

// createTableAt is createTableWithIndexes for replay bootstrap, where the
// table ID is dictated by the catalog (persisted across restarts) rather
// than freshly assigned.
func (s *CommittedState) createTableAt(id uint32, sch schema.Schema, indexSpecs []table.IndexSpec) (*table.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[sch.TableName]; exists {
		return nil, fmt.Errorf("datastore: table %q: %w", sch.TableName, errkind.ErrTableExists)
	}
	tbl, err := table.New(sch, s.blobs, rowptr.Committed)
	if err != nil {
		return nil, err
	}
	for _, spec := range indexSpecs {
		if err := tbl.CreateIndex(spec); err != nil {
			return nil, err
		}
	}

	s.tables[id] = tbl
	s.schemas[id] = sch
	s.byName[sch.TableName] = id
	if id >= s.nextID {
		s.nextID = id + 1
	}
	return tbl, nil
}

// lookupByName resolves a table name to its ID and live Table. Callers
// reach this only while already holding the read or write lock for the
// duration of their transaction, so no additional locking happens here.
func (s *CommittedState) lookupByName(name string) (uint32, *table.Table, error) {
	id, ok := s.byName[name]
	if !ok {
		return 0, nil, fmt.Errorf("datastore: %w: %s", errkind.ErrTableNotFound, name)
	}
	return id, s.tables[id], nil
}

// Schemas returns every table's schema, keyed by table ID — used by the
// catalog to persist table definitions and by diagnostics tooling.
func (s *CommittedState) Schemas() map[uint32]schema.Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint32]schema.Schema, len(s.schemas))
	for id, sch := range s.schemas {
		out[id] = sch
	}
	return out
}

// tableNames returns every table name currently defined, for callers
// (Tx.TableNames, used by the CLI's open command) that want to enumerate
// tables without going through a table ID.
func (s *CommittedState) tableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byName))
	for name := range s.byName {
		out = append(out, name)
	}
	return out
}
