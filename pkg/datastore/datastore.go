package datastore

import (
	"context"
	"fmt"

	"github.com/ridgedb/ridge/pkg/blob"
	"github.com/ridgedb/ridge/pkg/catalog"
	"github.com/ridgedb/ridge/pkg/commitlog"
	"github.com/ridgedb/ridge/pkg/durability"
	"github.com/ridgedb/ridge/pkg/schema"
	"github.com/ridgedb/ridge/pkg/table"
)

// Config bundles the commit log and durability tuning knobs a deployment
// chooses (the config file's commit-log section), plus whether Commit
// waits for durability by default.
type Config struct {
	Dir                string
	Writer             commitlog.WriterConfig
	Durability         durability.Config
	SynchronousCommits bool
}

// DefaultConfig mirrors commitlog.DefaultWriterConfig and
// durability.DefaultConfig, with asynchronous commits (the throughput-
// favoring default spec §4.7 calls out).
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		Writer:             commitlog.DefaultWriterConfig(),
		Durability:         durability.DefaultConfig(),
		SynchronousCommits: false,
	}
}

// TableBootstrap is one table's persisted definition, as the catalog
// reads it back from its metadata store: the schema plus every index
// defined on it. Open uses these to populate committed state before
// replaying the commit log, since a TxData's TableDelta sections record
// only table IDs — the tables (and their indexes) must already exist for
// replay to apply rows to them and, for a unique index, reject what
// should already be impossible.
type TableBootstrap struct {
	TableID uint32
	Schema  schema.Schema
	Indexes []table.IndexSpec
}

// Datastore is the storage and transaction core's top-level handle: one
// committed state, one commit log writer, one durability actor, shared
// across every Tx and MutTx opened against it.
type Datastore struct {
	committed  *CommittedState
	blobs      *blob.Store
	writer     *commitlog.Writer
	durability *durability.Actor
	cfg        Config
}

// Open loads tables (as read from the catalog) into a fresh committed
// state, replays the commit log to bring that state up to date, then
// starts the durability actor positioned to assign the next transaction
// offset right after the last one replay saw.
func Open(cfg Config, tables []TableBootstrap) (*Datastore, error) {
	bs := blob.New()
	committed := newCommittedState(bs)

	for _, tb := range tables {
		if _, err := committed.createTableAt(tb.TableID, tb.Schema, tb.Indexes); err != nil {
			return nil, fmt.Errorf("datastore: open: %w", err)
		}
	}

	nextOffset, err := replay(committed, cfg.Dir)
	if err != nil {
		return nil, err
	}

	writer, err := commitlog.OpenWriter(cfg.Dir, cfg.Writer, nextOffset)
	if err != nil {
		return nil, fmt.Errorf("datastore: open: %w", err)
	}

	actor := durability.Open(writer, nextOffset, cfg.Durability)

	return &Datastore{
		committed:  committed,
		blobs:      bs,
		writer:     writer,
		durability: actor,
		cfg:        cfg,
	}, nil
}

// OpenFromCatalog is the production entry point: it reads every table
// definition persisted in cat and opens the datastore against them,
// rather than requiring the caller to hand-build a TableBootstrap list.
func OpenFromCatalog(cfg Config, cat *catalog.Catalog) (*Datastore, error) {
	defs, err := cat.Tables()
	if err != nil {
		return nil, fmt.Errorf("datastore: open from catalog: %w", err)
	}
	tables := make([]TableBootstrap, len(defs))
	for i, def := range defs {
		tables[i] = TableBootstrap{TableID: def.TableID, Schema: def.Schema, Indexes: def.Indexes}
	}
	return Open(cfg, tables)
}

// CreateTable adds a new table (and its indexes) to committed state. It
// is a DDL operation, outside any Tx/MutTx: the commit log only ever
// records row data (spec §4.6's TxData has no schema-change frame), so
// schema changes are the catalog's responsibility to persist separately.
func (ds *Datastore) CreateTable(sch schema.Schema, indexes []table.IndexSpec) (uint32, error) {
	id, _, err := ds.committed.createTableWithIndexes(sch, indexes)
	if err != nil {
		return 0, fmt.Errorf("datastore: create table: %w", err)
	}
	return id, nil
}

// BeginTx opens a read-only transaction over committed state.
func (ds *Datastore) BeginTx() *Tx {
	ds.committed.mu.RLock()
	return &Tx{ds: ds}
}

// BeginMutTx opens a read-write transaction. It blocks until any other
// MutTx (or BeginTx reader) currently holding the lock releases it — spec
// §5's single-writer model.
func (ds *Datastore) BeginMutTx() *MutTx {
	ds.committed.mu.Lock()
	return &MutTx{ds: ds, tx: newTxState(ds.committed)}
}

// DurableOffset returns the watchable handle tracking how far the commit
// log has been durably written, for callers that want to observe
// durability progress outside of a specific transaction's Commit call.
func (ds *Datastore) DurableOffset() *durability.DurableOffset {
	return ds.durability.DurableOffsetHandle()
}

// Close stops the durability actor, flushing and fsyncing anything still
// buffered, waits for it to finish or for ctx to be cancelled, then closes
// the underlying segment file. The actor's goroutine has already exited by
// the time Close returns successfully, so closing the writer here can't
// race its background flushes.
func (ds *Datastore) Close(ctx context.Context) (uint64, error) {
	off, err := ds.durability.Close(ctx)
	if err != nil {
		return off, err
	}
	if _, cerr := ds.writer.Close(); cerr != nil {
		return off, cerr
	}
	return off, nil
}
