package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridge/pkg/schema"
	"github.com/ridgedb/ridge/pkg/table"
)

func peopleSchema() schema.Schema {
	return schema.Schema{TableName: "people", Columns: []schema.ColumnDef{
		{Name: "id", Type: schema.AlgebraicType{Kind: schema.KindU32}},
		{Name: "name", Type: schema.AlgebraicType{Kind: schema.KindString}},
	}}
}

func peopleBootstrap() []TableBootstrap {
	return []TableBootstrap{{
		TableID: 0,
		Schema:  peopleSchema(),
		Indexes: []table.IndexSpec{{Name: "id_unique", Column: "id", Kind: table.BTreeIndex, Unique: true}},
	}}
}

func petsSchema() schema.Schema {
	return schema.Schema{TableName: "pets", Columns: []schema.ColumnDef{
		{Name: "id", Type: schema.AlgebraicType{Kind: schema.KindU32}},
		{Name: "owner", Type: schema.AlgebraicType{Kind: schema.KindString}},
	}}
}

func multiTableBootstrap() []TableBootstrap {
	return append(peopleBootstrap(), TableBootstrap{
		TableID: 1,
		Schema:  petsSchema(),
		Indexes: []table.IndexSpec{{Name: "id_unique", Column: "id", Kind: table.BTreeIndex, Unique: true}},
	})
}

func openTestDatastore(t *testing.T) (*Datastore, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.Writer.MaxRecordsInCommit = 1
	cfg.Durability.MaxCommitInterval = 5 * time.Millisecond
	ds, err := Open(cfg, peopleBootstrap())
	require.NoError(t, err)
	return ds, dir
}

// TestCommitMakesRowsVisibleToNewReaders is spec scenario: a committed
// insert is visible to a transaction begun after the commit, and was not
// visible to one begun before it.
func TestCommitMakesRowsVisibleToNewReaders(t *testing.T) {
	ds, _ := openTestDatastore(t)
	ctx := context.Background()

	before := ds.BeginTx()
	rows, err := before.Scan("people")
	require.NoError(t, err)
	assert.Empty(t, rows)
	before.Close()

	mtx := ds.BeginMutTx()
	_, err = mtx.Insert("people", schema.Row{uint64(1), "alice"})
	require.NoError(t, err)
	_, err = mtx.Commit(ctx, true)
	require.NoError(t, err)

	after := ds.BeginTx()
	defer after.Close()
	rows, err = after.Scan("people")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].Row[1])

	_, err = ds.Close(ctx)
	require.NoError(t, err)
}

// TestRollbackDiscardsProvisionalInserts is spec scenario: an uncommitted
// insert never becomes visible; after Rollback a fresh read transaction
// sees no rows.
func TestRollbackDiscardsProvisionalInserts(t *testing.T) {
	ds, _ := openTestDatastore(t)
	ctx := context.Background()

	mtx := ds.BeginMutTx()
	_, err := mtx.Insert("people", schema.Row{uint64(1), "alice"})
	require.NoError(t, err)
	require.NoError(t, mtx.Rollback())

	tx := ds.BeginTx()
	defer tx.Close()
	rows, err := tx.Scan("people")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = ds.Close(ctx)
	require.NoError(t, err)
}

// TestDeferredUniqueViolationResolvedByDeleteInSameTx is spec scenario:
// deleting a committed row and inserting a new row under the same unique
// key, within one transaction, must not be rejected — the conflict is
// only checked at commit, against the final merged state.
func TestDeferredUniqueViolationResolvedByDeleteInSameTx(t *testing.T) {
	ds, _ := openTestDatastore(t)
	ctx := context.Background()

	setup := ds.BeginMutTx()
	firstPtr, err := setup.Insert("people", schema.Row{uint64(1), "alice"})
	require.NoError(t, err)
	_, err = setup.Commit(ctx, true)
	require.NoError(t, err)

	mtx := ds.BeginMutTx()
	require.NoError(t, mtx.Delete("people", firstPtr))
	_, err = mtx.Insert("people", schema.Row{uint64(1), "alice-replacement"})
	require.NoError(t, err)
	_, err = mtx.Commit(ctx, true)
	require.NoError(t, err)

	tx := ds.BeginTx()
	defer tx.Close()
	rows, err := tx.Scan("people")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice-replacement", rows[0].Row[1])

	_, err = ds.Close(ctx)
	require.NoError(t, err)
}

// TestUncommittedUniqueViolationFromInsertInSameTx is the unresolved
// counterpart: inserting two rows under the same key within one
// transaction, with no delete to reconcile them, is still rejected —
// by the overlay's own index, at Insert time.
func TestUncommittedUniqueViolationFromInsertInSameTx(t *testing.T) {
	ds, _ := openTestDatastore(t)
	ctx := context.Background()

	mtx := ds.BeginMutTx()
	_, err := mtx.Insert("people", schema.Row{uint64(1), "alice"})
	require.NoError(t, err)
	_, err = mtx.Insert("people", schema.Row{uint64(1), "alice-again"})
	assert.Error(t, err)
	require.NoError(t, mtx.Rollback())

	_, err = ds.Close(ctx)
	require.NoError(t, err)
}

// TestDatastoreReplaysCommitLogOnReopen is spec scenario 4 exercised
// end-to-end through the datastore: committed transactions survive a
// restart via commit-log replay, and assigning fresh transaction offsets
// resumes right after the last one replay saw.
func TestDatastoreReplaysCommitLogOnReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.Writer.MaxRecordsInCommit = 1

	ds, err := Open(cfg, peopleBootstrap())
	require.NoError(t, err)

	ctx := context.Background()
	for i, name := range []string{"alice", "bob", "carol"} {
		mtx := ds.BeginMutTx()
		_, err := mtx.Insert("people", schema.Row{uint64(i + 1), name})
		require.NoError(t, err)
		_, err = mtx.Commit(ctx, true)
		require.NoError(t, err)
	}

	_, err = ds.Close(ctx)
	require.NoError(t, err)

	reopened, err := Open(cfg, peopleBootstrap())
	require.NoError(t, err)

	tx := reopened.BeginTx()
	rows, err := tx.Scan("people")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	tx.Close()

	mtx := reopened.BeginMutTx()
	offset, err := mtx.Insert("people", schema.Row{uint64(4), "dave"})
	require.NoError(t, err)
	_ = offset
	txOffset, err := mtx.Commit(ctx, true)
	require.NoError(t, err)
	assert.EqualValues(t, 3, txOffset, "the fourth transaction's offset continues right after the three replayed ones")

	_, err = reopened.Close(ctx)
	require.NoError(t, err)
}

// TestMultiTableCommitIsOneAtomicTxData is spec scenario: a single
// transaction writing to more than one table must still produce exactly
// one durable transaction offset, and every table's effects must survive
// a restart together — not as several independently offset,
// independently flushed per-table records.
func TestMultiTableCommitIsOneAtomicTxData(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.Writer.MaxRecordsInCommit = 1

	ds, err := Open(cfg, multiTableBootstrap())
	require.NoError(t, err)
	ctx := context.Background()

	mtx := ds.BeginMutTx()
	_, err = mtx.Insert("people", schema.Row{uint64(1), "alice"})
	require.NoError(t, err)
	_, err = mtx.Insert("pets", schema.Row{uint64(1), "rex"})
	require.NoError(t, err)
	offset, err := mtx.Commit(ctx, true)
	require.NoError(t, err)
	assert.EqualValues(t, 0, offset, "one transaction touching two tables still gets exactly one offset")

	mtx2 := ds.BeginMutTx()
	_, err = mtx2.Insert("people", schema.Row{uint64(2), "bob"})
	require.NoError(t, err)
	offset2, err := mtx2.Commit(ctx, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, offset2, "the next transaction's offset continues right after, with no gap left by per-table appends")

	_, err = ds.Close(ctx)
	require.NoError(t, err)

	reopened, err := Open(cfg, multiTableBootstrap())
	require.NoError(t, err)
	defer reopened.Close(ctx)

	peopleTx := reopened.BeginTx()
	peopleRows, err := peopleTx.Scan("people")
	require.NoError(t, err)
	require.Len(t, peopleRows, 2)
	peopleTx.Close()

	petsTx := reopened.BeginTx()
	petsRows, err := petsTx.Scan("pets")
	require.NoError(t, err)
	require.Len(t, petsRows, 1)
	assert.Equal(t, "rex", petsRows[0].Row[1])
	petsTx.Close()
}

// TestDeleteOnlyTableSurvivesReplayWithoutAnOverlayInsert is spec
// scenario: a transaction that only deletes from a table it never
// inserted into within the same transaction must still have that
// table's deletes included in the durable record (a table touched only
// by a delete has no insert overlay to iterate) and replayed correctly —
// deletes are logged as row bytes, located on replay by content rather
// than by a stored pointer, since pointers aren't stable across the
// committed/tx boundary.
func TestDeleteOnlyTableSurvivesReplayWithoutAnOverlayInsert(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.Writer.MaxRecordsInCommit = 1

	ds, err := Open(cfg, multiTableBootstrap())
	require.NoError(t, err)
	ctx := context.Background()

	setup := ds.BeginMutTx()
	petPtr, err := setup.Insert("pets", schema.Row{uint64(1), "rex"})
	require.NoError(t, err)
	_, err = setup.Insert("people", schema.Row{uint64(1), "alice"})
	require.NoError(t, err)
	_, err = setup.Commit(ctx, true)
	require.NoError(t, err)

	mtx := ds.BeginMutTx()
	require.NoError(t, mtx.Delete("pets", petPtr))
	_, err = mtx.Commit(ctx, true)
	require.NoError(t, err)

	_, err = ds.Close(ctx)
	require.NoError(t, err)

	reopened, err := Open(cfg, multiTableBootstrap())
	require.NoError(t, err)
	defer reopened.Close(ctx)

	tx := reopened.BeginTx()
	defer tx.Close()
	petsRows, err := tx.Scan("pets")
	require.NoError(t, err)
	assert.Empty(t, petsRows, "the delete-only transaction's effect on pets must survive replay")
	peopleRows, err := tx.Scan("people")
	require.NoError(t, err)
	require.Len(t, peopleRows, 1)
}

// TestDurableOffsetHandleAdvancesOnCommit exercises the watchable handle
// a caller can observe independent of any specific Commit call.
func TestDurableOffsetHandleAdvancesOnCommit(t *testing.T) {
	ds, _ := openTestDatastore(t)
	ctx := context.Background()

	mtx := ds.BeginMutTx()
	_, err := mtx.Insert("people", schema.Row{uint64(1), "alice"})
	require.NoError(t, err)
	offset, err := mtx.Commit(ctx, false)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, ds.DurableOffset().WaitFor(waitCtx, offset))

	_, err = ds.Close(ctx)
	require.NoError(t, err)
}
