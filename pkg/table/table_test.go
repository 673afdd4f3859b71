package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridge/pkg/blob"
	"github.com/ridgedb/ridge/pkg/errkind"
	"github.com/ridgedb/ridge/pkg/index"
	"github.com/ridgedb/ridge/pkg/rowptr"
	"github.com/ridgedb/ridge/pkg/schema"
)

func peopleSchema() schema.Schema {
	return schema.Schema{TableName: "people", Columns: []schema.ColumnDef{
		{Name: "id", Type: schema.AlgebraicType{Kind: schema.KindU32}},
		{Name: "name", Type: schema.AlgebraicType{Kind: schema.KindString}},
	}}
}

// TestSmallRowRoundTrip is spec scenario 1: insert (42, "alice"), read it
// back unchanged.
func TestSmallRowRoundTrip(t *testing.T) {
	bs := blob.New()
	tbl, err := New(peopleSchema(), bs, rowptr.Committed)
	require.NoError(t, err)

	ptr, _, err := tbl.Insert(schema.Row{uint64(42), "alice"})
	require.NoError(t, err)

	row, err := tbl.GetRow(ptr)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), row[0])
	assert.Equal(t, "alice", row[1])
}

// TestLargeStringSpillsToBlobStore is spec scenario 2: a string above
// the 1024-byte threshold is stored via the blob store with refcount 1,
// dropping to 0 once the row referencing it is deleted.
func TestLargeStringSpillsToBlobStore(t *testing.T) {
	bs := blob.New()
	tbl, err := New(peopleSchema(), bs, rowptr.Committed)
	require.NoError(t, err)

	big := make([]byte, blob.Threshold+1)
	for i := range big {
		big[i] = byte('a' + i%26)
	}

	ptr, _, err := tbl.Insert(schema.Row{uint64(1), string(big)})
	require.NoError(t, err)

	row, err := tbl.GetRow(ptr)
	require.NoError(t, err)
	assert.Equal(t, string(big), row[1])

	h := blob.Sum(big)
	assert.EqualValues(t, 1, bs.Refcount(h))

	require.NoError(t, tbl.Delete(ptr))
	assert.EqualValues(t, 0, bs.Refcount(h))
}

func TestSmallStringStaysInlineInGranules(t *testing.T) {
	bs := blob.New()
	tbl, err := New(peopleSchema(), bs, rowptr.Committed)
	require.NoError(t, err)

	ptr, _, err := tbl.Insert(schema.Row{uint64(2), "bob"})
	require.NoError(t, err)

	row, err := tbl.GetRow(ptr)
	require.NoError(t, err)
	assert.Equal(t, "bob", row[1])
	assert.Equal(t, 0, bs.Reclaim(), "small values never touch the blob store")
}

// TestUniqueIndexViolationReturnsConflictingPointer is spec scenario 3.
func TestUniqueIndexViolationReturnsConflictingPointer(t *testing.T) {
	bs := blob.New()
	tbl, err := New(peopleSchema(), bs, rowptr.Committed)
	require.NoError(t, err)
	require.NoError(t, tbl.CreateBTreeIndex("id_unique", "id", true))

	first, _, err := tbl.Insert(schema.Row{uint64(1), "alice"})
	require.NoError(t, err)

	_, conflict, err := tbl.Insert(schema.Row{uint64(1), "alice-again"})
	require.ErrorIs(t, err, errkind.ErrUniqueViolation)
	assert.Equal(t, first, conflict)

	rows, err := tbl.Scan()
	require.NoError(t, err)
	assert.Len(t, rows, 1, "the rejected insert must not leave a partially-applied row behind")
}

func TestDeleteUnknownPointerReturnsMismatch(t *testing.T) {
	bs := blob.New()
	tbl, err := New(peopleSchema(), bs, rowptr.Committed)
	require.NoError(t, err)

	err = tbl.Delete(rowptr.New(99, 0, true, rowptr.Committed))
	assert.ErrorIs(t, err, errkind.ErrRowPointerMismatch)
}

func TestScanOrdersByPageThenSlot(t *testing.T) {
	bs := blob.New()
	tbl, err := New(peopleSchema(), bs, rowptr.Committed)
	require.NoError(t, err)

	for i := uint64(0); i < 5; i++ {
		_, _, err := tbl.Insert(schema.Row{i, "x"})
		require.NoError(t, err)
	}

	rows, err := tbl.Scan()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, r := range rows {
		assert.Equal(t, uint64(i), r.Row[0])
	}
}

// TestVarLenInsertSpillsToNewPageWhenGranulesExhausted guards
// placeVarLen's page-full recovery: a row's var-len bytes and its fixed
// slot must always land on the same page, so when a page's granule
// region fills up mid-insert, the whole row — fixed slot included — has
// to retry on a fresh page, the same way a full fixed-slot region
// already forces a retry. Without that recovery, a big-enough row would
// fail Insert outright instead of spilling over.
func TestVarLenInsertSpillsToNewPageWhenGranulesExhausted(t *testing.T) {
	bs := blob.New()
	tbl, err := New(peopleSchema(), bs, rowptr.Committed)
	require.NoError(t, err)

	// Large enough to need many granules per row, but still under
	// blob.Threshold so it stays in granules instead of spilling to the
	// blob store.
	name := make([]byte, blob.Threshold-100)
	for i := range name {
		name[i] = byte('a' + i%26)
	}

	const n = 200
	ptrs := make([]rowptr.RowPointer, n)
	for i := 0; i < n; i++ {
		ptr, _, err := tbl.Insert(schema.Row{uint64(i), string(name)})
		require.NoError(t, err, "a full granule region must force a fresh page, not fail the insert")
		ptrs[i] = ptr
	}

	assert.Greater(t, tbl.PageCount(), 1, "enough large var-len rows must force at least one additional page")

	for i, ptr := range ptrs {
		row, err := tbl.GetRow(ptr)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), row[0])
		assert.Equal(t, string(name), row[1])
	}
}

// TestSeekBTreeRangeOrdersByKey is spec scenario 6 exercised through the
// table layer: inserting ids out of order, a range seek returns pointers
// in ascending key order.
func TestSeekBTreeRangeOrdersByKey(t *testing.T) {
	bs := blob.New()
	tbl, err := New(peopleSchema(), bs, rowptr.Committed)
	require.NoError(t, err)
	require.NoError(t, tbl.CreateBTreeIndex("id_idx", "id", false))

	ids := []uint64{5, 1, 3, 2, 4}
	ptrs := make(map[uint64]rowptr.RowPointer)
	for _, id := range ids {
		ptr, _, err := tbl.Insert(schema.Row{id, "x"})
		require.NoError(t, err)
		ptrs[id] = ptr
	}

	lower := index.Bound{Kind: index.Inclusive, Key: mustEncodeU32Key(t, 2)}
	upper := index.Bound{Kind: index.Inclusive, Key: mustEncodeU32Key(t, 4)}
	got, err := tbl.SeekBTreeRange("id_idx", lower, upper)
	require.NoError(t, err)
	assert.Equal(t, []rowptr.RowPointer{ptrs[2], ptrs[3], ptrs[4]}, got)
}

func mustEncodeU32Key(t *testing.T, v uint64) []byte {
	t.Helper()
	k, err := encodeIndexKey(schema.KindU32, v)
	require.NoError(t, err)
	return k
}

func TestDirectIndexSeekAndDelete(t *testing.T) {
	bs := blob.New()
	tbl, err := New(peopleSchema(), bs, rowptr.Committed)
	require.NoError(t, err)
	require.NoError(t, tbl.CreateDirectIndex("id_direct", "id", 16))

	ptr, _, err := tbl.Insert(schema.Row{uint64(3), "carol"})
	require.NoError(t, err)

	got, ok, err := tbl.SeekDirectPoint("id_direct", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ptr, got)

	require.NoError(t, tbl.Delete(ptr))

	_, ok, err = tbl.SeekDirectPoint("id_direct", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := tbl.Scan()
	require.NoError(t, err)
	assert.Empty(t, rows)
}
