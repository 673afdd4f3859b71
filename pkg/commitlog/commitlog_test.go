package commitlog

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(tableID uint32, rows ...string) TxData {
	d := TableDelta{TableID: tableID}
	for _, r := range rows {
		d.InsertRows = append(d.InsertRows, []byte(r))
	}
	return TxData{Tables: []TableDelta{d}}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultWriterConfig()
	cfg.MaxRecordsInCommit = 2

	w, err := OpenWriter(dir, cfg, 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := w.Append(tx(1, "row"))
		require.NoError(t, err)
	}
	last, err := w.Close()
	require.NoError(t, err)
	assert.EqualValues(t, 4, last)

	r, err := TransactionsFrom(dir, 0)
	require.NoError(t, err)

	var offsets []uint64
	for {
		rec, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		offsets = append(offsets, rec.TxOffset)
		require.Len(t, rec.Tx.Tables, 1)
		assert.EqualValues(t, 1, rec.Tx.Tables[0].TableID)
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, offsets)
}

func TestTransactionsFromSkipsEarlierOffsets(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultWriterConfig()
	w, err := OpenWriter(dir, cfg, 0)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := w.Append(tx(1, "row"))
		require.NoError(t, err)
	}
	_, err = w.Close()
	require.NoError(t, err)

	r, err := TransactionsFrom(dir, 3)
	require.NoError(t, err)
	var offsets []uint64
	for {
		rec, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		offsets = append(offsets, rec.TxOffset)
	}
	assert.Equal(t, []uint64{3, 4}, offsets)
}

// TestCrashRecoveryResumesAfterRestart is spec scenario 4: a writer is
// closed (simulating a clean restart boundary), reopened with the next
// offset replay determined, and new transactions append after the old
// ones without disturbing them.
func TestCrashRecoveryResumesAfterRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultWriterConfig()

	w, err := OpenWriter(dir, cfg, 0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := w.Append(tx(1, "a"))
		require.NoError(t, err)
	}
	last, err := w.Close()
	require.NoError(t, err)

	w2, err := OpenWriter(dir, cfg, last+1)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := w2.Append(tx(1, "b"))
		require.NoError(t, err)
	}
	_, err = w2.Close()
	require.NoError(t, err)

	last2, found, err := LatestOffset(dir)
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 4, last2)
}

// TestPartialTailTruncationIsTreatedAsCleanEndOfLog is spec scenario 5:
// a frame whose trailing bytes (here, its checksum) got cut off by a
// crash mid-write is not a fatal error. Traversal stops cleanly at the
// last good frame, and the writer can append right after it.
func TestPartialTailTruncationIsTreatedAsCleanEndOfLog(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultWriterConfig()
	cfg.MaxRecordsInCommit = 1 // one frame per transaction, so truncation only harms the last

	w, err := OpenWriter(dir, cfg, 0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := w.Append(tx(1, "a"))
		require.NoError(t, err)
	}
	last, err := w.Close()
	require.NoError(t, err)
	assert.EqualValues(t, 2, last)

	path := segmentPath(dir, 0)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-2))

	r, err := TransactionsFrom(dir, 0)
	require.NoError(t, err)
	var n int
	for {
		_, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		n++
	}
	assert.Equal(t, 2, n, "the truncated final frame is dropped cleanly")

	w2, err := OpenWriter(dir, cfg, uint64(n))
	require.NoError(t, err)
	_, err = w2.Append(tx(1, "recovered"))
	require.NoError(t, err)
	_, err = w2.Close()
	require.NoError(t, err)
}

func TestSegmentRotationSpansMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultWriterConfig()
	cfg.MaxRecordsInCommit = 1
	cfg.MaxSegmentSize = SegmentHeaderSize + 40 // force rotation almost every frame

	w, err := OpenWriter(dir, cfg, 0)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err := w.Append(tx(1, "x"))
		require.NoError(t, err)
	}
	_, err = w.Close()
	require.NoError(t, err)

	segments, err := listSegments(dir)
	require.NoError(t, err)
	assert.Greater(t, len(segments), 1, "small MaxSegmentSize should force multiple segment files")

	r, err := TransactionsFrom(dir, 0)
	require.NoError(t, err)
	var offsets []uint64
	for {
		rec, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		offsets = append(offsets, rec.TxOffset)
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, offsets)
}

func TestEmptyHistoryYieldsNoRecords(t *testing.T) {
	r := EmptyHistory()
	_, ok, err := r.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTxDataEncodeDecodeRoundTrip(t *testing.T) {
	in := TxData{Tables: []TableDelta{
		{TableID: 9, InsertRows: [][]byte{[]byte("one"), []byte("two")}, DeleteRows: nil},
	}}
	encoded := in.encode()
	out, n, err := decodeTxData(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	require.Len(t, out.Tables, 1)
	assert.Equal(t, in.Tables[0].TableID, out.Tables[0].TableID)
	assert.Equal(t, in.Tables[0].InsertRows, out.Tables[0].InsertRows)
}

// TestTxDataMultiTableRoundTrip guards against regressing a single
// transaction's TxData back down to one table's worth of deltas: one
// TxData record must be able to carry every table a transaction touched,
// each with both inserts and deletes, and decode back out unchanged.
func TestTxDataMultiTableRoundTrip(t *testing.T) {
	in := TxData{Tables: []TableDelta{
		{TableID: 1, InsertRows: [][]byte{[]byte("a1"), []byte("a2")}, DeleteRows: [][]byte{[]byte("a0")}},
		{TableID: 2, InsertRows: [][]byte{}, DeleteRows: [][]byte{[]byte("b0"), []byte("b1")}},
		{TableID: 3, InsertRows: [][]byte{[]byte("c1")}, DeleteRows: [][]byte{}},
	}}
	encoded := in.encode()
	out, n, err := decodeTxData(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, in, out)
}
