package commitlog

import (
	"fmt"

	"github.com/ridgedb/ridge/pkg/errkind"
	"github.com/ridgedb/ridge/pkg/varint"
)

// TableDelta is one table's share of a transaction's effects: the rows it
// inserted and the rows it deleted, both as wire-encoded bytes (via
// schema.EncodeWire, since the log does not carry a Schema and cannot
// decode rows itself).
//
// Deletes are recorded as row bytes rather than row pointers: a
// RowPointer is not stable across the committed/tx boundary, so replaying
// a delete by a literal pointer value would assume the replayed table
// reproduces byte-identical page/slot allocations to the run that
// produced the log. Row bytes let replay locate the row to delete by its
// content instead.
type TableDelta struct {
	TableID    uint32
	InsertRows [][]byte
	DeleteRows [][]byte
}

// TxData is the logical content of one committed transaction: every table
// it touched, each with its own inserts and deletes. A transaction that
// writes to N tables still produces exactly one TxData value, which is
// appended to the log — and becomes durable — as a single atomic unit.
type TxData struct {
	Tables []TableDelta
}

func (d TableDelta) encode(buf []byte) []byte {
	buf = varint.AppendUint32(buf, d.TableID)
	buf = appendWireRows(buf, d.InsertRows)
	buf = appendWireRows(buf, d.DeleteRows)
	return buf
}

func appendWireRows(buf []byte, rows [][]byte) []byte {
	buf = varint.AppendUint32(buf, uint32(len(rows)))
	for _, r := range rows {
		buf = varint.AppendUint32(buf, uint32(len(r)))
		buf = append(buf, r...)
	}
	return buf
}

func (d TableDelta) encodedSize() int {
	size := 4 + 4 + 4
	for _, r := range d.InsertRows {
		size += 4 + len(r)
	}
	for _, r := range d.DeleteRows {
		size += 4 + len(r)
	}
	return size
}

// encode serializes one TxData record:
// n_tables(4) | (table_id(4) | n_inserts(4) | (len(4)|bytes)... | n_deletes(4) | (len(4)|bytes)...)...
func (t TxData) encode() []byte {
	size := 4
	for _, d := range t.Tables {
		size += d.encodedSize()
	}

	buf := make([]byte, 0, size)
	buf = varint.AppendUint32(buf, uint32(len(t.Tables)))
	for _, d := range t.Tables {
		buf = d.encode(buf)
	}
	return buf
}

// decodeWireRows parses an n_rows(4) | (len(4)|bytes)... sequence starting
// at off and returns the rows and the new offset.
func decodeWireRows(data []byte, off int) ([][]byte, int, error) {
	if off+4 > len(data) {
		return nil, 0, fmt.Errorf("commitlog: truncated row count: %w", errkind.ErrDecodeError)
	}
	n := varint.Uint32(data[off:])
	off += 4

	rows := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		if off+4 > len(data) {
			return nil, 0, fmt.Errorf("commitlog: truncated row length: %w", errkind.ErrDecodeError)
		}
		rowLen := varint.Uint32(data[off:])
		off += 4
		if off+int(rowLen) > len(data) {
			return nil, 0, fmt.Errorf("commitlog: truncated row: %w", errkind.ErrDecodeError)
		}
		row := make([]byte, rowLen)
		copy(row, data[off:off+int(rowLen)])
		off += int(rowLen)
		rows = append(rows, row)
	}
	return rows, off, nil
}

// decodeTableDelta parses one TableDelta section starting at off and
// returns it along with the new offset.
func decodeTableDelta(data []byte, off int) (TableDelta, int, error) {
	if off+4 > len(data) {
		return TableDelta{}, 0, fmt.Errorf("commitlog: truncated table id: %w", errkind.ErrDecodeError)
	}
	tableID := varint.Uint32(data[off:])
	off += 4

	inserts, off, err := decodeWireRows(data, off)
	if err != nil {
		return TableDelta{}, 0, err
	}
	deletes, off, err := decodeWireRows(data, off)
	if err != nil {
		return TableDelta{}, 0, err
	}

	return TableDelta{TableID: tableID, InsertRows: inserts, DeleteRows: deletes}, off, nil
}

// decodeTxData parses one TxData record and returns how many bytes it
// consumed.
func decodeTxData(data []byte) (TxData, int, error) {
	if len(data) < 4 {
		return TxData{}, 0, fmt.Errorf("commitlog: short tx record: %w", errkind.ErrDecodeError)
	}
	nTables := varint.Uint32(data)
	off := 4

	tables := make([]TableDelta, 0, nTables)
	for i := uint32(0); i < nTables; i++ {
		d, next, err := decodeTableDelta(data, off)
		if err != nil {
			return TxData{}, 0, err
		}
		off = next
		tables = append(tables, d)
	}

	return TxData{Tables: tables}, off, nil
}

// encodeFramePayload packs one or more TxData records (in commit order, starting
// at minTxOffset) into a single frame payload.
func encodeFramePayload(txs []TxData) []byte {
	var buf []byte
	for _, t := range txs {
		buf = append(buf, t.encode()...)
	}
	return buf
}

// decodeFramePayload splits a frame's payload back into its n TxData
// records.
func decodeFramePayload(payload []byte, n uint16) ([]TxData, error) {
	out := make([]TxData, 0, n)
	off := 0
	for i := uint16(0); i < n; i++ {
		t, consumed, err := decodeTxData(payload[off:])
		if err != nil {
			return nil, err
		}
		off += consumed
		out = append(out, t)
	}
	if off != len(payload) {
		return nil, fmt.Errorf("commitlog: %d trailing bytes in frame payload: %w", len(payload)-off, errkind.ErrDecodeError)
	}
	return out, nil
}
