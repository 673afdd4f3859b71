package commitlog

import (
	"fmt"
	"os"

	"github.com/ridgedb/ridge/pkg/errkind"
	"github.com/ridgedb/ridge/pkg/varint"
)

// offsetIndexEntrySize is (tx_offset:u64, byte_position:u64).
const offsetIndexEntrySize = 16

func appendOffsetIndexEntry(f *os.File, txOffset uint64, bytePosition int64) error {
	var buf [offsetIndexEntrySize]byte
	varint.PutUint64(buf[0:8], txOffset)
	varint.PutUint64(buf[8:16], uint64(bytePosition))
	if _, err := f.Write(buf[:]); err != nil {
		return fmt.Errorf("commitlog: append offset index entry: %w", errkind.ErrIoError)
	}
	return f.Sync()
}

// offsetIndexEntry is one (tx_offset, byte_position) pair from a
// segment's .idx file.
type offsetIndexEntry struct {
	TxOffset     uint64
	BytePosition int64
}

// loadOffsetIndex reads every entry from a segment's offset-index file.
// A missing or empty file (e.g. the segment has fewer than
// OffsetIndexStride frames, so no entry was ever written) is not an
// error: traversal just starts from the segment header.
func loadOffsetIndex(path string) ([]offsetIndexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("commitlog: read offset index %s: %w", path, errkind.ErrIoError)
	}
	n := len(data) / offsetIndexEntrySize
	out := make([]offsetIndexEntry, 0, n)
	for i := 0; i < n; i++ {
		off := i * offsetIndexEntrySize
		out = append(out, offsetIndexEntry{
			TxOffset:     varint.Uint64(data[off : off+8]),
			BytePosition: int64(varint.Uint64(data[off+8 : off+16])),
		})
	}
	return out, nil
}

// seekHint returns the byte position to start scanning from for a target
// tx offset: the byte position of the latest index entry at or before
// target, or SegmentHeaderSize if none qualifies.
func seekHint(entries []offsetIndexEntry, target uint64) int64 {
	best := int64(SegmentHeaderSize)
	for _, e := range entries {
		if e.TxOffset <= target && e.BytePosition >= best {
			best = e.BytePosition
		}
	}
	return best
}
