package commitlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ridgedb/ridge/pkg/errkind"
)

// Record is one transaction recovered from the log, paired with the
// transaction offset it was committed at.
type Record struct {
	TxOffset uint64
	Tx       TxData
}

// Reader traverses commit log segments in order starting from a given
// transaction offset, verifying each frame's checksum. It is the
// `History`-style traversal primitive: replay folds it into
// CommittedState, but nothing here is replay-specific.
//
// A bad checksum or a short trailing read is treated as a clean
// end-of-log (the tail of an in-progress write that never got
// fsync'd). A frame whose checksum is valid but whose payload fails to
// decode is a fatal, propagated error: the log is corrupt in a way a
// crash cannot explain.
type Reader struct {
	dir      string
	segments []uint64
	segPos   int

	file *os.File
	pos  int64

	fromOffset uint64

	buf    []Record
	bufIdx int

	done bool
	err  error
}

// EmptyHistory is a Reader with no backing segments: Next immediately
// reports a clean end-of-log. Useful for tests and for opening a brand
// new database directory that has no commit log yet.
func EmptyHistory() *Reader {
	return &Reader{done: true}
}

// TransactionsFrom opens dir (a commit log directory) and returns a
// Reader positioned to yield every transaction at or after fromOffset.
func TransactionsFrom(dir string, fromOffset uint64) (*Reader, error) {
	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return EmptyHistory(), nil
	}
	return &Reader{dir: dir, segments: segments, fromOffset: fromOffset}, nil
}

// listSegments returns every segment's starting offset, sorted
// ascending, parsed from the directory's "<20-digit offset>.log" files.
func listSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("commitlog: list segments in %s: %w", dir, errkind.ErrIoError)
	}
	var out []uint64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".log") {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(name, ".log"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Next returns the next transaction, or ok=false when the log is
// cleanly exhausted. err is non-nil only on a fatal corruption.
func (r *Reader) Next() (Record, bool, error) {
	if r.err != nil {
		return Record{}, false, r.err
	}
	for {
		if r.bufIdx < len(r.buf) {
			rec := r.buf[r.bufIdx]
			r.bufIdx++
			if rec.TxOffset < r.fromOffset {
				continue
			}
			return rec, true, nil
		}
		if r.done {
			return Record{}, false, nil
		}
		if !r.fillBuffer() {
			if r.err != nil {
				return Record{}, false, r.err
			}
			return Record{}, false, nil
		}
	}
}

// fillBuffer reads the next frame (advancing to the next segment file
// as needed) into r.buf. It returns false when there is nothing more to
// read, whether cleanly (r.err == nil) or fatally (r.err != nil).
func (r *Reader) fillBuffer() bool {
	for {
		if r.file == nil {
			if r.segPos >= len(r.segments) {
				r.done = true
				return false
			}
			if !r.openSegment(r.segments[r.segPos]) {
				return false
			}
		}

		frame, consumed, ok, err := decodeFrameAt(r.file, r.pos)
		if err != nil {
			r.err = err
			return false
		}
		if !ok {
			r.file.Close()
			r.file = nil
			r.segPos++
			continue
		}

		recs, err := decodeFramePayload(frame.Payload, frame.NRecords)
		if err != nil {
			r.err = err
			return false
		}
		r.buf = r.buf[:0]
		r.bufIdx = 0
		txOffset := frame.MinTxOffset
		for _, tx := range recs {
			r.buf = append(r.buf, Record{TxOffset: txOffset, Tx: tx})
			txOffset++
		}
		r.pos += consumed
		if len(r.buf) > 0 {
			return true
		}
		// An empty frame (n_records == 0) is legal but yields nothing;
		// keep reading forward in the same segment.
	}
}

func (r *Reader) openSegment(startOffset uint64) bool {
	f, err := os.Open(segmentPath(r.dir, startOffset))
	if err != nil {
		r.err = fmt.Errorf("commitlog: open segment %d: %w", startOffset, errkind.ErrIoError)
		return false
	}
	header := make([]byte, SegmentHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		r.err = fmt.Errorf("commitlog: read segment %d header: %w", startOffset, errkind.ErrIoError)
		return false
	}
	if _, err := decodeSegmentHeader(header); err != nil {
		f.Close()
		r.err = err
		return false
	}

	entries, err := loadOffsetIndex(segmentIndexPath(r.dir, startOffset))
	if err != nil {
		f.Close()
		r.err = err
		return false
	}

	r.file = f
	r.pos = seekHint(entries, r.fromOffset)
	return true
}

// decodeFrameAt reads and checksum-verifies one frame starting at pos.
// ok=false means a clean, recoverable stop (EOF or a short or
// checksum-invalid tail); the returned error is always nil. Decoding the
// payload of a checksum-valid frame is left to decodeFramePayload.
func decodeFrameAt(f *os.File, pos int64) (Frame, int64, bool, error) {
	lenBuf := make([]byte, 4)
	if n, _ := f.ReadAt(lenBuf, pos); n < 4 {
		return Frame{}, 0, false, nil
	}
	innerLen := binary.LittleEndian.Uint32(lenBuf)
	if innerLen < frameHeaderSize-4 {
		return Frame{}, 0, false, nil
	}

	rest := make([]byte, int64(innerLen)+frameChecksumSize)
	if n, _ := f.ReadAt(rest, pos+4); n < len(rest) {
		return Frame{}, 0, false, nil
	}

	inner := rest[:innerLen]
	storedSum := binary.LittleEndian.Uint32(rest[innerLen:])
	if crc32Sum(inner) != storedSum {
		return Frame{}, 0, false, nil
	}

	minTxOffset := binary.LittleEndian.Uint64(inner[0:8])
	nRecords := binary.LittleEndian.Uint16(inner[8:10])
	payload := make([]byte, len(inner)-10)
	copy(payload, inner[10:])

	frame := Frame{MinTxOffset: minTxOffset, NRecords: nRecords, Payload: payload}
	total := int64(4) + int64(innerLen) + frameChecksumSize
	return frame, total, true, nil
}

// LatestOffset does a full scan of every segment from offset 0 and
// returns the highest durable transaction offset recorded in dir, plus
// whether any transaction was found at all.
func LatestOffset(dir string) (uint64, bool, error) {
	r, err := TransactionsFrom(dir, 0)
	if err != nil {
		return 0, false, err
	}
	var last uint64
	found := false
	for {
		rec, ok, err := r.Next()
		if err != nil {
			return 0, false, err
		}
		if !ok {
			break
		}
		last = rec.TxOffset
		found = true
	}
	return last, found, nil
}
