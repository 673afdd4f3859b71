package commitlog

import (
	"fmt"
	"os"
	"sync"

	"github.com/ridgedb/ridge/pkg/errkind"
)

// WriterConfig mirrors the commit log tuning knobs in the config file:
// flush policy and segment rotation.
type WriterConfig struct {
	MaxRecordsInCommit  int
	MaxSegmentSize      int64
	PreallocateSegments bool
	OffsetIndexStride   int
}

// DefaultWriterConfig matches the defaults spec.md calls out: an
// offset-index entry every 256 frames.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		MaxRecordsInCommit:  256,
		MaxSegmentSize:      64 * 1024 * 1024,
		PreallocateSegments: false,
		OffsetIndexStride:   256,
	}
}

// nowFunc is overridable in tests; production code leaves it at time.Now.
var nowFunc = defaultNow

// Writer owns the active segment file and buffers records into frames,
// the way the teacher's WAL writer buffers records behind a mutex and
// only fsyncs on an explicit durability boundary.
//
// Writer is purely mechanical: it knows how to batch, frame, checksum,
// rotate and index. Deciding WHEN to flush on a timer, and running the
// background task that owns this Writer, is pkg/durability's job.
type Writer struct {
	mu  sync.Mutex
	dir string
	cfg WriterConfig

	file    *os.File
	idxFile *os.File

	segmentStart  uint64 // tx offset the active segment began at
	segmentBytes  int64  // bytes written to the active segment so far (incl. header)
	framesInIndex int    // frames written since the last offset-index entry

	nextTxOffset uint64
	pending      []TxData

	lastDurable    uint64
	hasLastDurable bool

	closed bool
	fatal  error
}

// OpenWriter creates (or continues into) dir as the commit log directory
// and starts a new segment named by resumeFromOffset (the next assignable
// tx offset, as determined by replay) to receive the next write, replacing
// any existing file of that name. It never appends to an earlier segment.
func OpenWriter(dir string, cfg WriterConfig, resumeFromOffset uint64) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("commitlog: mkdir %s: %w", dir, errkind.ErrIoError)
	}

	w := &Writer{dir: dir, cfg: cfg, nextTxOffset: resumeFromOffset}
	if err := w.rotate(resumeFromOffset); err != nil {
		return nil, err
	}
	return w, nil
}

// rotate seals the current segment (if any) and opens a fresh one
// starting at startOffset.
func (w *Writer) rotate(startOffset uint64) error {
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("commitlog: seal segment: %w", errkind.ErrIoError)
		}
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("commitlog: close sealed segment: %w", errkind.ErrIoError)
		}
		if w.idxFile != nil {
			w.idxFile.Close()
		}
	}

	var prealloc int64
	if w.cfg.PreallocateSegments {
		prealloc = w.cfg.MaxSegmentSize
	}
	f, err := createSegment(w.dir, startOffset, nowFunc().UnixNano(), prealloc)
	if err != nil {
		if isDiskFull(err) {
			w.fatal = errkind.ErrStorageFull
			panic(errkind.ErrStorageFull)
		}
		return err
	}
	idx, err := os.OpenFile(segmentIndexPath(w.dir, startOffset), os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		f.Close()
		return fmt.Errorf("commitlog: create offset index: %w", errkind.ErrIoError)
	}

	w.file = f
	w.idxFile = idx
	w.segmentStart = startOffset
	w.segmentBytes = SegmentHeaderSize
	w.framesInIndex = 0
	return nil
}

// Append buffers tx for the next frame and assigns it a transaction
// offset. It auto-flushes once MaxRecordsInCommit is reached; callers
// (pkg/durability) are responsible for flushing on a timer or on an
// explicit durability request.
func (w *Writer) Append(tx TxData) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		panic("commitlog: Append called on a closed writer")
	}
	if w.fatal != nil {
		panic(w.fatal)
	}

	offset := w.nextTxOffset
	w.nextTxOffset++
	w.pending = append(w.pending, tx)

	if len(w.pending) >= w.cfg.MaxRecordsInCommit {
		if err := w.flushLocked(); err != nil {
			return offset, err
		}
	}
	return offset, nil
}

// Flush forces any buffered records out as a frame and fsyncs the
// segment, making their offsets durable.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	if w.closed {
		panic("commitlog: Flush called on a closed writer")
	}

	minOffset := w.nextTxOffset - uint64(len(w.pending))
	payload := encodeFramePayload(w.pending)
	frame := Frame{MinTxOffset: minOffset, NRecords: uint16(len(w.pending)), Payload: payload}
	bytes := frame.encode()

	if w.segmentBytes+int64(len(bytes)) > w.cfg.MaxSegmentSize {
		if err := w.rotate(minOffset); err != nil {
			return err
		}
	}

	bytePos := w.segmentBytes
	if _, err := w.file.WriteAt(bytes, bytePos); err != nil {
		return fmt.Errorf("commitlog: write frame: %w", errkind.ErrIoError)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("commitlog: fsync frame: %w", errkind.ErrIoError)
	}
	w.segmentBytes = bytePos + int64(len(bytes))

	w.framesInIndex++
	if w.framesInIndex >= w.cfg.OffsetIndexStride {
		if err := appendOffsetIndexEntry(w.idxFile, minOffset, bytePos); err != nil {
			return err
		}
		w.framesInIndex = 0
	}

	w.lastDurable = minOffset + uint64(len(w.pending)) - 1
	w.hasLastDurable = true
	w.pending = w.pending[:0]
	return nil
}

// DurableOffset returns the highest transaction offset that has been
// written and fsync'd so far, and whether anything has been flushed yet.
func (w *Writer) DurableOffset() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastDurable, w.hasLastDurable
}

// Close flushes any remaining records, fsyncs, and closes the segment.
// It returns the last durable transaction offset. Repeated calls are
// idempotent.
func (w *Writer) Close() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.lastClosedOffset(), nil
	}
	if err := w.flushLocked(); err != nil {
		return 0, err
	}
	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("commitlog: close fsync: %w", errkind.ErrIoError)
	}
	err1 := w.file.Close()
	var err2 error
	if w.idxFile != nil {
		err2 = w.idxFile.Close()
	}
	w.closed = true
	if err1 != nil || err2 != nil {
		return 0, fmt.Errorf("commitlog: close segment: %w", errkind.ErrIoError)
	}
	return w.lastClosedOffset(), nil
}

// lastClosedOffset returns the highest transaction offset ever assigned,
// or 0 if none was (nextTxOffset starts at the resume offset, which is
// itself 0 for a brand new log).
func (w *Writer) lastClosedOffset() uint64 {
	if w.nextTxOffset == 0 {
		return 0
	}
	return w.nextTxOffset - 1
}
