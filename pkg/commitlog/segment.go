// Package commitlog implements the append-only, segmented, checksummed
// commit log: the durability layer's on-disk representation of every
// committed transaction's TxData.
package commitlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/ridgedb/ridge/pkg/errkind"
)

// Magic identifies a segment file.
const Magic = 0x52_49_44_47 // "RIDG"

// FormatVersion is the on-disk segment/frame format version.
const FormatVersion = 1

// ChecksumCastagnoli identifies CRC32C as the checksum algorithm in the
// segment header, per spec §6.
const ChecksumCastagnoli = 1

// SegmentHeaderSize is the fixed header every segment file starts with:
// magic(4) | format_version(2) | checksum_algorithm(1) | reserved(1) |
// created_ts(8).
const SegmentHeaderSize = 16

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// crc32Sum is the checksum function named in the segment header:
// CRC32C over min_tx_offset||n_records||payload.
func crc32Sum(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// SegmentHeader is the first SegmentHeaderSize bytes of every segment file.
type SegmentHeader struct {
	Magic           uint32
	FormatVersion   uint16
	ChecksumAlgo    uint8
	CreatedUnixNano int64
}

func (h SegmentHeader) encode() []byte {
	buf := make([]byte, SegmentHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.FormatVersion)
	buf[6] = h.ChecksumAlgo
	buf[7] = 0 // reserved
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.CreatedUnixNano))
	return buf
}

func decodeSegmentHeader(buf []byte) (SegmentHeader, error) {
	if len(buf) < SegmentHeaderSize {
		return SegmentHeader{}, fmt.Errorf("commitlog: short segment header: %w", errkind.ErrDecodeError)
	}
	h := SegmentHeader{
		Magic:           binary.LittleEndian.Uint32(buf[0:4]),
		FormatVersion:   binary.LittleEndian.Uint16(buf[4:6]),
		ChecksumAlgo:    buf[6],
		CreatedUnixNano: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}
	if h.Magic != Magic {
		return SegmentHeader{}, fmt.Errorf("commitlog: bad segment magic %x: %w", h.Magic, errkind.ErrDecodeError)
	}
	return h, nil
}

// frameHeaderSize is frame_len(4) + min_tx_offset(8) + n_records(2).
const frameHeaderSize = 4 + 8 + 2

// frameChecksumSize is the trailing CRC32C.
const frameChecksumSize = 4

// Frame is one commit frame: the TxData payload for one or more
// transactions batched into a single flush, plus the checksum covering
// min_tx_offset||n_records||payload.
type Frame struct {
	MinTxOffset uint64
	NRecords    uint16
	Payload     []byte
}

// encode serializes a frame to its on-disk bytes.
func (f Frame) encode() []byte {
	innerLen := frameHeaderSize - 4 + len(f.Payload) // min_tx_offset + n_records + payload
	buf := make([]byte, 4+innerLen+frameChecksumSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(innerLen))
	binary.LittleEndian.PutUint64(buf[4:12], f.MinTxOffset)
	binary.LittleEndian.PutUint16(buf[12:14], f.NRecords)
	copy(buf[14:14+len(f.Payload)], f.Payload)

	sum := crc32Sum(buf[4 : 14+len(f.Payload)])
	binary.LittleEndian.PutUint32(buf[14+len(f.Payload):], sum)
	return buf
}

// segmentFileName returns the canonical name for a segment starting at
// startOffset: a 20-digit zero-padded tx offset plus ".log".
func segmentFileName(startOffset uint64) string {
	return fmt.Sprintf("%020d.log", startOffset)
}

func segmentIndexFileName(startOffset uint64) string {
	return fmt.Sprintf("%020d.idx", startOffset)
}

// segmentPath joins a commit log directory and a segment's file name.
func segmentPath(dir string, startOffset uint64) string {
	return filepath.Join(dir, segmentFileName(startOffset))
}

func segmentIndexPath(dir string, startOffset uint64) string {
	return filepath.Join(dir, segmentIndexFileName(startOffset))
}

// createSegment creates a new segment file starting at startOffset
// (truncating any existing file of that name), writes its header, and optionally preallocates preallocateBytes via
// Truncate (the portable stand-in for fallocate: both just reserve space,
// and Go's os package has no fallocate syscall wrapper on all platforms).
func createSegment(dir string, startOffset uint64, nowUnixNano int64, preallocateBytes int64) (*os.File, error) {
	f, err := os.OpenFile(segmentPath(dir, startOffset), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("commitlog: create segment: %w: %w", errkind.ErrIoError, err)
	}
	h := SegmentHeader{Magic: Magic, FormatVersion: FormatVersion, ChecksumAlgo: ChecksumCastagnoli, CreatedUnixNano: nowUnixNano}
	if _, err := f.Write(h.encode()); err != nil {
		f.Close()
		return nil, fmt.Errorf("commitlog: write segment header: %w: %w", errkind.ErrIoError, err)
	}
	if preallocateBytes > 0 {
		if err := f.Truncate(preallocateBytes); err != nil {
			f.Close()
			return nil, fmt.Errorf("commitlog: preallocate segment: %w: %w", errkind.ErrIoError, err)
		}
		if _, err := f.Seek(SegmentHeaderSize, 0); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}
