// Package varint collects the small set of little-endian fixed-width
// encode/decode helpers shared by the table (VarLenRef slots) and commit
// log packages. Every on-disk and in-row integer in this repository is
// fixed-width (the wire formats in spec §6 are fixed-layout binary, not
// LEB128-style varints), so this package is "varint" in the historical
// sense of the teacher's own encoding helpers, not variable-width encoding.
package varint

import "encoding/binary"

// PutUint16 writes v as little-endian into dst[0:2].
func PutUint16(dst []byte, v uint16) { binary.LittleEndian.PutUint16(dst, v) }

// Uint16 reads a little-endian uint16 from src[0:2].
func Uint16(src []byte) uint16 { return binary.LittleEndian.Uint16(src) }

// PutUint32 writes v as little-endian into dst[0:4].
func PutUint32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }

// Uint32 reads a little-endian uint32 from src[0:4].
func Uint32(src []byte) uint32 { return binary.LittleEndian.Uint32(src) }

// PutUint64 writes v as little-endian into dst[0:8].
func PutUint64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }

// Uint64 reads a little-endian uint64 from src[0:8].
func Uint64(src []byte) uint64 { return binary.LittleEndian.Uint64(src) }

// AppendUint32 appends v's little-endian bytes to dst.
func AppendUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// AppendUint64 appends v's little-endian bytes to dst.
func AppendUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	PutUint64(b[:], v)
	return append(dst, b[:]...)
}
