package table

import "github.com/ridgedb/ridge/pkg/index"

// btreeIndex and directIndex give the table package a uniform insert/
// delete/seek surface over pkg/index's two structures, returning the
// conflicting pointer (rather than an error) on a unique violation so the
// caller can report it per spec §8 scenario 3.

type btreeIndex struct{ b *index.BTree }

func newBTreeIndex(unique bool) *btreeIndex { return &btreeIndex{b: index.NewBTree(unique)} }

// insert returns (0, false) on a unique violation, with the BTree itself
// reporting the existing pointer via a point seek.
func (x *btreeIndex) insert(key []byte, ptr uint64) (uint64, bool) {
	if err := x.b.Insert(key, ptr); err != nil {
		existing := x.b.SeekPoint(key)
		if len(existing) > 0 {
			return existing[0], false
		}
		return 0, false
	}
	return 0, true
}

func (x *btreeIndex) delete(key []byte, ptr uint64) { x.b.Delete(key, ptr) }

func (x *btreeIndex) seekPoint(key []byte) []uint64 { return x.b.SeekPoint(key) }

func (x *btreeIndex) seekRange(lower, upper index.Bound) []uint64 { return x.b.SeekRange(lower, upper) }

type directIndex struct{ d *index.Direct }

func newDirectIndex(capacityHint uint64) *directIndex {
	return &directIndex{d: index.NewDirect(capacityHint)}
}

func (x *directIndex) insert(key, ptr uint64) { x.d.Insert(key, ptr) }
func (x *directIndex) delete(key uint64)      { x.d.Delete(key) }
func (x *directIndex) seek(key uint64) (uint64, bool) {
	return x.d.SeekPoint(key)
}
