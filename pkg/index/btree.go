// Package index implements the two index structures tables can build over a
// column: an ordered B-tree index (unique or non-unique) and a dense-array
// Direct index for bounded integer keyspaces.
package index

import (
	"bytes"

	"github.com/google/btree"

	"github.com/ridgedb/ridge/pkg/errkind"
)

// btreeDegree matches the teacher/pack's default choice for google/btree
// (the library's own example uses 32); there is nothing schema-specific
// about it.
const btreeDegree = 32

// BoundKind distinguishes an unbounded range end from an inclusive or
// exclusive one.
type BoundKind uint8

const (
	Unbounded BoundKind = iota
	Inclusive
	Exclusive
)

// Bound is one endpoint of a range scan.
type Bound struct {
	Kind BoundKind
	Key  []byte
}

type btreeItem struct {
	key   []byte
	entry *sameKeyEntry
}

func (a btreeItem) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(btreeItem).key) < 0
}

// BTree is an ordered index over a serialized key, mapping each key to the
// set of row pointers currently stored under it (spec §4.5's "same-key
// entry"). It supports both unique and non-unique columns: Insert enforces
// uniqueness only when the index was constructed with Unique: true.
type BTree struct {
	tree   *btree.BTree
	unique bool
}

// NewBTree constructs an empty ordered index.
func NewBTree(unique bool) *BTree {
	return &BTree{tree: btree.New(btreeDegree), unique: unique}
}

// Insert adds ptr under key. For a unique index it returns
// errkind.ErrUniqueViolation (and leaves the index unchanged) if the key is
// already occupied by a different pointer.
func (b *BTree) Insert(key []byte, ptr uint64) error {
	if existing := b.tree.Get(btreeItem{key: key}); existing != nil {
		e := existing.(btreeItem).entry
		if b.unique && !e.contains(ptr) {
			return errkind.ErrUniqueViolation
		}
		e.add(ptr)
		return nil
	}
	e := newSameKeyEntry(ptr)
	b.tree.ReplaceOrInsert(btreeItem{key: append([]byte(nil), key...), entry: e})
	return nil
}

// Delete removes ptr from key's entry, dropping the key entirely once
// empty.
func (b *BTree) Delete(key []byte, ptr uint64) {
	existing := b.tree.Get(btreeItem{key: key})
	if existing == nil {
		return
	}
	item := existing.(btreeItem)
	if item.entry.remove(ptr) {
		b.tree.Delete(item)
	}
}

// SeekPoint returns every pointer stored under key, or nil if the key is
// absent.
func (b *BTree) SeekPoint(key []byte) []uint64 {
	existing := b.tree.Get(btreeItem{key: key})
	if existing == nil {
		return nil
	}
	item := existing.(btreeItem)
	out := make([]uint64, 0, item.entry.len())
	item.entry.forEach(func(p uint64) { out = append(out, p) })
	return out
}

// SeekRange returns every pointer whose key falls within [lower, upper] per
// each bound's kind, in ascending key order.
func (b *BTree) SeekRange(lower, upper Bound) []uint64 {
	var out []uint64
	visit := func(i btree.Item) bool {
		item := i.(btreeItem)
		if upper.Kind != Unbounded {
			cmp := bytes.Compare(item.key, upper.Key)
			if upper.Kind == Exclusive && cmp >= 0 {
				return false
			}
			if upper.Kind == Inclusive && cmp > 0 {
				return false
			}
		}
		item.entry.forEach(func(p uint64) { out = append(out, p) })
		return true
	}

	switch lower.Kind {
	case Unbounded:
		b.tree.Ascend(visit)
	case Inclusive:
		b.tree.AscendGreaterOrEqual(btreeItem{key: lower.Key}, visit)
	case Exclusive:
		b.tree.AscendGreaterOrEqual(btreeItem{key: lower.Key}, func(i btree.Item) bool {
			item := i.(btreeItem)
			if bytes.Equal(item.key, lower.Key) {
				return true
			}
			return visit(i)
		})
	}
	return out
}

// Len returns the number of distinct keys currently indexed.
func (b *BTree) Len() int {
	return b.tree.Len()
}
