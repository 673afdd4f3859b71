// Package table implements a table: a schema, its deterministic row
// layout, an ordered list of pages holding the rows, a set of indexes over
// its columns, and a handle to the blob store large values spill into.
package table

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/ridgedb/ridge/pkg/blob"
	"github.com/ridgedb/ridge/pkg/errkind"
	"github.com/ridgedb/ridge/pkg/index"
	"github.com/ridgedb/ridge/pkg/page"
	"github.com/ridgedb/ridge/pkg/rowptr"
	"github.com/ridgedb/ridge/pkg/schema"
)

// indexKind distinguishes the two index structures spec §4.5 describes.
type indexKind uint8

const (
	kindBTree indexKind = iota
	kindDirect
)

// IndexKind is the exported form of indexKind, for callers (the
// datastore's tx-state overlay, the catalog) that need to recreate an
// identical index definition on another Table for the same schema.
type IndexKind = indexKind

const (
	BTreeIndex  = kindBTree
	DirectIndex = kindDirect
)

// IndexSpec describes one index definition, independent of any Table
// instance, so it can be replayed onto a fresh Table (a tx-state overlay,
// or a table rebuilt from the catalog on open).
type IndexSpec struct {
	Name   string
	Column string
	Kind   IndexKind
	Unique bool
}

// PageCount returns the number of pages currently allocated for this
// table, for diagnostics and metrics.
func (t *Table) PageCount() int {
	return len(t.pages)
}

// FreeSlots returns the number of fixed-part row slots across all pages
// that are not currently holding a live row, for diagnostics and metrics.
func (t *Table) FreeSlots() uint32 {
	var free uint32
	for _, pg := range t.pages {
		free += pg.FreeSlots()
	}
	return free
}

// IndexSpecs returns every index definition on the table in creation
// order.
func (t *Table) IndexSpecs() []IndexSpec {
	out := make([]IndexSpec, len(t.indexes))
	for i, ix := range t.indexes {
		out[i] = IndexSpec{Name: ix.name, Column: ix.column, Kind: ix.kind, Unique: ix.unique}
	}
	return out
}

// CreateIndex recreates an index definition (as returned by IndexSpecs)
// against this table — used to mirror a committed table's indexes onto a
// transaction's overlay table, and to rebuild indexes during replay.
func (t *Table) CreateIndex(spec IndexSpec) error {
	switch spec.Kind {
	case kindBTree:
		return t.CreateBTreeIndex(spec.Name, spec.Column, spec.Unique)
	case kindDirect:
		return t.CreateDirectIndex(spec.Name, spec.Column, 0)
	default:
		return fmt.Errorf("table %q: unknown index kind", t.Schema.TableName)
	}
}

type indexDef struct {
	name     string
	column   string // dotted field path
	kind     indexKind
	unique   bool
	btree    *btreeIndex
	direct   *directIndex
}

// Table owns one schema's rows: its pages, its indexes, and the blob
// store handle values spill into. Every index on the table is maintained
// as a bijection with the set of currently visible rows (spec §3's Table
// invariant): Insert and Delete keep all indexes in lock-step with the
// page presence bitmaps.
type Table struct {
	Schema schema.Schema
	Layout *schema.RowTypeLayout

	blobs *blob.Store
	pages []*page.Page

	indexes []*indexDef
	epoch   rowptr.Epoch
}

// New constructs an empty table for schema s, backed by shared blob store
// bs. epoch tags every row pointer this table mints (Committed for the
// datastore's committed tables, Uncommitted for a transaction's insert
// overlay).
func New(s schema.Schema, bs *blob.Store, epoch rowptr.Epoch) (*Table, error) {
	layout, err := schema.Compute(s)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", s.TableName, err)
	}
	return &Table{Schema: s, Layout: layout, blobs: bs, epoch: epoch}, nil
}

// CreateBTreeIndex adds an ordered index over column.
func (t *Table) CreateBTreeIndex(name, column string, unique bool) error {
	if _, ok := t.Layout.FieldByPath(column); !ok {
		return fmt.Errorf("table %q: %w: column %q", t.Schema.TableName, errkind.ErrIndexNotFound, column)
	}
	t.indexes = append(t.indexes, &indexDef{name: name, column: column, kind: kindBTree, unique: unique, btree: newBTreeIndex(unique)})
	return nil
}

// CreateDirectIndex adds a dense-array index over a bounded unsigned
// integer column. Direct indexes are always unique (spec §4.5).
func (t *Table) CreateDirectIndex(name, column string, capacityHint uint64) error {
	if _, ok := t.Layout.FieldByPath(column); !ok {
		return fmt.Errorf("table %q: %w: column %q", t.Schema.TableName, errkind.ErrIndexNotFound, column)
	}
	t.indexes = append(t.indexes, &indexDef{name: name, column: column, kind: kindDirect, unique: true, direct: newDirectIndex(capacityHint)})
	return nil
}

func (t *Table) findIndex(name string) *indexDef {
	for _, ix := range t.indexes {
		if ix.name == name {
			return ix
		}
	}
	return nil
}

func (t *Table) lastPage() *page.Page {
	if len(t.pages) == 0 {
		return nil
	}
	return t.pages[len(t.pages)-1]
}

func (t *Table) newPage() *page.Page {
	p := page.New(uint64(len(t.pages)), t.Layout.RowSize)
	t.pages = append(t.pages, p)
	return p
}

// Insert encodes row, spills its large variable-length fields into
// granules (or the blob store, past Threshold), allocates a fixed slot,
// and maintains every index. On a unique-index violation it rolls back
// every allocation it made (spec §4.4 step 4) and returns
// errkind.ErrUniqueViolation along with the pointer of the conflicting
// row.
func (t *Table) Insert(row schema.Row) (rowptr.RowPointer, rowptr.RowPointer, error) {
	fixed, varLen, err := schema.EncodeFixed(t.Layout, row)
	if err != nil {
		return 0, 0, fmt.Errorf("table %q: %w", t.Schema.TableName, err)
	}

	p := t.lastPage()
	if p == nil {
		p = t.newPage()
	}

	alloc, rollbackVarLen, offset, err := t.placeRow(p, varLen)
	if errors.Is(err, errkind.ErrPageFull) {
		p = t.newPage()
		alloc, rollbackVarLen, offset, err = t.placeRow(p, varLen)
	}
	if err != nil {
		return 0, 0, err
	}
	for _, a := range alloc {
		putVarLenRef(fixed, a.slotOffset, a.firstGranule, a.length, a.isBlob)
	}
	if err := p.WriteFixed(offset, fixed); err != nil {
		p.FreeFixedRow(offset)
		rollbackVarLen()
		return 0, 0, err
	}

	ptr := rowptr.New(p.Index(), uint16(offset), true, t.epoch)

	var insertedIdx []*indexDef
	for _, ix := range t.indexes {
		conflict, err := t.insertIntoIndex(ix, row, ptr)
		if err != nil {
			for _, done := range insertedIdx {
				t.removeFromIndex(done, row, ptr)
			}
			p.FreeFixedRow(offset)
			rollbackVarLen()
			return 0, conflict, err
		}
		insertedIdx = append(insertedIdx, ix)
	}

	return ptr, 0, nil
}

type varLenAlloc struct {
	slotOffset   uint32
	firstGranule uint16
	length       uint32
	isBlob       bool
}

// placeRow allocates a row's var-len granules and its fixed slot on p as a
// single unit: a VarLenRef's granule offset is page-relative, so the two
// must land on the same page. Its error wraps errkind.ErrPageFull when
// either allocation doesn't fit, so errors.Is still matches it — Insert
// reacts by retrying the whole row on a fresh page, never splitting one
// row's granules and fixed slot across pages.
func (t *Table) placeRow(p *page.Page, fields []schema.VarLenField) ([]varLenAlloc, func(), uint32, error) {
	alloc, rollbackVarLen, err := t.placeVarLen(p, fields)
	if err != nil {
		return nil, func() {}, 0, err
	}
	offset, err := p.AllocateFixedRow(t.Layout.RowSize)
	if err != nil {
		rollbackVarLen()
		return nil, func() {}, 0, fmt.Errorf("table %q: %w", t.Schema.TableName, err)
	}
	return alloc, rollbackVarLen, offset, nil
}

// placeVarLen writes each var-len field's bytes into a granule chain
// (spilling to the blob store past blob.Threshold, in which case the
// chain holds the 32-byte content hash instead) and returns the allocation
// facts needed to patch each VarLenRef slot. The returned rollback func
// frees every granule and reverses every blob increment if a later insert
// step fails.
func (t *Table) placeVarLen(p *page.Page, fields []schema.VarLenField) ([]varLenAlloc, func(), error) {
	var allocs []varLenAlloc
	var blobHashes []blob.Hash
	var allGranules []uint16

	freeAll := func() {
		for _, h := range blobHashes {
			_ = t.blobs.Dec(h)
		}
		for _, g := range allGranules {
			p.FreeGranule(g)
		}
	}

	for _, f := range fields {
		payload := f.Bytes
		isBlob := len(payload) > blob.Threshold
		if isBlob {
			h, _ := t.blobs.Put(payload)
			blobHashes = append(blobHashes, h)
			payload = h[:]
		}

		head, offsets, err := writeGranuleChain(p, payload)
		if err != nil {
			freeAll()
			return nil, func() {}, fmt.Errorf("table %q: %w", t.Schema.TableName, err)
		}
		allGranules = append(allGranules, offsets...)

		allocs = append(allocs, varLenAlloc{
			slotOffset:   f.SlotOffset,
			firstGranule: head,
			length:       uint32(len(payload)),
			isBlob:       isBlob,
		})
	}
	return allocs, freeAll, nil
}

// writeGranuleChain spills payload across as many granules as needed,
// returning the offset of the first one and every granule offset used (for
// rollback/free bookkeeping).
func writeGranuleChain(p *page.Page, payload []byte) (uint16, []uint16, error) {
	if len(payload) == 0 {
		off, err := p.AllocateGranule()
		if err != nil {
			return 0, nil, err
		}
		p.WriteGranulePayload(off, nil)
		return off, []uint16{off}, nil
	}

	var heads []uint16
	for off := 0; off < len(payload); off += page.GranulePayload {
		end := off + page.GranulePayload
		if end > len(payload) {
			end = len(payload)
		}
		g, err := p.AllocateGranule()
		if err != nil {
			for _, h := range heads {
				p.FreeGranule(h)
			}
			return 0, nil, err
		}
		p.WriteGranulePayload(g, payload[off:end])
		heads = append(heads, g)
	}
	for i := 0; i < len(heads)-1; i++ {
		p.SetNext(heads[i], heads[i+1])
	}
	return heads[0], heads, nil
}

func (t *Table) insertIntoIndex(ix *indexDef, row schema.Row, ptr rowptr.RowPointer) (rowptr.RowPointer, error) {
	f, _ := t.Layout.FieldByPath(ix.column)
	v, err := columnValue(t.Schema, row, ix.column)
	if err != nil {
		return 0, err
	}
	switch ix.kind {
	case kindBTree:
		key, err := encodeIndexKey(f.PrimKind, v)
		if err != nil {
			return 0, err
		}
		if conflict, ok := ix.btree.insert(key, uint64(ptr)); !ok {
			return rowptr.RowPointer(conflict), errkind.ErrUniqueViolation
		}
		return 0, nil
	case kindDirect:
		key, err := directKey(v)
		if err != nil {
			return 0, err
		}
		if conflict, ok := ix.direct.seek(key); ok {
			return rowptr.RowPointer(conflict), errkind.ErrUniqueViolation
		}
		ix.direct.insert(key, uint64(ptr))
		return 0, nil
	}
	return 0, fmt.Errorf("table: unknown index kind")
}

func (t *Table) removeFromIndex(ix *indexDef, row schema.Row, ptr rowptr.RowPointer) {
	f, _ := t.Layout.FieldByPath(ix.column)
	v, err := columnValue(t.Schema, row, ix.column)
	if err != nil {
		return
	}
	switch ix.kind {
	case kindBTree:
		key, err := encodeIndexKey(f.PrimKind, v)
		if err != nil {
			return
		}
		ix.btree.delete(key, uint64(ptr))
	case kindDirect:
		key, err := directKey(v)
		if err != nil {
			return
		}
		ix.direct.delete(key)
	}
}

// columnValue fetches the value of a top-level column out of a decoded
// Row. A dotted path into a nested product is not resolved: it returns an
// error.
func columnValue(s schema.Schema, row schema.Row, path string) (any, error) {
	idx := s.ColumnIndex(rootOf(path))
	if idx < 0 {
		return nil, fmt.Errorf("table: unknown column %q", path)
	}
	if path == rootOf(path) {
		return row[idx], nil
	}
	nested, ok := row[idx].(schema.Row)
	if !ok {
		return nil, fmt.Errorf("table: column %q is not a product", path)
	}
	return nil, fmt.Errorf("table: nested column paths beyond one level are not resolved here: %q (got %v)", path, nested)
}

func rootOf(path string) string {
	for i, c := range path {
		if c == '.' {
			return path[:i]
		}
	}
	return path
}

// Hash returns a stable content hash of a decoded row, independent of
// where its variable-length fields physically live (granules vs blob
// store): it hashes the logical bytes, not the pointers.
func (t *Table) Hash(row schema.Row) uint64 {
	h := xxhash.New()
	hashRow(h, t.Schema.Columns, row)
	return h.Sum64()
}

func hashRow(h *xxhash.Digest, cols []schema.ColumnDef, row schema.Row) {
	for i, col := range cols {
		v := row[i]
		switch {
		case col.Type.Kind == schema.KindProduct:
			nested, _ := v.(schema.Row)
			hashRow(h, col.Type.Fields, nested)
		case col.Type.Kind == schema.KindSum:
			sv, _ := v.(schema.SumValue)
			_, _ = h.Write([]byte{sv.Tag})
			writeHashValue(h, sv.Payload)
		default:
			writeHashValue(h, v)
		}
	}
}

func writeHashValue(h *xxhash.Digest, v any) {
	switch x := v.(type) {
	case string:
		_, _ = h.Write([]byte(x))
	case []byte:
		_, _ = h.Write(x)
	case bool:
		if x {
			_, _ = h.Write([]byte{1})
		} else {
			_, _ = h.Write([]byte{0})
		}
	case int64:
		var b [8]byte
		for i := range b {
			b[i] = byte(x >> (8 * i))
		}
		_, _ = h.Write(b[:])
	case uint64:
		var b [8]byte
		for i := range b {
			b[i] = byte(x >> (8 * i))
		}
		_, _ = h.Write(b[:])
	case float32:
		writeHashValue(h, uint64(x))
	case float64:
		writeHashValue(h, uint64(x))
	}
}

// pageByIndex finds the page a row pointer refers to.
func (t *Table) pageByIndex(idx uint64) (*page.Page, error) {
	if idx >= uint64(len(t.pages)) {
		return nil, fmt.Errorf("table %q: %w", t.Schema.TableName, errkind.ErrRowPointerMismatch)
	}
	return t.pages[idx], nil
}

// resolver builds the variable-length field resolver schema.DecodeFixed
// needs: it reads the VarLenRef slot out of fixed, walks the granule
// chain, and goes through the blob store when the blob marker bit is set.
func (t *Table) resolver(p *page.Page, fixed []byte) func(path string, slotOffset uint32) ([]byte, error) {
	return func(path string, slotOffset uint32) ([]byte, error) {
		head, length, isBlob := getVarLenRef(fixed, slotOffset)
		chain, err := p.IterGranuleChain(head)
		if err != nil {
			return nil, err
		}
		raw := joinChain(chain, length)
		if !isBlob {
			return raw, nil
		}
		var h blob.Hash
		copy(h[:], raw)
		return t.blobs.Get(h)
	}
}

func joinChain(chain [][]byte, length uint32) []byte {
	out := make([]byte, 0, length)
	remaining := int(length)
	for _, g := range chain {
		if remaining <= 0 {
			break
		}
		n := len(g)
		if n > remaining {
			n = remaining
		}
		out = append(out, g[:n]...)
		remaining -= n
	}
	return out
}

// GetRow decodes the row at ptr.
func (t *Table) GetRow(ptr rowptr.RowPointer) (schema.Row, error) {
	p, err := t.pageByIndex(ptr.PageIndex())
	if err != nil {
		return nil, err
	}
	offset := uint32(ptr.Offset())
	if !p.IsPresent(offset) {
		return nil, fmt.Errorf("table %q: %w", t.Schema.TableName, errkind.ErrRowPointerMismatch)
	}
	fixed, err := p.ReadFixed(offset, t.Layout.RowSize)
	if err != nil {
		return nil, err
	}
	return schema.DecodeFixed(t.Layout, fixed, t.resolver(p, fixed))
}

// Delete removes the row at ptr: it frees its granule chains (decrementing
// any blob refcounts), clears the fixed slot, and removes it from every
// index.
func (t *Table) Delete(ptr rowptr.RowPointer) error {
	row, err := t.GetRow(ptr)
	if err != nil {
		return err
	}
	p, err := t.pageByIndex(ptr.PageIndex())
	if err != nil {
		return err
	}
	offset := uint32(ptr.Offset())
	fixed, err := p.ReadFixed(offset, t.Layout.RowSize)
	if err != nil {
		return err
	}

	for _, f := range t.Layout.Fields {
		if f.Kind == schema.FieldVarLen {
			t.freeVarLenSlot(p, fixed, f.Offset)
		}
		if f.Kind == schema.FieldSum {
			tag := fixed[f.Offset]
			if int(tag) < len(f.Variants) {
				for _, vf := range f.Variants[tag].Fields {
					if vf.Kind == schema.FieldVarLen {
						t.freeVarLenSlot(p, fixed, f.PayloadOffset+vf.Offset)
					}
				}
			}
		}
	}

	p.FreeFixedRow(offset)
	for _, ix := range t.indexes {
		t.removeFromIndex(ix, row, ptr)
	}
	return nil
}

func (t *Table) freeVarLenSlot(p *page.Page, fixed []byte, slotOffset uint32) {
	head, length, isBlob := getVarLenRef(fixed, slotOffset)
	if isBlob {
		if chain, err := p.IterGranuleChain(head); err == nil {
			raw := joinChain(chain, length)
			var h blob.Hash
			copy(h[:], raw)
			_ = t.blobs.Dec(h)
		}
	}
	if offsets, err := p.GranuleChainOffsets(head); err == nil {
		for _, o := range offsets {
			p.FreeGranule(o)
		}
	}
}

// ScannedRow pairs a decoded row with the pointer it lives at.
type ScannedRow struct {
	Ptr rowptr.RowPointer
	Row schema.Row
}

// Scan visits every currently-present row in page/slot order.
func (t *Table) Scan() ([]ScannedRow, error) {
	var out []ScannedRow
	for _, p := range t.pages {
		rowSize := t.Layout.RowSize
		for slot := uint32(0); slot < p.MaxSlot(); slot++ {
			offset := slot * rowSize
			if !p.IsPresent(offset) {
				continue
			}
			ptr := rowptr.New(p.Index(), uint16(offset), true, t.epoch)
			row, err := t.GetRow(ptr)
			if err != nil {
				return nil, err
			}
			out = append(out, ScannedRow{Ptr: ptr, Row: row})
		}
	}
	return out, nil
}

// DeleteMatching finds the first currently-present row structurally equal
// to row (per Eq) and deletes it. Replay uses this instead of deleting by a
// literal RowPointer, since pointers recorded in the commit log are not
// guaranteed to still name the same row once replayed: it's the row's
// content, not its storage address, that the log durably records.
func (t *Table) DeleteMatching(row schema.Row) error {
	rows, err := t.Scan()
	if err != nil {
		return err
	}
	for _, r := range rows {
		if Eq(r.Row, row) {
			return t.Delete(r.Ptr)
		}
	}
	return errkind.ErrRowPointerMismatch
}

// SeekBTreePoint looks up an ordered index by name and returns every
// matching pointer for a point key.
func (t *Table) SeekBTreePoint(indexName string, key any) ([]rowptr.RowPointer, error) {
	ix := t.findIndex(indexName)
	if ix == nil || ix.kind != kindBTree {
		return nil, errkind.ErrIndexNotFound
	}
	f, _ := t.Layout.FieldByPath(ix.column)
	k, err := encodeIndexKey(f.PrimKind, key)
	if err != nil {
		return nil, err
	}
	ptrs := ix.btree.seekPoint(k)
	return toRowPointers(ptrs), nil
}

// SeekBTreeRange looks up an ordered index by name and returns every
// pointer whose key falls between lower and upper, each bound inclusive,
// exclusive or unbounded as its Kind says.
func (t *Table) SeekBTreeRange(indexName string, lower, upper index.Bound) ([]rowptr.RowPointer, error) {
	ix := t.findIndex(indexName)
	if ix == nil || ix.kind != kindBTree {
		return nil, errkind.ErrIndexNotFound
	}
	return toRowPointers(ix.btree.seekRange(lower, upper)), nil
}

// SeekDirectPoint looks up a direct index by name for an exact key.
func (t *Table) SeekDirectPoint(indexName string, key uint64) (rowptr.RowPointer, bool, error) {
	ix := t.findIndex(indexName)
	if ix == nil || ix.kind != kindDirect {
		return 0, false, errkind.ErrIndexNotFound
	}
	ptr, ok := ix.direct.seek(key)
	return rowptr.RowPointer(ptr), ok, nil
}

// IndexNames returns the name of every index defined on the table, in
// creation order — used by replay and the catalog to rebuild
// index definitions without guessing at column bindings.
func (t *Table) IndexNames() []string {
	out := make([]string, len(t.indexes))
	for i, ix := range t.indexes {
		out[i] = ix.name
	}
	return out
}

func toRowPointers(ptrs []uint64) []rowptr.RowPointer {
	out := make([]rowptr.RowPointer, len(ptrs))
	for i, p := range ptrs {
		out[i] = rowptr.RowPointer(p)
	}
	return out
}

// Eq compares two decoded rows for structural equality, short-circuiting
// on length for variable-length fields before comparing bytes (spec
// §4.4's eq).
func Eq(a, b schema.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !eqValue(a[i], b[i]) {
			return false
		}
	}
	return true
}

func eqValue(a, b any) bool {
	switch av := a.(type) {
	case schema.Row:
		bv, ok := b.(schema.Row)
		return ok && Eq(av, bv)
	case schema.SumValue:
		bv, ok := b.(schema.SumValue)
		return ok && av.Tag == bv.Tag && eqValue(av.Payload, bv.Payload)
	case []byte:
		bv, ok := b.([]byte)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case string:
		bv, ok := b.(string)
		return ok && len(av) == len(bv) && av == bv
	default:
		return a == b
	}
}
