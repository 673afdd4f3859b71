package schema

import "fmt"

// FieldKind tags how a FieldLayout's bytes in the fixed part should be
// interpreted.
type FieldKind uint8

const (
	FieldFixed FieldKind = iota
	FieldVarLen
	FieldSum
)

// VarLenRefSize is the fixed width of the VarLenRef slot spec §4.3
// prescribes: 2 bytes first-granule pointer, 4 bytes length (top bit used as
// the blob marker), 2 bytes padding.
const VarLenRefSize = 8

// VarLenRefAlign is the alignment of a VarLenRef slot (driven by its
// embedded u32 length field).
const VarLenRefAlign = 4

// BlobMarkerBit is the high bit of VarLenRef.Len that indicates the value
// lives in the blob store rather than inline granules.
const BlobMarkerBit = uint32(1) << 31

// FieldLayout describes one column's (or, for a nested product, one leaf
// field's) position in the fixed part of a row. Nested products are
// flattened into dotted Path entries rather than kept as a separate region;
// this preserves the byte offsets and sizes spec §4.3 calls for while
// keeping table code working over one flat field list.
type FieldLayout struct {
	Path     string
	Offset   uint32
	Size     uint32
	Align    uint32
	Kind     FieldKind
	PrimKind Kind
	Elem     *AlgebraicType // set when PrimKind == KindArray

	// Variants is populated when Kind == FieldSum: the tag byte sits at
	// Offset, and each variant's payload lives at the same PayloadOffset
	// (the largest-variant-sized region immediately after the padded tag).
	Variants      []VariantLayout
	PayloadOffset uint32
}

// VariantLayout is one arm of a sum type's layout: its own flattened field
// list, sized and padded independently, then placed inside the sum's shared
// payload region.
type VariantLayout struct {
	Name   string
	Tag    uint8
	Fields []FieldLayout
	Size   uint32
	Align  uint32
}

// RowTypeLayout is the deterministic lowering of a Schema to byte offsets.
type RowTypeLayout struct {
	Schema  Schema
	Fields  []FieldLayout
	RowSize uint32
	Align   uint32
}

// FieldByPath finds a flattened field by its dotted path.
func (l *RowTypeLayout) FieldByPath(path string) (FieldLayout, bool) {
	for _, f := range l.Fields {
		if f.Path == path {
			return f, true
		}
	}
	return FieldLayout{}, false
}

func alignUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + (align - rem)
}

// Compute lowers a schema to a RowTypeLayout, per spec §4.3's rules:
// natural alignment for scalars, an 8-byte VarLenRef slot for
// variable-length fields, tag+padded-max-variant for sums, and the overall
// row size padded to the layout's alignment.
func Compute(s Schema) (*RowTypeLayout, error) {
	fields, size, align, err := layoutFields(s.Columns, "")
	if err != nil {
		return nil, err
	}
	return &RowTypeLayout{
		Schema:  s,
		Fields:  fields,
		RowSize: alignUp(size, align),
		Align:   align,
	}, nil
}

// layoutFields lays out a list of columns starting at cursor 0, returning
// the flattened fields, the unpadded size, and the overall alignment. It is
// used both for the top-level schema and, recursively, for nested products
// and sum-type variant payloads.
func layoutFields(cols []ColumnDef, prefix string) ([]FieldLayout, uint32, uint32, error) {
	var cursor uint32
	var maxAlign uint32 = 1
	var out []FieldLayout

	for _, col := range cols {
		path := col.Name
		if prefix != "" {
			path = prefix + "." + col.Name
		}
		entries, newCursor, err := layoutOne(path, col.Type, cursor)
		if err != nil {
			return nil, 0, 0, err
		}
		cursor = newCursor
		for _, e := range entries {
			if e.Align > maxAlign {
				maxAlign = e.Align
			}
			out = append(out, e)
		}
	}
	return out, cursor, maxAlign, nil
}

func layoutOne(path string, t AlgebraicType, cursor uint32) ([]FieldLayout, uint32, error) {
	switch {
	case t.Kind == KindProduct:
		entries, size, align, err := layoutFields(t.Fields, path)
		if err != nil {
			return nil, 0, err
		}
		// Re-base the nested entries onto the parent's cursor, aligned to
		// the nested product's own alignment so every leaf stays naturally
		// aligned.
		base := alignUp(cursor, align)
		rebased := make([]FieldLayout, len(entries))
		for i, e := range entries {
			e.Offset += base
			if e.Kind == FieldSum {
				e.PayloadOffset += base
			}
			rebased[i] = e
		}
		return rebased, base + size, nil

	case t.Kind == KindSum:
		return layoutSum(path, t, cursor)

	case t.Kind.IsVarLen():
		off := alignUp(cursor, VarLenRefAlign)
		f := FieldLayout{
			Path:     path,
			Offset:   off,
			Size:     VarLenRefSize,
			Align:    VarLenRefAlign,
			Kind:     FieldVarLen,
			PrimKind: t.Kind,
			Elem:     t.Elem,
		}
		return []FieldLayout{f}, off + VarLenRefSize, nil

	default:
		size, align, ok := primitiveSizeAlign(t.Kind)
		if !ok {
			return nil, 0, fmt.Errorf("schema: unsupported field kind %d at %q", t.Kind, path)
		}
		off := alignUp(cursor, align)
		f := FieldLayout{
			Path:     path,
			Offset:   off,
			Size:     size,
			Align:    align,
			Kind:     FieldFixed,
			PrimKind: t.Kind,
		}
		return []FieldLayout{f}, off + size, nil
	}
}

func layoutSum(path string, t AlgebraicType, cursor uint32) ([]FieldLayout, uint32, error) {
	variants := make([]VariantLayout, len(t.Variants))
	var maxSize, maxAlign uint32 = 0, 1

	for i, v := range t.Variants {
		var fields []FieldLayout
		var size, align uint32
		var err error
		if v.Type.Kind == KindProduct {
			fields, size, align, err = layoutFields(v.Type.Fields, "")
		} else {
			fields, size, align, err = layoutFields([]ColumnDef{{Name: v.Name, Type: v.Type}}, "")
		}
		if err != nil {
			return nil, 0, err
		}
		size = alignUp(size, align)
		variants[i] = VariantLayout{Name: v.Name, Tag: uint8(i), Fields: fields, Size: size, Align: align}
		if size > maxSize {
			maxSize = size
		}
		if align > maxAlign {
			maxAlign = align
		}
	}
	if maxAlign == 0 {
		maxAlign = 1
	}

	tagOffset := cursor
	cursor = tagOffset + 1
	payloadOffset := alignUp(cursor, maxAlign)
	cursor = payloadOffset + maxSize

	f := FieldLayout{
		Path:          path,
		Offset:        tagOffset,
		Size:          (payloadOffset - tagOffset) + maxSize,
		Align:         maxAlign,
		Kind:          FieldSum,
		Variants:      variants,
		PayloadOffset: payloadOffset,
	}
	return []FieldLayout{f}, cursor, nil
}
