package schema

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Row is a decoded product value: one entry per top-level column, in
// declaration order. A nested product column's entry is itself a Row.
type Row []any

// SumValue is a decoded tagged-union value: Tag selects which of the
// sum's Variants Payload holds.
type SumValue struct {
	Tag     uint8
	Payload any
}

// VarLenField is one variable-length field's raw bytes, pending placement
// into granules or the blob store by the table layer, along with the byte
// offset of its VarLenRef slot in the fixed part so the table layer can
// patch in the real pointer once it knows where the bytes ended up.
type VarLenField struct {
	Path       string
	SlotOffset uint32
	Bytes      []byte
}

// EncodeFixed serializes row's scalar and sum-tag bytes into the fixed
// part described by layout, zeroing every VarLenRef slot. It returns the
// raw bytes for each variable-length field separately: the table layer
// decides whether each one is small enough to inline in granules or large
// enough to go through the blob store, then patches the corresponding
// VarLenRef slot via PatchVarLenRef.
func EncodeFixed(layout *RowTypeLayout, row Row) ([]byte, []VarLenField, error) {
	buf := make([]byte, layout.RowSize)
	var varLen []VarLenField

	if len(row) != len(layout.Schema.Columns) {
		return nil, nil, fmt.Errorf("schema: row has %d values, schema has %d columns", len(row), len(layout.Schema.Columns))
	}

	values := flattenRowValues(layout.Schema.Columns, row, "")

	for _, f := range layout.Fields {
		v, ok := values[f.Path]
		if !ok {
			return nil, nil, fmt.Errorf("schema: missing value for field %q", f.Path)
		}
		switch f.Kind {
		case FieldFixed:
			if err := encodeScalar(buf[f.Offset:f.Offset+f.Size], f.PrimKind, v); err != nil {
				return nil, nil, fmt.Errorf("field %q: %w", f.Path, err)
			}
		case FieldVarLen:
			raw, err := encodeVarLen(f.PrimKind, v)
			if err != nil {
				return nil, nil, fmt.Errorf("field %q: %w", f.Path, err)
			}
			varLen = append(varLen, VarLenField{Path: f.Path, SlotOffset: f.Offset, Bytes: raw})
		case FieldSum:
			sv, ok := v.(SumValue)
			if !ok {
				return nil, nil, fmt.Errorf("field %q: expected SumValue, got %T", f.Path, v)
			}
			if int(sv.Tag) >= len(f.Variants) {
				return nil, nil, fmt.Errorf("field %q: tag %d out of range", f.Path, sv.Tag)
			}
			buf[f.Offset] = sv.Tag
			variant := f.Variants[sv.Tag]
			payloadValues := flattenVariantValue(variant, sv.Payload)
			for _, vf := range variant.Fields {
				pv, ok := payloadValues[vf.Path]
				if !ok {
					return nil, nil, fmt.Errorf("field %q: missing variant value %q", f.Path, vf.Path)
				}
				dst := buf[f.PayloadOffset+vf.Offset : f.PayloadOffset+vf.Offset+vf.Size]
				if vf.Kind == FieldVarLen {
					raw, err := encodeVarLen(vf.PrimKind, pv)
					if err != nil {
						return nil, nil, fmt.Errorf("field %q.%s: %w", f.Path, vf.Path, err)
					}
					varLen = append(varLen, VarLenField{Path: f.Path + "." + vf.Path, SlotOffset: f.PayloadOffset + vf.Offset, Bytes: raw})
				} else if err := encodeScalar(dst, vf.PrimKind, pv); err != nil {
					return nil, nil, fmt.Errorf("field %q.%s: %w", f.Path, vf.Path, err)
				}
			}
		}
	}
	return buf, varLen, nil
}

// flattenRowValues walks a Row alongside its column defs, producing a map
// from dotted path to leaf/product/sum value, matching the paths Compute
// produced in layout.go.
func flattenRowValues(cols []ColumnDef, row Row, prefix string) map[string]any {
	out := make(map[string]any)
	for i, col := range cols {
		path := col.Name
		if prefix != "" {
			path = prefix + "." + col.Name
		}
		v := row[i]
		if col.Type.Kind == KindProduct {
			nested, _ := v.(Row)
			for k, nv := range flattenRowValues(col.Type.Fields, nested, path) {
				out[k] = nv
			}
			continue
		}
		out[path] = v
	}
	return out
}

// flattenVariantValue mirrors flattenRowValues for a single sum variant's
// payload, which is either a Row (for a product-typed variant) or a bare
// scalar/var-len value stored under the variant's own column name.
func flattenVariantValue(variant VariantLayout, payload any) map[string]any {
	out := make(map[string]any)
	if len(variant.Fields) == 1 && variant.Fields[0].Path == variant.Name {
		out[variant.Name] = payload
		return out
	}
	nested, _ := payload.(Row)
	// variant.Fields paths were computed with prefix "" by layoutSum, so they
	// are already bare names for a product-typed variant.
	for i, f := range variant.Fields {
		if i < len(nested) {
			out[f.Path] = nested[i]
		}
	}
	return out
}

func encodeScalar(dst []byte, k Kind, v any) error {
	switch k {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		if b {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case KindI8, KindU8:
		switch n := v.(type) {
		case int64:
			dst[0] = byte(n)
		case uint64:
			dst[0] = byte(n)
		default:
			return fmt.Errorf("expected int64/uint64, got %T", v)
		}
	case KindI16, KindU16:
		n, err := toUint64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint16(dst, uint16(n))
	case KindI32, KindU32:
		n, err := toUint64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, uint32(n))
	case KindI64, KindU64:
		n, err := toUint64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, n)
	case KindI128, KindU128, KindI256, KindU256:
		b, ok := v.([]byte)
		if !ok || len(b) != len(dst) {
			return fmt.Errorf("expected %d-byte value, got %T", len(dst), v)
		}
		copy(dst, b)
	case KindF32:
		f, ok := v.(float32)
		if !ok {
			return fmt.Errorf("expected float32, got %T", v)
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
	case KindF64:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
	default:
		return fmt.Errorf("kind %d is not a fixed scalar", k)
	}
	return nil
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case int64:
		return uint64(n), nil
	case uint64:
		return n, nil
	case int:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func encodeVarLen(k Kind, v any) ([]byte, error) {
	switch k {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return []byte(s), nil
	case KindBytes, KindArray:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte, got %T", v)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("kind %d is not variable-length", k)
	}
}

func decodeScalar(src []byte, k Kind) (any, error) {
	switch k {
	case KindBool:
		return src[0] != 0, nil
	case KindI8:
		return int64(int8(src[0])), nil
	case KindU8:
		return uint64(src[0]), nil
	case KindI16:
		return int64(int16(binary.LittleEndian.Uint16(src))), nil
	case KindU16:
		return uint64(binary.LittleEndian.Uint16(src)), nil
	case KindI32:
		return int64(int32(binary.LittleEndian.Uint32(src))), nil
	case KindU32:
		return uint64(binary.LittleEndian.Uint32(src)), nil
	case KindI64:
		return int64(binary.LittleEndian.Uint64(src)), nil
	case KindU64:
		return binary.LittleEndian.Uint64(src), nil
	case KindI128, KindU128, KindI256, KindU256:
		cp := make([]byte, len(src))
		copy(cp, src)
		return cp, nil
	case KindF32:
		return math.Float32frombits(binary.LittleEndian.Uint32(src)), nil
	case KindF64:
		return math.Float64frombits(binary.LittleEndian.Uint64(src)), nil
	default:
		return nil, fmt.Errorf("kind %d is not a fixed scalar", k)
	}
}

// DecodeFixed reconstructs a Row from the fixed part bytes, calling resolve
// for each variable-length field's raw value bytes (the table layer
// supplies a resolver that follows the VarLenRef's granule chain, or goes
// through the blob store when the blob marker bit is set).
func DecodeFixed(layout *RowTypeLayout, fixed []byte, resolve func(path string, slotOffset uint32) ([]byte, error)) (Row, error) {
	values := make(map[string]any, len(layout.Fields))

	for _, f := range layout.Fields {
		switch f.Kind {
		case FieldFixed:
			v, err := decodeScalar(fixed[f.Offset:f.Offset+f.Size], f.PrimKind)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Path, err)
			}
			values[f.Path] = v
		case FieldVarLen:
			raw, err := resolve(f.Path, f.Offset)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Path, err)
			}
			values[f.Path] = decodeVarLen(f.PrimKind, raw)
		case FieldSum:
			tag := fixed[f.Offset]
			if int(tag) >= len(f.Variants) {
				return nil, fmt.Errorf("field %q: tag %d out of range", f.Path, tag)
			}
			variant := f.Variants[tag]
			payload, err := decodeVariantPayload(variant, fixed, f.PayloadOffset, f.Path, resolve)
			if err != nil {
				return nil, err
			}
			values[f.Path] = SumValue{Tag: tag, Payload: payload}
		}
	}

	return unflattenRow(layout.Schema.Columns, values, "")
}

func decodeVariantPayload(variant VariantLayout, fixed []byte, payloadOffset uint32, sumPath string, resolve func(path string, slotOffset uint32) ([]byte, error)) (any, error) {
	if len(variant.Fields) == 1 && variant.Fields[0].Path == variant.Name {
		vf := variant.Fields[0]
		if vf.Kind == FieldVarLen {
			raw, err := resolve(sumPath+"."+vf.Path, payloadOffset+vf.Offset)
			if err != nil {
				return nil, err
			}
			return decodeVarLen(vf.PrimKind, raw), nil
		}
		return decodeScalar(fixed[payloadOffset+vf.Offset:payloadOffset+vf.Offset+vf.Size], vf.PrimKind)
	}
	row := make(Row, len(variant.Fields))
	for i, vf := range variant.Fields {
		if vf.Kind == FieldVarLen {
			raw, err := resolve(sumPath+"."+vf.Path, payloadOffset+vf.Offset)
			if err != nil {
				return nil, err
			}
			row[i] = decodeVarLen(vf.PrimKind, raw)
			continue
		}
		v, err := decodeScalar(fixed[payloadOffset+vf.Offset:payloadOffset+vf.Offset+vf.Size], vf.PrimKind)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

func decodeVarLen(k Kind, raw []byte) any {
	if k == KindString {
		return string(raw)
	}
	return raw
}

// varLenFieldOrder replays EncodeFixed's dynamic iteration order for
// variable-length fields — including which sum variant's fields apply,
// read from the tag byte already present in fixed — so the commit log's
// wire encoding (which serializes var-len bytes inline, in this same
// order, instead of via VarLenRef/granule pointers) can be decoded without
// a separate path list.
func varLenFieldOrder(layout *RowTypeLayout, fixed []byte) []string {
	var paths []string
	for _, f := range layout.Fields {
		switch f.Kind {
		case FieldVarLen:
			paths = append(paths, f.Path)
		case FieldSum:
			tag := fixed[f.Offset]
			if int(tag) >= len(f.Variants) {
				continue
			}
			for _, vf := range f.Variants[tag].Fields {
				if vf.Kind == FieldVarLen {
					paths = append(paths, f.Path+"."+vf.Path)
				}
			}
		}
	}
	return paths
}

// EncodeWire serializes row into the commit log's row wire format: the
// fixed part (VarLenRef/sum-payload var-len slots left zeroed, since
// var-len bytes travel separately) followed by a length-prefixed list of
// each variable-length field's raw bytes, in declaration order.
//
// Unlike the in-page VarLenRef, which always points at a granule chain
// (spilling to the blob store past blob.Threshold), the wire format always
// carries the value's real bytes: replay reconstructs committed state by
// calling the same Insert path a live write uses, and Insert independently
// re-derives the granule-vs-blob placement from the byte length, exactly
// as it did the first time.
func EncodeWire(layout *RowTypeLayout, row Row) ([]byte, error) {
	fixed, varLen, err := EncodeFixed(layout, row)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(fixed), len(fixed)+4+len(varLen)*8)
	copy(buf, fixed)
	buf = appendUint32(buf, uint32(len(varLen)))
	for _, f := range varLen {
		buf = appendUint32(buf, uint32(len(f.Bytes)))
		buf = append(buf, f.Bytes...)
	}
	return buf, nil
}

// DecodeWire is EncodeWire's inverse. It returns the decoded row and the
// number of bytes of data consumed.
func DecodeWire(layout *RowTypeLayout, data []byte) (Row, int, error) {
	if len(data) < int(layout.RowSize)+4 {
		return nil, 0, fmt.Errorf("schema: wire row shorter than its fixed part")
	}
	fixed := data[:layout.RowSize]
	rest := data[layout.RowSize:]

	n := readUint32(rest)
	rest = rest[4:]

	paths := varLenFieldOrder(layout, fixed)
	if int(n) != len(paths) {
		return nil, 0, fmt.Errorf("schema: wire row has %d var-len fields, layout expects %d", n, len(paths))
	}

	varLen := make([]VarLenField, n)
	for i := 0; i < int(n); i++ {
		if len(rest) < 4 {
			return nil, 0, fmt.Errorf("schema: truncated wire row")
		}
		l := readUint32(rest)
		rest = rest[4:]
		if uint32(len(rest)) < l {
			return nil, 0, fmt.Errorf("schema: truncated wire row payload")
		}
		varLen[i] = VarLenField{Path: paths[i], Bytes: rest[:l]}
		rest = rest[l:]
	}

	row, err := DecodeFixed(layout, fixed, wireResolver(varLen))
	if err != nil {
		return nil, 0, err
	}
	return row, len(data) - len(rest), nil
}

func wireResolver(varLen []VarLenField) func(path string, slotOffset uint32) ([]byte, error) {
	byPath := make(map[string][]byte, len(varLen))
	for _, v := range varLen {
		byPath[v.Path] = v.Bytes
	}
	return func(path string, slotOffset uint32) ([]byte, error) {
		return byPath[path], nil
	}
}

func appendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func readUint32(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24
}

func unflattenRow(cols []ColumnDef, values map[string]any, prefix string) (Row, error) {
	row := make(Row, len(cols))
	for i, col := range cols {
		path := col.Name
		if prefix != "" {
			path = prefix + "." + col.Name
		}
		if col.Type.Kind == KindProduct {
			nested, err := unflattenRow(col.Type.Fields, values, path)
			if err != nil {
				return nil, err
			}
			row[i] = nested
			continue
		}
		v, ok := values[path]
		if !ok {
			return nil, fmt.Errorf("schema: no decoded value for field %q", path)
		}
		row[i] = v
	}
	return row, nil
}
