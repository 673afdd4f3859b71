package table

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ridgedb/ridge/pkg/schema"
)

// encodeIndexKey turns a column's decoded value into a byte string whose
// natural (bytes.Compare) ordering matches the value's own ordering, so a
// BTree index built on these keys produces spec §4.5's ascending scans.
func encodeIndexKey(k schema.Kind, v any) ([]byte, error) {
	switch k {
	case schema.KindBool:
		b, _ := v.(bool)
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case schema.KindU8, schema.KindU16, schema.KindU32, schema.KindU64:
		n, err := asUint64(v)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, n)
		return buf, nil
	case schema.KindI8, schema.KindI16, schema.KindI32, schema.KindI64:
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("table: expected int64 for key, got %T", v)
		}
		// Flip the sign bit so two's-complement values sort the same way
		// under unsigned big-endian byte comparison.
		u := uint64(n) ^ (uint64(1) << 63)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, u)
		return buf, nil
	case schema.KindF64:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("table: expected float64 for key, got %T", v)
		}
		return floatKey(math.Float64bits(f)), nil
	case schema.KindF32:
		f, ok := v.(float32)
		if !ok {
			return nil, fmt.Errorf("table: expected float32 for key, got %T", v)
		}
		bits := uint64(math.Float32bits(f)) << 32
		return floatKey(bits)[:4], nil
	case schema.KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("table: expected string for key, got %T", v)
		}
		return []byte(s), nil
	case schema.KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("table: expected []byte for key, got %T", v)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("table: kind %d cannot be used as an index key", k)
	}
}

// floatKey maps IEEE-754 bits to a byte string that sorts the same way the
// float itself orders: flip all bits for negatives, only the sign bit for
// non-negatives.
func floatKey(bits uint64) []byte {
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

func asUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("table: expected an unsigned integer for key, got %T", v)
	}
}

// directKey extracts a small unsigned integer suitable for the Direct
// index's dense array.
func directKey(v any) (uint64, error) {
	return asUint64(v)
}
