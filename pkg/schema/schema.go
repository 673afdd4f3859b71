// Package schema describes table schemas (the product-of-fields shape spec
// calls the Data Model) and the deterministic Row Layout computed from them.
package schema

import "fmt"

// Kind enumerates the primitive and composite type kinds a column can hold.
type Kind uint8

const (
	KindBool Kind = iota
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindI128
	KindU128
	KindI256
	KindU256
	KindF32
	KindF64
	KindString  // variable-length, UTF-8
	KindBytes   // variable-length raw bytes
	KindArray   // variable-length homogeneous array of a fixed-size Elem
	KindProduct // nested product of Fields
	KindSum     // tagged union of Variants
)

// IsVarLen reports whether values of this kind occupy a VarLenRef slot in
// the fixed part rather than being stored inline.
func (k Kind) IsVarLen() bool {
	switch k {
	case KindString, KindBytes, KindArray:
		return true
	default:
		return false
	}
}

// AlgebraicType is the type of a single column: either a fixed-size
// primitive, a variable-length string/bytes/array, a nested product, or a
// tagged sum of variants.
type AlgebraicType struct {
	Kind Kind

	// Elem is the element type for KindArray.
	Elem *AlgebraicType

	// Fields is the field list for KindProduct.
	Fields []ColumnDef

	// Variants is the variant list for KindSum. The wire tag is the
	// variant's index in this slice.
	Variants []ColumnDef
}

// ColumnDef names one field of a product, or one variant of a sum.
type ColumnDef struct {
	Name string
	Type AlgebraicType
}

// Schema is a table's column list. It is static and immutable for the
// lifetime of the table that owns it.
type Schema struct {
	TableName string
	Columns   []ColumnDef
}

// ColumnIndex returns the position of the named column, or -1.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func primitiveSizeAlign(k Kind) (size, align uint32, ok bool) {
	switch k {
	case KindBool, KindI8, KindU8:
		return 1, 1, true
	case KindI16, KindU16:
		return 2, 2, true
	case KindI32, KindU32, KindF32:
		return 4, 4, true
	case KindI64, KindU64, KindF64:
		return 8, 8, true
	case KindI128, KindU128:
		return 16, 16, true
	case KindI256, KindU256:
		return 32, 32, true
	default:
		return 0, 0, false
	}
}

func (t AlgebraicType) String() string {
	switch t.Kind {
	case KindProduct:
		return fmt.Sprintf("product(%d fields)", len(t.Fields))
	case KindSum:
		return fmt.Sprintf("sum(%d variants)", len(t.Variants))
	case KindArray:
		return fmt.Sprintf("array(%v)", t.Elem)
	default:
		return fmt.Sprintf("kind(%d)", t.Kind)
	}
}
